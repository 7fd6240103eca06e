package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skillmesh/trust-engine/internal/mitigation"
	"github.com/skillmesh/trust-engine/internal/scoring"
	"github.com/skillmesh/trust-engine/internal/tee"
)

// Engine configuration. Everything numeric lives in one YAML file so
// operators can review the whole operating point in a single diff.
// Secrets never go here — those stay in environment variables.

// Config is the single configuration record for the engine
type Config struct {
	Mitigation mitigation.Config `yaml:"mitigation_config"`
	TEE        tee.Config        `yaml:"tee_config"`

	// TierThresholds is startup-only: changing boundaries mid-run would
	// make cached and fresh summaries incomparable.
	TierThresholds []scoring.TierThreshold `yaml:"tier_thresholds"`

	SummaryDecimals int `yaml:"summary_decimals"`

	// BlendWeight is the hardened share of the usage-weighted blend
	BlendWeight float64 `yaml:"blend_weight"`

	// CredibilityMultiplier scales the fixed credibility weight table.
	// The table itself is not configurable.
	CredibilityMultiplier float64 `yaml:"credibility_multiplier"`

	// EventQueueSize bounds each bus subscriber's queue
	EventQueueSize int `yaml:"event_queue_size"`
}

// Default returns the shipped configuration
func Default() Config {
	return Config{
		Mitigation:            mitigation.DefaultConfig(),
		TEE:                   tee.DefaultConfig(),
		TierThresholds:        scoring.DefaultTierThresholds(),
		SummaryDecimals:       2,
		BlendWeight:           0.5,
		CredibilityMultiplier: 1.0,
		EventQueueSize:        256,
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SummaryDecimals < 0 || c.SummaryDecimals > 4 {
		return fmt.Errorf("summary_decimals must be 0-4, got %d", c.SummaryDecimals)
	}
	if c.BlendWeight <= 0 || c.BlendWeight >= 1 {
		return fmt.Errorf("blend_weight must be inside (0, 1), got %g", c.BlendWeight)
	}
	if d := c.Mitigation.GraphAnalysis.DiscountFactor; d <= 0 || d > 1 {
		return fmt.Errorf("graph_analysis.discount_factor must be inside (0, 1], got %g", d)
	}
	if c.TEE.FreshnessWindowSeconds <= 0 {
		return fmt.Errorf("tee_config.freshness_window_seconds must be positive, got %d", c.TEE.FreshnessWindowSeconds)
	}
	return nil
}
