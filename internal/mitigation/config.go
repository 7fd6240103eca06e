package mitigation

// Detector configuration. Every detector can be disabled independently;
// the numeric defaults below are the shipped operating point.

// GraphConfig parameterises mutual-pair / sybil cluster detection
type GraphConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	DiscountFactor float64 `yaml:"discount_factor" json:"discountFactor"` // (0, 1]
	// SharedNamespace treats client addresses and agent ids as one identifier
	// space. Correct when publishers use their publisher address as their
	// skill handle; deployments with split namespaces turn this off.
	SharedNamespace bool `yaml:"shared_namespace" json:"sharedNamespace"`
}

// VelocityConfig parameterises the sliding-window burst detector
type VelocityConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	MaxInWindow    int     `yaml:"max_in_window" json:"maxInWindow"`
	WindowMs       int64   `yaml:"window_ms" json:"windowMs"`
	DiscountFactor float64 `yaml:"discount_factor" json:"discountFactor"`
}

// AnomalyConfig parameterises the new-submitter burst detector
type AnomalyConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	MaxNewInWindow int     `yaml:"max_new_in_window" json:"maxNewInWindow"`
	WindowMs       int64   `yaml:"window_ms" json:"windowMs"`
	DiscountFactor float64 `yaml:"discount_factor" json:"discountFactor"`
}

// DecayConfig parameterises temporal decay
type DecayConfig struct {
	Enabled    bool  `yaml:"enabled" json:"enabled"`
	HalfLifeMs int64 `yaml:"half_life_ms" json:"halfLifeMs"`
}

// SubmitterConfig parameterises submitter-recency weighting
type SubmitterConfig struct {
	Enabled         bool    `yaml:"enabled" json:"enabled"`
	RecentThreshold float64 `yaml:"recent_threshold" json:"recentThreshold"` // fraction of corpus span
	DiscountFactor  float64 `yaml:"discount_factor" json:"discountFactor"`
}

// ShiftConfig parameterises behavioural-shift detection
type ShiftConfig struct {
	Enabled              bool    `yaml:"enabled" json:"enabled"`
	RecentWindowFraction float64 `yaml:"recent_window_fraction" json:"recentWindowFraction"`
	DeviationThreshold   float64 `yaml:"deviation_threshold" json:"deviationThreshold"`
	HistoricalResidual   float64 `yaml:"historical_residual" json:"historicalResidual"`
}

// Config bundles every detector's settings
type Config struct {
	GraphAnalysis      GraphConfig     `yaml:"graph_analysis" json:"graphAnalysis"`
	VelocityCheck      VelocityConfig  `yaml:"velocity_check" json:"velocityCheck"`
	AnomalyDetection   AnomalyConfig   `yaml:"anomaly_detection" json:"anomalyDetection"`
	TemporalDecay      DecayConfig     `yaml:"temporal_decay" json:"temporalDecay"`
	SubmitterWeighting SubmitterConfig `yaml:"submitter_weighting" json:"submitterWeighting"`
	BehaviouralShift   ShiftConfig     `yaml:"behavioural_shift" json:"behaviouralShift"`
}

// DefaultConfig returns the shipped detector parameters
func DefaultConfig() Config {
	return Config{
		GraphAnalysis: GraphConfig{
			Enabled:         true,
			DiscountFactor:  0.1,
			SharedNamespace: true,
		},
		VelocityCheck: VelocityConfig{
			Enabled:        true,
			MaxInWindow:    10,
			WindowMs:       60_000,
			DiscountFactor: 0.3,
		},
		AnomalyDetection: AnomalyConfig{
			Enabled:        true,
			MaxNewInWindow: 10,
			WindowMs:       60_000,
			DiscountFactor: 0.3,
		},
		TemporalDecay: DecayConfig{
			Enabled:    true,
			HalfLifeMs: 7 * 24 * 60 * 60 * 1000,
		},
		SubmitterWeighting: SubmitterConfig{
			Enabled:         true,
			RecentThreshold: 0.5,
			DiscountFactor:  0.2,
		},
		BehaviouralShift: ShiftConfig{
			Enabled:              true,
			RecentWindowFraction: 0.3,
			DeviationThreshold:   30,
			HistoricalResidual:   0.3,
		},
	}
}
