package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_ShippedOperatingPoint(t *testing.T) {
	cfg := Default()

	if cfg.SummaryDecimals != 2 || cfg.BlendWeight != 0.5 {
		t.Errorf("defaults: expected decimals 2 blend 0.5, got %d / %g", cfg.SummaryDecimals, cfg.BlendWeight)
	}
	if cfg.Mitigation.VelocityCheck.MaxInWindow != 10 || cfg.Mitigation.VelocityCheck.WindowMs != 60_000 {
		t.Errorf("velocity defaults off: %+v", cfg.Mitigation.VelocityCheck)
	}
	if cfg.TEE.FreshnessWindowSeconds != 86_400 || cfg.TEE.VerifiedTrustWeight != 1.5 {
		t.Errorf("tee defaults off: %+v", cfg.TEE)
	}
	if len(cfg.TierThresholds) != 9 {
		t.Errorf("expected 9 tier rungs, got %d", len(cfg.TierThresholds))
	}
}

func TestLoad_OverridesAndValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")

	yaml := `
mitigation_config:
  velocity_check:
    enabled: true
    max_in_window: 20
    window_ms: 30000
    discount_factor: 0.5
blend_weight: 0.7
summary_decimals: 3
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mitigation.VelocityCheck.MaxInWindow != 20 || cfg.Mitigation.VelocityCheck.WindowMs != 30_000 {
		t.Errorf("file values should override defaults: %+v", cfg.Mitigation.VelocityCheck)
	}
	if cfg.BlendWeight != 0.7 || cfg.SummaryDecimals != 3 {
		t.Errorf("expected blend 0.7 decimals 3, got %g / %d", cfg.BlendWeight, cfg.SummaryDecimals)
	}
	// Untouched sections keep their defaults
	if cfg.TEE.MaxAPICallsThreshold != 50 {
		t.Errorf("unrelated defaults must survive, got %d", cfg.TEE.MaxAPICallsThreshold)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte("blend_weight: 1.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("blend weight outside (0,1) must be rejected")
	}

	if err := os.WriteFile(path, []byte("summary_decimals: 9\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("summary_decimals above 4 must be rejected")
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BlendWeight != 0.5 {
		t.Errorf("empty path should yield defaults, got blend %g", cfg.BlendWeight)
	}
}
