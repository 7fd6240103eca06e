package mitigation

import (
	"math"
	"testing"

	"github.com/skillmesh/trust-engine/pkg/models"
)

const dayMs = int64(24 * 60 * 60 * 1000)

func TestDecayWeights_AnchoredAtMaxTimestamp(t *testing.T) {
	cfg := DecayConfig{Enabled: true, HalfLifeMs: dayMs}
	now := int64(10_000_000_000)
	entries := []models.Feedback{
		fb("old", "agent-1", "c1", 90, now-2*dayMs),
		fb("mid", "agent-1", "c2", 90, now-dayMs),
		fb("new", "agent-1", "c3", 90, now),
	}

	results := DecayWeights(entries, cfg)

	if w := results["new"].Weight; math.Abs(w-1.0) > 1e-12 {
		t.Errorf("newest entry should weigh 1.0, got %g", w)
	}
	if w := results["mid"].Weight; math.Abs(w-0.5) > 1e-12 {
		t.Errorf("one half-life old should weigh 0.5, got %g", w)
	}
	if w := results["old"].Weight; math.Abs(w-0.25) > 1e-12 {
		t.Errorf("two half-lives old should weigh 0.25, got %g", w)
	}

	if results["new"].HasTag(models.TagTemporalDecay) {
		t.Error("full-weight entry should carry no decay tag")
	}
	if !results["old"].HasTag(models.TagTemporalDecay) {
		t.Error("decayed entry should carry the decay tag")
	}
}

func TestDecayWeights_TimestampShiftInvariant(t *testing.T) {
	cfg := DecayConfig{Enabled: true, HalfLifeMs: dayMs}
	base := []models.Feedback{
		fb("a", "agent-1", "c1", 90, 1000),
		fb("b", "agent-1", "c2", 90, 1000+dayMs),
	}
	shifted := []models.Feedback{
		fb("a", "agent-1", "c1", 90, 1000+365*dayMs),
		fb("b", "agent-1", "c2", 90, 1000+366*dayMs),
	}

	w1 := DecayWeights(base, cfg)
	w2 := DecayWeights(shifted, cfg)
	for _, id := range []string{"a", "b"} {
		if math.Abs(w1[id].Weight-w2[id].Weight) > 1e-12 {
			t.Errorf("entry %s: shift changed weight %g → %g", id, w1[id].Weight, w2[id].Weight)
		}
	}
}

func TestDecayWeights_FloorDropsAncientEntries(t *testing.T) {
	cfg := DecayConfig{Enabled: true, HalfLifeMs: dayMs}
	now := int64(10_000_000_000)
	entries := []models.Feedback{
		fb("ancient", "agent-1", "c1", 90, now-25*dayMs), // 25 half-lives < 2^-20
		fb("new", "agent-1", "c2", 90, now),
	}

	results := DecayWeights(entries, cfg)
	if w := results["ancient"].Weight; w != 0 {
		t.Errorf("entry below the floor should weigh 0, got %g", w)
	}
}
