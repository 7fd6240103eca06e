package mitigation

import (
	"fmt"
	"testing"

	"github.com/skillmesh/trust-engine/pkg/models"
)

func TestDetectNewSubmitterBursts_FreshIdentityFlood(t *testing.T) {
	cfg := AnomalyConfig{Enabled: true, MaxNewInWindow: 3, WindowMs: 60_000, DiscountFactor: 0.3}

	// Five brand-new addresses rate inside one minute
	firstSeen := make(map[string]int64)
	var entries []models.Feedback
	for i := 0; i < 5; i++ {
		client := fmt.Sprintf("fresh-%d", i)
		ts := int64(1_000_000 + i*5_000)
		entries = append(entries, fb(fmt.Sprintf("f%d", i), "agent-1", client, 95, ts))
		firstSeen[client] = ts
	}

	results := DetectNewSubmitterBursts(entries, firstSeen, cfg)
	if len(results) != 5 {
		t.Fatalf("expected all 5 fresh-identity entries tagged, got %d", len(results))
	}
	for id, r := range results {
		if r.Weight != 0.3 || !r.HasTag(models.TagAnomalyBurst) {
			t.Errorf("entry %s: expected anomaly_burst at 0.3, got %v/%g", id, r.Tags, r.Weight)
		}
	}
}

func TestDetectNewSubmitterBursts_EstablishedReviewersIgnored(t *testing.T) {
	cfg := AnomalyConfig{Enabled: true, MaxNewInWindow: 3, WindowMs: 60_000, DiscountFactor: 0.3}

	// Same burst shape, but every address has a long corpus history
	firstSeen := make(map[string]int64)
	var entries []models.Feedback
	for i := 0; i < 5; i++ {
		client := fmt.Sprintf("veteran-%d", i)
		entries = append(entries, fb(fmt.Sprintf("f%d", i), "agent-1", client, 95, int64(100_000_000+i*5_000)))
		firstSeen[client] = 1_000 // ancient first appearance
	}

	if results := DetectNewSubmitterBursts(entries, firstSeen, cfg); len(results) != 0 {
		t.Errorf("established reviewers must not trigger, got %d tagged", len(results))
	}
}

func TestDetectNewSubmitterBursts_AtThreshold(t *testing.T) {
	cfg := AnomalyConfig{Enabled: true, MaxNewInWindow: 3, WindowMs: 60_000, DiscountFactor: 0.3}

	firstSeen := make(map[string]int64)
	var entries []models.Feedback
	for i := 0; i < 3; i++ {
		client := fmt.Sprintf("fresh-%d", i)
		ts := int64(1_000_000 + i*5_000)
		entries = append(entries, fb(fmt.Sprintf("f%d", i), "agent-1", client, 95, ts))
		firstSeen[client] = ts
	}

	if results := DetectNewSubmitterBursts(entries, firstSeen, cfg); len(results) != 0 {
		t.Errorf("exactly max_new_in_window entries must not trigger, got %d", len(results))
	}
}

func TestWeighSubmitters_RecentDiscount(t *testing.T) {
	cfg := SubmitterConfig{Enabled: true, RecentThreshold: 0.5, DiscountFactor: 0.2}

	// Corpus spans 0..100_000; cutoff at 50_000
	firstSeen := map[string]int64{
		"veteran": 0,
		"rookie":  80_000,
	}
	entries := []models.Feedback{
		fb("f1", "agent-1", "veteran", 90, 90_000),
		fb("f2", "agent-1", "rookie", 90, 95_000),
	}

	results := WeighSubmitters(entries, firstSeen, 0, 100_000, cfg)

	if _, ok := results["f1"]; ok {
		t.Error("established submitter must not be discounted")
	}
	r, ok := results["f2"]
	if !ok || r.Weight != 0.2 || !r.HasTag(models.TagNewSubmitter) {
		t.Errorf("recent submitter should get 0.2 with new_submitter_discount, got %+v (ok=%v)", r, ok)
	}
}

func TestWeighSubmitters_ZeroSpanCorpus(t *testing.T) {
	cfg := SubmitterConfig{Enabled: true, RecentThreshold: 0.5, DiscountFactor: 0.2}
	entries := []models.Feedback{fb("f1", "agent-1", "only", 90, 1000)}
	firstSeen := map[string]int64{"only": 1000}

	if results := WeighSubmitters(entries, firstSeen, 1000, 1000, cfg); len(results) != 0 {
		t.Error("a zero-span corpus has no history to be newer than")
	}
}
