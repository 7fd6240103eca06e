package summary

import (
	"context"
	"testing"
	"time"

	"github.com/skillmesh/trust-engine/internal/credibility"
	"github.com/skillmesh/trust-engine/internal/events"
	"github.com/skillmesh/trust-engine/internal/feedback"
	"github.com/skillmesh/trust-engine/internal/mitigation"
	"github.com/skillmesh/trust-engine/internal/providers"
	"github.com/skillmesh/trust-engine/internal/scoring"
	"github.com/skillmesh/trust-engine/pkg/models"
)

type harness struct {
	store      *feedback.Store
	bus        *events.Bus
	cache      *Cache
	recomputer *Recomputer
	clock      *providers.FixedClock
}

func newHarness() *harness {
	clock := providers.NewFixedClock(1_700_000_000_000)
	bus := events.NewBus(64)
	store := feedback.NewStore(nil, bus)

	tiers := scoring.NewTierMap(nil)
	cfg := mitigation.DefaultConfig()
	// Deterministic scoring for small fixtures: flag detectors only
	cfg.TemporalDecay.Enabled = false
	cfg.SubmitterWeighting.Enabled = false

	naive := scoring.NewNaiveScorer(tiers, 2)
	hardened := scoring.NewHardenedScorer(cfg, tiers, 2)
	resolver := credibility.NewResolver(providers.NewMemoryReceipts(), providers.NewMemoryStake())
	usage := scoring.NewUsageScorer(hardened, resolver, tiers, 2, 0.5)

	cache := NewCache()
	return &harness{
		store:      store,
		bus:        bus,
		cache:      cache,
		recomputer: NewRecomputer(store, cache, naive, usage, bus, clock),
		clock:      clock,
	}
}

func submit(t *testing.T, h *harness, id, agent, client string, value int, ts int64) {
	t.Helper()
	_, err := h.store.Submit(models.Feedback{
		ID: id, AgentID: agent, ClientAddress: client, Value: value, Timestamp: ts,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSummary_ColdCacheComputesSynchronously(t *testing.T) {
	h := newHarness()
	submit(t, h, "f1", "agent-1", "c1", 90, 1000)
	submit(t, h, "f2", "agent-1", "c2", 70, 2000)

	entry, err := h.recomputer.Summary("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Naive.SummaryValue != 80 {
		t.Errorf("expected naive 80, got %g", entry.Naive.SummaryValue)
	}
	if entry.Hardened.SummaryValue != 80 {
		t.Errorf("clean corpus: hardened should match naive, got %g", entry.Hardened.SummaryValue)
	}
	if entry.LastUpdatedMs != h.clock.NowMs() {
		t.Errorf("last updated should come from the injected clock")
	}

	if _, ok := h.cache.Get("agent-1"); !ok {
		t.Error("synchronous computation should populate the cache")
	}
}

func TestRun_EventDrivenRecompute(t *testing.T) {
	h := newHarness()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.recomputer.Run(ctx) }()

	updates := h.bus.Subscribe(events.KindScoreUpdated)
	defer h.bus.Unsubscribe(updates)

	submit(t, h, "f1", "agent-1", "c1", 88, 1000)

	select {
	case evt := <-updates.C():
		payload, ok := evt.Payload.(ScoreUpdate)
		if !ok {
			t.Fatalf("unexpected payload type %T", evt.Payload)
		}
		if payload.AgentID != "agent-1" || payload.Naive != 88 {
			t.Errorf("expected naive 88 for agent-1, got %+v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no score:updated published within 2s")
	}

	if cached, ok := h.cache.Get("agent-1"); !ok || cached.Naive.SummaryValue != 88 {
		t.Errorf("cache should hold the recomputed triple, got %+v (ok=%v)", cached, ok)
	}
}

func TestRun_RevocationTriggersRecompute(t *testing.T) {
	h := newHarness()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.recomputer.Run(ctx) }()

	updates := h.bus.Subscribe(events.KindScoreUpdated)
	defer h.bus.Unsubscribe(updates)

	submit(t, h, "f1", "agent-1", "c1", 90, 1000)
	submit(t, h, "f2", "agent-1", "c2", 10, 2000)

	// Drain until the corpus reflects both entries
	waitForScore(t, updates, "agent-1", 50)

	if err := h.store.Revoke("f2"); err != nil {
		t.Fatal(err)
	}
	waitForScore(t, updates, "agent-1", 90)
}

func waitForScore(t *testing.T, sub *events.Subscription, agent string, want float64) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-sub.C():
			payload, ok := evt.Payload.(ScoreUpdate)
			if ok && payload.AgentID == agent && payload.Naive == want {
				return
			}
		case <-deadline:
			t.Fatalf("never observed naive score %g for %s", want, agent)
		}
	}
}

func TestTrigger_SingleFlightPerAgent(t *testing.T) {
	h := newHarness()
	submit(t, h, "f1", "agent-1", "c1", 75, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storm of triggers for one agent must coalesce, not stack
	for i := 0; i < 50; i++ {
		h.recomputer.Trigger(ctx, "agent-1")
	}

	deadline := time.After(2 * time.Second)
	for {
		if entry, ok := h.cache.Get("agent-1"); ok && entry.Naive.SummaryValue == 75 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("triggered recompute never landed in the cache")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
