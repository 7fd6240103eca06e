package tee

import (
	"context"
	"testing"

	"github.com/skillmesh/trust-engine/internal/events"
	"github.com/skillmesh/trust-engine/internal/providers"
	"github.com/skillmesh/trust-engine/pkg/models"
)

func TestStore_PinOverwrite(t *testing.T) {
	clock := providers.NewFixedClock(1_700_000_000_000)
	store := NewStore(NewVerifier(DefaultConfig(), clock), clock, nil)

	if _, err := store.PinCodeHash("agent-x", "short", "ops", ""); err == nil {
		t.Error("non-64-char hash must be rejected")
	}

	first, err := store.PinCodeHash("agent-x", pinnedHash, "ops", "audit-1")
	if err != nil {
		t.Fatal(err)
	}
	if first.PinnedAt != 1_700_000_000 {
		t.Errorf("pinned_at should be unix seconds, got %d", first.PinnedAt)
	}

	second := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	if _, err := store.PinCodeHash("agent-x", second, "ops", "audit-2"); err != nil {
		t.Fatal(err)
	}
	pin, ok := store.Pin("agent-x")
	if !ok || pin.CodeHash != second {
		t.Errorf("overwrite should replace the pin, got %+v (ok=%v)", pin, ok)
	}
}

func TestStore_SubmitUpdatesStateAndPublishes(t *testing.T) {
	f := newFixture(t)
	bus := events.NewBus(8)
	store := NewStore(f.verifier, f.clock, bus)
	sub := bus.Subscribe(events.KindAttestationSubmitted)

	if _, err := store.PinCodeHash("agent-x", pinnedHash, "ops", ""); err != nil {
		t.Fatal(err)
	}

	att := f.sign(t, f.report(t))
	result := store.SubmitAttestation(context.Background(), att)
	if !result.Tier3Eligible {
		t.Fatalf("expected tier-3 result: %+v", result)
	}

	state := store.AgentState("agent-x")
	if state.Status != models.TEEVerified || !state.Tier3Active {
		t.Errorf("expected verified tier-3 state, got %s tier3=%v", state.Status, state.Tier3Active)
	}
	if state.TotalAttestations != 1 || state.SuccessfulCount != 1 || state.FailedCount != 0 {
		t.Errorf("counts off: %+v", state)
	}
	if store.TrustMultiplier("agent-x") != 1.5 {
		t.Errorf("expected multiplier 1.5, got %g", store.TrustMultiplier("agent-x"))
	}

	evt := <-sub.C()
	if evt.Kind != events.KindAttestationSubmitted || evt.AgentID != "agent-x" {
		t.Errorf("expected attestation:submitted for agent-x, got %s/%s", evt.Kind, evt.AgentID)
	}
}

func TestStore_StatusLadder(t *testing.T) {
	f := newFixture(t)
	store := NewStore(f.verifier, f.clock, nil)

	// Unregistered before anything happens
	if state := store.AgentState("agent-x"); state.Status != models.TEEUnregistered || state.TrustWeightMultiplier != 1.0 {
		t.Errorf("unknown agent: expected unregistered at 1.0, got %s/%g", state.Status, state.TrustWeightMultiplier)
	}

	// Mismatch: valid attestation against a different pin
	other := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	if _, err := store.PinCodeHash("agent-x", other, "ops", ""); err != nil {
		t.Fatal(err)
	}
	store.SubmitAttestation(context.Background(), f.sign(t, f.report(t)))
	if state := store.AgentState("agent-x"); state.Status != models.TEEMismatch {
		t.Errorf("expected mismatch status, got %s", state.Status)
	}

	// Stale: fresh pin, expired report
	if _, err := store.PinCodeHash("agent-x", pinnedHash, "ops", ""); err != nil {
		t.Fatal(err)
	}
	report := f.report(t)
	report.Timestamp = f.clock.NowMs() - DefaultConfig().FreshnessWindowSeconds*1000 - 1
	store.SubmitAttestation(context.Background(), f.sign(t, report))
	if state := store.AgentState("agent-x"); state.Status != models.TEEStale {
		t.Errorf("expected stale status, got %s", state.Status)
	}

	// Failed: tampered signature
	att := f.sign(t, f.report(t))
	att.Report.Nonce = "00000000000000000000000000000000"
	store.SubmitAttestation(context.Background(), att)
	state := store.AgentState("agent-x")
	if state.Status != models.TEEFailed {
		t.Errorf("expected failed status, got %s", state.Status)
	}
	if state.TotalAttestations != 3 || state.FailedCount != 2 {
		t.Errorf("counts off after ladder walk: %+v", state)
	}
}
