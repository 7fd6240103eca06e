package feedback

import (
	"errors"
	"testing"

	"github.com/skillmesh/trust-engine/internal/events"
	"github.com/skillmesh/trust-engine/internal/providers"
	"github.com/skillmesh/trust-engine/pkg/models"
)

func entry(id, agent, client string, value int, ts int64) models.Feedback {
	return models.Feedback{
		ID:            id,
		AgentID:       agent,
		ClientAddress: client,
		Value:         value,
		Timestamp:     ts,
	}
}

func TestSubmit_Validation(t *testing.T) {
	store := NewStore(providers.NewMemoryAgents("agent-1"), nil)

	cases := []struct {
		name string
		fb   models.Feedback
		want error
	}{
		{"value too high", entry("f1", "agent-1", "client-a", 101, 1000), ErrInvalidValue},
		{"value negative", entry("f2", "agent-1", "client-a", -1, 1000), ErrInvalidValue},
		{"unknown agent", entry("f3", "agent-x", "client-a", 50, 1000), ErrUnknownAgent},
		{"empty client", entry("f4", "agent-1", "", 50, 1000), ErrEmptyClient},
	}
	for _, tc := range cases {
		if _, err := store.Submit(tc.fb); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := store.Submit(entry("f5", "agent-1", "client-a", 100, 1000)); err != nil {
		t.Fatalf("boundary value 100 should be accepted: %v", err)
	}
	if _, err := store.Submit(entry("f5", "agent-1", "client-b", 50, 2000)); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate id should be rejected")
	}
}

func TestRevoke_Semantics(t *testing.T) {
	store := NewStore(nil, nil)
	if _, err := store.Submit(entry("f1", "agent-1", "client-a", 80, 1000)); err != nil {
		t.Fatal(err)
	}

	if err := store.Revoke("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
	if err := store.Revoke("f1"); err != nil {
		t.Fatalf("first revoke should succeed: %v", err)
	}
	if err := store.Revoke("f1"); !errors.Is(err, ErrAlreadyRevoked) {
		t.Errorf("second revoke should report already_revoked, got %v", err)
	}

	// Revoked entries vanish from scorer views but remain countable
	if got := len(store.ListForAgent("agent-1")); got != 0 {
		t.Errorf("active list should be empty after revoke, got %d", got)
	}
	if store.ActiveCount() != 0 || store.TotalCount() != 1 {
		t.Errorf("expected active=0 total=1, got active=%d total=%d", store.ActiveCount(), store.TotalCount())
	}
}

func TestListForAgent_InsertionOrder(t *testing.T) {
	store := NewStore(nil, nil)
	// Timestamps deliberately out of order; insertion order must hold
	ids := []string{"f1", "f2", "f3"}
	timestamps := []int64{3000, 1000, 2000}
	for i, id := range ids {
		if _, err := store.Submit(entry(id, "agent-1", "client-a", 50, timestamps[i])); err != nil {
			t.Fatal(err)
		}
	}

	listed := store.ListForAgent("agent-1")
	if len(listed) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(listed))
	}
	for i, id := range ids {
		if listed[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, listed[i].ID)
		}
	}
}

func TestFirstSeen_TrueMinimum(t *testing.T) {
	store := NewStore(nil, nil)
	// Out-of-order feed: the later submission carries the earlier timestamp
	store.Submit(entry("f1", "agent-1", "client-a", 50, 5000))
	store.Submit(entry("f2", "agent-2", "client-a", 50, 2000))

	ts, ok := store.FirstSeen("client-a")
	if !ok || ts != 2000 {
		t.Errorf("expected first seen 2000, got %d (ok=%v)", ts, ok)
	}

	// Revoking the earliest entry moves first-seen forward
	if err := store.Revoke("f2"); err != nil {
		t.Fatal(err)
	}
	ts, ok = store.FirstSeen("client-a")
	if !ok || ts != 5000 {
		t.Errorf("expected first seen 5000 after revoke, got %d (ok=%v)", ts, ok)
	}

	if _, ok := store.FirstSeen("client-unknown"); ok {
		t.Error("unknown client should have no first-seen")
	}
}

func TestSubmit_PublishesEvents(t *testing.T) {
	bus := events.NewBus(8)
	store := NewStore(nil, bus)
	sub := bus.Subscribe(events.KindFeedbackNew, events.KindFeedbackRevoked)
	defer bus.Unsubscribe(sub)

	store.Submit(entry("f1", "agent-1", "client-a", 50, 1000))
	store.Revoke("f1")

	evt := <-sub.C()
	if evt.Kind != events.KindFeedbackNew || evt.AgentID != "agent-1" {
		t.Errorf("expected feedback:new for agent-1, got %s/%s", evt.Kind, evt.AgentID)
	}
	evt = <-sub.C()
	if evt.Kind != events.KindFeedbackRevoked || evt.AgentID != "agent-1" {
		t.Errorf("expected feedback:revoked for agent-1, got %s/%s", evt.Kind, evt.AgentID)
	}
}
