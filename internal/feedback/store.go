package feedback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/skillmesh/trust-engine/internal/events"
	"github.com/skillmesh/trust-engine/internal/providers"
	"github.com/skillmesh/trust-engine/pkg/models"
)

// Feedback Corpus Store
//
// Append-only repository (with revocation) for feedback entries, plus the
// indexes the mitigation detectors need in expected-linear time:
//
//   byAgent    agent id   → entry positions, insertion order
//   byClient   client addr → entry positions, insertion order
//   firstSeen  client addr → earliest non-revoked timestamp corpus-wide
//
// Mutations take the write lock and publish on the event bus AFTER the
// lock is released — the lock is never held across callbacks. Analyses
// take the read lock and receive copies, so no mitigation function ever
// touches shared state.

// Validation and lookup failures, surfaced with machine-readable kinds
var (
	ErrInvalidValue   = errors.New("invalid_value")
	ErrUnknownAgent   = errors.New("unknown_agent")
	ErrDuplicateID    = errors.New("duplicate_id")
	ErrEmptyClient    = errors.New("empty_client")
	ErrNotFound       = errors.New("not_found")
	ErrAlreadyRevoked = errors.New("already_revoked")
)

// Store owns the full feedback corpus for the process lifetime
type Store struct {
	mu       sync.RWMutex
	entries  []models.Feedback
	byID     map[string]int
	byAgent  map[string][]int
	byClient map[string][]int

	agents providers.KnownAgents
	bus    *events.Bus
}

// NewStore creates an empty corpus backed by the given agent registry.
// The bus may be nil (tests that do not care about events).
func NewStore(agents providers.KnownAgents, bus *events.Bus) *Store {
	return &Store{
		byID:     make(map[string]int),
		byAgent:  make(map[string][]int),
		byClient: make(map[string][]int),
		agents:   agents,
		bus:      bus,
	}
}

// Submit validates and appends a feedback entry, then publishes feedback:new.
func (s *Store) Submit(fb models.Feedback) (string, error) {
	if fb.Value < 0 || fb.Value > 100 {
		return "", fmt.Errorf("%w: value %d outside 0-100", ErrInvalidValue, fb.Value)
	}
	if fb.ValueDecimals < 0 || fb.ValueDecimals > 4 {
		return "", fmt.Errorf("%w: decimals %d outside 0-4", ErrInvalidValue, fb.ValueDecimals)
	}
	if fb.ClientAddress == "" {
		return "", ErrEmptyClient
	}
	if s.agents != nil && !s.agents.IsKnown(fb.AgentID) {
		return "", fmt.Errorf("%w: %s", ErrUnknownAgent, fb.AgentID)
	}

	s.mu.Lock()
	if _, exists := s.byID[fb.ID]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, fb.ID)
	}
	idx := len(s.entries)
	s.entries = append(s.entries, fb)
	s.byID[fb.ID] = idx
	s.byAgent[fb.AgentID] = append(s.byAgent[fb.AgentID], idx)
	s.byClient[fb.ClientAddress] = append(s.byClient[fb.ClientAddress], idx)
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.KindFeedbackNew, AgentID: fb.AgentID})
	}
	return fb.ID, nil
}

// Revoke marks an entry revoked. The entry stays in the corpus: scorers
// filter it out, audit consumers still count it.
func (s *Store) Revoke(id string) error {
	s.mu.Lock()
	idx, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.entries[idx].Revoked {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRevoked, id)
	}
	s.entries[idx].Revoked = true
	agentID := s.entries[idx].AgentID
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.KindFeedbackRevoked, AgentID: agentID})
	}
	return nil
}

// Get returns a copy of the entry by id
func (s *Store) Get(id string) (models.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return models.Feedback{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.entries[idx], nil
}

// ListForAgent returns copies of the agent's active entries in insertion order
func (s *Store) ListForAgent(agentID string) []models.Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := s.byAgent[agentID]
	out := make([]models.Feedback, 0, len(positions))
	for _, idx := range positions {
		if !s.entries[idx].Revoked {
			out = append(out, s.entries[idx])
		}
	}
	return out
}

// ListAll returns copies of every active entry in insertion order
func (s *Store) ListAll() []models.Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Feedback, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.Revoked {
			out = append(out, e)
		}
	}
	return out
}

// FirstSeen returns the earliest non-revoked timestamp for a client across
// all agents. The corpus tolerates out-of-order timestamps: this is a true
// minimum, not a first-insertion shortcut.
func (s *Store) FirstSeen(client string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstSeenLocked(client)
}

func (s *Store) firstSeenLocked(client string) (int64, bool) {
	var min int64
	found := false
	for _, idx := range s.byClient[client] {
		e := s.entries[idx]
		if e.Revoked {
			continue
		}
		if !found || e.Timestamp < min {
			min = e.Timestamp
			found = true
		}
	}
	return min, found
}

// FirstSeenAll returns the first-seen map for every client with at least one
// active entry. Used by detectors that need corpus-global submitter context.
func (s *Store) FirstSeenAll() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.byClient))
	for client := range s.byClient {
		if ts, ok := s.firstSeenLocked(client); ok {
			out[client] = ts
		}
	}
	return out
}

// ActiveCount returns the number of non-revoked entries
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if !e.Revoked {
			n++
		}
	}
	return n
}

// TotalCount returns every entry ever submitted, revoked included.
// Audit consumers use this; scorers never do.
func (s *Store) TotalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
