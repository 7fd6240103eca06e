package tee

import (
	"context"
	"fmt"
	"sync"

	"github.com/skillmesh/trust-engine/internal/events"
	"github.com/skillmesh/trust-engine/internal/providers"
	"github.com/skillmesh/trust-engine/pkg/models"
)

// TEE State Store
//
// Owns code-hash pins, submitted attestations and the derived per-agent
// state. At most one pin per agent; overwriting is allowed (re-pinning
// after an audited redeploy is the normal flow, not an exception).
//
// The store runs the verifier on submission and publishes
// attestation:submitted with the structured result. Verification failures
// are observations, never errors.

// Store owns all TEE state for the process
type Store struct {
	mu     sync.RWMutex
	pins   map[string]models.CodeHashPin
	agents map[string]*models.AgentTEEState

	verifier *Verifier
	clock    providers.Clock
	bus      *events.Bus
}

// NewStore creates an empty TEE state store
func NewStore(verifier *Verifier, clock providers.Clock, bus *events.Bus) *Store {
	return &Store{
		pins:     make(map[string]models.CodeHashPin),
		agents:   make(map[string]*models.AgentTEEState),
		verifier: verifier,
		clock:    clock,
		bus:      bus,
	}
}

// PinCodeHash registers (or overwrites) the known-good code hash for an agent
func (s *Store) PinCodeHash(agentID, codeHash, pinnedBy, auditRef string) (models.CodeHashPin, error) {
	if len(codeHash) != 64 {
		return models.CodeHashPin{}, fmt.Errorf("code hash must be 64 hex chars, got %d", len(codeHash))
	}
	pin := models.CodeHashPin{
		AgentID:        agentID,
		CodeHash:       codeHash,
		PinnedAt:       s.clock.NowMs() / 1000,
		PinnedBy:       pinnedBy,
		AuditReference: auditRef,
	}

	s.mu.Lock()
	s.pins[agentID] = pin
	state := s.stateLocked(agentID)
	state.Pin = &pin
	s.refreshStatusLocked(state)
	s.mu.Unlock()
	return pin, nil
}

// Pin returns the current pin for an agent
func (s *Store) Pin(agentID string) (models.CodeHashPin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pin, ok := s.pins[agentID]
	return pin, ok
}

// SubmitAttestation verifies and records an attestation, then publishes
// the result on the bus.
func (s *Store) SubmitAttestation(ctx context.Context, att models.Attestation) models.VerificationResult {
	s.mu.RLock()
	var pin *models.CodeHashPin
	if p, ok := s.pins[att.Report.AgentID]; ok {
		pinCopy := p
		pin = &pinCopy
	}
	s.mu.RUnlock()

	result := s.verifier.Verify(ctx, att, pin)

	s.mu.Lock()
	state := s.stateLocked(att.Report.AgentID)
	attCopy := att
	resCopy := result
	state.LatestAttestation = &attCopy
	state.LatestVerification = &resCopy
	state.TotalAttestations++
	if result.Valid {
		state.SuccessfulCount++
	} else {
		state.FailedCount++
	}
	s.refreshStatusLocked(state)
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Kind:    events.KindAttestationSubmitted,
			AgentID: att.Report.AgentID,
			Payload: result,
		})
	}
	return result
}

// AgentState returns a copy of the derived state for an agent
func (s *Store) AgentState(agentID string) models.AgentTEEState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.agents[agentID]; ok {
		return *state
	}
	return models.AgentTEEState{
		AgentID:               agentID,
		Status:                models.TEEUnregistered,
		TrustWeightMultiplier: 1.0,
	}
}

// TrustMultiplier returns the current trust-weight multiplier for an agent.
// No attestation at all means neutral 1.0.
func (s *Store) TrustMultiplier(agentID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.agents[agentID]
	if !ok || state.LatestVerification == nil {
		return 1.0
	}
	return state.LatestVerification.TrustMultiplier
}

// stateLocked returns the mutable state record, creating it if needed.
// Caller holds the write lock.
func (s *Store) stateLocked(agentID string) *models.AgentTEEState {
	state, ok := s.agents[agentID]
	if !ok {
		state = &models.AgentTEEState{
			AgentID:               agentID,
			Status:                models.TEEUnregistered,
			TrustWeightMultiplier: 1.0,
		}
		s.agents[agentID] = state
	}
	return state
}

// refreshStatusLocked re-derives the status ladder from the latest
// verification. Caller holds the write lock.
func (s *Store) refreshStatusLocked(state *models.AgentTEEState) {
	v := state.LatestVerification
	switch {
	case v == nil:
		state.Status = models.TEEUnregistered
		state.Tier3Active = false
		state.TrustWeightMultiplier = 1.0
	case v.Tier3Eligible:
		state.Status = models.TEEVerified
		state.Tier3Active = true
		state.TrustWeightMultiplier = v.TrustMultiplier
	case v.Valid && !v.CodeHashMatch:
		state.Status = models.TEEMismatch
		state.Tier3Active = false
		state.TrustWeightMultiplier = v.TrustMultiplier
	case v.Valid:
		state.Status = models.TEEVerified
		state.Tier3Active = false
		state.TrustWeightMultiplier = v.TrustMultiplier
	case v.SignatureValid && v.PlatformKnown && !v.ReportFresh:
		state.Status = models.TEEStale
		state.Tier3Active = false
		state.TrustWeightMultiplier = v.TrustMultiplier
	default:
		state.Status = models.TEEFailed
		state.Tier3Active = false
		state.TrustWeightMultiplier = v.TrustMultiplier
	}
	clampMultiplier(state)
}

func clampMultiplier(state *models.AgentTEEState) {
	if state.TrustWeightMultiplier < 0.5 {
		state.TrustWeightMultiplier = 0.5
	}
	if state.TrustWeightMultiplier > 2.0 {
		state.TrustWeightMultiplier = 2.0
	}
}
