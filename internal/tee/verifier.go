package tee

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/skillmesh/trust-engine/internal/providers"
	"github.com/skillmesh/trust-engine/pkg/models"
)

// TEE Attestation Verifier
//
// Runs the five-step pipeline exactly once per submitted attestation:
//
//   1. Signature   — public key in the trusted set, Ed25519 verifies over
//                    the canonical report bytes
//   2. Code hash   — a pin exists for the agent and matches the report
//   3. Platform    — platform type is recognised
//   4. Freshness   — 0 <= now - report.timestamp < window; future = stale
//   5. Behaviour   — api calls, execution time, error count under the
//                    thresholds; no forbidden data-access or error strings
//
// Tier-3 eligibility is the conjunction of all five. Overall validity is
// signature AND platform AND freshness — a pinned-hash mismatch or a
// behavioural excursion is worth knowing about, but it does not make the
// attestation itself a forgery.
//
// Trust-weight multiplier: 1.5 Tier-3, 1.0 valid, 0.8 invalid, 1.0 when
// no attestation exists at all.
//
// The trusted-key set is copy-on-write: every update publishes a fresh
// immutable snapshot, so the hot verification path reads it without locks.

// Config bounds the behavioural envelope and verification budget
type Config struct {
	FreshnessWindowSeconds int64   `yaml:"freshness_window_seconds" json:"freshnessWindowSeconds"`
	VerifiedTrustWeight    float64 `yaml:"verified_trust_weight" json:"verifiedTrustWeight"`
	MaxAPICallsThreshold   int     `yaml:"max_api_calls_threshold" json:"maxApiCallsThreshold"`
	MaxExecutionTimeMs     int64   `yaml:"max_execution_time_ms" json:"maxExecutionTimeMs"`
	MaxErrorsThreshold     int     `yaml:"max_errors_threshold" json:"maxErrorsThreshold"`
	DeadlineMs             int64   `yaml:"deadline_ms" json:"deadlineMs"`
}

// DefaultConfig returns the shipped verification envelope
func DefaultConfig() Config {
	return Config{
		FreshnessWindowSeconds: 86_400,
		VerifiedTrustWeight:    1.5,
		MaxAPICallsThreshold:   50,
		MaxExecutionTimeMs:     30_000,
		MaxErrorsThreshold:     5,
		DeadlineMs:             250,
	}
}

// Substrings that mark a report as behaviourally abnormal. Matching is
// case-insensitive.
var (
	forbiddenDataAccess = []string{"credentials", "private_key", "env.variables"}
	forbiddenErrors     = []string{"exfil", "shadow", "background task"}
)

var recognisedPlatforms = map[models.PlatformType]bool{
	models.PlatformSGX:       true,
	models.PlatformTDX:       true,
	models.PlatformSEV:       true,
	models.PlatformSimulated: true,
}

// Verifier is parallel-safe: stateless except for the trusted-key snapshot
type Verifier struct {
	cfg   Config
	clock providers.Clock
	keys  atomic.Value // map[string]ed25519.PublicKey, hex key → parsed key
}

// NewVerifier creates a verifier with an empty trusted-key set
func NewVerifier(cfg Config, clock providers.Clock) *Verifier {
	v := &Verifier{cfg: cfg, clock: clock}
	v.keys.Store(map[string]ed25519.PublicKey{})
	return v
}

// TrustKey adds a hex-encoded Ed25519 public key to the trusted set.
// Publishes a new snapshot; in-flight verifications keep the old one.
func (v *Verifier) TrustKey(pubHex string) error {
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return fmt.Errorf("malformed public key hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}

	old := v.keys.Load().(map[string]ed25519.PublicKey)
	next := make(map[string]ed25519.PublicKey, len(old)+1)
	for k, pk := range old {
		next[k] = pk
	}
	next[pubHex] = ed25519.PublicKey(raw)
	v.keys.Store(next)
	return nil
}

// RevokeKey removes a key from the trusted set
func (v *Verifier) RevokeKey(pubHex string) {
	old := v.keys.Load().(map[string]ed25519.PublicKey)
	if _, ok := old[pubHex]; !ok {
		return
	}
	next := make(map[string]ed25519.PublicKey, len(old)-1)
	for k, pk := range old {
		if k != pubHex {
			next[k] = pk
		}
	}
	v.keys.Store(next)
}

// Verify runs the pipeline against the given pin (nil when the agent has
// none). CPU-bound and safe to call from any goroutine.
func (v *Verifier) Verify(ctx context.Context, att models.Attestation, pin *models.CodeHashPin) models.VerificationResult {
	nowMs := v.clock.NowMs()
	result := models.VerificationResult{
		AttestationID:   att.ID,
		AgentID:         att.Report.AgentID,
		TrustMultiplier: 0.8,
		VerifiedAtMs:    nowMs,
	}

	deadline := time.Duration(v.cfg.DeadlineMs) * time.Millisecond
	if deadline <= 0 {
		deadline = 250 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// 1. Signature. The only step with a real CPU budget; it runs under
	// the soft deadline and an expiry aborts the whole verification.
	sigOK, note := v.checkSignature(ctx, att)
	result.Notes = append(result.Notes, note)
	if ctx.Err() != nil {
		result.Notes = append(result.Notes, "verification aborted: deadline exceeded")
		return result
	}
	result.SignatureValid = sigOK

	// 2. Code-hash pin
	switch {
	case pin == nil:
		result.Notes = append(result.Notes, "code hash: no pin registered for agent "+att.Report.AgentID)
	case pin.CodeHash == att.Report.CodeHash:
		result.CodeHashMatch = true
		result.Notes = append(result.Notes, "code hash: matches pinned "+shortHash(pin.CodeHash))
	default:
		result.Notes = append(result.Notes, fmt.Sprintf("code hash: report %s does not match pin %s",
			shortHash(att.Report.CodeHash), shortHash(pin.CodeHash)))
	}

	// 3. Platform
	result.PlatformKnown = recognisedPlatforms[att.PlatformType]
	if result.PlatformKnown {
		result.Notes = append(result.Notes, "platform: recognised "+string(att.PlatformType))
	} else {
		result.Notes = append(result.Notes, "platform: unrecognised "+string(att.PlatformType))
	}

	// 4. Freshness. Future timestamps are not fresh.
	age := nowMs - att.Report.Timestamp
	windowMs := v.cfg.FreshnessWindowSeconds * 1000
	result.ReportFresh = age >= 0 && age < windowMs
	switch {
	case age < 0:
		result.Notes = append(result.Notes, fmt.Sprintf("freshness: report timestamp %d ms in the future", -age))
	case result.ReportFresh:
		result.Notes = append(result.Notes, fmt.Sprintf("freshness: report is %d ms old (window %d ms)", age, windowMs))
	default:
		result.Notes = append(result.Notes, fmt.Sprintf("freshness: report is %d ms old, outside %d ms window", age, windowMs))
	}

	// 5. Behaviour
	result.BehaviourNormal = v.checkBehaviour(att.Report, &result.Notes)

	result.Valid = result.SignatureValid && result.PlatformKnown && result.ReportFresh
	result.Tier3Eligible = result.Valid && result.CodeHashMatch && result.BehaviourNormal

	switch {
	case result.Tier3Eligible:
		result.TrustMultiplier = v.cfg.VerifiedTrustWeight
		result.Notes = append(result.Notes, "tier 3 eligible: all checks passed")
	case result.Valid:
		result.TrustMultiplier = 1.0
		result.Notes = append(result.Notes, "valid attestation, not tier 3 eligible")
	default:
		result.TrustMultiplier = 0.8
		result.Notes = append(result.Notes, "attestation invalid")
	}
	return result
}

// checkSignature validates the key against the trusted set and the
// Ed25519 signature over the canonical report bytes.
func (v *Verifier) checkSignature(ctx context.Context, att models.Attestation) (bool, string) {
	keys := v.keys.Load().(map[string]ed25519.PublicKey)
	pub, trusted := keys[att.PublicKey]
	if !trusted {
		return false, "signature: public key not in trusted set"
	}

	sig, err := hex.DecodeString(att.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false, "signature: malformed signature encoding"
	}
	msg, err := CanonicalReportBytes(att.Report)
	if err != nil {
		return false, "signature: report not encodable"
	}

	done := make(chan bool, 1)
	go func() { done <- ed25519.Verify(pub, msg, sig) }()
	select {
	case ok := <-done:
		if ok {
			return true, "signature: verified against trusted key"
		}
		return false, "signature: verification failed"
	case <-ctx.Done():
		return false, "signature: verification timed out"
	}
}

// checkBehaviour applies the threshold and substring rules, appending one
// note per violation.
func (v *Verifier) checkBehaviour(report models.RuntimeReport, notes *[]string) bool {
	normal := true

	if len(report.APICallsMade) > v.cfg.MaxAPICallsThreshold {
		normal = false
		*notes = append(*notes, fmt.Sprintf("behaviour: %d api calls exceeds threshold %d",
			len(report.APICallsMade), v.cfg.MaxAPICallsThreshold))
	}
	if report.ExecutionTimeMs > v.cfg.MaxExecutionTimeMs {
		normal = false
		*notes = append(*notes, fmt.Sprintf("behaviour: execution %d ms exceeds threshold %d ms",
			report.ExecutionTimeMs, v.cfg.MaxExecutionTimeMs))
	}
	if len(report.Errors) > v.cfg.MaxErrorsThreshold {
		normal = false
		*notes = append(*notes, fmt.Sprintf("behaviour: %d errors exceeds threshold %d",
			len(report.Errors), v.cfg.MaxErrorsThreshold))
	}
	for _, accessed := range report.DataAccessed {
		for _, bad := range forbiddenDataAccess {
			if strings.Contains(strings.ToLower(accessed), bad) {
				normal = false
				*notes = append(*notes, "behaviour: forbidden data access "+accessed)
			}
		}
	}
	for _, errStr := range report.Errors {
		for _, bad := range forbiddenErrors {
			if strings.Contains(strings.ToLower(errStr), bad) {
				normal = false
				*notes = append(*notes, "behaviour: suspicious error "+errStr)
			}
		}
	}
	if normal {
		*notes = append(*notes, "behaviour: within normal envelope")
	}
	return normal
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12] + "…"
}
