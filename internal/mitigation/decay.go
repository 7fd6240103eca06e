package mitigation

import (
	"math"

	"github.com/skillmesh/trust-engine/pkg/models"
)

// Temporal Decay
//
// Old opinions matter less. Each entry gets weight 2^((t_i - t_ref) / H)
// where H is the half-life and t_ref is the MAXIMUM active timestamp for
// the agent — not wall clock. Anchoring at the corpus makes the weighting
// deterministic: shifting every timestamp by a constant leaves the decayed
// score unchanged.
//
// Weights below 2^-20 are dropped from the sum; at that point an entry is
// twenty half-lives old and contributes only floating-point noise.

// decayFloor is the smallest weight kept in the sum
const decayFloor = 1.0 / (1 << 20)

// DecayWeights assigns exponential-decay weights to one agent's active
// timeline. Entries below the floor stay in the result set with weight 0,
// so the caller's weighted sum never accumulates denormal dust.
func DecayWeights(entries []models.Feedback, cfg DecayConfig) ResultSet {
	results := make(ResultSet)
	if !cfg.Enabled || cfg.HalfLifeMs <= 0 {
		return results
	}

	var tRef int64
	found := false
	for _, fb := range entries {
		if fb.Revoked {
			continue
		}
		if !found || fb.Timestamp > tRef {
			tRef = fb.Timestamp
			found = true
		}
	}
	if !found {
		return results
	}

	for _, fb := range entries {
		if fb.Revoked {
			continue
		}
		age := float64(fb.Timestamp-tRef) / float64(cfg.HalfLifeMs)
		w := math.Exp2(age)
		if w < decayFloor {
			w = 0
		}
		var tags []models.MitigationTag
		if w < 1.0 {
			tags = []models.MitigationTag{models.TagTemporalDecay}
		}
		results[fb.ID] = Result{Weight: w, Tags: tags}
	}
	return results
}
