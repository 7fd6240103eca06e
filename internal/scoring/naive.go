package scoring

import "github.com/skillmesh/trust-engine/pkg/models"

// Naive Scorer
//
// The published baseline and the attack target for every mitigation demo:
// a plain arithmetic mean over active values, no weighting, no detectors.
// Keeping it around makes manipulation visible — the distance between the
// naive and hardened score IS the suppressed attack.

// NaiveScorer computes unmitigated summaries
type NaiveScorer struct {
	tiers    *TierMap
	decimals int
}

// NewNaiveScorer creates a baseline scorer with the given tier map and
// summary rounding
func NewNaiveScorer(tiers *TierMap, decimals int) *NaiveScorer {
	return &NaiveScorer{tiers: tiers, decimals: decimals}
}

// Score averages the agent's active feedback. An empty corpus yields the
// empty summary: count 0, score 0, tier C, access denied.
func (ns *NaiveScorer) Score(agentID string, entries []models.Feedback) models.FeedbackSummary {
	summary := models.FeedbackSummary{
		AgentID:       agentID,
		ValueDecimals: ns.decimals,
		Tier:          ns.tiers.TierFor(0),
	}
	summary.Access = AccessFor(summary.Tier)

	sum := 0.0
	count := 0
	for _, fb := range entries {
		if fb.Revoked {
			continue
		}
		sum += float64(fb.Value)
		count++
	}
	if count == 0 {
		return summary
	}

	score := roundTo(clampScore(sum/float64(count)), ns.decimals)
	summary.FeedbackCount = count
	summary.SummaryValue = score
	summary.Tier = ns.tiers.TierFor(score)
	summary.Access = AccessFor(summary.Tier)
	return summary
}
