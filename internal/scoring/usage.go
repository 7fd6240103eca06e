package scoring

import (
	"math"

	"github.com/skillmesh/trust-engine/internal/credibility"
	"github.com/skillmesh/trust-engine/pkg/models"
)

// Usage-Weighted Scorer
//
// Blends the hardened score with a credibility-weighted mean. Credibility
// weights come from payment receipts and stake posture, so a verified
// heavy user's 90 outweighs ten drive-by 10s.
//
// The blend is 50/50 by default. The ratio is a config knob, never changed
// silently — dashboards compare runs across deployments and a quiet ratio
// shift would poison every historical comparison.

// UsageScorer combines hardened output with credibility annotation
type UsageScorer struct {
	hardened *HardenedScorer
	resolver *credibility.Resolver
	tiers    *TierMap
	decimals int
	// BlendWeight is the hardened share; the credibility mean gets the rest
	BlendWeight float64
}

// NewUsageScorer creates the blended scorer. blendWeight outside (0, 1)
// falls back to 0.5.
func NewUsageScorer(hardened *HardenedScorer, resolver *credibility.Resolver, tiers *TierMap, decimals int, blendWeight float64) *UsageScorer {
	if blendWeight <= 0 || blendWeight >= 1 {
		blendWeight = 0.5
	}
	return &UsageScorer{
		hardened:    hardened,
		resolver:    resolver,
		tiers:       tiers,
		decimals:    decimals,
		BlendWeight: blendWeight,
	}
}

// Score produces the blended summary plus the per-tier breakdown
func (us *UsageScorer) Score(agentID string, entries []models.Feedback, ctx CorpusContext) (models.UsageWeightedSummary, HardenedResult, error) {
	out := models.UsageWeightedSummary{
		FeedbackSummary: models.FeedbackSummary{
			AgentID:       agentID,
			ValueDecimals: us.decimals,
			Tier:          us.tiers.TierFor(0),
		},
	}
	out.Access = AccessFor(out.Tier)

	hardened, err := us.hardened.Score(agentID, entries, ctx)
	if err != nil {
		return out, hardened, err
	}
	out.FeedbackCount = hardened.Summary.FeedbackCount
	if out.FeedbackCount == 0 {
		return out, hardened, nil
	}
	out.HardenedScore = hardened.Summary.SummaryValue

	annotated := us.resolver.Annotate(entries)

	// Credibility-weighted mean, compensated: weights span 0.1 → 10.
	var sum, sumComp, wsum, wsumComp float64
	for _, fb := range annotated {
		kahanAdd(&sum, &sumComp, float64(fb.Value)*fb.CredibilityWeight)
		kahanAdd(&wsum, &wsumComp, fb.CredibilityWeight)
	}
	if wsum < weightEpsilon {
		return out, hardened, nil
	}
	out.CredibilityScore = roundTo(sum/wsum, us.decimals)

	blended := us.BlendWeight*out.HardenedScore + (1-us.BlendWeight)*out.CredibilityScore
	score := roundTo(clampScore(blended), us.decimals)
	out.SummaryValue = score
	out.Tier = us.tiers.TierFor(score)
	out.Access = AccessFor(out.Tier)
	out.Breakdown = buildBreakdown(annotated)
	return out, hardened, nil
}

// buildBreakdown aggregates annotated entries per credibility tier
func buildBreakdown(annotated []models.AnnotatedFeedback) *models.TierBreakdown {
	type acc struct {
		count     int
		weightSum float64
		valueSum  float64
	}
	accs := make(map[models.CredibilityTier]*acc)
	for _, fb := range annotated {
		a := accs[fb.CredibilityTier]
		if a == nil {
			a = &acc{}
			accs[fb.CredibilityTier] = a
		}
		a.count++
		a.weightSum += fb.CredibilityWeight
		a.valueSum += float64(fb.Value)
	}

	breakdown := &models.TierBreakdown{
		Tiers: make(map[models.CredibilityTier]models.TierBreakdownRow, len(accs)),
	}
	maxAvg, minAvg := 0.0, math.MaxFloat64
	for tier, a := range accs {
		avgW := a.weightSum / float64(a.count)
		breakdown.Tiers[tier] = models.TierBreakdownRow{
			Count:      a.count,
			MeanWeight: roundTo(avgW, 4),
			MeanValue:  roundTo(a.valueSum/float64(a.count), 2),
		}
		breakdown.TotalCount += a.count
		if avgW > maxAvg {
			maxAvg = avgW
		}
		if avgW < minAvg {
			minAvg = avgW
		}
	}
	if breakdown.TotalCount > 0 {
		if minAvg < 0.1 {
			minAvg = 0.1
		}
		breakdown.WeightDifferential = roundTo(maxAvg/minAvg, 4)
	}
	return breakdown
}
