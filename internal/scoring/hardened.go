package scoring

import (
	"fmt"

	"github.com/skillmesh/trust-engine/internal/mitigation"
	"github.com/skillmesh/trust-engine/pkg/models"
)

// Hardened Scorer
//
// Orchestrates the mitigation detectors into a single weighted average:
//
//   1. Run each enabled detector, collect per-id weights and tags
//   2. Min-combine (strictest binding wins, tags union)
//   3. Apply temporal decay multiplicatively
//   4. If behavioural shift triggered, multiply historical entries by the
//      residual
//   5. Kahan-compensated weighted average Σ(v·w)/Σ(w)
//   6. Clamp, round, map to tier and access decision
//
// Credibility weights span 0.1→10 and decay can push entry weights toward
// 2^-20, so naive accumulation loses low bits; the compensated sum keeps
// any rearrangement of the same inputs within 1e-9 before rounding.
//
// A total weight below 1e-9 means every entry was mitigated into noise.
// That is an empty summary, not a divide-by-near-zero — the feedback count
// still reports how many active entries were silenced.

// weightEpsilon is the smallest total weight treated as non-empty
const weightEpsilon = 1e-9

// CorpusContext carries the cross-agent inputs detectors need
type CorpusContext struct {
	All       []models.Feedback // every active entry, all agents
	FirstSeen map[string]int64  // client address → earliest active timestamp
}

// span returns the corpus time range
func (c CorpusContext) span() (min, max int64) {
	first := true
	for _, fb := range c.All {
		if fb.Revoked {
			continue
		}
		if first || fb.Timestamp < min {
			min = fb.Timestamp
		}
		if first || fb.Timestamp > max {
			max = fb.Timestamp
		}
		first = false
	}
	return min, max
}

// HardenedResult is the scored summary plus the evidence that produced it
type HardenedResult struct {
	Summary  models.FeedbackSummary            `json:"summary"`
	Weights  map[string]float64                `json:"weights"` // final per-entry weight
	Tags     map[string][]models.MitigationTag `json:"tags"`
	Shift    mitigation.ShiftReport            `json:"shift"`
	Clusters []models.ClusterSummary           `json:"clusters"`
}

// HardenedScorer runs the full mitigation pipeline
type HardenedScorer struct {
	cfg      mitigation.Config
	tiers    *TierMap
	decimals int
}

// NewHardenedScorer creates a scorer with the given detector configuration
func NewHardenedScorer(cfg mitigation.Config, tiers *TierMap, decimals int) *HardenedScorer {
	return &HardenedScorer{cfg: cfg, tiers: tiers, decimals: decimals}
}

// Config exposes the detector configuration the scorer runs with
func (hs *HardenedScorer) Config() mitigation.Config {
	return hs.cfg
}

// Score computes the mitigated summary for one agent. Deterministic: no
// wall clock anywhere in the pipeline, so identical input yields identical
// output.
func (hs *HardenedScorer) Score(agentID string, entries []models.Feedback, ctx CorpusContext) (HardenedResult, error) {
	result := HardenedResult{
		Summary: models.FeedbackSummary{
			AgentID:       agentID,
			ValueDecimals: hs.decimals,
			Tier:          hs.tiers.TierFor(0),
		},
		Weights: make(map[string]float64),
		Tags:    make(map[string][]models.MitigationTag),
	}
	result.Summary.Access = AccessFor(result.Summary.Tier)

	active := make([]models.Feedback, 0, len(entries))
	for _, fb := range entries {
		if !fb.Revoked {
			active = append(active, fb)
		}
	}
	result.Summary.FeedbackCount = len(active)
	if len(active) == 0 {
		return result, nil
	}

	// 1-2. Flag detectors, min-combined. Graph analysis sees the whole
	// corpus; the rest work on the agent timeline with corpus context.
	graph := mitigation.AnalyzeGraph(ctx.All, hs.cfg.GraphAnalysis)
	result.Clusters = graph.Clusters

	corpusMin, corpusMax := ctx.span()
	combined := mitigation.Combine(
		graph.Results,
		mitigation.DetectVelocityBursts(active, hs.cfg.VelocityCheck),
		mitigation.DetectNewSubmitterBursts(active, ctx.FirstSeen, hs.cfg.AnomalyDetection),
		mitigation.WeighSubmitters(active, ctx.FirstSeen, corpusMin, corpusMax, hs.cfg.SubmitterWeighting),
	)

	// 3. Temporal decay multiplies on top of the flag discounts
	decay := mitigation.DecayWeights(active, hs.cfg.TemporalDecay)

	// 4. Behavioural shift overrides history when it fires
	result.Shift = mitigation.DetectBehaviouralShift(active, hs.cfg.BehaviouralShift)
	shiftWeights := result.Shift.Results(hs.cfg.BehaviouralShift)

	// 5. Compensated weighted average
	var sum, sumComp, wsum, wsumComp float64
	for _, fb := range active {
		w := 1.0
		if r, ok := combined[fb.ID]; ok {
			w = r.Weight
			result.Tags[fb.ID] = r.Tags
		}
		if d, ok := decay[fb.ID]; ok {
			w *= d.Weight
			for _, t := range d.Tags {
				result.Tags[fb.ID] = appendTag(result.Tags[fb.ID], t)
			}
		}
		if s, ok := shiftWeights[fb.ID]; ok {
			w *= s.Weight
			for _, t := range s.Tags {
				result.Tags[fb.ID] = appendTag(result.Tags[fb.ID], t)
			}
		}
		if w < 0 {
			return result, fmt.Errorf("invariant violation: negative weight %g for feedback %s (agent %s)", w, fb.ID, agentID)
		}
		result.Weights[fb.ID] = w

		kahanAdd(&sum, &sumComp, float64(fb.Value)*w)
		kahanAdd(&wsum, &wsumComp, w)
	}

	if wsum < 0 {
		return result, fmt.Errorf("invariant violation: negative weight sum %g for agent %s", wsum, agentID)
	}
	if wsum < weightEpsilon {
		// Every entry mitigated away. Empty summary, count preserved.
		return result, nil
	}

	// 6. Clamp, round, map
	score := roundTo(clampScore(sum/wsum), hs.decimals)
	result.Summary.SummaryValue = score
	result.Summary.Tier = hs.tiers.TierFor(score)
	result.Summary.Access = AccessFor(result.Summary.Tier)
	return result, nil
}

// kahanAdd performs one compensated accumulation step
func kahanAdd(sum, comp *float64, v float64) {
	y := v - *comp
	t := *sum + y
	*comp = (t - *sum) - y
	*sum = t
}

func appendTag(tags []models.MitigationTag, tag models.MitigationTag) []models.MitigationTag {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
