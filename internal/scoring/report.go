package scoring

import (
	"math"

	"github.com/skillmesh/trust-engine/pkg/models"
)

// Naive-vs-Hardened Divergence Report
//
// Quantifies what the mitigation pipeline actually suppressed for one
// agent. The dashboard renders this as the attack-visibility panel: a
// large positive divergence on an agent with tagged entries is a
// manipulation attempt being absorbed; near-zero divergence on a clean
// agent is the pipeline staying out of the way.

// DivergenceReport compares the two scorers over identical input
type DivergenceReport struct {
	AgentID         string  `json:"agentId"`
	NaiveScore      float64 `json:"naiveScore"`
	HardenedScore   float64 `json:"hardenedScore"`
	Divergence      float64 `json:"divergence"` // naive - hardened
	TierChanged     bool    `json:"tierChanged"`
	TaggedEntries   int     `json:"taggedEntries"`
	TotalEntries    int     `json:"totalEntries"`
	SuppressionRate float64 `json:"suppressionRate"` // tagged / total
}

// Divergence builds the comparison from already-computed summaries
func Divergence(naive models.FeedbackSummary, hardened HardenedResult) DivergenceReport {
	report := DivergenceReport{
		AgentID:       naive.AgentID,
		NaiveScore:    naive.SummaryValue,
		HardenedScore: hardened.Summary.SummaryValue,
		Divergence:    roundTo(naive.SummaryValue-hardened.Summary.SummaryValue, 4),
		TierChanged:   naive.Tier != hardened.Summary.Tier,
		TotalEntries:  naive.FeedbackCount,
	}
	for _, tags := range hardened.Tags {
		if len(tags) > 0 {
			report.TaggedEntries++
		}
	}
	if report.TotalEntries > 0 {
		report.SuppressionRate = roundTo(float64(report.TaggedEntries)/float64(report.TotalEntries), 4)
	}
	return report
}

// PartitionLabels converts cluster summaries into a flat label assignment
// over the given identifiers, for agreement metrics. Identifiers outside
// every cluster each get their own singleton label.
func PartitionLabels(ids []string, clusters []models.ClusterSummary) []int {
	labelOf := make(map[string]int, len(ids))
	for i, c := range clusters {
		for _, m := range c.Members {
			labelOf[m] = i
		}
	}
	next := len(clusters)
	out := make([]int, len(ids))
	for i, id := range ids {
		if l, ok := labelOf[id]; ok {
			out[i] = l
		} else {
			out[i] = next
			next++
		}
	}
	return out
}

// ScoreDelta is a convenience for monotonicity checks in audits: positive
// when the hardened pipeline pulled the score down.
func ScoreDelta(naive, hardened float64) float64 {
	return math.Round((naive-hardened)*1e4) / 1e4
}
