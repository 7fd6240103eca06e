package mitigation

import (
	"math"
	"sort"

	"github.com/skillmesh/trust-engine/pkg/models"
)

// Behavioural-Shift Detection
//
// Reputation laundering: build a pristine record, then flip behaviour and
// coast on the accumulated score. The counter-signal is a sharp divergence
// between the historical mean and the recent mean. When the timeline splits
// at 1 - RecentWindowFraction and |mean_recent - mean_historical| reaches
// the deviation threshold, latest behaviour supersedes reputation: the
// hardened scorer keeps recent entries at full weight and multiplies
// historical entries by the residual.
//
// Needs at least five active entries — below that the "means" are noise.

// minEntriesForShift is the smallest timeline the detector will judge
const minEntriesForShift = 5

// ShiftReport is the detector outcome consumed as an override signal
type ShiftReport struct {
	Shifted        bool     `json:"shifted"`
	Magnitude      float64  `json:"magnitude"`
	RecentMean     float64  `json:"recentMean"`
	HistoricalMean float64  `json:"historicalMean"`
	RecentIDs      []string `json:"recentIds"`
	HistoricalIDs  []string `json:"historicalIds"`
}

// DetectBehaviouralShift splits one agent's active timeline and compares
// the earlier and later means.
func DetectBehaviouralShift(entries []models.Feedback, cfg ShiftConfig) ShiftReport {
	report := ShiftReport{}
	if !cfg.Enabled {
		return report
	}

	ordered := make([]models.Feedback, 0, len(entries))
	for _, fb := range entries {
		if !fb.Revoked {
			ordered = append(ordered, fb)
		}
	}
	if len(ordered) < minEntriesForShift {
		return report
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	split := int(math.Round(float64(len(ordered)) * (1 - cfg.RecentWindowFraction)))
	if split < 1 {
		split = 1
	}
	if split >= len(ordered) {
		split = len(ordered) - 1
	}
	historical, recent := ordered[:split], ordered[split:]

	histMean := meanValue(historical)
	recentMean := meanValue(recent)
	magnitude := math.Abs(recentMean - histMean)

	report.HistoricalMean = histMean
	report.RecentMean = recentMean
	report.Magnitude = magnitude
	for _, fb := range recent {
		report.RecentIDs = append(report.RecentIDs, fb.ID)
	}
	for _, fb := range historical {
		report.HistoricalIDs = append(report.HistoricalIDs, fb.ID)
	}
	report.Shifted = magnitude >= cfg.DeviationThreshold
	return report
}

// Results converts a triggered shift into per-entry weights: historical
// entries carry the residual and the tag, recent entries stay untouched.
func (r ShiftReport) Results(cfg ShiftConfig) ResultSet {
	results := make(ResultSet)
	if !r.Shifted {
		return results
	}
	for _, id := range r.HistoricalIDs {
		results[id] = Result{
			Weight: cfg.HistoricalResidual,
			Tags:   []models.MitigationTag{models.TagBehaviourShift},
		}
	}
	return results
}

func meanValue(entries []models.Feedback) float64 {
	if len(entries) == 0 {
		return 0
	}
	sum := 0.0
	for _, fb := range entries {
		sum += float64(fb.Value)
	}
	return sum / float64(len(entries))
}
