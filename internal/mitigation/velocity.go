package mitigation

import (
	"sort"

	"github.com/skillmesh/trust-engine/pkg/models"
)

// Velocity Burst Detection
//
// A flood of ratings in a short interval is the cheapest attack there is.
// The detector sorts an agent's timeline and slides a right-closed window:
// whenever more than MaxInWindow entries land within WindowMs, every entry
// inside that window is tagged and discounted. Boundary entries count when
// t_end - t_start <= WindowMs.

// DetectVelocityBursts flags window overflows in one agent's active timeline
func DetectVelocityBursts(entries []models.Feedback, cfg VelocityConfig) ResultSet {
	results := make(ResultSet)
	if !cfg.Enabled || len(entries) == 0 {
		return results
	}

	ordered := make([]models.Feedback, 0, len(entries))
	for _, fb := range entries {
		if !fb.Revoked {
			ordered = append(ordered, fb)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	flagged := make(map[string]bool)
	lo := 0
	for hi := range ordered {
		for ordered[hi].Timestamp-ordered[lo].Timestamp > cfg.WindowMs {
			lo++
		}
		if hi-lo+1 > cfg.MaxInWindow {
			for i := lo; i <= hi; i++ {
				flagged[ordered[i].ID] = true
			}
		}
	}

	for id := range flagged {
		results[id] = Result{
			Weight: cfg.DiscountFactor,
			Tags:   []models.MitigationTag{models.TagVelocityBurst},
		}
	}
	return results
}
