package mitigation

import (
	"sort"

	"github.com/skillmesh/trust-engine/pkg/models"
)

// New-Submitter Burst Detection
//
// Velocity detection catches raw rating floods; this catches the subtler
// variant where an attacker burst-registers fresh identities and has each
// submit once. An address is "new within window W" when its first-seen
// timestamp across the ENTIRE corpus falls inside W — an established
// reviewer who happens to rate during a busy minute is not new.
//
// Per agent timeline: slide the window, and when the count of new-in-window
// entries exceeds the threshold, tag every such entry.

// DetectNewSubmitterBursts flags bursts of corpus-new addresses on one
// agent's timeline. firstSeen maps client address → earliest active
// timestamp corpus-wide.
func DetectNewSubmitterBursts(entries []models.Feedback, firstSeen map[string]int64, cfg AnomalyConfig) ResultSet {
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

	// isNew: the submitter's corpus-wide first appearance lies inside the
	// window ending at this entry's timestamp.
	isNew := func(fb models.Feedback, windowStart int64) bool {
		fs, ok := firstSeen[fb.ClientAddress]
		if !ok {
			return true // unseen elsewhere means brand new
		}
		return fs >= windowStart
	}

	flagged := make(map[string]bool)
	lo := 0
	for hi := range ordered {
		for ordered[hi].Timestamp-ordered[lo].Timestamp > cfg.WindowMs {
			lo++
		}
		windowStart := ordered[hi].Timestamp - cfg.WindowMs

		newInWindow := make([]string, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			if isNew(ordered[i], windowStart) {
				newInWindow = append(newInWindow, ordered[i].ID)
			}
		}
		if len(newInWindow) > cfg.MaxNewInWindow {
			for _, id := range newInWindow {
				flagged[id] = true
			}
		}
	}

	for id := range flagged {
		results[id] = Result{
			Weight: cfg.DiscountFactor,
			Tags:   []models.MitigationTag{models.TagAnomalyBurst},
		}
	}
	return results
}
