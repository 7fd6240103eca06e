package mitigation

import "github.com/skillmesh/trust-engine/pkg/models"

// Submitter-Recency Weighting
//
// Blunts "poison" attacks by burst-registered identities. A submitter is
// "recent" when their corpus-wide first appearance falls inside the
// most-recent RecentThreshold fraction of the full corpus time span.
// Recent submitters' entries carry the discount; established submitters
// carry full weight.
//
// When every corpus entry shares one timestamp the span is zero and
// everyone counts as established — there is no history to be newer than.

// WeighSubmitters discounts entries from recently first-seen addresses.
// firstSeen maps client address → earliest active timestamp corpus-wide;
// corpusMin/corpusMax bound the full corpus time span.
func WeighSubmitters(entries []models.Feedback, firstSeen map[string]int64, corpusMin, corpusMax int64, cfg SubmitterConfig) ResultSet {
	results := make(ResultSet)
	if !cfg.Enabled {
		return results
	}

	span := corpusMax - corpusMin
	if span <= 0 {
		return results
	}
	cutoff := corpusMax - int64(float64(span)*cfg.RecentThreshold)

	for _, fb := range entries {
		if fb.Revoked {
			continue
		}
		fs, ok := firstSeen[fb.ClientAddress]
		if !ok {
			fs = fb.Timestamp
		}
		if fs >= cutoff {
			results[fb.ID] = Result{
				Weight: cfg.DiscountFactor,
				Tags:   []models.MitigationTag{models.TagNewSubmitter},
			}
		}
	}
	return results
}
