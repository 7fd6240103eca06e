package mitigation

import "github.com/skillmesh/trust-engine/pkg/models"

// Result is one detector's verdict for one feedback entry
type Result struct {
	Weight float64                `json:"weight"` // 0.0 - 1.0
	Tags   []models.MitigationTag `json:"tags"`
}

// ResultSet maps feedback ids to detector verdicts
type ResultSet map[string]Result

// Combine merges detector outputs per entry. The combined weight is the
// MINIMUM across detectors, capped at 1.0 — stacking evidence does not
// stack discounts, the strictest verdict binds. Tags accumulate as a union.
func Combine(sets ...ResultSet) ResultSet {
	out := make(ResultSet)
	for _, set := range sets {
		for id, r := range set {
			existing, ok := out[id]
			if !ok {
				w := r.Weight
				if w > 1.0 {
					w = 1.0
				}
				out[id] = Result{Weight: w, Tags: append([]models.MitigationTag(nil), r.Tags...)}
				continue
			}
			if r.Weight < existing.Weight {
				existing.Weight = r.Weight
			}
			existing.Tags = unionTags(existing.Tags, r.Tags)
			out[id] = existing
		}
	}
	return out
}

func unionTags(a, b []models.MitigationTag) []models.MitigationTag {
	seen := make(map[models.MitigationTag]bool, len(a))
	for _, t := range a {
		seen[t] = true
	}
	for _, t := range b {
		if !seen[t] {
			a = append(a, t)
			seen[t] = true
		}
	}
	return a
}

// HasTag reports whether a result carries the given tag
func (r Result) HasTag(tag models.MitigationTag) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
