package scoring

import (
	"math"

	"github.com/skillmesh/trust-engine/pkg/models"
)

// Trust Tier Ladder
//
// Letter grades C..AAA mapped from a 0-100 score by inclusive lower
// bounds. The mapping is pure and total: swapping the scorer never moves
// a tier boundary, and score_a <= score_b implies tier_a <= tier_b.

// TierThreshold is one rung of the ladder
type TierThreshold struct {
	Tier models.TrustTier `yaml:"tier" json:"tier"`
	Min  float64          `yaml:"min" json:"min"` // inclusive lower bound
}

// DefaultTierThresholds is the shipped ladder, ascending
func DefaultTierThresholds() []TierThreshold {
	return []TierThreshold{
		{models.TrustC, 0},
		{models.TrustCC, 15},
		{models.TrustCCC, 25},
		{models.TrustB, 35},
		{models.TrustBB, 45},
		{models.TrustBBB, 55},
		{models.TrustA, 65},
		{models.TrustAA, 75},
		{models.TrustAAA, 85},
	}
}

// TierMap resolves scores to tiers. Built once at startup.
type TierMap struct {
	thresholds []TierThreshold
}

// NewTierMap builds a tier map from ascending thresholds. Nil or empty
// falls back to the defaults.
func NewTierMap(thresholds []TierThreshold) *TierMap {
	if len(thresholds) == 0 {
		thresholds = DefaultTierThresholds()
	}
	return &TierMap{thresholds: thresholds}
}

// TierFor returns the highest tier whose lower bound the score meets
func (tm *TierMap) TierFor(score float64) models.TrustTier {
	tier := tm.thresholds[0].Tier
	for _, t := range tm.thresholds {
		if score >= t.Min {
			tier = t.Tier
		}
	}
	return tier
}

// AccessFor maps a tier to its access decision: A-grades get full access,
// B-grades limited, C-grades denied.
func AccessFor(tier models.TrustTier) models.AccessDecision {
	switch tier {
	case models.TrustA, models.TrustAA, models.TrustAAA:
		return models.AccessFull
	case models.TrustB, models.TrustBB, models.TrustBBB:
		return models.AccessLimited
	default:
		return models.AccessDenied
	}
}

// TierRank orders tiers C < CC < ... < AAA for monotonicity checks
func TierRank(tier models.TrustTier) int {
	order := []models.TrustTier{
		models.TrustC, models.TrustCC, models.TrustCCC,
		models.TrustB, models.TrustBB, models.TrustBBB,
		models.TrustA, models.TrustAA, models.TrustAAA,
	}
	for i, t := range order {
		if t == tier {
			return i
		}
	}
	return -1
}

// roundTo rounds to the given number of decimal places
func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

// clampScore bounds a score to [0, 100]
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
