package credibility

import (
	"log"

	"github.com/skillmesh/trust-engine/internal/providers"
	"github.com/skillmesh/trust-engine/pkg/models"
)

// Reviewer Credibility Resolver
//
// Classifies a reviewer by payment-and-stake posture against the registry
// providers and assigns the numeric weight the usage-weighted scorer
// blends with:
//
//   paid_and_staked   5.0 - 10.0   verified badge
//   paid_unstaked     1.0 -  2.0   verified badge
//   unpaid_unstaked   0.1          no badge
//
// Weight within a paid tier scales linearly with min(payments, 10)/10.
// Staking alone earns nothing — the policy requires usage proof, because
// stake without payments is exactly what a patient sybil buys.
//
// Provider failures degrade, never fail: an unreachable receipts or stake
// backend classifies the address as unpaid_unstaked with the degraded flag
// set, and scoring continues.

// paymentSaturation is where the linear payment bonus tops out
const paymentSaturation = 10

// Resolution is the tier decision for one (client, agent) pair
type Resolution struct {
	Tier         models.CredibilityTier `json:"tier"`
	Weight       float64                `json:"weight"`
	PaymentCount int                    `json:"paymentCount"`
	Staked       bool                   `json:"staked"`
	Degraded     bool                   `json:"degraded"`
}

// Resolver consults the payment and stake providers
type Resolver struct {
	receipts providers.Receipts
	stake    providers.Stake
	// GlobalMultiplier scales every resolved weight. Operators tune the
	// credibility influence with this single knob instead of editing the
	// tier table.
	GlobalMultiplier float64
}

// NewResolver creates a resolver over the given providers
func NewResolver(receipts providers.Receipts, stake providers.Stake) *Resolver {
	return &Resolver{receipts: receipts, stake: stake, GlobalMultiplier: 1.0}
}

// Resolve classifies one (client, agent) pair
func (r *Resolver) Resolve(client, agent string) Resolution {
	res := Resolution{Tier: models.TierUnpaidUnstaked, Weight: 0.1}

	payments, err := r.receipts.ReceiptsFor(client, agent)
	if err != nil {
		log.Printf("[Credibility] receipts lookup failed for %s: %v (degrading to unpaid)", client, err)
		res.Degraded = true
		res.Weight *= r.multiplier()
		return res
	}
	res.PaymentCount = payments

	staked, err := r.stake.IsStaked(client)
	if err != nil {
		log.Printf("[Credibility] stake lookup failed for %s: %v (degrading to unpaid)", client, err)
		res.Degraded = true
		res.Weight *= r.multiplier()
		return res
	}
	res.Staked = staked

	bonus := float64(min(payments, paymentSaturation)) / float64(paymentSaturation)
	switch {
	case payments > 0 && staked:
		res.Tier = models.TierPaidAndStaked
		res.Weight = 5 + 5*bonus
	case payments > 0:
		res.Tier = models.TierPaidUnstaked
		res.Weight = 1 + 1*bonus
	default:
		res.Tier = models.TierUnpaidUnstaked
		res.Weight = 0.1
	}
	res.Weight *= r.multiplier()
	return res
}

// Annotate derives credibility-annotated copies of the given entries
func (r *Resolver) Annotate(entries []models.Feedback) []models.AnnotatedFeedback {
	out := make([]models.AnnotatedFeedback, 0, len(entries))
	for _, fb := range entries {
		if fb.Revoked {
			continue
		}
		res := r.Resolve(fb.ClientAddress, fb.AgentID)
		out = append(out, models.AnnotatedFeedback{
			Feedback:          fb,
			CredibilityTier:   res.Tier,
			CredibilityWeight: res.Weight,
			VerifiedUser:      res.Tier == models.TierPaidAndStaked || res.Tier == models.TierPaidUnstaked,
			PaymentCount:      res.PaymentCount,
			ReviewerStaked:    res.Staked,
			Degraded:          res.Degraded,
		})
	}
	return out
}

func (r *Resolver) multiplier() float64 {
	if r.GlobalMultiplier <= 0 {
		return 1.0
	}
	return r.GlobalMultiplier
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
