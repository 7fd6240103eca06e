package credibility

import (
	"errors"
	"math"
	"testing"

	"github.com/skillmesh/trust-engine/internal/providers"
	"github.com/skillmesh/trust-engine/pkg/models"
)

func TestResolve_TieRules(t *testing.T) {
	receipts := providers.NewMemoryReceipts()
	stake := providers.NewMemoryStake()

	for i := 0; i < 4; i++ {
		receipts.RecordPayment("paid-staked", "agent-1")
	}
	stake.SetStaked("paid-staked", true)

	receipts.RecordPayment("paid-only", "agent-1")

	stake.SetStaked("staked-only", true)

	r := NewResolver(receipts, stake)

	cases := []struct {
		client     string
		wantTier   models.CredibilityTier
		wantWeight float64
	}{
		// 5 + 5*4/10 = 7.0
		{"paid-staked", models.TierPaidAndStaked, 7.0},
		// 1 + 1*1/10 = 1.1
		{"paid-only", models.TierPaidUnstaked, 1.1},
		// stake alone earns nothing
		{"staked-only", models.TierUnpaidUnstaked, 0.1},
		{"nobody", models.TierUnpaidUnstaked, 0.1},
	}
	for _, tc := range cases {
		res := r.Resolve(tc.client, "agent-1")
		if res.Tier != tc.wantTier {
			t.Errorf("%s: expected tier %s, got %s", tc.client, tc.wantTier, res.Tier)
		}
		if math.Abs(res.Weight-tc.wantWeight) > 1e-9 {
			t.Errorf("%s: expected weight %g, got %g", tc.client, tc.wantWeight, res.Weight)
		}
		if res.Degraded {
			t.Errorf("%s: unexpected degraded flag", tc.client)
		}
	}
}

func TestResolve_PaymentSaturation(t *testing.T) {
	receipts := providers.NewMemoryReceipts()
	stake := providers.NewMemoryStake()
	for i := 0; i < 25; i++ {
		receipts.RecordPayment("whale", "agent-1")
	}
	stake.SetStaked("whale", true)

	res := NewResolver(receipts, stake).Resolve("whale", "agent-1")
	if math.Abs(res.Weight-10.0) > 1e-9 {
		t.Errorf("payment bonus saturates at 10 payments: expected weight 10, got %g", res.Weight)
	}
}

func TestResolve_ReversingStateReversesTier(t *testing.T) {
	receipts := providers.NewMemoryReceipts()
	stake := providers.NewMemoryStake()
	receipts.RecordPayment("c", "agent-1")
	stake.SetStaked("c", true)

	r := NewResolver(receipts, stake)
	if tier := r.Resolve("c", "agent-1").Tier; tier != models.TierPaidAndStaked {
		t.Fatalf("expected paid_and_staked, got %s", tier)
	}

	stake.SetStaked("c", false)
	if tier := r.Resolve("c", "agent-1").Tier; tier != models.TierPaidUnstaked {
		t.Errorf("unstaking should demote to paid_unstaked, got %s", tier)
	}
}

// failingReceipts simulates an unreachable payment provider
type failingReceipts struct{}

func (failingReceipts) ReceiptsFor(client, agent string) (int, error) {
	return 0, errors.New("rpc: connection refused")
}
func (failingReceipts) HasAny(client string) (bool, error) {
	return false, errors.New("rpc: connection refused")
}

func TestResolve_ProviderFailureDegrades(t *testing.T) {
	stake := providers.NewMemoryStake()
	stake.SetStaked("c", true)

	res := NewResolver(failingReceipts{}, stake).Resolve("c", "agent-1")
	if !res.Degraded {
		t.Error("provider failure must set the degraded flag")
	}
	if res.Tier != models.TierUnpaidUnstaked || math.Abs(res.Weight-0.1) > 1e-9 {
		t.Errorf("degraded resolution falls back to unpaid_unstaked at 0.1, got %s/%g", res.Tier, res.Weight)
	}
}

func TestAnnotate_SkipsRevoked(t *testing.T) {
	receipts := providers.NewMemoryReceipts()
	receipts.RecordPayment("c1", "agent-1")
	r := NewResolver(receipts, providers.NewMemoryStake())

	revoked := models.Feedback{ID: "f2", AgentID: "agent-1", ClientAddress: "c2", Value: 10}
	revoked.Revoked = true
	annotated := r.Annotate([]models.Feedback{
		{ID: "f1", AgentID: "agent-1", ClientAddress: "c1", Value: 90},
		revoked,
	})

	if len(annotated) != 1 {
		t.Fatalf("expected 1 annotated entry, got %d", len(annotated))
	}
	a := annotated[0]
	if !a.VerifiedUser || a.CredibilityTier != models.TierPaidUnstaked {
		t.Errorf("paid reviewer should be verified paid_unstaked, got %s verified=%v", a.CredibilityTier, a.VerifiedUser)
	}
}
