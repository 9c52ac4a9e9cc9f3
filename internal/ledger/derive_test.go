package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/paylane/settlement/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testRules = Rules{
	MinimumWithdrawal: dec("50"),
	HoldDays: map[domain.PaymentMethod]int{
		domain.MethodCard:   30,
		domain.MethodBoleto: 2,
	},
}

func approved(id string, method domain.PaymentMethod, net string, at time.Time) domain.Order {
	return domain.Order{
		ID:            id,
		PayeeID:       "seller-1",
		PaymentMethod: method,
		NetAmount:     dec(net),
		PlatformFee:   dec("1"),
		Status:        domain.StatusApproved,
		ApprovedAt:    &at,
		UpdatedAt:     at,
	}
}

func TestDerive(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	longAgo := now.AddDate(0, -2, 0)

	tests := []struct {
		name  string
		facts domain.LedgerFacts
		check func(t *testing.T, b domain.Balance)
	}{
		{
			name:  "empty",
			facts: domain.LedgerFacts{PayeeID: "seller-1"},
			check: func(t *testing.T, b domain.Balance) {
				assert.True(t, b.Available.IsZero())
				assert.True(t, b.Total.IsZero())
				assert.False(t, b.Withdrawable)
				assert.True(t, b.MinimumWithdrawalAmount.Equal(dec("50")))
			},
		},
		{
			name: "released pix and held card",
			facts: domain.LedgerFacts{
				PayeeID: "seller-1",
				Orders: []domain.Order{
					approved("o1", domain.MethodPix, "100.00", now.Add(-time.Hour)),
					approved("o2", domain.MethodCard, "80.50", now.AddDate(0, 0, -3)),
					approved("o3", domain.MethodCard, "20.00", longAgo),
				},
			},
			check: func(t *testing.T, b domain.Balance) {
				assert.True(t, b.Available.Equal(dec("120")), b.Available.String())
				assert.True(t, b.Retained.Equal(dec("80.5")))
				assert.True(t, b.CardFundsPending.Equal(dec("80.5")))
				assert.Equal(t, 1, b.CardFundsPendingCount)
				assert.True(t, b.Total.Equal(dec("200.5")))
				assert.True(t, b.TotalFeesCharged.Equal(dec("3")))
				assert.True(t, b.Withdrawable)
			},
		},
		{
			name: "pending and reversed orders",
			facts: domain.LedgerFacts{
				PayeeID: "seller-1",
				Orders: []domain.Order{
					{ID: "o1", NetAmount: dec("30"), Status: domain.StatusPending},
					{ID: "o2", NetAmount: dec("40"), Status: domain.StatusRefunded},
					{ID: "o3", NetAmount: dec("50"), Status: domain.StatusChargeback},
				},
			},
			check: func(t *testing.T, b domain.Balance) {
				assert.True(t, b.Available.IsZero())
				assert.True(t, b.OrdersPending.Equal(dec("30")))
				assert.Equal(t, 1, b.OrdersPendingCount)
			},
		},
		{
			name: "commissions and anticipated items",
			facts: domain.LedgerFacts{
				PayeeID: "aff-1",
				Commissions: []domain.Commission{
					{ID: "c1", Amount: dec("10"), Status: domain.CommissionPaid},
					{ID: "c2", Amount: dec("15"), Status: domain.CommissionPending},
					{ID: "c3", Amount: dec("99"), Status: domain.CommissionReversed},
					{ID: "c4", Amount: dec("20"), Status: domain.CommissionAnticipated},
				},
				AnticipationItems: []domain.AnticipationItem{
					{CommissionID: "c4", Amount: dec("20"), Fee: dec("1"), NetAmount: dec("19")},
				},
			},
			check: func(t *testing.T, b domain.Balance) {
				assert.True(t, b.Available.Equal(dec("29")))
				assert.True(t, b.Retained.Equal(dec("15")))
				assert.True(t, b.TotalFeesCharged.Equal(dec("1")))
				assert.False(t, b.Withdrawable)
			},
		},
		{
			name: "withdrawals never push available below zero",
			facts: domain.LedgerFacts{
				PayeeID: "seller-1",
				Orders:  []domain.Order{approved("o1", domain.MethodPix, "100", longAgo)},
				Withdrawals: []domain.Withdrawal{
					{ID: "w1", Amount: dec("80"), Fee: dec("2"), Status: domain.WithdrawalCompleted},
					{ID: "w2", Amount: dec("60"), Status: domain.WithdrawalPending},
					{ID: "w3", Amount: dec("500"), Status: domain.WithdrawalRejected},
				},
			},
			check: func(t *testing.T, b domain.Balance) {
				assert.True(t, b.Available.IsZero())
				assert.True(t, b.TotalWithdrawn.Equal(dec("80")))
				assert.True(t, b.PendingWithdrawals.Equal(dec("60")))
				assert.True(t, b.TotalFeesCharged.Equal(dec("3")))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Derive(&tt.facts, testRules, now)
			assert.False(t, b.Available.IsNegative())
			assert.True(t, b.Total.Equal(b.Available.Add(b.Retained)))
			tt.check(t, b)
		})
	}
}

func TestDeriveReleasesCardFundsAfterHold(t *testing.T) {
	approvedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	facts := &domain.LedgerFacts{
		PayeeID: "seller-1",
		Orders:  []domain.Order{approved("o1", domain.MethodCard, "70", approvedAt)},
	}

	before := Derive(facts, testRules, approvedAt.AddDate(0, 0, 30).Add(-time.Second))
	assert.True(t, before.Available.IsZero())
	assert.True(t, before.Retained.Equal(dec("70")))

	after := Derive(facts, testRules, approvedAt.AddDate(0, 0, 30))
	assert.True(t, after.Available.Equal(dec("70")))
	assert.True(t, after.Retained.IsZero())
}
