// Package ledger derives payee balances from raw ledger facts and handles
// withdrawals against them.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/paylane/settlement/internal/currency"
	"github.com/paylane/settlement/internal/domain"
)

// Rules parameterize the derivation.
type Rules struct {
	MinimumWithdrawal decimal.Decimal
	// HoldDays is the settlement hold window per payment method, counted
	// from approval. Methods without an entry are released immediately.
	HoldDays map[domain.PaymentMethod]int
}

// allowedApproved lists the order statuses whose net counts toward balance.
var allowedApproved = map[domain.OrderStatus]bool{
	domain.StatusApproved: true,
}

// held reports whether an approved order is still inside its hold window.
func (r Rules) held(o *domain.Order, now time.Time) bool {
	days := r.HoldDays[o.PaymentMethod]
	if days <= 0 {
		return false
	}
	approvedAt := o.UpdatedAt
	if o.ApprovedAt != nil {
		approvedAt = *o.ApprovedAt
	}
	return now.Before(approvedAt.AddDate(0, 0, days))
}

// Derive computes a balance from facts. It is pure: the same facts, rules and
// instant always give the same balance. WithdrawalFee is left for the caller.
func Derive(facts *domain.LedgerFacts, rules Rules, now time.Time) domain.Balance {
	b := domain.Balance{
		PayeeID:                 facts.PayeeID,
		MinimumWithdrawalAmount: rules.MinimumWithdrawal,
	}

	released := decimal.Zero
	for i := range facts.Orders {
		o := &facts.Orders[i]
		switch {
		case allowedApproved[o.Status]:
			b.TotalFeesCharged = b.TotalFeesCharged.Add(o.PlatformFee).Add(o.PaymentFee)
			if rules.held(o, now) {
				b.Retained = b.Retained.Add(o.NetAmount)
				if o.PaymentMethod == domain.MethodCard {
					b.CardFundsPending = b.CardFundsPending.Add(o.NetAmount)
					b.CardFundsPendingCount++
				}
			} else {
				released = released.Add(o.NetAmount)
			}
		case o.Status == domain.StatusPending:
			b.OrdersPending = b.OrdersPending.Add(o.NetAmount)
			b.OrdersPendingCount++
		}
	}

	for _, c := range facts.Commissions {
		switch c.Status {
		case domain.CommissionPaid:
			released = released.Add(c.Amount)
		case domain.CommissionPending:
			b.Retained = b.Retained.Add(c.Amount)
		}
	}

	// Anticipated commissions are credited at their net, after the fee.
	for _, it := range facts.AnticipationItems {
		released = released.Add(it.NetAmount)
		b.TotalFeesCharged = b.TotalFeesCharged.Add(it.Fee)
	}

	for _, w := range facts.Withdrawals {
		switch w.Status {
		case domain.WithdrawalCompleted:
			b.TotalWithdrawn = b.TotalWithdrawn.Add(w.Amount)
			b.TotalFeesCharged = b.TotalFeesCharged.Add(w.Fee)
		case domain.WithdrawalPending:
			b.PendingWithdrawals = b.PendingWithdrawals.Add(w.Amount)
		}
	}

	b.Available = currency.Round(currency.Max0(released.Sub(b.TotalWithdrawn).Sub(b.PendingWithdrawals)))
	b.Retained = currency.Round(b.Retained)
	b.Total = b.Available.Add(b.Retained)
	b.Withdrawable = b.Available.GreaterThanOrEqual(rules.MinimumWithdrawal)
	return b
}
