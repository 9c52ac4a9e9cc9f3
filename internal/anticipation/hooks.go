package anticipation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/paylane/settlement/internal/domain"
)

// AfterTransition keeps commissions in step with their order. Approval
// creates the affiliate commission. A refund or chargeback reverses the
// order's commissions, and any that were already anticipated become debt.
func (e *Engine) AfterTransition(ctx context.Context, t domain.StatusTransition) error {
	switch t.To {
	case domain.StatusApproved:
		return e.createCommission(ctx, t.Order)
	case domain.StatusRefunded, domain.StatusChargeback:
		return e.reverse(ctx, t.Order, t.To)
	}
	return nil
}

func (e *Engine) createCommission(ctx context.Context, o domain.Order) error {
	if o.AffiliateID == "" || !o.AffiliateCommission.IsPositive() {
		return nil
	}
	now := e.now().UTC()
	c := &domain.Commission{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		PayeeID:   o.AffiliateID,
		Amount:    o.AffiliateCommission,
		Status:    domain.CommissionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := e.commissions.Insert(ctx, c)
	if err != nil {
		return fmt.Errorf("commission for order %s: %w", o.ID, err)
	}
	if created {
		e.logger.Info("commission created", "order", o.ID, "payee", c.PayeeID, "amount", c.Amount.StringFixed(2))
	}
	return nil
}

func (e *Engine) reverse(ctx context.Context, o domain.Order, to domain.OrderStatus) error {
	now := e.now().UTC()
	debts, err := e.commissions.Reverse(ctx, o.ID, now, func(c domain.Commission) domain.AnticipationDebt {
		return domain.AnticipationDebt{
			ID:              uuid.NewString(),
			PayeeID:         c.PayeeID,
			CommissionID:    c.ID,
			OrderID:         o.ID,
			Amount:          c.Amount,
			RemainingAmount: c.Amount,
			Status:          domain.DebtPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	})
	if err != nil {
		return fmt.Errorf("reverse commissions of order %s: %w", o.ID, err)
	}
	for _, d := range debts {
		e.logger.Warn("anticipated commission reversed, debt opened", "order", o.ID,
			"payee", d.PayeeID, "debt", d.ID, "amount", d.Amount.StringFixed(2), "reason", to)
		e.audit(ctx, "anticipation_debt", d.ID, "opened", "order="+o.ID+" reason="+string(to))
	}
	return nil
}
