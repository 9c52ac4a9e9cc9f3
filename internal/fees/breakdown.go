package fees

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/paylane/settlement/internal/domain"
)

// Breakdown is the fee split applied to an order at checkout.
type Breakdown struct {
	PlatformFee decimal.Decimal `json:"platform_fee"`
	PaymentFee  decimal.Decimal `json:"payment_fee"`
}

// MethodOperation maps a payment method to the operation type that prices
// it. Cards are priced by their settlement window; D30 is the default.
func MethodOperation(m domain.PaymentMethod) domain.OperationType {
	switch m {
	case domain.MethodPix:
		return domain.OpPix
	case domain.MethodBoleto:
		return domain.OpBoleto
	default:
		return domain.OpCardD30
	}
}

// Breakdown computes the platform and payment-method fees for an order. A
// missing platform fee is an error; a missing method surcharge is zero.
func (c *Calculator) Breakdown(ctx context.Context, scope string, method domain.PaymentMethod, gross decimal.Decimal) (Breakdown, error) {
	var b Breakdown

	platform, _, err := c.Compute(ctx, domain.OpTransaction, scope, gross)
	if err != nil {
		return b, err
	}
	b.PlatformFee = platform

	payment, _, err := c.Compute(ctx, MethodOperation(method), scope, gross)
	switch {
	case errors.Is(err, domain.ErrNoFeeConfigured):
		c.logger.Debug("no payment method surcharge configured", "scope", scope, "method", method)
		payment = decimal.Zero
	case err != nil:
		return b, err
	}
	b.PaymentFee = payment
	return b, nil
}
