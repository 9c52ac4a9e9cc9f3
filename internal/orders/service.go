// Package orders creates orders at checkout initiation.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paylane/settlement/internal/currency"
	"github.com/paylane/settlement/internal/domain"
	"github.com/paylane/settlement/internal/fees"
)

// Store persists new orders.
type Store interface {
	Insert(ctx context.Context, o *domain.Order) error
	GetByRef(ctx context.Context, ref string) (*domain.Order, error)
}

// FeeBreakdowner prices an order.
type FeeBreakdowner interface {
	Breakdown(ctx context.Context, scope string, method domain.PaymentMethod, gross decimal.Decimal) (fees.Breakdown, error)
}

// CreateRequest is the checkout initiation payload.
type CreateRequest struct {
	TransactionRef string               `json:"transaction_ref"`
	TenantID       string               `json:"tenant_id"`
	PayeeID        string               `json:"payee_id"`
	AffiliateID    string               `json:"affiliate_id"`
	AffiliateRate  decimal.Decimal      `json:"affiliate_rate"` // percent of gross
	PaymentMethod  domain.PaymentMethod `json:"payment_method"`
	GrossAmount    decimal.Decimal      `json:"gross_amount"`
}

type Service struct {
	store    Store
	fees     FeeBreakdowner
	sessions func(ctx context.Context, ref string, method domain.PaymentMethod)
	now      func() time.Time
	logger   *slog.Logger
}

// NewService wires order creation. openSession may be nil.
func NewService(store Store, pricer FeeBreakdowner, openSession func(ctx context.Context, ref string, method domain.PaymentMethod), logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		fees:     pricer,
		sessions: openSession,
		now:      time.Now,
		logger:   logger.With("component", "orders"),
	}
}

// Create prices and stores a pending order so that net = gross - fees.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Order, error) {
	switch req.PaymentMethod {
	case domain.MethodCard, domain.MethodPix, domain.MethodBoleto:
	default:
		return nil, &domain.ValidationError{Field: "payment_method", Reason: "unknown payment method " + string(req.PaymentMethod)}
	}
	if req.AffiliateRate.IsNegative() || req.AffiliateRate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, &domain.ValidationError{Field: "affiliate_rate", Reason: "must be between 0 and 100"}
	}
	if req.AffiliateID == "" && !req.AffiliateRate.IsZero() {
		return nil, &domain.ValidationError{Field: "affiliate_id", Reason: "is required with an affiliate rate"}
	}
	if !req.GrossAmount.IsPositive() {
		return nil, &domain.ValidationError{Field: "gross_amount", Reason: "must be positive"}
	}

	scope := req.TenantID
	if scope == "" {
		scope = domain.GlobalScope
	}
	b, err := s.fees.Breakdown(ctx, scope, req.PaymentMethod, req.GrossAmount)
	if err != nil {
		return nil, fmt.Errorf("price order %s: %w", req.TransactionRef, err)
	}

	now := s.now().UTC()
	o := &domain.Order{
		ID:                  uuid.NewString(),
		TransactionRef:      req.TransactionRef,
		TenantID:            req.TenantID,
		PayeeID:             req.PayeeID,
		AffiliateID:         req.AffiliateID,
		PaymentMethod:       req.PaymentMethod,
		GrossAmount:         req.GrossAmount,
		PlatformFee:         b.PlatformFee,
		PaymentFee:          b.PaymentFee,
		AffiliateCommission: currency.Round(currency.Percent(req.GrossAmount, req.AffiliateRate)),
		Status:              domain.StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	o.NetAmount = o.GrossAmount.Sub(o.TotalFees())
	if err := o.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Insert(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info("order created", "ref", o.TransactionRef, "payee", o.PayeeID,
		"gross", o.GrossAmount.StringFixed(2), "net", o.NetAmount.StringFixed(2))

	if s.sessions != nil {
		s.sessions(ctx, o.TransactionRef, o.PaymentMethod)
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, ref string) (*domain.Order, error) {
	return s.store.GetByRef(ctx, ref)
}
