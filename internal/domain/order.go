package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the canonical order lifecycle status. Provider vocabularies
// are mapped onto it by the reconciler.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusRefused    OrderStatus = "refused"
	StatusCancelled  OrderStatus = "cancelled"
	StatusExpired    OrderStatus = "expired"
	StatusApproved   OrderStatus = "approved"
	StatusRefunded   OrderStatus = "refunded"
	StatusChargeback OrderStatus = "chargeback"
)

type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodPix    PaymentMethod = "pix"
	MethodBoleto PaymentMethod = "boleto"
)

// Order is a sale. TransactionRef is the provider's reference and the
// idempotency key for reconciliation.
type Order struct {
	ID                  string          `json:"id"`
	TransactionRef      string          `json:"transaction_ref"`
	TenantID            string          `json:"tenant_id,omitempty"`
	PayeeID             string          `json:"payee_id"`
	AffiliateID         string          `json:"affiliate_id,omitempty"`
	PaymentMethod       PaymentMethod   `json:"payment_method"`
	GrossAmount         decimal.Decimal `json:"gross_amount"`
	PlatformFee         decimal.Decimal `json:"platform_fee"`
	PaymentFee          decimal.Decimal `json:"payment_fee"`
	AffiliateCommission decimal.Decimal `json:"affiliate_commission"`
	NetAmount           decimal.Decimal `json:"net_amount"`
	Status              OrderStatus     `json:"status"`
	ApprovedAt          *time.Time      `json:"approved_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// TotalFees is the sum of every component deducted from the gross amount.
func (o *Order) TotalFees() decimal.Decimal {
	return o.PlatformFee.Add(o.PaymentFee).Add(o.AffiliateCommission)
}

// Validate checks net = gross - fees and that net is not negative.
func (o *Order) Validate() error {
	if o.TransactionRef == "" {
		return &ValidationError{Field: "transaction_ref", Reason: "is required"}
	}
	if o.PayeeID == "" {
		return &ValidationError{Field: "payee_id", Reason: "is required"}
	}
	if !o.GrossAmount.IsPositive() {
		return &ValidationError{Field: "gross_amount", Reason: "must be positive"}
	}
	for name, fee := range map[string]decimal.Decimal{
		"platform_fee":         o.PlatformFee,
		"payment_fee":          o.PaymentFee,
		"affiliate_commission": o.AffiliateCommission,
	} {
		if fee.IsNegative() {
			return &ValidationError{Field: name, Reason: "must not be negative"}
		}
	}
	if o.NetAmount.IsNegative() {
		return &ValidationError{Field: "net_amount", Reason: "fees exceed gross amount"}
	}
	if !o.NetAmount.Add(o.TotalFees()).Equal(o.GrossAmount) {
		return &ValidationError{Field: "net_amount", Reason: "must equal gross amount minus fees"}
	}
	return nil
}

// AuditSource identifies what triggered a status check.
type AuditSource string

const (
	SourceWebhook AuditSource = "webhook"
	SourcePoll    AuditSource = "poll"
	SourceReport  AuditSource = "report"
	SourceManual  AuditSource = "manual"
)

// StatusAuditEntry is an immutable record of one applied status transition.
type StatusAuditEntry struct {
	ID             string      `json:"id"`
	OrderID        string      `json:"order_id"`
	TransactionRef string      `json:"transaction_ref"`
	OldStatus      OrderStatus `json:"old_status"`
	NewStatus      OrderStatus `json:"new_status"`
	RawStatus      string      `json:"raw_status"`
	Source         AuditSource `json:"source"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TransitionEffect records that the side effects of an applied transition
// (commission creation, reversal into debt) are still owed. It is written
// with the transition and resolved once every hook has succeeded.
type TransitionEffect struct {
	ID             string      `json:"id"`
	OrderID        string      `json:"order_id"`
	TransactionRef string      `json:"transaction_ref"`
	From           OrderStatus `json:"from"`
	To             OrderStatus `json:"to"`
	RawStatus      string      `json:"raw_status"`
	Source         AuditSource `json:"source"`
	Attempts       int         `json:"attempts"`
	LastError      string      `json:"last_error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
}

// StatusTransition describes one applied order status change.
type StatusTransition struct {
	Order     Order       `json:"order"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	RawStatus string      `json:"raw_status"`
	Source    AuditSource `json:"source"`
}
