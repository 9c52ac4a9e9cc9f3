package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CommissionStatus string

const (
	CommissionPending     CommissionStatus = "pending"
	CommissionPaid        CommissionStatus = "paid"
	CommissionAnticipated CommissionStatus = "anticipated"
	CommissionReversed    CommissionStatus = "reversed"
)

// Commission is the affiliate share of an approved order.
type Commission struct {
	ID             string           `json:"id"`
	OrderID        string           `json:"order_id"`
	PayeeID        string           `json:"payee_id"`
	Amount         decimal.Decimal  `json:"amount"`
	Status         CommissionStatus `json:"status"`
	AnticipationID string           `json:"anticipation_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
)

// AnticipationBatch groups the commissions converted in one request.
type AnticipationBatch struct {
	ID            string          `json:"id"`
	PayeeID       string          `json:"payee_id"`
	OriginalTotal decimal.Decimal `json:"original_total"`
	FeePercentage decimal.Decimal `json:"fee_percentage"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
	NetTotal      decimal.Decimal `json:"net_total"`
	Status        BatchStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// AnticipationItem is one commission inside a batch. Fee is the commission's
// pro-rata share of the batch fee.
type AnticipationItem struct {
	ID           string          `json:"id"`
	BatchID      string          `json:"batch_id"`
	CommissionID string          `json:"commission_id"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	NetAmount    decimal.Decimal `json:"net_amount"`
}

type DebtStatus string

const (
	DebtPending DebtStatus = "pending"
	DebtPartial DebtStatus = "partial"
	DebtCleared DebtStatus = "cleared"
)

// AnticipationDebt is owed by a payee whose anticipated commission was
// reversed after payout.
type AnticipationDebt struct {
	ID              string          `json:"id"`
	PayeeID         string          `json:"payee_id"`
	CommissionID    string          `json:"commission_id"`
	OrderID         string          `json:"order_id"`
	Amount          decimal.Decimal `json:"amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          DebtStatus      `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Unresolved reports whether the debt still blocks anticipation.
func (d *AnticipationDebt) Unresolved() bool {
	return d.Status == DebtPending || d.Status == DebtPartial
}

// AuditEntry is a generic operator-facing audit record.
type AuditEntry struct {
	ID        string    `json:"id"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
