package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

type Withdrawal struct {
	ID             string           `json:"id"`
	PayeeID        string           `json:"payee_id"`
	Amount         decimal.Decimal  `json:"amount"`
	Fee            decimal.Decimal  `json:"fee"`
	NetAmount      decimal.Decimal  `json:"net_amount"`
	Status         WithdrawalStatus `json:"status"`
	BankAccountRef string           `json:"bank_account_ref"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewWithdrawal builds a pending withdrawal. It fails when the amount is not
// positive or when the fee consumes the whole amount.
func NewWithdrawal(id, payeeID string, amount, fee decimal.Decimal, bankAccountRef string, now time.Time) (*Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	net := amount.Sub(fee)
	if !net.IsPositive() {
		return nil, &ValidationError{
			Field:  "amount",
			Reason: "amount " + amount.StringFixed(2) + " does not exceed withdrawal fee " + fee.StringFixed(2),
		}
	}
	return &Withdrawal{
		ID:             id,
		PayeeID:        payeeID,
		Amount:         amount,
		Fee:            fee,
		NetAmount:      net,
		Status:         WithdrawalPending,
		BankAccountRef: bankAccountRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
