package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrNoFeeConfigured     = errors.New("no fee configured")
	ErrValidation          = errors.New("validation failed")
	ErrNothingEligible     = errors.New("nothing eligible")
	ErrBelowMinimum        = errors.New("below minimum amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrBatchStuck          = errors.New("anticipation batch left in intermediate state")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// CodePendingDebt is the machine-readable code returned when anticipation is
// blocked by unresolved debt.
const CodePendingDebt = "PENDING_DEBT"

// PendingDebtError rejects an anticipation request outright.
type PendingDebtError struct {
	TotalDebt decimal.Decimal
}

func (e *PendingDebtError) Error() string {
	return fmt.Sprintf("%s: payee has %s in unresolved anticipation debt", CodePendingDebt, e.TotalDebt.StringFixed(2))
}

// ValidationError reports a rejected input with a specific reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
