package domain

import (
	"github.com/shopspring/decimal"
)

// GlobalScope is the fee scope every tenant falls back to.
const GlobalScope = "global"

type OperationType string

const (
	OpTransaction  OperationType = "transaction"
	OpWithdrawal   OperationType = "withdrawal"
	OpAnticipation OperationType = "anticipation"
	OpPix          OperationType = "pix"
	OpCardD2       OperationType = "card_d2"
	OpCardD15      OperationType = "card_d15"
	OpCardD30      OperationType = "card_d30"
	OpBoleto       OperationType = "boleto"
	OpAcquirer     OperationType = "acquirer"
	OpSubscription OperationType = "subscription"
	OpChargeback   OperationType = "chargeback"
	OpRefund       OperationType = "refund"
)

var operationTypes = map[OperationType]bool{
	OpTransaction: true, OpWithdrawal: true, OpAnticipation: true, OpPix: true,
	OpCardD2: true, OpCardD15: true, OpCardD30: true, OpBoleto: true,
	OpAcquirer: true, OpSubscription: true, OpChargeback: true, OpRefund: true,
}

// Valid reports whether op is one of the known operation types.
func (op OperationType) Valid() bool {
	return operationTypes[op]
}

type FeeValueType string

const (
	FeeFixed      FeeValueType = "fixed"
	FeePercentage FeeValueType = "percentage"
)

// FeeDefinition configures the fee charged for one operation type within a
// scope. Scope is GlobalScope or a tenant id.
type FeeDefinition struct {
	ID            string           `json:"id"`
	Scope         string           `json:"scope"`
	OperationType OperationType    `json:"operation_type"`
	ValueType     FeeValueType     `json:"value_type"`
	Value         decimal.Decimal  `json:"value"`
	AdditiveFixed decimal.Decimal  `json:"additive_fixed"`
	Cap           *decimal.Decimal `json:"cap,omitempty"`
	Active        bool             `json:"active"`
}

func (d *FeeDefinition) Validate() error {
	if d.Scope == "" {
		return &ValidationError{Field: "scope", Reason: "is required"}
	}
	if !d.OperationType.Valid() {
		return &ValidationError{Field: "operation_type", Reason: "unknown operation type " + string(d.OperationType)}
	}
	if d.ValueType != FeeFixed && d.ValueType != FeePercentage {
		return &ValidationError{Field: "value_type", Reason: "must be fixed or percentage"}
	}
	if d.Value.IsNegative() {
		return &ValidationError{Field: "value", Reason: "must not be negative"}
	}
	if d.AdditiveFixed.IsNegative() {
		return &ValidationError{Field: "additive_fixed", Reason: "must not be negative"}
	}
	if d.Cap != nil && d.Cap.IsNegative() {
		return &ValidationError{Field: "cap", Reason: "must not be negative"}
	}
	return nil
}
