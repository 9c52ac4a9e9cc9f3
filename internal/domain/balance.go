package domain

import "github.com/shopspring/decimal"

// Balance is the derived view of a payee's funds. It is never stored.
type Balance struct {
	PayeeID                 string          `json:"payee_id"`
	Total                   decimal.Decimal `json:"total"`
	Available               decimal.Decimal `json:"available"`
	Retained                decimal.Decimal `json:"retained"`
	TotalWithdrawn          decimal.Decimal `json:"totalWithdrawn"`
	PendingWithdrawals      decimal.Decimal `json:"pendingWithdrawals"`
	Withdrawable            bool            `json:"withdrawable"`
	CardFundsPending        decimal.Decimal `json:"cardFundsPending"`
	CardFundsPendingCount   int             `json:"cardFundsPendingCount"`
	OrdersPending           decimal.Decimal `json:"ordersPending"`
	OrdersPendingCount      int             `json:"ordersPendingCount"`
	TotalFeesCharged        decimal.Decimal `json:"totalFeesCharged"`
	MinimumWithdrawalAmount decimal.Decimal `json:"minimumWithdrawalAmount"`
	WithdrawalFee           decimal.Decimal `json:"withdrawalFee"`
}

// LedgerFacts are the raw records a balance is derived from, read from one
// consistent snapshot.
type LedgerFacts struct {
	PayeeID           string
	Orders            []Order
	Commissions       []Commission
	AnticipationItems []AnticipationItem
	Withdrawals       []Withdrawal
}
