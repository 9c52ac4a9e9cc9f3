package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paylane/settlement/internal/domain"
)

// FactStore reads ledger facts from one snapshot and stores withdrawals.
type FactStore interface {
	Facts(ctx context.Context, payeeID string) (*domain.LedgerFacts, error)
	InsertWithdrawalChecked(ctx context.Context, payeeID string, build func(*domain.LedgerFacts) (*domain.Withdrawal, error)) (*domain.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error)
	SettleWithdrawal(ctx context.Context, id string, status domain.WithdrawalStatus, at time.Time) (bool, error)
}

// FeeComputer prices an operation.
type FeeComputer interface {
	Compute(ctx context.Context, op domain.OperationType, scope string, gross decimal.Decimal) (decimal.Decimal, domain.FeeDefinition, error)
}

// WithdrawalRequest asks to move available funds to a bank account.
type WithdrawalRequest struct {
	PayeeID        string          `json:"payeeId"`
	TenantID       string          `json:"tenantId,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	BankAccountRef string          `json:"bankAccountRef"`
}

// Quote is the fee and net amount of a prospective withdrawal.
type Quote struct {
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	NetAmount decimal.Decimal `json:"netAmount"`
}

type Service struct {
	store  FactStore
	fees   FeeComputer
	rules  Rules
	now    func() time.Time
	logger *slog.Logger
}

func NewService(store FactStore, fees FeeComputer, rules Rules, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		fees:   fees,
		rules:  rules,
		now:    time.Now,
		logger: logger.With("component", "ledger"),
	}
}

// Compute derives the payee's balance from a consistent snapshot of facts.
func (s *Service) Compute(ctx context.Context, payeeID, tenantID string) (domain.Balance, error) {
	facts, err := s.store.Facts(ctx, payeeID)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("balance for %s: %w", payeeID, err)
	}
	b := Derive(facts, s.rules, s.now())

	fee, _, err := s.fees.Compute(ctx, domain.OpWithdrawal, scopeOf(tenantID), b.Available)
	switch {
	case errors.Is(err, domain.ErrNoFeeConfigured):
		s.logger.Warn("no withdrawal fee configured", "payee", payeeID, "tenant", tenantID)
	case err != nil:
		return domain.Balance{}, fmt.Errorf("withdrawal fee for %s: %w", payeeID, err)
	default:
		b.WithdrawalFee = fee
	}
	return b, nil
}

// QuoteWithdrawal prices a withdrawal of amount. It fails when no withdrawal
// fee is configured or when the fee consumes the whole amount.
func (s *Service) QuoteWithdrawal(ctx context.Context, tenantID string, amount decimal.Decimal) (Quote, error) {
	if !amount.IsPositive() {
		return Quote{}, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	fee, _, err := s.fees.Compute(ctx, domain.OpWithdrawal, scopeOf(tenantID), amount)
	if err != nil {
		return Quote{}, fmt.Errorf("quote withdrawal: %w", err)
	}
	net := amount.Sub(fee)
	if !net.IsPositive() {
		return Quote{}, &domain.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("amount %s does not exceed withdrawal fee %s", amount.StringFixed(2), fee.StringFixed(2)),
		}
	}
	return Quote{Amount: amount, Fee: fee, NetAmount: net}, nil
}

// RequestWithdrawal records a pending withdrawal if the payee's available
// balance covers it. The balance check and the insert share one transaction.
func (s *Service) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.Withdrawal, error) {
	if req.PayeeID == "" {
		return nil, &domain.ValidationError{Field: "payee_id", Reason: "is required"}
	}
	if req.BankAccountRef == "" {
		return nil, &domain.ValidationError{Field: "bank_account_ref", Reason: "is required"}
	}
	q, err := s.QuoteWithdrawal(ctx, req.TenantID, req.Amount)
	if err != nil {
		return nil, err
	}

	w, err := s.store.InsertWithdrawalChecked(ctx, req.PayeeID, func(facts *domain.LedgerFacts) (*domain.Withdrawal, error) {
		now := s.now()
		b := Derive(facts, s.rules, now)
		if req.Amount.LessThan(s.rules.MinimumWithdrawal) {
			return nil, fmt.Errorf("withdrawal of %s under minimum %s: %w",
				req.Amount.StringFixed(2), s.rules.MinimumWithdrawal.StringFixed(2), domain.ErrBelowMinimum)
		}
		if req.Amount.GreaterThan(b.Available) {
			return nil, fmt.Errorf("withdrawal of %s exceeds available %s: %w",
				req.Amount.StringFixed(2), b.Available.StringFixed(2), domain.ErrInsufficientBalance)
		}
		return domain.NewWithdrawal(uuid.NewString(), req.PayeeID, q.Amount, q.Fee, req.BankAccountRef, now.UTC())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal requested", "payee", req.PayeeID, "withdrawal", w.ID,
		"amount", w.Amount.StringFixed(2), "fee", w.Fee.StringFixed(2))
	return w, nil
}

// CompleteWithdrawal marks a pending withdrawal as paid out.
func (s *Service) CompleteWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error) {
	return s.settle(ctx, id, domain.WithdrawalCompleted)
}

// RejectWithdrawal returns a pending withdrawal's amount to the balance.
func (s *Service) RejectWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error) {
	return s.settle(ctx, id, domain.WithdrawalRejected)
}

func (s *Service) settle(ctx context.Context, id string, status domain.WithdrawalStatus) (*domain.Withdrawal, error) {
	ok, err := s.store.SettleWithdrawal(ctx, id, status, s.now().UTC())
	if err != nil {
		return nil, err
	}
	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("withdrawal %s is %s: %w", id, w.Status, domain.ErrInvalidTransition)
	}
	s.logger.Info("withdrawal settled", "withdrawal", id, "status", status)
	return w, nil
}

func scopeOf(tenantID string) string {
	if tenantID == "" {
		return domain.GlobalScope
	}
	return tenantID
}
