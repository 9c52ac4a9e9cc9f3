// Package anticipation converts held commissions into available funds for a
// fee and tracks the debts left behind when anticipated sales are reversed.
package anticipation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paylane/settlement/internal/currency"
	"github.com/paylane/settlement/internal/domain"
	"github.com/paylane/settlement/internal/repository"
)

// Store persists batches, debts and their audit trail.
type Store interface {
	UnresolvedDebts(ctx context.Context, payeeID string) ([]domain.AnticipationDebt, error)
	CreateBatch(ctx context.Context, b *domain.AnticipationBatch) error
	ApplyItems(ctx context.Context, batchID string, items []domain.AnticipationItem, at time.Time) error
	CompleteBatch(ctx context.Context, batchID string, at time.Time) error
	GetBatch(ctx context.Context, id string) (*domain.AnticipationBatch, error)
	ListItems(ctx context.Context, batchID string) ([]domain.AnticipationItem, error)
	ListProcessingBefore(ctx context.Context, cutoff time.Time) ([]domain.AnticipationBatch, error)
	PayDebt(ctx context.Context, id string, amount decimal.Decimal, at time.Time) (*domain.AnticipationDebt, error)
	InsertAudit(ctx context.Context, e *domain.AuditEntry) error
	ListAudit(ctx context.Context, entity, entityID string) ([]domain.AuditEntry, error)
}

// CommissionStore reads and writes commissions.
type CommissionStore interface {
	GetWithOrders(ctx context.Context, ids []string) (map[string]repository.CommissionRecord, error)
	Insert(ctx context.Context, c *domain.Commission) (bool, error)
	ListByPayee(ctx context.Context, payeeID string) ([]domain.Commission, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Commission, error)
	MarkPaid(ctx context.Context, id string, at time.Time) (bool, error)
	Reverse(ctx context.Context, orderID string, at time.Time, newDebt func(domain.Commission) domain.AnticipationDebt) ([]domain.AnticipationDebt, error)
}

// FeeComputer prices the anticipation of an aggregate amount.
type FeeComputer interface {
	Compute(ctx context.Context, op domain.OperationType, scope string, gross decimal.Decimal) (decimal.Decimal, domain.FeeDefinition, error)
}

// Notifier tells a payee their anticipation was credited.
type Notifier interface {
	AnticipationCompleted(ctx context.Context, batch domain.AnticipationBatch) error
}

// Observer receives request outcomes, for metrics.
type Observer interface {
	Anticipated(outcome string)
}

// Outcomes reported to the Observer.
const (
	OutcomeCompleted       = "completed"
	OutcomePendingDebt     = "pending_debt"
	OutcomeNothingEligible = "nothing_eligible"
	OutcomeBelowMinimum    = "below_minimum"
	OutcomeStuck           = "stuck"
	OutcomeError           = "error"
)

// Request asks to anticipate a payee's commissions.
type Request struct {
	PayeeID       string   `json:"payeeId"`
	TenantID      string   `json:"tenantId,omitempty"`
	CommissionIDs []string `json:"commissionIds"`
}

// Rejection explains why one requested commission was left out.
type Rejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Result summarizes an anticipation. Rejected is filled even when the
// request as a whole fails for lack of eligible commissions.
type Result struct {
	BatchID          string          `json:"batchId,omitempty"`
	AnticipatedTotal decimal.Decimal `json:"anticipatedTotal"`
	OriginalTotal    decimal.Decimal `json:"originalTotal"`
	FeePercentage    decimal.Decimal `json:"feePercentage"`
	FeeAmount        decimal.Decimal `json:"feeAmount"`
	ProcessedCount   int             `json:"processedCount"`
	RejectedCount    int             `json:"rejectedCount"`
	Rejected         []Rejection     `json:"rejectedReasons"`
}

type Engine struct {
	store       Store
	commissions CommissionStore
	fees        FeeComputer
	notifier    Notifier
	observer    Observer
	minimum     decimal.Decimal
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*Engine)

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, commissions CommissionStore, fees FeeComputer, notifier Notifier, minimum decimal.Decimal, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:       store,
		commissions: commissions,
		fees:        fees,
		notifier:    notifier,
		minimum:     minimum,
		now:         time.Now,
		logger:      logger.With("component", "anticipation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Anticipate converts the eligible requested commissions into one completed
// batch. Outstanding debt rejects the whole request before anything is read.
// Ineligible commissions are reported and skipped.
func (e *Engine) Anticipate(ctx context.Context, req Request) (*Result, error) {
	if req.PayeeID == "" {
		return nil, &domain.ValidationError{Field: "payeeId", Reason: "is required"}
	}
	if len(req.CommissionIDs) == 0 {
		return nil, &domain.ValidationError{Field: "commissionIds", Reason: "must not be empty"}
	}

	debts, err := e.store.UnresolvedDebts(ctx, req.PayeeID)
	if err != nil {
		e.observe(OutcomeError)
		return nil, fmt.Errorf("check debts for %s: %w", req.PayeeID, err)
	}
	if len(debts) > 0 {
		total := decimal.Zero
		for _, d := range debts {
			total = total.Add(d.RemainingAmount)
		}
		e.observe(OutcomePendingDebt)
		e.logger.Info("anticipation blocked by debt", "payee", req.PayeeID, "total_debt", total.StringFixed(2))
		return nil, &domain.PendingDebtError{TotalDebt: total}
	}

	records, err := e.commissions.GetWithOrders(ctx, req.CommissionIDs)
	if err != nil {
		e.observe(OutcomeError)
		return nil, fmt.Errorf("load commissions: %w", err)
	}

	res := &Result{}
	var valid []domain.Commission
	seen := make(map[string]bool, len(req.CommissionIDs))
	for _, id := range req.CommissionIDs {
		if seen[id] {
			res.reject(id, "duplicate in request")
			continue
		}
		seen[id] = true

		rec, ok := records[id]
		if !ok {
			res.reject(id, "commission not found")
			continue
		}
		if reason := ineligible(rec, req.PayeeID); reason != "" {
			res.reject(id, reason)
			continue
		}
		valid = append(valid, rec.Commission)
		res.OriginalTotal = res.OriginalTotal.Add(rec.Amount)
	}

	if len(valid) == 0 {
		e.observe(OutcomeNothingEligible)
		return res, fmt.Errorf("anticipation for %s: %w", req.PayeeID, domain.ErrNothingEligible)
	}
	if res.OriginalTotal.LessThan(e.minimum) {
		e.observe(OutcomeBelowMinimum)
		return res, fmt.Errorf("anticipation of %s under minimum %s: %w",
			res.OriginalTotal.StringFixed(2), e.minimum.StringFixed(2), domain.ErrBelowMinimum)
	}

	fee, def, err := e.fees.Compute(ctx, domain.OpAnticipation, scopeOf(req.TenantID), res.OriginalTotal)
	if err != nil {
		e.observe(OutcomeError)
		return res, fmt.Errorf("anticipation fee: %w", err)
	}
	res.FeeAmount = fee
	res.AnticipatedTotal = res.OriginalTotal.Sub(fee)
	if def.ValueType == domain.FeePercentage {
		res.FeePercentage = def.Value
	}

	batch, err := e.execute(ctx, req.PayeeID, valid, res)
	if err != nil {
		return res, err
	}
	res.BatchID = batch.ID
	res.ProcessedCount = len(valid)
	e.observe(OutcomeCompleted)

	e.logger.Info("anticipation completed", "payee", req.PayeeID, "batch", batch.ID,
		"processed", res.ProcessedCount, "rejected", res.RejectedCount,
		"original", res.OriginalTotal.StringFixed(2), "fee", res.FeeAmount.StringFixed(2))

	e.audit(ctx, "anticipation_batch", batch.ID, "completed",
		fmt.Sprintf("payee=%s items=%d original=%s fee=%s net=%s", batch.PayeeID, len(valid),
			batch.OriginalTotal.StringFixed(2), batch.FeeAmount.StringFixed(2), batch.NetTotal.StringFixed(2)))
	if e.notifier != nil {
		if err := e.notifier.AnticipationCompleted(ctx, *batch); err != nil {
			e.logger.Warn("anticipation notification failed", "batch", batch.ID, "error", err)
		}
	}
	return res, nil
}

// execute runs the batch write. Once the batch row exists every failure
// leaves it in processing for an operator.
func (e *Engine) execute(ctx context.Context, payeeID string, valid []domain.Commission, res *Result) (*domain.AnticipationBatch, error) {
	now := e.now().UTC()
	batch := &domain.AnticipationBatch{
		ID:            uuid.NewString(),
		PayeeID:       payeeID,
		OriginalTotal: res.OriginalTotal,
		FeePercentage: res.FeePercentage,
		FeeAmount:     res.FeeAmount,
		NetTotal:      res.AnticipatedTotal,
		Status:        domain.BatchProcessing,
		CreatedAt:     now,
	}
	if err := e.store.CreateBatch(ctx, batch); err != nil {
		e.observe(OutcomeError)
		return nil, fmt.Errorf("create anticipation batch: %w", err)
	}

	items := splitFee(batch.ID, valid, res.OriginalTotal, res.FeeAmount)
	if err := e.store.ApplyItems(ctx, batch.ID, items, now); err != nil {
		return nil, e.stuck(ctx, batch, "apply items", err)
	}
	if err := e.store.CompleteBatch(ctx, batch.ID, now); err != nil {
		return nil, e.stuck(ctx, batch, "complete batch", err)
	}
	batch.Status = domain.BatchCompleted
	batch.CompletedAt = &now
	return batch, nil
}

func (e *Engine) stuck(ctx context.Context, batch *domain.AnticipationBatch, step string, cause error) error {
	e.observe(OutcomeStuck)
	e.logger.Error("anticipation batch stuck in processing", "batch", batch.ID,
		"payee", batch.PayeeID, "step", step, "error", cause)
	e.audit(context.WithoutCancel(ctx), "anticipation_batch", batch.ID, "stuck", step+": "+cause.Error())
	return fmt.Errorf("batch %s %s: %w: %w", batch.ID, step, domain.ErrBatchStuck, cause)
}

// StuckBatches lists batches that have been processing for longer than
// olderThan.
func (e *Engine) StuckBatches(ctx context.Context, olderThan time.Duration) ([]domain.AnticipationBatch, error) {
	return e.store.ListProcessingBefore(ctx, e.now().UTC().Add(-olderThan))
}

// BatchDetail is a batch with its items and audit trail.
type BatchDetail struct {
	domain.AnticipationBatch
	Items []domain.AnticipationItem `json:"items"`
	Audit []domain.AuditEntry       `json:"audit"`
}

func (e *Engine) Batch(ctx context.Context, id string) (*BatchDetail, error) {
	b, err := e.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := e.store.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	audit, err := e.store.ListAudit(ctx, "anticipation_batch", id)
	if err != nil {
		return nil, err
	}
	return &BatchDetail{AnticipationBatch: *b, Items: items, Audit: audit}, nil
}

// Debts lists a payee's unresolved debts.
func (e *Engine) Debts(ctx context.Context, payeeID string) ([]domain.AnticipationDebt, error) {
	return e.store.UnresolvedDebts(ctx, payeeID)
}

// PayDebt applies a repayment to a debt.
func (e *Engine) PayDebt(ctx context.Context, debtID string, amount decimal.Decimal) (*domain.AnticipationDebt, error) {
	if !amount.IsPositive() {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	d, err := e.store.PayDebt(ctx, debtID, currency.Round(amount), e.now().UTC())
	if err != nil {
		return nil, err
	}
	e.logger.Info("debt payment applied", "debt", d.ID, "payee", d.PayeeID,
		"paid", amount.StringFixed(2), "remaining", d.RemainingAmount.StringFixed(2), "status", d.Status)
	e.audit(ctx, "anticipation_debt", d.ID, "payment", "amount="+amount.StringFixed(2)+" status="+string(d.Status))
	return d, nil
}

// Commissions lists a payee's commissions.
func (e *Engine) Commissions(ctx context.Context, payeeID string) ([]domain.Commission, error) {
	return e.commissions.ListByPayee(ctx, payeeID)
}

// OrderCommissions lists the commissions an order generated.
func (e *Engine) OrderCommissions(ctx context.Context, orderID string) ([]domain.Commission, error) {
	return e.commissions.ListByOrder(ctx, orderID)
}

// ReleaseCommission marks a pending commission as paid, making it available
// without anticipation.
func (e *Engine) ReleaseCommission(ctx context.Context, id string) error {
	ok, err := e.commissions.MarkPaid(ctx, id, e.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("release commission %s: %w", id, domain.ErrInvalidTransition)
	}
	e.logger.Info("commission released", "commission", id)
	return nil
}

func (e *Engine) audit(ctx context.Context, entity, id, action, detail string) {
	err := e.store.InsertAudit(ctx, &domain.AuditEntry{
		ID:        uuid.NewString(),
		Entity:    entity,
		EntityID:  id,
		Action:    action,
		Detail:    detail,
		CreatedAt: e.now().UTC(),
	})
	if err != nil {
		e.logger.Warn("audit write failed", "entity", entity, "id", id, "error", err)
	}
}

func (e *Engine) observe(outcome string) {
	if e.observer != nil {
		e.observer.Anticipated(outcome)
	}
}

func (r *Result) reject(id, reason string) {
	r.Rejected = append(r.Rejected, Rejection{ID: id, Reason: reason})
	r.RejectedCount++
}

// ineligible returns why a commission cannot be anticipated, or "".
func ineligible(rec repository.CommissionRecord, payeeID string) string {
	switch {
	case rec.PayeeID != payeeID:
		return "commission belongs to another payee"
	case rec.Status == domain.CommissionAnticipated || rec.AnticipationID != "":
		return "commission already anticipated"
	case rec.Status != domain.CommissionPending && rec.Status != domain.CommissionPaid:
		return "commission is " + string(rec.Status)
	case rec.OrderStatus == domain.StatusRefunded || rec.OrderStatus == domain.StatusChargeback:
		return "order was refunded"
	case rec.OrderStatus != domain.StatusApproved:
		return "order is not approved (" + string(rec.OrderStatus) + ")"
	}
	return ""
}

// splitFee spreads fee over the commissions in proportion to their amounts.
// The last item absorbs rounding so the item fees sum to fee exactly.
func splitFee(batchID string, commissions []domain.Commission, total, fee decimal.Decimal) []domain.AnticipationItem {
	items := make([]domain.AnticipationItem, len(commissions))
	remaining := fee
	for i, c := range commissions {
		share := remaining
		if i < len(commissions)-1 {
			share = currency.Round(fee.Mul(c.Amount).Div(total))
			remaining = remaining.Sub(share)
		}
		items[i] = domain.AnticipationItem{
			ID:           uuid.NewString(),
			BatchID:      batchID,
			CommissionID: c.ID,
			Amount:       c.Amount,
			Fee:          share,
			NetAmount:    c.Amount.Sub(share),
		}
	}
	return items
}

func scopeOf(tenantID string) string {
	if tenantID == "" {
		return domain.GlobalScope
	}
	return tenantID
}
