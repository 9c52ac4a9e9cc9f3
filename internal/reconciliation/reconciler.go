// Package reconciliation merges externally reported payment statuses into
// stored orders without ever letting a confirmed payment regress.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/paylane/settlement/internal/domain"
)

// maxAttempts bounds how often a lost compare-and-set is re-decided.
const maxAttempts = 3

// OrderStore is the persistence the reconciler needs. CompareAndSetStatus
// must record an open transition effect with the same id as the audit entry.
type OrderStore interface {
	GetByRef(ctx context.Context, ref string) (*domain.Order, error)
	CompareAndSetStatus(ctx context.Context, ref string, expected, next domain.OrderStatus, entry *domain.StatusAuditEntry) (bool, error)
	OpenEffects(ctx context.Context, ref string) ([]domain.TransitionEffect, error)
	OpenEffectsBefore(ctx context.Context, before time.Time) ([]domain.TransitionEffect, error)
	ResolveEffect(ctx context.Context, id string, at time.Time) error
	FailEffect(ctx context.Context, id, reason string) error
}

// StatusProvider queries the payment provider for the current status.
type StatusProvider interface {
	FetchStatus(ctx context.Context, ref string) (string, error)
}

// Notifier tells a payee their payment went through.
type Notifier interface {
	PaymentApproved(ctx context.Context, order domain.Order) error
}

// TransitionHook observes applied transitions after they are committed. A
// hook may see the same transition again after a failure, so it must be
// idempotent.
type TransitionHook interface {
	AfterTransition(ctx context.Context, t domain.StatusTransition) error
}

// Observer receives reconciliation outcomes, for metrics.
type Observer interface {
	Reconciled(outcome string)
	NotificationSent()
}

// Outcomes reported to the Observer.
const (
	OutcomeApplied = "applied"
	OutcomeNoop    = "noop"
	OutcomeBlocked = "blocked"
	OutcomeError   = "error"
	// OutcomeEffectFailed counts hook runs that left an effect open.
	OutcomeEffectFailed = "effect_failed"
)

// Result is the outcome of one reconcile call.
type Result struct {
	Updated   bool               `json:"updated"`
	OldStatus domain.OrderStatus `json:"old_status"`
	NewStatus domain.OrderStatus `json:"new_status"`
	Known     bool               `json:"known_status"`
	// OpenEffects counts transitions of the order whose side effects are
	// still owed after this call.
	OpenEffects int `json:"open_effects,omitempty"`
}

type Reconciler struct {
	orders   OrderStore
	provider StatusProvider
	notifier Notifier
	hooks    []TransitionHook
	observer Observer
	now      func() time.Time
	logger   *slog.Logger
	settling refLocks
}

type Option func(*Reconciler)

func WithHooks(hooks ...TransitionHook) Option {
	return func(r *Reconciler) { r.hooks = append(r.hooks, hooks...) }
}

func WithObserver(o Observer) Option {
	return func(r *Reconciler) { r.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(orders OrderStore, provider StatusProvider, notifier Notifier, logger *slog.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		orders:   orders,
		provider: provider,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With("component", "reconciliation"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile merges raw into the order identified by ref. Applying the same
// status any number of times yields one audit entry and one notification.
func (r *Reconciler) Reconcile(ctx context.Context, ref, raw string, source domain.AuditSource) (Result, error) {
	next, known := MapExternalStatus(raw)
	if !known {
		r.logger.Warn("unknown provider status, treating as pending", "ref", ref, "raw_status", raw)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		order, err := r.orders.GetByRef(ctx, ref)
		if err != nil {
			r.observe(OutcomeError)
			return Result{}, fmt.Errorf("reconcile %s: %w", ref, err)
		}

		res := Result{OldStatus: order.Status, NewStatus: order.Status, Known: known}
		if order.Status == next {
			r.observe(OutcomeNoop)
			res.OpenEffects = r.settle(ctx, order)
			return res, nil
		}
		if !ShouldApply(order.Status, next) {
			r.logger.Debug("regression blocked",
				"ref", ref, "stored", order.Status, "reported", next, "raw_status", raw, "source", source)
			r.observe(OutcomeBlocked)
			res.OpenEffects = r.settle(ctx, order)
			return res, nil
		}

		entry := &domain.StatusAuditEntry{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			RawStatus: raw,
			Source:    source,
			CreatedAt: r.now(),
		}
		swapped, err := r.orders.CompareAndSetStatus(ctx, ref, order.Status, next, entry)
		if err != nil {
			r.observe(OutcomeError)
			return Result{}, fmt.Errorf("reconcile %s: %w", ref, err)
		}
		if !swapped {
			r.logger.Debug("status changed concurrently, re-reading", "ref", ref, "attempt", attempt)
			continue
		}

		r.observe(OutcomeApplied)
		r.logger.Info("status applied", "ref", ref, "from", order.Status, "to", next, "source", source)

		order.Status = next
		if next == domain.StatusApproved && order.ApprovedAt == nil {
			at := entry.CreatedAt
			order.ApprovedAt = &at
		}
		if next == domain.StatusApproved {
			r.notifyApproved(ctx, *order)
		}

		res.Updated = true
		res.NewStatus = next
		res.OpenEffects = r.settle(ctx, order)
		return res, nil
	}

	r.observe(OutcomeError)
	return Result{}, fmt.Errorf("reconcile %s: gave up after %d concurrent updates", ref, maxAttempts)
}

// Poll asks the provider for the order's status and reconciles it. A
// provider failure leaves the order untouched and is retryable.
func (r *Reconciler) Poll(ctx context.Context, ref string) (Result, error) {
	if r.provider == nil {
		return Result{}, fmt.Errorf("poll %s: no status provider configured: %w", ref, domain.ErrProviderUnavailable)
	}
	raw, err := r.provider.FetchStatus(ctx, ref)
	if err != nil {
		r.observe(OutcomeError)
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrProviderUnavailable) {
			return Result{}, fmt.Errorf("poll %s: %w", ref, err)
		}
		return Result{}, fmt.Errorf("poll %s: %v: %w", ref, err, domain.ErrProviderUnavailable)
	}
	return r.Reconcile(ctx, ref, raw, domain.SourcePoll)
}

// RetryEffects re-runs the open transition effects of one order and returns
// how many remain open.
func (r *Reconciler) RetryEffects(ctx context.Context, ref string) (int, error) {
	order, err := r.orders.GetByRef(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("retry effects of %s: %w", ref, err)
	}
	return r.settle(ctx, order), nil
}

// OpenEffects lists transition effects left open for longer than olderThan,
// for operator attention.
func (r *Reconciler) OpenEffects(ctx context.Context, olderThan time.Duration) ([]domain.TransitionEffect, error) {
	return r.orders.OpenEffectsBefore(ctx, r.now().Add(-olderThan))
}

// RetryOpenEffects re-runs every effect left open for longer than olderThan.
// It returns the number of orders retried and of effects still open.
func (r *Reconciler) RetryOpenEffects(ctx context.Context, olderThan time.Duration) (orders, open int, err error) {
	effects, err := r.OpenEffects(ctx, olderThan)
	if err != nil {
		return 0, 0, err
	}
	seen := make(map[string]bool)
	for _, e := range effects {
		if seen[e.TransactionRef] {
			continue
		}
		seen[e.TransactionRef] = true
		n, err := r.RetryEffects(ctx, e.TransactionRef)
		if err != nil {
			return orders, open, err
		}
		orders++
		open += n
	}
	return orders, open, nil
}

// notifyApproved runs once, on entry into approved. A failed notification
// is logged; the transition stands.
func (r *Reconciler) notifyApproved(ctx context.Context, o domain.Order) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.PaymentApproved(ctx, o); err != nil {
		r.logger.Error("approval notification failed", "ref", o.TransactionRef, "error", err)
		return
	}
	if r.observer != nil {
		r.observer.NotificationSent()
	}
}

// settle runs the hooks of every open effect of the order, oldest first,
// and returns how many stay open. The first failure stops the run so
// effects of one order never apply out of order; the next delivery or an
// operator retry picks them up again.
func (r *Reconciler) settle(ctx context.Context, order *domain.Order) int {
	ctx = context.WithoutCancel(ctx)
	ref := order.TransactionRef
	defer r.settling.lock(ref)()

	effects, err := r.orders.OpenEffects(ctx, ref)
	if err != nil {
		r.logger.Error("loading transition effects failed", "ref", ref, "error", err)
		return 0
	}
	for i, e := range effects {
		t := domain.StatusTransition{Order: *order, From: e.From, To: e.To, RawStatus: e.RawStatus, Source: e.Source}
		if err := r.runHooks(ctx, t); err != nil {
			r.logger.Error("transition effect failed",
				"ref", ref, "effect", e.ID, "to", e.To, "attempt", e.Attempts+1, "error", err)
			r.observe(OutcomeEffectFailed)
			if ferr := r.orders.FailEffect(ctx, e.ID, err.Error()); ferr != nil {
				r.logger.Error("recording effect failure failed", "ref", ref, "effect", e.ID, "error", ferr)
			}
			return len(effects) - i
		}
		if err := r.orders.ResolveEffect(ctx, e.ID, r.now()); err != nil {
			r.logger.Error("resolving transition effect failed", "ref", ref, "effect", e.ID, "error", err)
			return len(effects) - i
		}
		if e.Attempts > 0 {
			r.logger.Info("transition effect recovered", "ref", ref, "effect", e.ID, "to", e.To, "attempts", e.Attempts+1)
		}
	}
	return 0
}

func (r *Reconciler) runHooks(ctx context.Context, t domain.StatusTransition) error {
	var errs []error
	for _, h := range r.hooks {
		if err := h.AfterTransition(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) observe(outcome string) {
	if r.observer != nil {
		r.observer.Reconciled(outcome)
	}
}
