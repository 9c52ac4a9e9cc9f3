package anticipation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paylane/settlement/internal/domain"
	"github.com/paylane/settlement/internal/reconciliation"
	"github.com/paylane/settlement/internal/repository"
)

// flakyReversal fails its first failures reversals.
type flakyReversal struct {
	*repository.CommissionRepo
	failures int
}

func (c *flakyReversal) Reverse(ctx context.Context, orderID string, at time.Time, newDebt func(domain.Commission) domain.AnticipationDebt) ([]domain.AnticipationDebt, error) {
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("database is locked")
	}
	return c.CommissionRepo.Reverse(ctx, orderID, at, newDebt)
}

// anticipatedOrder drives tx-1 to approved through rec and anticipates its
// commission.
func anticipatedOrder(t *testing.T, f *fixture, rec *reconciliation.Reconciler, engine *Engine) domain.Order {
	t.Helper()
	ctx := context.Background()
	o := f.order(t, "tx-1", "75", domain.StatusPending)

	_, err := rec.Reconcile(ctx, "tx-1", "paid", domain.SourceWebhook)
	require.NoError(t, err)
	list, err := engine.OrderCommissions(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = engine.Anticipate(ctx, Request{PayeeID: "aff-1", CommissionIDs: []string{list[0].ID}})
	require.NoError(t, err)
	return o
}

func TestFailedReversalIsRepairedOnRedelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flaky := &flakyReversal{CommissionRepo: f.commissions}
	engine := NewEngine(f.anticipations, flaky, f.fees, f.notifier, dec("50"), nil,
		WithClock(func() time.Time { return f.now }))
	rec := reconciliation.NewReconciler(f.orders, nil, nil, nil, reconciliation.WithHooks(engine))
	anticipatedOrder(t, f, rec, engine)

	flaky.failures = 1
	res, err := rec.Reconcile(ctx, "tx-1", "refunded", domain.SourceWebhook)
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 1, res.OpenEffects)

	debts, err := engine.Debts(ctx, "aff-1")
	require.NoError(t, err)
	assert.Empty(t, debts)

	res, err = rec.Reconcile(ctx, "tx-1", "refunded", domain.SourceWebhook)
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, 0, res.OpenEffects)

	debts, err = engine.Debts(ctx, "aff-1")
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.True(t, debts[0].RemainingAmount.Equal(dec("75")))
}

func TestAlternatingReversalsOweOneDebt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := reconciliation.NewReconciler(f.orders, nil, nil, nil, reconciliation.WithHooks(f.engine))
	o := anticipatedOrder(t, f, rec, f.engine)

	for _, raw := range []string{"refunded", "chargeback", "refunded"} {
		res, err := rec.Reconcile(ctx, "tx-1", raw, domain.SourceWebhook)
		require.NoError(t, err)
		assert.True(t, res.Updated, raw)
		assert.Equal(t, 0, res.OpenEffects, raw)
	}

	trail, err := f.orders.AuditTrail(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, trail, 4, "every reversal flip is audited")
	assert.Equal(t, domain.StatusChargeback, trail[2].NewStatus)
	assert.Equal(t, domain.StatusRefunded, trail[3].NewStatus)

	debts, err := f.engine.Debts(ctx, "aff-1")
	require.NoError(t, err)
	require.Len(t, debts, 1, "a commission is reversed once")
	assert.True(t, debts[0].RemainingAmount.Equal(dec("75")))

	list, err := f.engine.OrderCommissions(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.CommissionReversed, list[0].Status)
}
