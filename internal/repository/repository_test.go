package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paylane/settlement/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testOrder(ref string) *domain.Order {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Order{
		ID:                  "ord-" + ref,
		TransactionRef:      ref,
		PayeeID:             "seller-1",
		AffiliateID:         "aff-1",
		PaymentMethod:       domain.MethodPix,
		GrossAmount:         dec("100"),
		PlatformFee:         dec("4.99"),
		PaymentFee:          dec("1.00"),
		AffiliateCommission: dec("10"),
		NetAmount:           dec("84.01"),
		Status:              domain.StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestOrderRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepo(newTestDB(t))

	o := testOrder("tx-1")
	require.NoError(t, repo.Insert(ctx, o))

	got, err := repo.GetByRef(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.True(t, got.NetAmount.Equal(dec("84.01")))
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.ApprovedAt)
	assert.True(t, got.CreatedAt.Equal(o.CreatedAt))

	_, err = repo.GetByRef(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepo(newTestDB(t))
	require.NoError(t, repo.Insert(ctx, testOrder("tx-1")))

	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	entry := &domain.StatusAuditEntry{ID: "a1", OrderID: "ord-tx-1", RawStatus: "paid", Source: domain.SourceWebhook, CreatedAt: at}

	swapped, err := repo.CompareAndSetStatus(ctx, "tx-1", domain.StatusPending, domain.StatusApproved, entry)
	require.NoError(t, err)
	assert.True(t, swapped)

	// Stale expectation: no write, no audit row.
	entry2 := &domain.StatusAuditEntry{ID: "a2", OrderID: "ord-tx-1", RawStatus: "paid", Source: domain.SourcePoll, CreatedAt: at}
	swapped, err = repo.CompareAndSetStatus(ctx, "tx-1", domain.StatusPending, domain.StatusApproved, entry2)
	require.NoError(t, err)
	assert.False(t, swapped)

	got, err := repo.GetByRef(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(at))

	trail, err := repo.AuditTrail(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, domain.StatusPending, trail[0].OldStatus)
	assert.Equal(t, domain.StatusApproved, trail[0].NewStatus)
	assert.Equal(t, "paid", trail[0].RawStatus)

	effects, err := repo.OpenEffects(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, effects, 1, "only the applied swap records an effect")
	assert.Equal(t, "a1", effects[0].ID)
	assert.Equal(t, domain.StatusApproved, effects[0].To)
}

func TestTransitionEffectLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepo(newTestDB(t))
	require.NoError(t, repo.Insert(ctx, testOrder("tx-1")))

	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	entry := &domain.StatusAuditEntry{ID: "a1", OrderID: "ord-tx-1", RawStatus: "paid", Source: domain.SourceWebhook, CreatedAt: at}
	_, err := repo.CompareAndSetStatus(ctx, "tx-1", domain.StatusPending, domain.StatusApproved, entry)
	require.NoError(t, err)

	require.NoError(t, repo.FailEffect(ctx, "a1", "smtp timeout"))

	stale, err := repo.OpenEffectsBefore(ctx, at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, 1, stale[0].Attempts)
	assert.Equal(t, "smtp timeout", stale[0].LastError)
	assert.Nil(t, stale[0].ResolvedAt)

	fresh, err := repo.OpenEffectsBefore(ctx, at)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	require.NoError(t, repo.ResolveEffect(ctx, "a1", at.Add(time.Hour)))
	open, err := repo.OpenEffects(ctx, "tx-1")
	require.NoError(t, err)
	assert.Empty(t, open)

	// Resolved rows are final.
	require.NoError(t, repo.FailEffect(ctx, "a1", "late"))
	stale, err = repo.OpenEffectsBefore(ctx, at.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestFeeUpsertReplacesSameScopeAndOperation(t *testing.T) {
	ctx := context.Background()
	repo := NewFeeRepo(newTestDB(t))

	feeCap := dec("50")
	require.NoError(t, repo.Upsert(ctx, &domain.FeeDefinition{
		ID: "f1", Scope: domain.GlobalScope, OperationType: domain.OpTransaction,
		ValueType: domain.FeePercentage, Value: dec("4.99"), AdditiveFixed: dec("1"), Cap: &feeCap, Active: true,
	}))
	require.NoError(t, repo.Upsert(ctx, &domain.FeeDefinition{
		ID: "f2", Scope: domain.GlobalScope, OperationType: domain.OpTransaction,
		ValueType: domain.FeePercentage, Value: dec("3.99"), AdditiveFixed: dec("0"), Active: true,
	}))
	require.NoError(t, repo.Upsert(ctx, &domain.FeeDefinition{
		ID: "f3", Scope: domain.GlobalScope, OperationType: domain.OpWithdrawal,
		ValueType: domain.FeeFixed, Value: dec("10"), AdditiveFixed: decimal.Zero, Active: false,
	}))

	active, err := repo.ListActiveByScope(ctx, domain.GlobalScope)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].Value.Equal(dec("3.99")))
	assert.Nil(t, active[0].Cap)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReverseTurnsAnticipatedCommissionIntoDebt(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orders := NewOrderRepo(db)
	commissions := NewCommissionRepo(db)
	anticipations := NewAnticipationRepo(db)

	require.NoError(t, orders.Insert(ctx, testOrder("tx-1")))
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	_, err := commissions.Insert(ctx, &domain.Commission{
		ID: "c1", OrderID: "ord-tx-1", PayeeID: "aff-1", Amount: dec("10"),
		Status: domain.CommissionPending, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	require.NoError(t, anticipations.CreateBatch(ctx, &domain.AnticipationBatch{
		ID: "b1", PayeeID: "aff-1", OriginalTotal: dec("10"), FeePercentage: dec("3"),
		FeeAmount: dec("0.30"), NetTotal: dec("9.70"), Status: domain.BatchProcessing, CreatedAt: now,
	}))
	require.NoError(t, anticipations.ApplyItems(ctx, "b1", []domain.AnticipationItem{
		{ID: "i1", CommissionID: "c1", Amount: dec("10"), Fee: dec("0.30"), NetAmount: dec("9.70")},
	}, now))

	// A second flip of the same commission must fail and write nothing.
	require.NoError(t, anticipations.CreateBatch(ctx, &domain.AnticipationBatch{
		ID: "b2", PayeeID: "aff-1", OriginalTotal: dec("10"), FeePercentage: dec("3"),
		FeeAmount: dec("0.30"), NetTotal: dec("9.70"), Status: domain.BatchProcessing, CreatedAt: now,
	}))
	err = anticipations.ApplyItems(ctx, "b2", []domain.AnticipationItem{
		{ID: "i2", CommissionID: "c1", Amount: dec("10"), Fee: dec("0.30"), NetAmount: dec("9.70")},
	}, now)
	require.Error(t, err)
	items, err := anticipations.ListItems(ctx, "b2")
	require.NoError(t, err)
	assert.Empty(t, items)

	debts, err := commissions.Reverse(ctx, "ord-tx-1", now, func(c domain.Commission) domain.AnticipationDebt {
		return domain.AnticipationDebt{
			ID: "d1", PayeeID: c.PayeeID, CommissionID: c.ID, OrderID: c.OrderID,
			Amount: c.Amount, RemainingAmount: c.Amount, Status: domain.DebtPending,
			CreatedAt: now, UpdatedAt: now,
		}
	})
	require.NoError(t, err)
	require.Len(t, debts, 1)

	open, err := anticipations.UnresolvedDebts(ctx, "aff-1")
	require.NoError(t, err)
	require.Len(t, open, 1)

	d, err := anticipations.PayDebt(ctx, "d1", dec("4"), now)
	require.NoError(t, err)
	assert.Equal(t, domain.DebtPartial, d.Status)
	assert.True(t, d.RemainingAmount.Equal(dec("6")))

	d, err = anticipations.PayDebt(ctx, "d1", dec("100"), now)
	require.NoError(t, err)
	assert.Equal(t, domain.DebtCleared, d.Status)
	assert.True(t, d.RemainingAmount.IsZero())

	_, err = anticipations.PayDebt(ctx, "d1", dec("1"), now)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestInsertWithdrawalCheckedRollsBackOnReject(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepo(newTestDB(t))
	now := time.Now()

	_, err := repo.InsertWithdrawalChecked(ctx, "seller-1", func(f *domain.LedgerFacts) (*domain.Withdrawal, error) {
		return nil, domain.ErrInsufficientBalance
	})
	assert.True(t, errors.Is(err, domain.ErrInsufficientBalance))

	w, err := repo.InsertWithdrawalChecked(ctx, "seller-1", func(f *domain.LedgerFacts) (*domain.Withdrawal, error) {
		return domain.NewWithdrawal("w1", f.PayeeID, dec("500"), dec("10"), "bank-1", now)
	})
	require.NoError(t, err)
	assert.True(t, w.NetAmount.Equal(dec("490")))

	facts, err := repo.Facts(ctx, "seller-1")
	require.NoError(t, err)
	require.Len(t, facts.Withdrawals, 1)

	ok, err := repo.SettleWithdrawal(ctx, "w1", domain.WithdrawalCompleted, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.SettleWithdrawal(ctx, "w1", domain.WithdrawalRejected, now)
	require.NoError(t, err)
	assert.False(t, ok)
}
