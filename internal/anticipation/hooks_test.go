package anticipation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paylane/settlement/internal/domain"
)

func TestAfterTransitionCommissionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, "tx-1", "75", domain.StatusApproved)

	approved := domain.StatusTransition{Order: o, From: domain.StatusPending, To: domain.StatusApproved, Source: domain.SourceWebhook}
	require.NoError(t, f.engine.AfterTransition(ctx, approved))
	require.NoError(t, f.engine.AfterTransition(ctx, approved))

	list, err := f.engine.OrderCommissions(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "aff-1", list[0].PayeeID)
	assert.True(t, list[0].Amount.Equal(dec("75")))
	assert.Equal(t, domain.CommissionPending, list[0].Status)

	_, err = f.engine.Anticipate(ctx, Request{PayeeID: "aff-1", CommissionIDs: []string{list[0].ID}})
	require.NoError(t, err)

	refunded := domain.StatusTransition{Order: o, From: domain.StatusApproved, To: domain.StatusRefunded, Source: domain.SourceWebhook}
	require.NoError(t, f.engine.AfterTransition(ctx, refunded))

	debts, err := f.engine.Debts(ctx, "aff-1")
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.True(t, debts[0].RemainingAmount.Equal(dec("75")))

	list, err = f.engine.OrderCommissions(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionReversed, list[0].Status)

	f.commission(t, "c9", "aff-1", "100", domain.StatusApproved, domain.CommissionPending)
	_, err = f.engine.Anticipate(ctx, Request{PayeeID: "aff-1", CommissionIDs: []string{"c9"}})
	var debtErr *domain.PendingDebtError
	require.True(t, errors.As(err, &debtErr))
	assert.True(t, debtErr.TotalDebt.Equal(dec("75")))

	d, err := f.engine.PayDebt(ctx, debts[0].ID, dec("25"))
	require.NoError(t, err)
	assert.Equal(t, domain.DebtPartial, d.Status)
	d, err = f.engine.PayDebt(ctx, debts[0].ID, dec("50"))
	require.NoError(t, err)
	assert.Equal(t, domain.DebtCleared, d.Status)

	_, err = f.engine.PayDebt(ctx, debts[0].ID, dec("1"))
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestAfterTransitionReversesUnanticipatedWithoutDebt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, "tx-1", "40", domain.StatusApproved)

	require.NoError(t, f.engine.AfterTransition(ctx, domain.StatusTransition{Order: o, To: domain.StatusApproved}))
	require.NoError(t, f.engine.AfterTransition(ctx, domain.StatusTransition{Order: o, To: domain.StatusChargeback}))

	debts, err := f.engine.Debts(ctx, "aff-1")
	require.NoError(t, err)
	assert.Empty(t, debts)

	commissions, err := f.engine.Commissions(ctx, "aff-1")
	require.NoError(t, err)
	require.Len(t, commissions, 1)
	assert.Equal(t, domain.CommissionReversed, commissions[0].Status)
	assert.True(t, errors.Is(f.engine.ReleaseCommission(ctx, commissions[0].ID), domain.ErrInvalidTransition))
}

func TestAfterTransitionIgnoresOrdersWithoutAffiliate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, "tx-1", "0", domain.StatusApproved)
	o.AffiliateID = ""

	require.NoError(t, f.engine.AfterTransition(ctx, domain.StatusTransition{Order: o, To: domain.StatusApproved}))
	list, err := f.engine.OrderCommissions(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
