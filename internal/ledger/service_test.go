package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paylane/settlement/internal/domain"
	"github.com/paylane/settlement/internal/fees"
	"github.com/paylane/settlement/internal/repository"
)

type fixture struct {
	svc    *Service
	orders *repository.OrderRepo
	fees   *fees.Calculator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.InitDB(repository.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	calc := fees.NewCalculator(repository.NewFeeRepo(db), nil, nil, nil)
	require.NoError(t, calc.Save(context.Background(), &domain.FeeDefinition{
		Scope:         domain.GlobalScope,
		OperationType: domain.OpWithdrawal,
		ValueType:     domain.FeeFixed,
		Value:         dec("10"),
		Active:        true,
	}))

	return &fixture{
		svc:    NewService(repository.NewLedgerRepo(db), calc, testRules, nil),
		orders: repository.NewOrderRepo(db),
		fees:   calc,
	}
}

func (f *fixture) credit(t *testing.T, ref, net string) {
	t.Helper()
	at := time.Now().AddDate(0, 0, -1).UTC()
	o := approved("ord-"+ref, domain.MethodPix, net, at)
	o.TransactionRef = ref
	o.GrossAmount = dec(net)
	o.CreatedAt = at
	require.NoError(t, f.orders.Insert(context.Background(), &o))
}

func TestQuoteWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.svc.QuoteWithdrawal(ctx, "", dec("500"))
	require.NoError(t, err)
	assert.True(t, q.Fee.Equal(dec("10")))
	assert.True(t, q.NetAmount.Equal(dec("490")))

	_, err = f.svc.QuoteWithdrawal(ctx, "", dec("10"))
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "amount", verr.Field)
}

func TestRequestWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.credit(t, "tx-1", "600")

	w, err := f.svc.RequestWithdrawal(ctx, WithdrawalRequest{PayeeID: "seller-1", Amount: dec("500"), BankAccountRef: "bank-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalPending, w.Status)
	assert.True(t, w.NetAmount.Equal(dec("490")))

	b, err := f.svc.Compute(ctx, "seller-1", "")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(dec("100")))
	assert.True(t, b.PendingWithdrawals.Equal(dec("500")))
	assert.True(t, b.WithdrawalFee.Equal(dec("10")))

	_, err = f.svc.RequestWithdrawal(ctx, WithdrawalRequest{PayeeID: "seller-1", Amount: dec("101"), BankAccountRef: "bank-1"})
	assert.True(t, errors.Is(err, domain.ErrInsufficientBalance))

	_, err = f.svc.RequestWithdrawal(ctx, WithdrawalRequest{PayeeID: "seller-1", Amount: dec("20"), BankAccountRef: "bank-1"})
	assert.True(t, errors.Is(err, domain.ErrBelowMinimum))

	_, err = f.svc.RequestWithdrawal(ctx, WithdrawalRequest{PayeeID: "seller-1", Amount: dec("60")})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestSettleWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.credit(t, "tx-1", "600")

	w1, err := f.svc.RequestWithdrawal(ctx, WithdrawalRequest{PayeeID: "seller-1", Amount: dec("200"), BankAccountRef: "bank-1"})
	require.NoError(t, err)
	w2, err := f.svc.RequestWithdrawal(ctx, WithdrawalRequest{PayeeID: "seller-1", Amount: dec("300"), BankAccountRef: "bank-1"})
	require.NoError(t, err)

	done, err := f.svc.CompleteWithdrawal(ctx, w1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalCompleted, done.Status)

	rejected, err := f.svc.RejectWithdrawal(ctx, w2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalRejected, rejected.Status)

	_, err = f.svc.CompleteWithdrawal(ctx, w2.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = f.svc.CompleteWithdrawal(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	b, err := f.svc.Compute(ctx, "seller-1", "")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(dec("400")))
	assert.True(t, b.TotalWithdrawn.Equal(dec("200")))
	assert.True(t, b.PendingWithdrawals.IsZero())
	assert.True(t, b.TotalFeesCharged.Equal(dec("11")))
}
