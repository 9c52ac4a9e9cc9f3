package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paylane/settlement/internal/domain"
	"github.com/paylane/settlement/internal/reconciliation"
	"github.com/paylane/settlement/internal/repository"
)

type countingObserver map[string]int

func (o countingObserver) ReportRow(outcome string) { o[outcome]++ }

func newTestService(t *testing.T) (*Service, *repository.OrderRepo, countingObserver) {
	t.Helper()
	db, err := repository.InitDB(repository.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	orders := repository.NewOrderRepo(db)
	obs := countingObserver{}
	rec := reconciliation.NewReconciler(orders, nil, nil, nil)
	return NewService(repository.NewReportRepo(db), rec, obs, nil), orders, obs
}

func seed(t *testing.T, orders *repository.OrderRepo, ref string, status domain.OrderStatus) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, orders.Insert(context.Background(), &domain.Order{
		ID:             "ord-" + ref,
		TransactionRef: ref,
		PayeeID:        "seller-1",
		PaymentMethod:  domain.MethodPix,
		GrossAmount:    decimal.NewFromInt(100),
		NetAmount:      decimal.NewFromInt(100),
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
}

const statusCSV = `transaction_ref,status,reported_at
tx-1,authorized,2026-05-01T10:00:00Z
tx-2,refused,2026-05-01T09:00:00Z
tx-3,in_analysis,
tx-missing,paid,2026-05-01
`

func TestIngestCSVReconcilesEveryRow(t *testing.T) {
	svc, orders, obs := newTestService(t)
	ctx := context.Background()
	seed(t, orders, "tx-1", domain.StatusPending)
	seed(t, orders, "tx-2", domain.StatusApproved)
	seed(t, orders, "tx-3", domain.StatusPending)

	res, err := svc.IngestReport(ctx, []byte(statusCSV), FormatCSV)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 4, res.Records)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Noop)
	assert.Equal(t, 1, res.Unknown)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "tx-missing", res.Failures[0].Ref)
	assert.Equal(t, 1, obs[RowApplied])

	o, err := orders.GetByRef(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, o.Status)
	o, err = orders.GetByRef(ctx, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, o.Status)

	trail, err := orders.AuditTrail(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, domain.SourceReport, trail[0].Source)

	again, err := svc.IngestReport(ctx, []byte(statusCSV), FormatCSV)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, 1, obs[RowApplied])
}

func TestIngestPipeAndJSON(t *testing.T) {
	svc, orders, _ := newTestService(t)
	ctx := context.Background()
	seed(t, orders, "tx-1", domain.StatusPending)
	seed(t, orders, "tx-2", domain.StatusApproved)

	res, err := svc.IngestReport(ctx, []byte("transaction_ref|status\ntx-1|cancelled\n"), FormatPSV)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)

	res, err = svc.IngestReport(ctx, []byte(`{"batch_id":"B-7","records":[{"ref":"tx-2","status":"chargeback"}]}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "B-7", res.BatchID)
	assert.Equal(t, 1, res.Applied)

	o, err := orders.GetByRef(ctx, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusChargeback, o.Status)
}

func TestIngestRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.IngestReport(ctx, []byte("a,b\n"), "xml")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = svc.IngestReport(ctx, []byte(`{"records":[{"status":"paid"}]}`), FormatJSON)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = svc.IngestReport(ctx, []byte("only_one_column\n"), FormatCSV)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestParseStatusCSVOrdersByDate(t *testing.T) {
	recs, err := ParseStatusCSV([]byte(statusCSV), ',')
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "tx-3", recs[2].Ref)
	assert.True(t, recs[2].ReportedAt.IsZero())
	assert.Equal(t, 2026, recs[3].ReportedAt.Year())
}

func TestOrderByReportedAtKeepsUndatedRowsInPlace(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 5, 1, h, 0, 0, 0, time.UTC) }
	recs := []StatusRecord{
		{Ref: "a", ReportedAt: at(11)},
		{Ref: "b"},
		{Ref: "c", ReportedAt: at(9)},
		{Ref: "d"},
		{Ref: "e", ReportedAt: at(10)},
	}
	orderByReportedAt(recs)

	var refs []string
	for _, r := range recs {
		refs = append(refs, r.Ref)
	}
	assert.Equal(t, []string{"c", "b", "e", "d", "a"}, refs)
}

func TestIngestAppliesUndatedRowInFileOrder(t *testing.T) {
	svc, orders, _ := newTestService(t)
	ctx := context.Background()
	seed(t, orders, "tx-1", domain.StatusPending)

	res, err := svc.IngestReport(ctx, []byte("transaction_ref,status,reported_at\ntx-1,paid,2026-05-01T10:00:00Z\ntx-1,refunded,\n"), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)

	trail, err := orders.AuditTrail(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, domain.StatusApproved, trail[0].NewStatus)
	assert.Equal(t, domain.StatusRefunded, trail[1].NewStatus)
}
