package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paylane/settlement/internal/domain"
)

// ErrCommissionChanged is returned when a commission stopped being eligible
// between validation and the status flip.
var ErrCommissionChanged = errors.New("commission changed concurrently")

const batchColumns = `id, payee_id, original_total, fee_percentage, fee_amount, net_total, status, created_at, completed_at`
const debtColumns = `id, payee_id, commission_id, order_id, amount, remaining_amount, status, created_at, updated_at`

type AnticipationRepo struct {
	db *sql.DB
}

func NewAnticipationRepo(db *sql.DB) *AnticipationRepo {
	return &AnticipationRepo{db: db}
}

// CreateBatch records the accepted request before any commission is touched.
func (r *AnticipationRepo) CreateBatch(ctx context.Context, b *domain.AnticipationBatch) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO anticipation_batches (`+batchColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		b.ID, b.PayeeID, b.OriginalTotal, b.FeePercentage, b.FeeAmount, b.NetTotal,
		string(b.Status), formatTime(b.CreatedAt), formatNullableTime(b.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// ApplyItems inserts the batch items and flips each commission to
// anticipated in one transaction. Nothing is written if any commission is no
// longer pending or paid.
func (r *AnticipationRepo) ApplyItems(ctx context.Context, batchID string, items []domain.AnticipationItem, at time.Time) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, it := range items {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO anticipation_items (id, batch_id, commission_id, amount, fee, net_amount)
				VALUES (?,?,?,?,?,?)`,
				it.ID, batchID, it.CommissionID, it.Amount, it.Fee, it.NetAmount,
			)
			if err != nil {
				return fmt.Errorf("insert item %s: %w", it.CommissionID, err)
			}

			res, err := tx.ExecContext(ctx,
				`UPDATE commissions SET status = ?, anticipation_id = ?, updated_at = ?
				WHERE id = ? AND status IN (?, ?) AND anticipation_id IS NULL`,
				string(domain.CommissionAnticipated), batchID, formatTime(at), it.CommissionID,
				string(domain.CommissionPending), string(domain.CommissionPaid),
			)
			if err != nil {
				return fmt.Errorf("flip commission %s: %w", it.CommissionID, err)
			}
			if ra, _ := res.RowsAffected(); ra != 1 {
				return fmt.Errorf("flip commission %s: %w", it.CommissionID, ErrCommissionChanged)
			}
		}
		return nil
	})
}

// CompleteBatch moves a processing batch to completed.
func (r *AnticipationRepo) CompleteBatch(ctx context.Context, batchID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE anticipation_batches SET status = ?, completed_at = ? WHERE id = ? AND status = ?",
		string(domain.BatchCompleted), formatTime(at), batchID, string(domain.BatchProcessing),
	)
	if err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}
	if ra, _ := res.RowsAffected(); ra != 1 {
		return fmt.Errorf("complete batch %s: %w", batchID, domain.ErrNotFound)
	}
	return nil
}

func (r *AnticipationRepo) GetBatch(ctx context.Context, id string) (*domain.AnticipationBatch, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM anticipation_batches WHERE id = ?", id)
	b, err := scanBatch(row)
	if err != nil {
		return nil, notFound(err, "get batch "+id)
	}
	return b, nil
}

// ListProcessingBefore returns batches still processing that were created
// before cutoff. These need operator reconciliation.
func (r *AnticipationRepo) ListProcessingBefore(ctx context.Context, cutoff time.Time) ([]domain.AnticipationBatch, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+batchColumns+" FROM anticipation_batches WHERE status = ? AND created_at < ? ORDER BY created_at",
		string(domain.BatchProcessing), formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []domain.AnticipationBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *AnticipationRepo) ListItems(ctx context.Context, batchID string) ([]domain.AnticipationItem, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, batch_id, commission_id, amount, fee, net_amount FROM anticipation_items WHERE batch_id = ?", batchID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// --- debts ---

// UnresolvedDebts returns the pending and partial debts of a payee.
func (r *AnticipationRepo) UnresolvedDebts(ctx context.Context, payeeID string) ([]domain.AnticipationDebt, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+debtColumns+" FROM anticipation_debts WHERE payee_id = ? AND status IN (?, ?) ORDER BY created_at",
		payeeID, string(domain.DebtPending), string(domain.DebtPartial),
	)
	if err != nil {
		return nil, fmt.Errorf("query debts: %w", err)
	}
	defer rows.Close()

	var out []domain.AnticipationDebt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// PayDebt reduces the remaining amount of an unresolved debt. Payments larger
// than the remainder are capped at it.
func (r *AnticipationRepo) PayDebt(ctx context.Context, id string, amount decimal.Decimal, at time.Time) (*domain.AnticipationDebt, error) {
	var debt *domain.AnticipationDebt
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+debtColumns+" FROM anticipation_debts WHERE id = ?", id)
		d, err := scanDebt(row)
		if err != nil {
			return notFound(err, "get debt "+id)
		}
		if !d.Unresolved() {
			return fmt.Errorf("debt %s is %s: %w", id, d.Status, domain.ErrInvalidTransition)
		}

		paid := decimal.Min(amount, d.RemainingAmount)
		d.RemainingAmount = d.RemainingAmount.Sub(paid)
		d.Status = domain.DebtPartial
		if d.RemainingAmount.IsZero() {
			d.Status = domain.DebtCleared
		}
		d.UpdatedAt = at

		_, err = tx.ExecContext(ctx,
			"UPDATE anticipation_debts SET remaining_amount = ?, status = ?, updated_at = ? WHERE id = ?",
			d.RemainingAmount, string(d.Status), formatTime(at), id,
		)
		if err != nil {
			return fmt.Errorf("update debt: %w", err)
		}
		debt = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return debt, nil
}

// --- audit log ---

func (r *AnticipationRepo) InsertAudit(ctx context.Context, e *domain.AuditEntry) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_log (id, entity, entity_id, action, detail, created_at) VALUES (?,?,?,?,?,?)",
		e.ID, e.Entity, e.EntityID, e.Action, e.Detail, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (r *AnticipationRepo) ListAudit(ctx context.Context, entity, entityID string) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, entity, entity_id, action, detail, created_at FROM audit_log WHERE entity = ? AND entity_id = ? ORDER BY created_at, rowid",
		entity, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Entity, &e.EntityID, &e.Action, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- helpers ---

func scanBatch(row scanner) (*domain.AnticipationBatch, error) {
	var b domain.AnticipationBatch
	var status, createdAt string
	var completedAt sql.NullString
	err := row.Scan(&b.ID, &b.PayeeID, &b.OriginalTotal, &b.FeePercentage, &b.FeeAmount,
		&b.NetTotal, &status, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BatchStatus(status)
	b.CreatedAt = parseTime(createdAt)
	b.CompletedAt = parseNullableTime(completedAt)
	return &b, nil
}

func scanItems(rows *sql.Rows) ([]domain.AnticipationItem, error) {
	var out []domain.AnticipationItem
	for rows.Next() {
		var it domain.AnticipationItem
		if err := rows.Scan(&it.ID, &it.BatchID, &it.CommissionID, &it.Amount, &it.Fee, &it.NetAmount); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanDebt(row scanner) (*domain.AnticipationDebt, error) {
	var d domain.AnticipationDebt
	var status, createdAt, updatedAt string
	err := row.Scan(&d.ID, &d.PayeeID, &d.CommissionID, &d.OrderID, &d.Amount,
		&d.RemainingAmount, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = domain.DebtStatus(status)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}
