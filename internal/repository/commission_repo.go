package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/paylane/settlement/internal/domain"
)

const commissionColumns = `id, order_id, payee_id, amount, status, anticipation_id, created_at, updated_at`

type CommissionRepo struct {
	db *sql.DB
}

func NewCommissionRepo(db *sql.DB) *CommissionRepo {
	return &CommissionRepo{db: db}
}

// CommissionRecord is a commission joined with its parent order's status.
type CommissionRecord struct {
	domain.Commission
	OrderStatus domain.OrderStatus
}

// Insert stores a commission unless one already exists for the same order
// and payee. It reports whether a row was written.
func (r *CommissionRepo) Insert(ctx context.Context, c *domain.Commission) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO commissions (`+commissionColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.OrderID, c.PayeeID, c.Amount, string(c.Status), nullString(c.AnticipationID),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert commission: %w", err)
	}
	ra, _ := res.RowsAffected()
	return ra == 1, nil
}

// GetWithOrders returns the requested commissions with their order status.
// Unknown ids are absent from the result.
func (r *CommissionRepo) GetWithOrders(ctx context.Context, ids []string) (map[string]CommissionRecord, error) {
	out := make(map[string]CommissionRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.order_id, c.payee_id, c.amount, c.status, c.anticipation_id,
			c.created_at, c.updated_at, o.status
		FROM commissions c JOIN orders o ON o.id = c.order_id
		WHERE c.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query commissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec CommissionRecord
		var orderStatus string
		c, err := scanCommissionWith(rows, &orderStatus)
		if err != nil {
			return nil, fmt.Errorf("scan commission: %w", err)
		}
		rec.Commission = *c
		rec.OrderStatus = domain.OrderStatus(orderStatus)
		out[rec.ID] = rec
	}
	return out, rows.Err()
}

func (r *CommissionRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Commission, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+commissionColumns+" FROM commissions WHERE order_id = ?", orderID)
	if err != nil {
		return nil, fmt.Errorf("query commissions: %w", err)
	}
	defer rows.Close()
	return scanCommissions(rows)
}

func (r *CommissionRepo) ListByPayee(ctx context.Context, payeeID string) ([]domain.Commission, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+commissionColumns+" FROM commissions WHERE payee_id = ? ORDER BY created_at", payeeID)
	if err != nil {
		return nil, fmt.Errorf("query commissions: %w", err)
	}
	defer rows.Close()
	return scanCommissions(rows)
}

// MarkPaid moves a pending commission to paid.
func (r *CommissionRepo) MarkPaid(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE commissions SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(domain.CommissionPaid), formatTime(at), id, string(domain.CommissionPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark commission paid: %w", err)
	}
	ra, _ := res.RowsAffected()
	return ra == 1, nil
}

// Reverse marks every live commission of the order reversed. Commissions that
// had already been anticipated turn into debts built by newDebt; the created
// debts are returned.
func (r *CommissionRepo) Reverse(ctx context.Context, orderID string, at time.Time, newDebt func(domain.Commission) domain.AnticipationDebt) ([]domain.AnticipationDebt, error) {
	var debts []domain.AnticipationDebt
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT "+commissionColumns+" FROM commissions WHERE order_id = ? AND status != ?",
			orderID, string(domain.CommissionReversed))
		if err != nil {
			return fmt.Errorf("query commissions: %w", err)
		}
		commissions, err := scanCommissions(rows)
		rows.Close()
		if err != nil {
			return err
		}

		for _, c := range commissions {
			if c.Status == domain.CommissionAnticipated {
				d := newDebt(c)
				res, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO anticipation_debts
					(id, payee_id, commission_id, order_id, amount, remaining_amount, status, created_at, updated_at)
					VALUES (?,?,?,?,?,?,?,?,?)`,
					d.ID, d.PayeeID, d.CommissionID, d.OrderID, d.Amount, d.RemainingAmount,
					string(d.Status), formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
				)
				if err != nil {
					return fmt.Errorf("insert debt: %w", err)
				}
				if ra, _ := res.RowsAffected(); ra == 1 {
					debts = append(debts, d)
				}
			}
			_, err := tx.ExecContext(ctx,
				"UPDATE commissions SET status = ?, updated_at = ? WHERE id = ?",
				string(domain.CommissionReversed), formatTime(at), c.ID,
			)
			if err != nil {
				return fmt.Errorf("reverse commission %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return debts, nil
}

// --- helpers ---

func scanCommissionWith(row scanner, extra ...any) (*domain.Commission, error) {
	var c domain.Commission
	var status, createdAt, updatedAt string
	var anticipationID sql.NullString
	dest := append([]any{&c.ID, &c.OrderID, &c.PayeeID, &c.Amount, &status, &anticipationID,
		&createdAt, &updatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	c.Status = domain.CommissionStatus(status)
	c.AnticipationID = anticipationID.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func scanCommissions(rows *sql.Rows) ([]domain.Commission, error) {
	var out []domain.Commission
	for rows.Next() {
		c, err := scanCommissionWith(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commission: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
