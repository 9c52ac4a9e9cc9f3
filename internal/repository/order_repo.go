package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paylane/settlement/internal/domain"
)

const orderColumns = `id, transaction_ref, tenant_id, payee_id, affiliate_id, payment_method,
	gross_amount, platform_fee, payment_fee, affiliate_commission, net_amount,
	status, approved_at, created_at, updated_at`

type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) Insert(ctx context.Context, o *domain.Order) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.TransactionRef, o.TenantID, o.PayeeID, o.AffiliateID, string(o.PaymentMethod),
		o.GrossAmount, o.PlatformFee, o.PaymentFee, o.AffiliateCommission, o.NetAmount,
		string(o.Status), formatNullableTime(o.ApprovedAt), formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&count)
	return count, err
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err, "get order "+id)
	}
	return o, nil
}

func (r *OrderRepo) GetByRef(ctx context.Context, ref string) (*domain.Order, error) {
	return getOrderByRef(ctx, r.db, ref)
}

// CompareAndSetStatus moves the order from expected to next and appends the
// audit entry and an open transition effect in the same transaction. It
// returns false without writing when the stored status no longer equals
// expected.
func (r *OrderRepo) CompareAndSetStatus(ctx context.Context, ref string, expected, next domain.OrderStatus, entry *domain.StatusAuditEntry) (bool, error) {
	swapped := false
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		now := formatTime(entry.CreatedAt)
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = ?, updated_at = ?,
				approved_at = CASE WHEN ? = 'approved' AND approved_at IS NULL THEN ? ELSE approved_at END
			WHERE transaction_ref = ? AND status = ?`,
			string(next), now, string(next), now, ref, string(expected),
		)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if ra == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO status_audit
			(id, order_id, transaction_ref, old_status, new_status, raw_status, source, created_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			entry.ID, entry.OrderID, ref, string(expected), string(next),
			entry.RawStatus, string(entry.Source), now,
		)
		if err != nil {
			return fmt.Errorf("insert audit: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO transition_effects
			(id, order_id, transaction_ref, from_status, to_status, raw_status, source, created_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			entry.ID, entry.OrderID, ref, string(expected), string(next),
			entry.RawStatus, string(entry.Source), now,
		)
		if err != nil {
			return fmt.Errorf("insert transition effect: %w", err)
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

// AuditTrail returns the applied transitions of an order, oldest first.
func (r *OrderRepo) AuditTrail(ctx context.Context, ref string) ([]domain.StatusAuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, transaction_ref, old_status, new_status, raw_status, source, created_at
		FROM status_audit WHERE transaction_ref = ? ORDER BY created_at, rowid`, ref,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []domain.StatusAuditEntry
	for rows.Next() {
		var e domain.StatusAuditEntry
		var oldStatus, newStatus, source, createdAt string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.TransactionRef, &oldStatus, &newStatus,
			&e.RawStatus, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.OldStatus = domain.OrderStatus(oldStatus)
		e.NewStatus = domain.OrderStatus(newStatus)
		e.Source = domain.AuditSource(source)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const effectColumns = `id, order_id, transaction_ref, from_status, to_status, raw_status, source,
	attempts, last_error, created_at, resolved_at`

// OpenEffects returns the unresolved transition effects of an order, oldest
// first.
func (r *OrderRepo) OpenEffects(ctx context.Context, ref string) ([]domain.TransitionEffect, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+effectColumns+" FROM transition_effects WHERE resolved_at IS NULL AND transaction_ref = ? ORDER BY created_at, rowid",
		ref,
	)
	if err != nil {
		return nil, fmt.Errorf("query transition effects: %w", err)
	}
	return scanEffects(rows)
}

// OpenEffectsBefore returns every unresolved transition effect created
// before the given time, oldest first.
func (r *OrderRepo) OpenEffectsBefore(ctx context.Context, before time.Time) ([]domain.TransitionEffect, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+effectColumns+" FROM transition_effects WHERE resolved_at IS NULL AND created_at < ? ORDER BY created_at, rowid",
		formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("query transition effects: %w", err)
	}
	return scanEffects(rows)
}

func (r *OrderRepo) ResolveEffect(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE transition_effects SET attempts = attempts + 1, last_error = '', resolved_at = ? WHERE id = ? AND resolved_at IS NULL",
		formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("resolve transition effect %s: %w", id, err)
	}
	return nil
}

func (r *OrderRepo) FailEffect(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE transition_effects SET attempts = attempts + 1, last_error = ? WHERE id = ? AND resolved_at IS NULL",
		reason, id,
	)
	if err != nil {
		return fmt.Errorf("record transition effect failure %s: %w", id, err)
	}
	return nil
}

func scanEffects(rows *sql.Rows) ([]domain.TransitionEffect, error) {
	defer rows.Close()

	var out []domain.TransitionEffect
	for rows.Next() {
		var e domain.TransitionEffect
		var from, to, source, createdAt string
		var resolvedAt sql.NullString
		if err := rows.Scan(&e.ID, &e.OrderID, &e.TransactionRef, &from, &to, &e.RawStatus, &source,
			&e.Attempts, &e.LastError, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan transition effect: %w", err)
		}
		e.From = domain.OrderStatus(from)
		e.To = domain.OrderStatus(to)
		e.Source = domain.AuditSource(source)
		e.CreatedAt = parseTime(createdAt)
		e.ResolvedAt = parseNullableTime(resolvedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

type OrderFilter struct {
	PayeeID string
	Status  string
	Page    int
	Limit   int
}

func (r *OrderRepo) List(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	query := "SELECT " + orderColumns + " FROM orders WHERE (? = '' OR payee_id = ?) AND (? = '' OR status = ?)" +
		" ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query,
		f.PayeeID, f.PayeeID, f.Status, f.Status, f.Limit, (f.Page-1)*f.Limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// --- helpers ---

func getOrderByRef(ctx context.Context, q dbtx, ref string) (*domain.Order, error) {
	row := q.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE transaction_ref = ?", ref)
	o, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err, "get order "+ref)
	}
	return o, nil
}

func scanOrder(row scanner) (*domain.Order, error) {
	var o domain.Order
	var method, status, createdAt, updatedAt string
	var approvedAt sql.NullString

	err := row.Scan(
		&o.ID, &o.TransactionRef, &o.TenantID, &o.PayeeID, &o.AffiliateID, &method,
		&o.GrossAmount, &o.PlatformFee, &o.PaymentFee, &o.AffiliateCommission, &o.NetAmount,
		&status, &approvedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.PaymentMethod = domain.PaymentMethod(method)
	o.Status = domain.OrderStatus(status)
	o.ApprovedAt = parseNullableTime(approvedAt)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
