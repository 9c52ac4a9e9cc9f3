package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paylane/settlement/internal/domain"
)

const withdrawalColumns = `id, payee_id, amount, fee, net_amount, status, bank_account_ref, created_at, updated_at`

// LedgerRepo reads the facts balances are derived from and stores withdrawals.
type LedgerRepo struct {
	db *sql.DB
}

func NewLedgerRepo(db *sql.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// Facts loads every ledger fact for the payee inside one transaction so the
// result never mixes pre- and post-update rows.
func (r *LedgerRepo) Facts(ctx context.Context, payeeID string) (*domain.LedgerFacts, error) {
	var facts *domain.LedgerFacts
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		facts, err = loadFacts(ctx, tx, payeeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return facts, nil
}

// InsertWithdrawalChecked loads the payee's facts, lets build decide on the
// withdrawal and inserts it, all in one transaction. A concurrent request
// cannot spend the same balance twice.
func (r *LedgerRepo) InsertWithdrawalChecked(ctx context.Context, payeeID string, build func(*domain.LedgerFacts) (*domain.Withdrawal, error)) (*domain.Withdrawal, error) {
	var w *domain.Withdrawal
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		facts, err := loadFacts(ctx, tx, payeeID)
		if err != nil {
			return err
		}
		w, err = build(facts)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO withdrawals (`+withdrawalColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
			w.ID, w.PayeeID, w.Amount, w.Fee, w.NetAmount, string(w.Status), w.BankAccountRef,
			formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *LedgerRepo) GetWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+withdrawalColumns+" FROM withdrawals WHERE id = ?", id)
	w, err := scanWithdrawal(row)
	if err != nil {
		return nil, notFound(err, "get withdrawal "+id)
	}
	return w, nil
}

// SettleWithdrawal moves a pending withdrawal to status. It returns false if
// the withdrawal is no longer pending.
func (r *LedgerRepo) SettleWithdrawal(ctx context.Context, id string, status domain.WithdrawalStatus, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE withdrawals SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(status), formatTime(at), id, string(domain.WithdrawalPending),
	)
	if err != nil {
		return false, fmt.Errorf("update withdrawal: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return ra == 1, nil
}

// --- helpers ---

func loadFacts(ctx context.Context, q dbtx, payeeID string) (*domain.LedgerFacts, error) {
	facts := &domain.LedgerFacts{PayeeID: payeeID}

	rows, err := q.QueryContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE payee_id = ?", payeeID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	facts.Orders, err = scanOrders(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, "SELECT "+commissionColumns+" FROM commissions WHERE payee_id = ?", payeeID)
	if err != nil {
		return nil, fmt.Errorf("query commissions: %w", err)
	}
	facts.Commissions, err = scanCommissions(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT i.id, i.batch_id, i.commission_id, i.amount, i.fee, i.net_amount
		FROM anticipation_items i
		JOIN anticipation_batches b ON b.id = i.batch_id
		WHERE b.payee_id = ? AND b.status = ?`,
		payeeID, string(domain.BatchCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("query anticipation items: %w", err)
	}
	facts.AnticipationItems, err = scanItems(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, "SELECT "+withdrawalColumns+" FROM withdrawals WHERE payee_id = ?", payeeID)
	if err != nil {
		return nil, fmt.Errorf("query withdrawals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		facts.Withdrawals = append(facts.Withdrawals, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return facts, nil
}

func scanWithdrawal(row scanner) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	var status, createdAt, updatedAt string
	err := row.Scan(&w.ID, &w.PayeeID, &w.Amount, &w.Fee, &w.NetAmount, &status,
		&w.BankAccountRef, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	w.Status = domain.WithdrawalStatus(status)
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	return &w, nil
}
