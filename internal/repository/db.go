package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/paylane/settlement/internal/domain"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own empty database.
	if dsn == MemoryDSN {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

// Amounts are stored as TEXT decimal strings and summed in Go.
func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			transaction_ref TEXT UNIQUE NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			payee_id TEXT NOT NULL,
			affiliate_id TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL,
			gross_amount TEXT NOT NULL,
			platform_fee TEXT NOT NULL,
			payment_fee TEXT NOT NULL,
			affiliate_commission TEXT NOT NULL,
			net_amount TEXT NOT NULL,
			status TEXT NOT NULL,
			approved_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_payee ON orders(payee_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,

		`CREATE TABLE IF NOT EXISTS status_audit (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			transaction_ref TEXT NOT NULL,
			old_status TEXT NOT NULL,
			new_status TEXT NOT NULL,
			raw_status TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_audit_ref ON status_audit(transaction_ref)`,

		`CREATE TABLE IF NOT EXISTS transition_effects (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			transaction_ref TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			raw_status TEXT NOT NULL,
			source TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			resolved_at TEXT,
			FOREIGN KEY (id) REFERENCES status_audit(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transition_effects_open ON transition_effects(resolved_at, transaction_ref)`,

		`CREATE TABLE IF NOT EXISTS fee_definitions (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			operation_type TEXT NOT NULL,
			value_type TEXT NOT NULL,
			value TEXT NOT NULL,
			additive_fixed TEXT NOT NULL,
			cap TEXT,
			active INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (scope, operation_type)
		)`,

		`CREATE TABLE IF NOT EXISTS withdrawals (
			id TEXT PRIMARY KEY,
			payee_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			fee TEXT NOT NULL,
			net_amount TEXT NOT NULL,
			status TEXT NOT NULL,
			bank_account_ref TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_withdrawals_payee ON withdrawals(payee_id)`,

		`CREATE TABLE IF NOT EXISTS commissions (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			payee_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			status TEXT NOT NULL,
			anticipation_id TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (order_id, payee_id),
			FOREIGN KEY (order_id) REFERENCES orders(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commissions_payee ON commissions(payee_id)`,

		`CREATE TABLE IF NOT EXISTS anticipation_batches (
			id TEXT PRIMARY KEY,
			payee_id TEXT NOT NULL,
			original_total TEXT NOT NULL,
			fee_percentage TEXT NOT NULL,
			fee_amount TEXT NOT NULL,
			net_total TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anticipation_batches_status ON anticipation_batches(status)`,

		`CREATE TABLE IF NOT EXISTS anticipation_items (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			commission_id TEXT UNIQUE NOT NULL,
			amount TEXT NOT NULL,
			fee TEXT NOT NULL,
			net_amount TEXT NOT NULL,
			FOREIGN KEY (batch_id) REFERENCES anticipation_batches(id),
			FOREIGN KEY (commission_id) REFERENCES commissions(id)
		)`,

		`CREATE TABLE IF NOT EXISTS anticipation_debts (
			id TEXT PRIMARY KEY,
			payee_id TEXT NOT NULL,
			commission_id TEXT UNIQUE NOT NULL,
			order_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			remaining_amount TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anticipation_debts_payee ON anticipation_debts(payee_id, status)`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			entity TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			action TEXT NOT NULL,
			detail TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity, entity_id)`,

		`CREATE TABLE IF NOT EXISTS status_reports (
			id TEXT PRIMARY KEY,
			format TEXT NOT NULL,
			file_hash TEXT UNIQUE NOT NULL,
			record_count INTEGER NOT NULL,
			ingested_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}

// --- helpers ---

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// notFound converts sql.ErrNoRows into domain.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
