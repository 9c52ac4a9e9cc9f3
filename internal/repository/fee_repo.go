package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paylane/settlement/internal/domain"
)

type FeeRepo struct {
	db *sql.DB
}

func NewFeeRepo(db *sql.DB) *FeeRepo {
	return &FeeRepo{db: db}
}

// Upsert stores the definition, replacing any existing one for the same
// scope and operation type.
func (r *FeeRepo) Upsert(ctx context.Context, d *domain.FeeDefinition) error {
	var feeCap any
	if d.Cap != nil {
		feeCap = d.Cap.String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fee_definitions
		(id, scope, operation_type, value_type, value, additive_fixed, cap, active, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (scope, operation_type) DO UPDATE SET
			value_type = excluded.value_type,
			value = excluded.value,
			additive_fixed = excluded.additive_fixed,
			cap = excluded.cap,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		d.ID, d.Scope, string(d.OperationType), string(d.ValueType), d.Value, d.AdditiveFixed,
		feeCap, d.Active, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert fee definition: %w", err)
	}
	return nil
}

func (r *FeeRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fee_definitions").Scan(&count)
	return count, err
}

// ListActiveByScope returns the active definitions of one scope.
func (r *FeeRepo) ListActiveByScope(ctx context.Context, scope string) ([]domain.FeeDefinition, error) {
	return r.query(ctx, "WHERE scope = ? AND active = 1", scope)
}

// List returns every definition, active or not.
func (r *FeeRepo) List(ctx context.Context) ([]domain.FeeDefinition, error) {
	return r.query(ctx, "")
}

func (r *FeeRepo) query(ctx context.Context, where string, args ...any) ([]domain.FeeDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, scope, operation_type, value_type, value, additive_fixed, cap, active
		FROM fee_definitions `+where+` ORDER BY scope, operation_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("query fee definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.FeeDefinition
	for rows.Next() {
		var d domain.FeeDefinition
		var op, valueType string
		var feeCap decimal.NullDecimal
		if err := rows.Scan(&d.ID, &d.Scope, &op, &valueType, &d.Value, &d.AdditiveFixed, &feeCap, &d.Active); err != nil {
			return nil, fmt.Errorf("scan fee definition: %w", err)
		}
		d.OperationType = domain.OperationType(op)
		d.ValueType = domain.FeeValueType(valueType)
		if feeCap.Valid {
			c := feeCap.Decimal
			d.Cap = &c
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}
