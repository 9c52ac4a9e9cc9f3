// Package fees resolves fee definitions and computes fee amounts.
package fees

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paylane/settlement/internal/currency"
	"github.com/paylane/settlement/internal/domain"
)

// Store is the persistence the calculator reads and writes through.
type Store interface {
	ListActiveByScope(ctx context.Context, scope string) ([]domain.FeeDefinition, error)
	List(ctx context.Context) ([]domain.FeeDefinition, error)
	Upsert(ctx context.Context, d *domain.FeeDefinition) error
}

// CacheObserver is notified of cache hits and misses.
type CacheObserver interface {
	FeeCacheLookup(hit bool)
}

// Calculator resolves which fee applies to an operation and computes it.
type Calculator struct {
	store    Store
	cache    *Cache
	observer CacheObserver
	logger   *slog.Logger
}

func NewCalculator(store Store, cache *Cache, observer CacheObserver, logger *slog.Logger) *Calculator {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		store:    store,
		cache:    cache,
		observer: observer,
		logger:   logger.With("component", "fees"),
	}
}

// Resolve returns the active definition for op, preferring the tenant scope
// over the global one. It returns domain.ErrNoFeeConfigured when neither has
// one; callers decide whether that is fatal.
func (c *Calculator) Resolve(ctx context.Context, op domain.OperationType, scope string) (domain.FeeDefinition, error) {
	scopes := []string{domain.GlobalScope}
	if scope != "" && scope != domain.GlobalScope {
		scopes = []string{scope, domain.GlobalScope}
	}

	for _, s := range scopes {
		defs, err := c.scopeDefinitions(ctx, s)
		if err != nil {
			return domain.FeeDefinition{}, err
		}
		for _, d := range defs {
			if d.OperationType == op && d.Active {
				return d, nil
			}
		}
	}
	return domain.FeeDefinition{}, fmt.Errorf("%s fee for scope %q: %w", op, scope, domain.ErrNoFeeConfigured)
}

// Compute resolves the definition for op and applies it to gross.
func (c *Calculator) Compute(ctx context.Context, op domain.OperationType, scope string, gross decimal.Decimal) (decimal.Decimal, domain.FeeDefinition, error) {
	def, err := c.Resolve(ctx, op, scope)
	if err != nil {
		return decimal.Zero, def, err
	}
	return ComputeFeeAmount(gross, def), def, nil
}

// Save validates and stores a definition, then invalidates the cache for its
// scope so the next lookup reads it.
func (c *Calculator) Save(ctx context.Context, d *domain.FeeDefinition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if err := c.store.Upsert(ctx, d); err != nil {
		return fmt.Errorf("save fee definition: %w", err)
	}
	c.cache.Invalidate(d.Scope)
	c.logger.Info("fee definition saved",
		"scope", d.Scope, "operation", d.OperationType, "value_type", d.ValueType, "value", d.Value.String())
	return nil
}

// List returns every stored definition, bypassing the cache.
func (c *Calculator) List(ctx context.Context) ([]domain.FeeDefinition, error) {
	return c.store.List(ctx)
}

func (c *Calculator) scopeDefinitions(ctx context.Context, scope string) ([]domain.FeeDefinition, error) {
	if defs, ok := c.cache.Get(scope); ok {
		c.observe(true)
		return defs, nil
	}
	c.observe(false)

	defs, err := c.store.ListActiveByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load fee definitions for %q: %w", scope, err)
	}
	c.cache.Put(scope, defs)
	return defs, nil
}

func (c *Calculator) observe(hit bool) {
	if c.observer != nil {
		c.observer.FeeCacheLookup(hit)
	}
}

// ComputeFeeAmount applies def to gross. Percentage fees add the fixed
// component on top; the cap applies last and the result is rounded to cents.
func ComputeFeeAmount(gross decimal.Decimal, def domain.FeeDefinition) decimal.Decimal {
	var fee decimal.Decimal
	switch def.ValueType {
	case domain.FeePercentage:
		fee = currency.Percent(gross, def.Value).Add(def.AdditiveFixed)
	default:
		fee = def.Value
	}
	fee = currency.Round(fee)
	if def.Cap != nil && fee.GreaterThan(*def.Cap) {
		fee = currency.Round(*def.Cap)
	}
	return fee
}
