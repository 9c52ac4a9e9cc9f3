package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/paylane/settlement/internal/anticipation"
	"github.com/paylane/settlement/internal/api"
	"github.com/paylane/settlement/internal/checkout"
	"github.com/paylane/settlement/internal/config"
	"github.com/paylane/settlement/internal/domain"
	"github.com/paylane/settlement/internal/fees"
	"github.com/paylane/settlement/internal/ingestion"
	"github.com/paylane/settlement/internal/ledger"
	"github.com/paylane/settlement/internal/metrics"
	"github.com/paylane/settlement/internal/notify"
	"github.com/paylane/settlement/internal/orders"
	"github.com/paylane/settlement/internal/provider"
	"github.com/paylane/settlement/internal/reconciliation"
	"github.com/paylane/settlement/internal/repository"
)

// app is the wired service graph shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB

	orderRepo    *repository.OrderRepo
	feeRepo      *repository.FeeRepo
	fees         *fees.Calculator
	orders       *orders.Service
	reconciler   *reconciliation.Reconciler
	ledger       *ledger.Service
	anticipation *anticipation.Engine
	ingestion    *ingestion.Service
	checkout     *checkout.Registry
	notifier     *notify.LogNotifier
	metrics      *metrics.Metrics
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	logger.Info("initializing database", "path", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		orderRepo: repository.NewOrderRepo(db),
		feeRepo:   repository.NewFeeRepo(db),
		notifier:  notify.NewLogNotifier(200, logger),
		metrics:   metrics.New(),
	}

	a.fees = fees.NewCalculator(a.feeRepo, fees.NewCache(cfg.FeeCacheTTL), a.metrics, logger)
	a.checkout = checkout.NewRegistry(cfg.CheckoutRegistry(a.notifier.Checkout), logger)
	a.anticipation = anticipation.NewEngine(
		repository.NewAnticipationRepo(db), repository.NewCommissionRepo(db),
		a.fees, a.notifier, cfg.MinAnticipation, logger,
		anticipation.WithObserver(a.metrics),
	)

	var statusProvider reconciliation.StatusProvider
	if cfg.Provider.BaseURL != "" {
		statusProvider = provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.Timeout, logger)
	}
	a.reconciler = reconciliation.NewReconciler(a.orderRepo, statusProvider, a.notifier, logger,
		reconciliation.WithHooks(a.anticipation, a.checkout),
		reconciliation.WithObserver(a.metrics),
	)

	a.orders = orders.NewService(a.orderRepo, a.fees, func(ctx context.Context, ref string, method domain.PaymentMethod) {
		if _, err := a.checkout.Open(ctx, ref, method); err != nil {
			logger.Warn("checkout session not opened", "ref", ref, "error", err)
		}
	}, logger)
	a.ledger = ledger.NewService(repository.NewLedgerRepo(db), a.fees, cfg.LedgerRules(), logger)
	a.ingestion = ingestion.NewService(repository.NewReportRepo(db), a.reconciler, a.metrics, logger)
	return a, nil
}

func (a *app) router() http.Handler {
	return api.NewRouter(api.Services{
		Orders:        a.orders,
		OrderRepo:     a.orderRepo,
		Reconciler:    a.reconciler,
		Ingestion:     a.ingestion,
		Ledger:        a.ledger,
		Anticipation:  a.anticipation,
		Fees:          a.fees,
		Checkout:      a.checkout,
		Notifications: a.notifier,
		Metrics:       a.metrics.Handler(),
		StuckBatchAge: a.cfg.StuckBatchAge,
	})
}

func (a *app) Close() {
	a.checkout.Close()
	a.db.Close()
}

// seed loads fee definitions, and demo orders when present, into an empty
// database.
func (a *app) seed(ctx context.Context) error {
	count, err := a.feeRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count fee definitions: %w", err)
	}
	if count > 0 {
		a.logger.Info("fee definitions present, skipping seed", "count", count)
	} else if err := a.seedFees(ctx); err != nil {
		a.logger.Warn("fee definitions not seeded, fees must be configured through the API", "error", err)
	}

	count, err = a.orderRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count orders: %w", err)
	}
	if count == 0 {
		if err := a.seedOrders(ctx); err != nil {
			a.logger.Warn("demo orders not seeded", "error", err)
		}
	}
	return nil
}

func (a *app) seedFees(ctx context.Context) error {
	var defs []domain.FeeDefinition
	path, err := loadJSON(a.cfg.FeesSeed, &defs)
	if err != nil {
		return err
	}
	for i := range defs {
		if err := a.fees.Save(ctx, &defs[i]); err != nil {
			return fmt.Errorf("seed fee %d from %s: %w", i, path, err)
		}
	}
	a.logger.Info("seeded fee definitions", "count", len(defs), "path", path)
	return nil
}

func (a *app) seedOrders(ctx context.Context) error {
	var reqs []orders.CreateRequest
	path, err := loadJSON(filepath.Join(filepath.Dir(a.cfg.FeesSeed), "orders.json"), &reqs)
	if err != nil {
		return err
	}
	created := 0
	for _, req := range reqs {
		if _, err := a.orders.Create(ctx, req); err != nil {
			a.logger.Warn("skipping demo order", "ref", req.TransactionRef, "error", err)
			continue
		}
		created++
	}
	a.logger.Info("seeded demo orders", "created", created, "total", len(reqs), "path", path)
	return nil
}

// loadJSON decodes the first readable candidate for name into v and returns
// the path it used.
func loadJSON(name string, v any) (string, error) {
	// Try multiple possible locations.
	candidates := []string{name}
	if !filepath.IsAbs(name) {
		// Also try to find relative to the executable.
		if exe, err := os.Executable(); err == nil {
			dir := filepath.Dir(exe)
			candidates = append(candidates,
				filepath.Join(dir, name),
				filepath.Join(dir, "..", "..", name),
			)
		}
	}

	var data []byte
	var loadErr error
	var path string
	for _, path = range candidates {
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			break
		}
	}
	if loadErr != nil {
		return "", fmt.Errorf("could not find %s in any candidate path: %w", name, loadErr)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return "", fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return path, nil
}
