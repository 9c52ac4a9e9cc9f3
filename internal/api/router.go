package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/paylane/settlement/internal/anticipation"
	"github.com/paylane/settlement/internal/checkout"
	"github.com/paylane/settlement/internal/fees"
	"github.com/paylane/settlement/internal/ingestion"
	"github.com/paylane/settlement/internal/ledger"
	"github.com/paylane/settlement/internal/notify"
	"github.com/paylane/settlement/internal/orders"
	"github.com/paylane/settlement/internal/reconciliation"
	"github.com/paylane/settlement/internal/repository"
)

// Services are the dependencies the handlers call into. Checkout,
// Notifications and Metrics may be nil.
type Services struct {
	Orders        *orders.Service
	OrderRepo     *repository.OrderRepo
	Reconciler    *reconciliation.Reconciler
	Ingestion     *ingestion.Service
	Ledger        *ledger.Service
	Anticipation  *anticipation.Engine
	Fees          *fees.Calculator
	Checkout      *checkout.Registry
	Notifications *notify.LogNotifier
	Metrics       http.Handler
	// StuckBatchAge is the default age after which a processing batch is
	// listed as stuck.
	StuckBatchAge time.Duration
}

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(s Services) http.Handler {
	h := &Handlers{svc: s}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Provider status intake.
		r.Post("/webhooks/payments", h.PaymentWebhook)
		r.Post("/reports/ingest", h.IngestReport)

		// Orders.
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{ref}", h.GetOrder)
		r.Get("/orders/{ref}/audit", h.GetOrderAudit)
		r.Post("/orders/{ref}/poll", h.PollOrder)
		r.Post("/orders/{ref}/effects/retry", h.RetryOrderEffects)

		// Transition side effects still owed.
		r.Get("/reconciliation/effects", h.ListOpenEffects)
		r.Post("/reconciliation/effects/retry", h.RetryOpenEffects)

		// Balances and withdrawals.
		r.Get("/payees/{id}/balance", h.GetBalance)
		r.Get("/payees/{id}/commissions", h.ListCommissions)
		r.Get("/payees/{id}/debts", h.ListDebts)
		r.Post("/withdrawals/quote", h.QuoteWithdrawal)
		r.Post("/withdrawals", h.RequestWithdrawal)
		r.Post("/withdrawals/{id}/complete", h.CompleteWithdrawal)
		r.Post("/withdrawals/{id}/reject", h.RejectWithdrawal)

		// Anticipation.
		r.Post("/anticipations", h.Anticipate)
		r.Get("/anticipations/stuck", h.ListStuckBatches)
		r.Get("/anticipations/{id}", h.GetBatch)
		r.Post("/commissions/{id}/release", h.ReleaseCommission)
		r.Post("/debts/{id}/payments", h.PayDebt)

		// Fees.
		r.Get("/fees", h.ListFees)
		r.Put("/fees", h.SaveFee)

		// Checkout sessions.
		r.Post("/checkout/sessions", h.OpenSession)
		r.Get("/checkout/sessions/{ref}", h.GetSession)
		r.Delete("/checkout/sessions/{ref}", h.CloseSession)
		r.Post("/checkout/sessions/{ref}/processing", h.SessionProcessing)
		r.Post("/checkout/sessions/{ref}/retry", h.SessionRetry)
		r.Post("/checkout/sessions/{ref}/reset", h.SessionReset)

		r.Get("/notifications", h.ListNotifications)
	})

	return r
}
