package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paylane/settlement/internal/checkout"
	"github.com/paylane/settlement/internal/domain"
	"github.com/paylane/settlement/internal/orders"
	"github.com/paylane/settlement/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	svc Services
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "component", "api", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps a service error onto a status code and payload.
func writeServiceError(w http.ResponseWriter, err error) {
	var debtErr *domain.PendingDebtError
	var valErr *domain.ValidationError
	switch {
	case errors.As(err, &debtErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     domain.CodePendingDebt,
			"totalDebt": debtErr.TotalDebt,
		})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": valErr.Error(), "field": valErr.Field})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, checkout.ErrSessionLocked):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNoFeeConfigured),
		errors.Is(err, domain.ErrNothingEligible),
		errors.Is(err, domain.ErrBelowMinimum),
		errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, checkout.ErrTooManySessions):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		slog.Error("request failed", "component", "api", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- PaymentWebhook ---

type webhookRequest struct {
	TransactionRef string `json:"transaction_ref"`
	Status         string `json:"status"`
}

func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TransactionRef == "" {
		writeError(w, http.StatusBadRequest, "transaction_ref is required")
		return
	}

	res, err := h.svc.Reconciler.Reconcile(r.Context(), req.TransactionRef, req.Status, domain.SourceWebhook)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- IngestReport ---

func (h *Handlers) IngestReport(w http.ResponseWriter, r *http.Request) {
	// Accept multipart form.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	format := r.FormValue("format")
	if format == "" {
		writeError(w, http.StatusBadRequest, "format is required")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	result, err := h.svc.Ingestion.IngestReport(r.Context(), data, format)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Orders ---

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.svc.Orders.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.OrderFilter{
		PayeeID: q.Get("payee_id"),
		Status:  q.Get("status"),
		Page:    parseIntDefault(q.Get("page"), 1),
		Limit:   parseIntDefault(q.Get("limit"), 50),
	}

	list, err := h.svc.OrderRepo.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": list,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	o, err := h.svc.Orders.Get(r.Context(), ref)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]any{"order": o}
	if h.svc.Anticipation != nil {
		commissions, err := h.svc.Anticipation.OrderCommissions(r.Context(), o.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp["commissions"] = commissions
	}
	if h.svc.Checkout != nil {
		if s, ok := h.svc.Checkout.Get(ref); ok {
			resp["checkout"] = s.Snapshot()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetOrderAudit(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if _, err := h.svc.Orders.Get(r.Context(), ref); err != nil {
		writeServiceError(w, err)
		return
	}
	trail, err := h.svc.OrderRepo.AuditTrail(r.Context(), ref)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction_ref": ref, "entries": trail})
}

func (h *Handlers) PollOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reconciler.Poll(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) RetryOrderEffects(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	open, err := h.svc.Reconciler.RetryEffects(r.Context(), ref)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction_ref": ref, "open_effects": open})
}

// ListOpenEffects lists status transitions whose side effects are still
// owed.
func (h *Handlers) ListOpenEffects(w http.ResponseWriter, r *http.Request) {
	age, ok := olderThan(w, r, 0)
	if !ok {
		return
	}
	effects, err := h.svc.Reconciler.OpenEffects(r.Context(), age)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"effects": effects, "older_than": age.String()})
}

func (h *Handlers) RetryOpenEffects(w http.ResponseWriter, r *http.Request) {
	age, ok := olderThan(w, r, 0)
	if !ok {
		return
	}
	orders, open, err := h.svc.Reconciler.RetryOpenEffects(r.Context(), age)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "open_effects": open})
}

// olderThan reads the older_than query parameter, falling back to def.
func olderThan(w http.ResponseWriter, r *http.Request, def time.Duration) (time.Duration, bool) {
	s := r.URL.Query().Get("older_than")
	if s == "" {
		return def, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		writeError(w, http.StatusBadRequest, "older_than must be a duration such as 15m")
		return 0, false
	}
	return d, true
}
