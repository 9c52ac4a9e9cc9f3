package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paylane/settlement/internal/checkout"
	"github.com/paylane/settlement/internal/domain"
)

// --- Fees ---

func (h *Handlers) ListFees(w http.ResponseWriter, r *http.Request) {
	defs, err := h.svc.Fees.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fees": defs})
}

func (h *Handlers) SaveFee(w http.ResponseWriter, r *http.Request) {
	var def domain.FeeDefinition
	if !decodeJSON(w, r, &def) {
		return
	}
	if err := h.svc.Fees.Save(r.Context(), &def); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// --- Checkout sessions ---

type openSessionRequest struct {
	TransactionRef string               `json:"transaction_ref"`
	PaymentMethod  domain.PaymentMethod `json:"payment_method"`
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*checkout.Session, bool) {
	if h.svc.Checkout == nil {
		writeError(w, http.StatusServiceUnavailable, "checkout sessions are disabled")
		return nil, false
	}
	ref := chi.URLParam(r, "ref")
	s, ok := h.svc.Checkout.Get(ref)
	if !ok {
		writeError(w, http.StatusNotFound, "no checkout session for "+ref)
		return nil, false
	}
	return s, true
}

func (h *Handlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	if h.svc.Checkout == nil {
		writeError(w, http.StatusServiceUnavailable, "checkout sessions are disabled")
		return
	}
	var req openSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TransactionRef == "" {
		writeError(w, http.StatusBadRequest, "transaction_ref is required")
		return
	}
	s, err := h.svc.Checkout.Open(r.Context(), req.TransactionRef, req.PaymentMethod)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// CloseSession abandons a checkout and stops its timers.
func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.svc.Checkout.Remove(s.Ref())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

func (h *Handlers) SessionProcessing(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, (*checkout.Session).SetProcessing)
}

func (h *Handlers) SessionRetry(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, (*checkout.Session).Retry)
}

func (h *Handlers) sessionAction(w http.ResponseWriter, r *http.Request, action func(*checkout.Session) bool) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !action(s) {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "transition not allowed", "session": s.Snapshot()})
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handlers) SessionReset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Reset(); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// --- Notifications ---

func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if h.svc.Notifications == nil {
		writeJSON(w, http.StatusOK, map[string]any{"notifications": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": h.svc.Notifications.Recent()})
}
