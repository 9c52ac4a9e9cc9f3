package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/paylane/settlement/internal/anticipation"
	"github.com/paylane/settlement/internal/domain"
	"github.com/paylane/settlement/internal/ledger"
)

// --- Balance ---

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Ledger.Compute(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("tenant_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) ListCommissions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Anticipation.Commissions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commissions": list})
}

func (h *Handlers) ListDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := h.svc.Anticipation.Debts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	total := decimal.Zero
	for _, d := range debts {
		total = total.Add(d.RemainingAmount)
	}
	writeJSON(w, http.StatusOK, map[string]any{"debts": debts, "totalDebt": total})
}

// --- Withdrawals ---

type quoteRequest struct {
	TenantID string          `json:"tenantId"`
	Amount   decimal.Decimal `json:"amount"`
}

func (h *Handlers) QuoteWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	q, err := h.svc.Ledger.QuoteWithdrawal(r.Context(), req.TenantID, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handlers) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req ledger.WithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wd, err := h.svc.Ledger.RequestWithdrawal(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

func (h *Handlers) CompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	wd, err := h.svc.Ledger.CompleteWithdrawal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

func (h *Handlers) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	wd, err := h.svc.Ledger.RejectWithdrawal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

// --- Anticipation ---

type anticipationResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	*anticipation.Result
}

func (h *Handlers) Anticipate(w http.ResponseWriter, r *http.Request) {
	var req anticipation.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Anticipation.Anticipate(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, anticipationResponse{Success: true, Result: res})
	case res != nil && (errors.Is(err, domain.ErrNothingEligible) || errors.Is(err, domain.ErrBelowMinimum)):
		// Keep the per-item reasons so the caller sees why nothing ran.
		writeJSON(w, http.StatusUnprocessableEntity, anticipationResponse{Error: err.Error(), Result: res})
	default:
		writeServiceError(w, err)
	}
}

func (h *Handlers) ListStuckBatches(w http.ResponseWriter, r *http.Request) {
	age, ok := olderThan(w, r, h.svc.StuckBatchAge)
	if !ok {
		return
	}
	batches, err := h.svc.Anticipation.StuckBatches(r.Context(), age)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches, "older_than": age.String()})
}

func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Anticipation.Batch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) ReleaseCommission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Anticipation.ReleaseCommission(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(domain.CommissionPaid)})
}

type debtPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handlers) PayDebt(w http.ResponseWriter, r *http.Request) {
	var req debtPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.svc.Anticipation.PayDebt(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
