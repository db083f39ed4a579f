package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/service"
	"cucibersih/backend/internal/store"
)

func (a *API) handlePlans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	plans, err := a.service.ListPlans(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (a *API) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing merchant"))
		return
	}

	var req domain.SubscribeRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	invoice, _, err := a.billing.PurchasePlan(r.Context(), actor.MerchantID, req.PlanCode)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, errors.New("masih ada tagihan yang belum dibayar"))
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invoice": invoice})
}

func (a *API) handleSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sub, err := a.service.CurrentSubscription(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscription": sub})
}

func (a *API) handleInvoiceList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	invoices, err := a.service.ListBillingInvoices(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

// handleProofUpload is unauthenticated: the signed token inside the body is
// the credential, scoped to exactly one invoice.
func (a *API) handleProofUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ProofUploadRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	invoice, err := a.billing.UploadProof(r.Context(), req.Token, req.ProofURL)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, errors.New("bukti pembayaran sudah pernah diunggah"))
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

// handleInvoiceActions serves the operator decision endpoint,
// PUT /api/v1/billing/invoices/{id}/decision, authorized by the shared cron
// token rather than a merchant session.
func (a *API) handleInvoiceActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/billing/invoices/")
	invoiceID, action, hasAction := strings.Cut(rest, "/")
	if invoiceID == "" || !hasAction || action != "decision" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.requireCronToken(w, r) {
		return
	}

	var req domain.InvoiceDecisionRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	invoice, err := a.billing.Decide(r.Context(), invoiceID, req.Status)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, errors.New("tagihan sudah diputuskan"))
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

// handleBillingScan triggers the daily renewal/closure scan. Scheduled
// callers authenticate with the X-Cron-Token header.
func (a *API) handleBillingScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.requireCronToken(w, r) {
		return
	}

	result, err := a.billing.RunDailyScan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
