package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-importer/internal/api/middleware"
	"github.com/dvloznov/bank-importer/internal/importer"
	"github.com/dvloznov/bank-importer/internal/invoices"
	"github.com/dvloznov/bank-importer/internal/matching"
)

// InvoicesHandler handles invoice and suggestion endpoints.
type InvoicesHandler struct {
	svc     *invoices.Service
	matcher *matching.Matcher
	log     zerolog.Logger
}

// NewInvoicesHandler creates a new invoices handler.
func NewInvoicesHandler(svc *invoices.Service, matcher *matching.Matcher, log zerolog.Logger) *InvoicesHandler {
	return &InvoicesHandler{svc: svc, matcher: matcher, log: log}
}

// Register handles POST /api/invoices. The document must already be
// stored with the document provider.
func (h *InvoicesHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DocumentID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	inv, err := h.svc.Register(ctx, ownerID, req.DocumentID)
	if err != nil {
		h.log.Error().Err(err).Str("document_id", req.DocumentID).Msg("Failed to register invoice")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to register invoice")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, inv)
}

// List handles GET /api/invoices.
func (h *InvoicesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	list, err := h.svc.List(ctx, ownerID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list invoices")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list invoices")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"invoices": list,
		"count":    len(list),
	})
}

// Extract handles POST /api/invoices/{id}/extract. It queues an
// extraction job and returns immediately.
func (h *InvoicesHandler) Extract(w http.ResponseWriter, r *http.Request, invoiceID string) {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	jobID, err := h.svc.RequestExtraction(ctx, ownerID, invoiceID)
	if err != nil {
		h.writeInvoiceError(w, err, "Failed to queue extraction")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"invoice_id": invoiceID,
		"job_id":     jobID,
		"status":     string(invoices.ExtractionPending),
	})
}

// Link handles POST /api/invoices/{id}/link.
func (h *InvoicesHandler) Link(w http.ResponseWriter, r *http.Request, invoiceID string) {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	var req struct {
		TransactionID string `json:"transaction_id"`
		MatchType     string `json:"match_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TransactionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}

	matchType := invoices.MatchManual
	if req.MatchType == string(invoices.MatchSuggested) {
		matchType = invoices.MatchSuggested
	}

	if err := h.svc.Link(ctx, ownerID, invoiceID, req.TransactionID, matchType); err != nil {
		h.writeInvoiceError(w, err, "Failed to link invoice")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"invoice_id":     invoiceID,
		"transaction_id": req.TransactionID,
		"match_type":     string(matchType),
	})
}

// Unlink handles POST /api/invoices/{id}/unlink.
func (h *InvoicesHandler) Unlink(w http.ResponseWriter, r *http.Request, invoiceID string) {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	if err := h.svc.Unlink(ctx, ownerID, invoiceID); err != nil {
		h.writeInvoiceError(w, err, "Failed to unlink invoice")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"invoice_id": invoiceID,
	})
}

// Suggestions handles GET /api/transactions/{id}/suggestions.
func (h *InvoicesHandler) Suggestions(w http.ResponseWriter, r *http.Request, transactionID string) {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	suggestions, err := h.matcher.SuggestInvoices(ctx, ownerID, transactionID)
	if err != nil {
		if errors.Is(err, importer.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.log.Error().Err(err).Str("transaction_id", transactionID).Msg("Failed to compute suggestions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute suggestions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id": transactionID,
		"suggestions":    suggestions,
		"count":          len(suggestions),
	})
}

func (h *InvoicesHandler) writeInvoiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, invoices.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Invoice not found")
	case errors.Is(err, invoices.ErrAlreadyLinked):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Msg(fallback)
		middleware.WriteError(w, http.StatusInternalServerError, fallback)
	}
}
