package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-importer/internal/api/middleware"
	infraBQ "github.com/dvloznov/bank-importer/internal/infra/bigquery"
)

// CategoryLister reads the active category taxonomy.
type CategoryLister interface {
	ListActiveCategories(ctx context.Context) ([]infraBQ.CategoryRow, error)
}

// CategoriesHandler handles category endpoints.
type CategoriesHandler struct {
	store CategoryLister
	log   zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(store CategoryLister, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{store: store, log: log}
}

// List handles GET /api/categories.
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	categories, err := h.store.ListActiveCategories(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}
