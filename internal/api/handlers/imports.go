// Package handlers implements the HTTP endpoints. Handlers stay thin:
// decode, delegate to a service, encode, map domain errors to status
// codes.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-importer/internal/api/middleware"
	"github.com/dvloznov/bank-importer/internal/importer"
	"github.com/dvloznov/bank-importer/internal/statement"
)

// ImportsHandler handles statement import endpoints.
type ImportsHandler struct {
	svc *importer.Service
	log zerolog.Logger
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(svc *importer.Service, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{svc: svc, log: log}
}

// Create handles POST /api/imports. The statement file arrives as
// multipart form field "file".
func (h *ImportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	if err := r.ParseMultipartForm(statement.MaxFileSize); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Form field 'file' is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, statement.MaxFileSize+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	result, err := h.svc.StartImport(ctx, ownerID, importer.Upload{
		FileName: header.Filename,
		Size:     int64(len(content)),
		Content:  content,
	})
	if err != nil {
		h.writeImportError(w, err, "Failed to start import")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, result)
}

// History handles GET /api/imports.
func (h *ImportsHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	imports, err := h.svc.History(ctx, ownerID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list imports")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list imports")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"imports": imports,
		"count":   len(imports),
	})
}

// Preview handles GET /api/imports/{id}/preview.
func (h *ImportsHandler) Preview(w http.ResponseWriter, r *http.Request, importID string) {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	preview, err := h.svc.GetPreview(ctx, ownerID, importID)
	if err != nil {
		h.writeImportError(w, err, "Failed to load preview")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"import_id": importID,
		"preview":   preview,
	})
}

// Confirm handles POST /api/imports/{id}/confirm. The body carries the
// caller-reviewed rows, possibly edited since the preview.
func (h *ImportsHandler) Confirm(w http.ResponseWriter, r *http.Request, importID string) {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	var req struct {
		Rows []statement.Candidate `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "No rows to import")
		return
	}

	result, err := h.svc.ConfirmImport(ctx, ownerID, importID, req.Rows)
	if err != nil {
		h.writeImportError(w, err, "Failed to confirm import")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// Cancel handles DELETE /api/imports/{id}.
func (h *ImportsHandler) Cancel(w http.ResponseWriter, r *http.Request, importID string) {
	ctx := r.Context()
	ownerID := middleware.OwnerID(ctx)

	if err := h.svc.CancelImport(ctx, ownerID, importID); err != nil {
		h.writeImportError(w, err, "Failed to cancel import")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"import_id": importID,
		"status":    string(importer.StatusCancelled),
	})
}

// writeImportError maps domain errors onto HTTP status codes.
func (h *ImportsHandler) writeImportError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, importer.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Import not found")
	case errors.Is(err, importer.ErrInvalidState):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, statement.ErrUnsupportedFormat),
		errors.Is(err, statement.ErrFileTooLarge):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg(fallback)
		middleware.WriteError(w, http.StatusInternalServerError, fallback)
	}
}
