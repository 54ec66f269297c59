package httphandler

import (
	"net/http"
	"strings"

	"github.com/ericfisherdev/ecovault/internal/application"
	"github.com/ericfisherdev/ecovault/internal/domain/model"
)

// maxImportSize caps the multipart body of an import upload.
const maxImportSize = 10 << 20

// Import applies an uploaded CSV file as one batch. The multipart form holds
// the file under "file" and the entity kind under "type". Row failures are
// reported in the response body; the request itself succeeds.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(ctx)
	if err := application.RequireAdmin(actor); err != nil {
		h.writeServiceError(w, "import", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	kind := model.ImportKind(strings.TrimSpace(r.FormValue("type")))
	if kind == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	table, err := application.ParseCSV(file)
	if err != nil {
		h.writeServiceError(w, "parse import file", err)
		return
	}

	result, err := h.imports.ImportBatch(ctx, kind, table, actor)
	if err != nil {
		h.writeServiceError(w, "import batch", err)
		return
	}

	writeJSON(w, http.StatusOK, toImportResponse(*result, h.importErrorLimit))
}

// SyncProfiles reconciles ecosystems against the external profile list.
// Admin only. Nothing is persisted.
func (h *Handler) SyncProfiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := application.RequireAdmin(actorFrom(ctx)); err != nil {
		h.writeServiceError(w, "sync profiles", err)
		return
	}

	if h.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "profile sync is not configured")
		return
	}

	report, err := h.sync.Sync(ctx)
	if err != nil {
		h.logger.Error("profile sync failed", "error", err)
		writeError(w, http.StatusBadGateway, "profile source unavailable")
		return
	}

	writeJSON(w, http.StatusOK, toSyncResponse(*report))
}
