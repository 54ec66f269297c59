package httphandler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/ecovault/internal/application"
	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	credentials      *application.CredentialService
	ecosystems       *application.EcosystemService
	imports          *application.ImportService
	sync             *application.SyncService
	importErrorLimit int
	logger           *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. syncSvc may be
// nil when no external profile source is configured; the sync endpoint then
// answers 503.
func NewHandler(
	credentials *application.CredentialService,
	ecosystems *application.EcosystemService,
	imports *application.ImportService,
	syncSvc *application.SyncService,
	importErrorLimit int,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		credentials:      credentials,
		ecosystems:       ecosystems,
		imports:          imports,
		sync:             syncSvc,
		importErrorLimit: importErrorLimit,
		logger:           logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. Every route except health requires
// an actor.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("GET /api/v1/ecosystems", h.ListEcosystems)
	api.HandleFunc("POST /api/v1/ecosystems", h.CreateEcosystem)
	api.HandleFunc("PUT /api/v1/ecosystems/{id}/active", h.SetEcosystemActive)
	api.HandleFunc("GET /api/v1/ecosystems/{id}/platforms", h.ListPlatforms)
	api.HandleFunc("POST /api/v1/ecosystems/{id}/platforms", h.CreatePlatform)
	api.HandleFunc("PUT /api/v1/platforms/{id}", h.UpdatePlatform)
	api.HandleFunc("GET /api/v1/platforms/{id}/history", h.PlatformHistory)
	api.HandleFunc("PUT /api/v1/platforms/{id}/totp", h.EnrollTOTP)
	api.HandleFunc("DELETE /api/v1/platforms/{id}/totp", h.DisableTOTP)
	api.HandleFunc("POST /api/v1/totp/verify", h.VerifyTOTP)
	api.HandleFunc("POST /api/v1/import", h.Import)
	api.HandleFunc("POST /api/v1/sync/profiles", h.SyncProfiles)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("/api/v1/", actorMiddleware(api))

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListEcosystems returns the ecosystems visible to the actor.
func (h *Handler) ListEcosystems(w http.ResponseWriter, r *http.Request) {
	ecosystems, err := h.ecosystems.List(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, "list ecosystems", err)
		return
	}

	resp := make([]EcosystemResponse, 0, len(ecosystems))
	for _, e := range ecosystems {
		resp = append(resp, toEcosystemResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateEcosystem adds a new ecosystem. Admin only.
func (h *Handler) CreateEcosystem(w http.ResponseWriter, r *http.Request) {
	var req CreateEcosystemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	eco := model.Ecosystem{
		Name:         req.Name,
		Theme:        req.Theme,
		Description:  req.Description,
		ActiveStatus: req.ActiveStatus == nil || *req.ActiveStatus,
	}

	created, err := h.ecosystems.Create(r.Context(), actorFrom(r.Context()), eco)
	if err != nil {
		h.writeServiceError(w, "create ecosystem", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEcosystemResponse(*created))
}

// SetEcosystemActive activates or deactivates an ecosystem. Admin only.
func (h *Handler) SetEcosystemActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req SetActiveRequest
	if err := decodeJSON(r, &req); err != nil || req.Active == nil {
		writeError(w, http.StatusBadRequest, "invalid request body: active is required")
		return
	}

	if err := h.ecosystems.SetActive(r.Context(), actorFrom(r.Context()), id, *req.Active); err != nil {
		h.writeServiceError(w, "set ecosystem active", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// pathID parses the {id} path segment, writing a 400 when it is not a
// positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// writeServiceError maps application and store errors to a status code.
// Client errors carry a message safe to show; anything unrecognized is
// logged and answered with a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, driven.ErrPlatformNotFound):
		writeError(w, http.StatusNotFound, "platform not found")
	case errors.Is(err, driven.ErrEcosystemNotFound):
		writeError(w, http.StatusNotFound, "ecosystem not found")
	case errors.Is(err, driven.ErrConflict):
		writeError(w, http.StatusConflict, "platform was modified concurrently, reload and retry")
	case errors.Is(err, driven.ErrDuplicate):
		writeError(w, http.StatusConflict, "record already exists")
	case errors.Is(err, application.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, application.ErrEmptySeed):
		writeError(w, http.StatusBadRequest, application.ErrEmptySeed.Error())
	case errors.Is(err, application.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, application.ErrInvalidCode.Error())
	case errors.Is(err, driven.ErrInvalidSeed):
		writeError(w, http.StatusBadRequest, driven.ErrInvalidSeed.Error())
	case errors.Is(err, application.ErrValidation),
		errors.Is(err, application.ErrEmptyTable),
		errors.Is(err, application.ErrMissingColumns),
		errors.Is(err, application.ErrUnknownColumns),
		errors.Is(err, application.ErrUnknownImportKind):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
