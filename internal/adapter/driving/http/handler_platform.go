package httphandler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/ecovault/internal/application"
	"github.com/ericfisherdev/ecovault/internal/domain/model"
)

// ListPlatforms returns one page of an ecosystem's platforms. Supports the
// search, type, totp, page and limit query parameters.
func (h *Handler) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	ecosystemID, ok := pathID(w, r)
	if !ok {
		return
	}

	filter, err := parsePlatformFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if err := h.ecosystems.AuthorizeEcosystem(ctx, actorFrom(ctx), ecosystemID); err != nil {
		h.writeServiceError(w, "authorize ecosystem", err)
		return
	}

	listing, err := h.credentials.ListPlatforms(ctx, ecosystemID, filter)
	if err != nil {
		h.writeServiceError(w, "list platforms", err)
		return
	}

	writeJSON(w, http.StatusOK, toPlatformListResponse(*listing))
}

// CreatePlatform registers a platform under an ecosystem.
func (h *Handler) CreatePlatform(w http.ResponseWriter, r *http.Request) {
	ecosystemID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req CreatePlatformRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	actor := actorFrom(ctx)
	if err := h.ecosystems.AuthorizeEcosystem(ctx, actor, ecosystemID); err != nil {
		h.writeServiceError(w, "authorize ecosystem", err)
		return
	}

	created, err := h.credentials.RegisterPlatform(ctx, application.PlatformRegistration{
		EcosystemID: ecosystemID,
		Name:        req.Name,
		Type:        req.Type,
		Username:    req.Username,
		Password:    req.Password,
		ProfileID:   req.ProfileID,
		ProfileURL:  req.ProfileURL,
	}, actor.UserID)
	if err != nil {
		h.writeServiceError(w, "register platform", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPlatformResponse(*created))
}

// UpdatePlatform applies a credential update through the audited
// diff-and-write path. A version in the body guards against lost updates.
func (h *Handler) UpdatePlatform(w http.ResponseWriter, r *http.Request) {
	platformID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdatePlatformRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	actor := actorFrom(ctx)
	if err := h.ecosystems.AuthorizePlatform(ctx, actor, platformID); err != nil {
		h.writeServiceError(w, "authorize platform", err)
		return
	}

	updated, err := h.credentials.UpdateCredential(ctx, platformID, model.CredentialUpdate{
		Username:        req.Username,
		Password:        req.Password,
		ProfileID:       req.ProfileID,
		ProfileURL:      req.ProfileURL,
		ExpectedVersion: req.Version,
	}, actor.UserID)
	if err != nil {
		h.writeServiceError(w, "update credential", err)
		return
	}

	writeJSON(w, http.StatusOK, toPlatformResponse(*updated))
}

// PlatformHistory returns the platform's credential ledger, newest first.
func (h *Handler) PlatformHistory(w http.ResponseWriter, r *http.Request) {
	platformID, ok := pathID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.ecosystems.AuthorizePlatform(ctx, actorFrom(ctx), platformID); err != nil {
		h.writeServiceError(w, "authorize platform", err)
		return
	}

	entries, err := h.credentials.History(ctx, platformID)
	if err != nil {
		h.writeServiceError(w, "list history", err)
		return
	}

	resp := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toHistoryEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

// EnrollTOTP stores a TOTP seed for the platform and enables TOTP. A code in
// the body must verify against the seed.
func (h *Handler) EnrollTOTP(w http.ResponseWriter, r *http.Request) {
	platformID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req EnrollTOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	actor := actorFrom(ctx)
	if err := h.ecosystems.AuthorizePlatform(ctx, actor, platformID); err != nil {
		h.writeServiceError(w, "authorize platform", err)
		return
	}

	if err := h.credentials.EnrollTOTP(ctx, platformID, req.Secret, req.Code, actor.UserID); err != nil {
		h.writeServiceError(w, "enroll totp", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DisableTOTP turns TOTP off for the platform, keeping the stored seed.
func (h *Handler) DisableTOTP(w http.ResponseWriter, r *http.Request) {
	platformID, ok := pathID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	actor := actorFrom(ctx)
	if err := h.ecosystems.AuthorizePlatform(ctx, actor, platformID); err != nil {
		h.writeServiceError(w, "authorize platform", err)
		return
	}

	if err := h.credentials.DisableTOTP(ctx, platformID, actor.UserID); err != nil {
		h.writeServiceError(w, "disable totp", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// VerifyTOTP checks a code against a seed without touching any platform.
func (h *Handler) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyTOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	valid, err := h.credentials.VerifyTOTP(req.Code, req.Secret)
	if err != nil {
		h.writeServiceError(w, "verify totp", err)
		return
	}

	writeJSON(w, http.StatusOK, VerifyTOTPResponse{Valid: valid})
}

// parsePlatformFilter reads listing options from the query string.
func parsePlatformFilter(r *http.Request) (model.PlatformFilter, error) {
	q := r.URL.Query()
	filter := model.PlatformFilter{
		Search: q.Get("search"),
		Type:   q.Get("type"),
	}

	if v := q.Get("totp"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("invalid totp filter")
		}
		filter.TOTP = &enabled
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &filter.Page}, {"limit", &filter.Limit}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, fmt.Errorf("invalid %s", p.name)
		}
		*p.dst = n
	}

	return filter, nil
}
