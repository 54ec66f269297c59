package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/ecovault/internal/application"
	"github.com/ericfisherdev/ecovault/internal/domain/model"
)

// decodeJSON reads a JSON request body into v. Fields v does not declare are
// rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// EcosystemResponse is the JSON representation of an ecosystem.
type EcosystemResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Theme        string `json:"theme"`
	Description  string `json:"description"`
	ActiveStatus bool   `json:"active_status"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// CreateEcosystemRequest is the JSON body for the create ecosystem endpoint.
// ActiveStatus defaults to true when omitted.
type CreateEcosystemRequest struct {
	Name         string `json:"name"`
	Theme        string `json:"theme"`
	Description  string `json:"description"`
	ActiveStatus *bool  `json:"active_status"`
}

// SetActiveRequest is the JSON body for the ecosystem activation endpoint.
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// PlatformResponse is the JSON representation of a platform with its
// username and password revealed to the authorized caller.
type PlatformResponse struct {
	ID          int64  `json:"id"`
	EcosystemID int64  `json:"ecosystem_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	ProfileID   string `json:"profile_id"`
	ProfileURL  string `json:"profile_url"`
	TOTPEnabled bool   `json:"totp_enabled"`
	Version     int64  `json:"version"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// PlatformListResponse is one page of platforms.
type PlatformListResponse struct {
	Items      []PlatformResponse `json:"items"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"total_pages"`
}

// CreatePlatformRequest is the JSON body for the register platform endpoint.
type CreatePlatformRequest struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Username   *string `json:"username"`
	Password   *string `json:"password"`
	ProfileID  string  `json:"profile_id"`
	ProfileURL string  `json:"profile_url"`
}

// UpdatePlatformRequest is the JSON body for the credential update endpoint.
// Omitted fields are left untouched; an empty string clears a secret.
type UpdatePlatformRequest struct {
	Username   *string `json:"username"`
	Password   *string `json:"password"`
	ProfileID  *string `json:"profile_id"`
	ProfileURL *string `json:"profile_url"`
	Version    *int64  `json:"version"`
}

// HistoryEntryResponse is the JSON representation of a ledger row. Values
// of secret fields are never sent; only profile_id values are included.
type HistoryEntryResponse struct {
	ID        int64   `json:"id"`
	Field     string  `json:"field"`
	OldValue  *string `json:"old_value,omitempty"`
	NewValue  *string `json:"new_value,omitempty"`
	ChangedBy *int64  `json:"changed_by"`
	ChangedAt string  `json:"changed_at"`
}

// EnrollTOTPRequest is the JSON body for the TOTP enrollment endpoint.
type EnrollTOTPRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

// VerifyTOTPRequest is the JSON body for the TOTP verification endpoint.
type VerifyTOTPRequest struct {
	Code   string `json:"code"`
	Secret string `json:"secret"`
}

// VerifyTOTPResponse reports the result of a TOTP check.
type VerifyTOTPResponse struct {
	Valid bool `json:"valid"`
}

// ImportResponse summarizes an import batch. Errors holds at most the
// configured number of row messages; MoreErrors counts the rest.
type ImportResponse struct {
	BatchID    string   `json:"batch_id"`
	Kind       string   `json:"kind"`
	Imported   int      `json:"imported"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors"`
	MoreErrors int      `json:"more_errors"`
}

// SyncResponse is the JSON representation of a profile reconciliation.
type SyncResponse struct {
	Summary           SyncSummaryResponse     `json:"summary"`
	Matched           []SyncMatchResponse     `json:"matched"`
	UnmatchedLocal    []SyncEcosystemResponse `json:"unmatched_local"`
	UnmatchedExternal []SyncProfileResponse   `json:"unmatched_external"`
}

// SyncSummaryResponse carries the size of each reconciliation set.
type SyncSummaryResponse struct {
	Matched           int `json:"matched"`
	UnmatchedLocal    int `json:"unmatched_local"`
	UnmatchedExternal int `json:"unmatched_external"`
}

// SyncMatchResponse pairs an ecosystem with an external profile.
type SyncMatchResponse struct {
	EcosystemID   int64  `json:"ecosystem_id"`
	EcosystemName string `json:"ecosystem_name"`
	ProfileID     string `json:"profile_id"`
	ProfileName   string `json:"profile_name"`
}

// SyncEcosystemResponse is an ecosystem with no external profile.
type SyncEcosystemResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SyncProfileResponse is an external profile with no ecosystem.
type SyncProfileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toEcosystemResponse(e model.Ecosystem) EcosystemResponse {
	return EcosystemResponse{
		ID:           e.ID,
		Name:         e.Name,
		Theme:        e.Theme,
		Description:  e.Description,
		ActiveStatus: e.ActiveStatus,
		CreatedAt:    formatTime(e.CreatedAt),
		UpdatedAt:    formatTime(e.UpdatedAt),
	}
}

func toPlatformResponse(p model.RevealedCredential) PlatformResponse {
	return PlatformResponse{
		ID:          p.ID,
		EcosystemID: p.EcosystemID,
		Name:        p.Name,
		Type:        p.Type,
		Username:    p.Username,
		Password:    p.Password,
		ProfileID:   p.ProfileID,
		ProfileURL:  p.ProfileURL,
		TOTPEnabled: p.TOTPEnabled,
		Version:     p.Version,
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
}

func toPlatformListResponse(l application.PlatformListing) PlatformListResponse {
	items := make([]PlatformResponse, 0, len(l.Items))
	for _, p := range l.Items {
		items = append(items, toPlatformResponse(p))
	}
	return PlatformListResponse{
		Items:      items,
		Total:      l.Total,
		Page:       l.Page,
		Limit:      l.Limit,
		TotalPages: l.TotalPages(),
	}
}

func toHistoryEntryResponse(e model.CredentialHistoryEntry) HistoryEntryResponse {
	resp := HistoryEntryResponse{
		ID:        e.ID,
		Field:     string(e.Field),
		ChangedBy: e.ChangedBy,
		ChangedAt: formatTime(e.ChangedAt),
	}
	if e.Field == model.FieldProfileID {
		resp.OldValue = e.OldValue
		resp.NewValue = e.NewValue
	}
	return resp
}

func toImportResponse(r application.ImportResult, errorLimit int) ImportResponse {
	msgs, more := r.Display(errorLimit)
	return ImportResponse{
		BatchID:    r.BatchID.String(),
		Kind:       string(r.Kind),
		Imported:   r.Imported,
		Failed:     len(r.Errors),
		Errors:     msgs,
		MoreErrors: more,
	}
}

func toSyncResponse(r application.SyncReport) SyncResponse {
	resp := SyncResponse{
		Summary: SyncSummaryResponse{
			Matched:           r.Summary.Matched,
			UnmatchedLocal:    r.Summary.UnmatchedLocal,
			UnmatchedExternal: r.Summary.UnmatchedExternal,
		},
		Matched:           make([]SyncMatchResponse, 0, len(r.Outcome.Matched)),
		UnmatchedLocal:    make([]SyncEcosystemResponse, 0, len(r.Outcome.UnmatchedLocal)),
		UnmatchedExternal: make([]SyncProfileResponse, 0, len(r.Outcome.UnmatchedExternal)),
	}
	for _, m := range r.Outcome.Matched {
		resp.Matched = append(resp.Matched, SyncMatchResponse(m))
	}
	for _, e := range r.Outcome.UnmatchedLocal {
		resp.UnmatchedLocal = append(resp.UnmatchedLocal, SyncEcosystemResponse{ID: e.ID, Name: e.Name})
	}
	for _, p := range r.Outcome.UnmatchedExternal {
		resp.UnmatchedExternal = append(resp.UnmatchedExternal, SyncProfileResponse(p))
	}
	return resp
}
