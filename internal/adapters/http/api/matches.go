// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// MatchesHandler handles match lookup and scheduling.
type MatchesHandler struct {
	deps Dependencies
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(deps Dependencies) *MatchesHandler {
	return &MatchesHandler{deps: deps}
}

// scheduleRequest mirrors the POST /matches/{id}/schedule body.
type scheduleRequest struct {
	At               string `json:"at"`
	ExternalEventRef string `json:"external_event_ref,omitempty"`
}

// HandleGetMatch handles GET /matches/{id} requests.
func (h *MatchesHandler) HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	match, err := h.deps.GetMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// HandleSchedule handles POST /matches/{id}/schedule requests.
func (h *MatchesHandler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.At == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing at"))
		return
	}
	at, err := time.Parse(time.RFC3339, req.At)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid at; must be RFC3339"))
		return
	}
	match, err := h.deps.ScheduleMatch(r.Context(), r.PathValue("id"), at, req.ExternalEventRef)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}
