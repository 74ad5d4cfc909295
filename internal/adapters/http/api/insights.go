// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// InsightsHandler handles session lookup and insight reads and generation.
type InsightsHandler struct {
	deps Dependencies
}

// NewInsightsHandler creates a new insights handler.
func NewInsightsHandler(deps Dependencies) *InsightsHandler {
	return &InsightsHandler{deps: deps}
}

// generateRequest mirrors the POST /insights/generate body.
type generateRequest struct {
	SessionID string `json:"session_id"`
}

// HandleGetSession handles GET /sessions/{id} requests.
func (h *InsightsHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.deps.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HandleListInsights handles GET /sessions/{id}/insights requests.
func (h *InsightsHandler) HandleListInsights(w http.ResponseWriter, r *http.Request) {
	units, err := h.deps.ListInsights(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

// HandleGenerate handles POST /insights/generate requests.
func (h *InsightsHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing session_id"))
		return
	}
	unit, err := h.deps.GenerateInsight(r.Context(), req.SessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, unit)
}
