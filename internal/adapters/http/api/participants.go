// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
)

// ParticipantsHandler handles participant registration and lookup.
type ParticipantsHandler struct {
	deps Dependencies
}

// NewParticipantsHandler creates a new participants handler.
func NewParticipantsHandler(deps Dependencies) *ParticipantsHandler {
	return &ParticipantsHandler{deps: deps}
}

// registerParticipantRequest mirrors the POST /participants body. The id is
// optional; one is generated when absent.
type registerParticipantRequest struct {
	ID      string                 `json:"id,omitempty"`
	Profile map[string]interface{} `json:"profile,omitempty"`
}

// HandleRegister handles POST /participants requests.
func (h *ParticipantsHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	participant, err := h.deps.RegisterParticipant(r.Context(), req.ID, req.Profile)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, participant)
}

// HandleGetParticipant handles GET /participants/{id} requests.
func (h *ParticipantsHandler) HandleGetParticipant(w http.ResponseWriter, r *http.Request) {
	participant, err := h.deps.GetParticipant(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participant)
}
