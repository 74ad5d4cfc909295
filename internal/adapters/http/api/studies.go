// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// StudiesHandler handles study management and application intake.
type StudiesHandler struct {
	deps Dependencies
}

// NewStudiesHandler creates a new studies handler.
func NewStudiesHandler(deps Dependencies) *StudiesHandler {
	return &StudiesHandler{deps: deps}
}

// createStudyRequest mirrors the POST /studies body.
type createStudyRequest struct {
	Title           string          `json:"title"`
	Criteria        json.RawMessage `json:"criteria,omitempty"`
	AutoApprove     bool            `json:"auto_approve"`
	MaxParticipants int             `json:"max_participants"`
}

func (c createStudyRequest) validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return errors.New("missing title")
	}
	if c.MaxParticipants < 0 {
		return errors.New("max_participants must not be negative")
	}
	return nil
}

// applyRequest mirrors the POST /studies/{id}/apply body.
type applyRequest struct {
	ParticipantID string                 `json:"participant_id"`
	Answers       map[string]interface{} `json:"answers,omitempty"`
}

// HandleCreateStudy handles POST /studies requests.
func (h *StudiesHandler) HandleCreateStudy(w http.ResponseWriter, r *http.Request) {
	var req createStudyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	study, err := h.deps.CreateStudy(r.Context(), req.Title, req.Criteria, req.AutoApprove, req.MaxParticipants)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, study)
}

// HandleGetStudy handles GET /studies/{id} requests.
func (h *StudiesHandler) HandleGetStudy(w http.ResponseWriter, r *http.Request) {
	study, err := h.deps.GetStudy(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, study)
}

// HandleCloseStudy handles POST /studies/{id}/close requests.
func (h *StudiesHandler) HandleCloseStudy(w http.ResponseWriter, r *http.Request) {
	study, err := h.deps.CloseStudy(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, study)
}

// HandleApply handles POST /studies/{id}/apply requests.
func (h *StudiesHandler) HandleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.ParticipantID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing participant_id"))
		return
	}
	app, err := h.deps.SubmitApplication(r.Context(), r.PathValue("id"), req.ParticipantID, req.Answers)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// HandleListApplications handles GET /studies/{id}/applications requests.
// The optional limit query parameter caps the page size.
func (h *StudiesHandler) HandleListApplications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid limit"))
			return
		}
		limit = parsed
	}
	apps, err := h.deps.ListApplications(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}
