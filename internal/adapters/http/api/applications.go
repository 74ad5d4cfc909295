// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/fieldwork-io/fieldwork/internal/domain/model"
)

// ApplicationsHandler handles researcher review decisions.
type ApplicationsHandler struct {
	deps Dependencies
}

// NewApplicationsHandler creates a new applications handler.
func NewApplicationsHandler(deps Dependencies) *ApplicationsHandler {
	return &ApplicationsHandler{deps: deps}
}

// approveResponse reports the match behind an approval. Created is false
// when the approval was a replay of an earlier decision.
type approveResponse struct {
	Match   model.Match `json:"match"`
	Created bool        `json:"created"`
}

// HandleGetApplication handles GET /applications/{id} requests.
func (h *ApplicationsHandler) HandleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.deps.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// HandleApprove handles POST /applications/{id}/approve requests.
func (h *ApplicationsHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	match, created, err := h.deps.ApproveApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, approveResponse{Match: match, Created: created})
}

// HandleReject handles POST /applications/{id}/reject requests.
func (h *ApplicationsHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	app, err := h.deps.RejectApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// HandleWaitlist handles POST /applications/{id}/waitlist requests.
func (h *ApplicationsHandler) HandleWaitlist(w http.ResponseWriter, r *http.Request) {
	app, err := h.deps.WaitlistApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}
