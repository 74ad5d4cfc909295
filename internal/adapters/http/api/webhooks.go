// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	service "github.com/fieldwork-io/fieldwork/internal/app"
	"github.com/fieldwork-io/fieldwork/internal/domain/model"
)

// deliveryHeader carries the sender's delivery ID for webhook redelivery
// detection.
const deliveryHeader = "X-Delivery-ID"

// WebhooksHandler handles inbound session and transcript webhooks.
type WebhooksHandler struct {
	deps Dependencies
}

// NewWebhooksHandler creates a new webhooks handler.
func NewWebhooksHandler(deps Dependencies) *WebhooksHandler {
	return &WebhooksHandler{deps: deps}
}

// sessionWebhookRequest mirrors the POST /webhooks/session body.
type sessionWebhookRequest struct {
	SessionID    string `json:"session_id,omitempty"`
	MatchID      string `json:"match_id"`
	StartedAt    string `json:"started_at,omitempty"`
	EndedAt      string `json:"ended_at,omitempty"`
	RecordingRef string `json:"recording_ref,omitempty"`
}

func (s sessionWebhookRequest) validate() error {
	if strings.TrimSpace(s.MatchID) == "" {
		return errors.New("missing match_id")
	}
	for _, ts := range []string{s.StartedAt, s.EndedAt} {
		if ts == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, ts); err != nil {
			return errors.New("invalid timestamp; must be RFC3339")
		}
	}
	return nil
}

// transcriptWebhookRequest mirrors the POST /webhooks/transcript body.
type transcriptWebhookRequest struct {
	SessionID string          `json:"session_id"`
	RawText   string          `json:"raw_text"`
	Segments  json.RawMessage `json:"segments,omitempty"`
}

func (t transcriptWebhookRequest) validate() error {
	switch {
	case strings.TrimSpace(t.SessionID) == "":
		return errors.New("missing session_id")
	case strings.TrimSpace(t.RawText) == "":
		return errors.New("missing raw_text")
	}
	return nil
}

// HandleSessionCompleted handles POST /webhooks/session requests.
func (h *WebhooksHandler) HandleSessionCompleted(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.Header.Get(deliveryHeader)
	if deliveryID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing "+deliveryHeader+" header"))
		return
	}
	var req sessionWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	session := model.Session{
		ID:           req.SessionID,
		MatchID:      req.MatchID,
		StartedAt:    parseTimePtr(req.StartedAt),
		EndedAt:      parseTimePtr(req.EndedAt),
		RecordingRef: req.RecordingRef,
	}
	stored, err := h.deps.RecordSession(r.Context(), deliveryID, session)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateDelivery) {
			writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// HandleTranscriptReady handles POST /webhooks/transcript requests.
func (h *WebhooksHandler) HandleTranscriptReady(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.Header.Get(deliveryHeader)
	if deliveryID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing "+deliveryHeader+" header"))
		return
	}
	var req transcriptWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	transcript, err := h.deps.IngestTranscript(r.Context(), deliveryID, req.SessionID, req.RawText, req.Segments)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateDelivery) {
			writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, transcript)
}

func parseTimePtr(ts string) *time.Time {
	if ts == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil
	}
	parsed = parsed.UTC()
	return &parsed
}
