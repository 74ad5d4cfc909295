// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fieldwork-io/fieldwork/internal/adapters/repository"
	service "github.com/fieldwork-io/fieldwork/internal/app"
	"github.com/fieldwork-io/fieldwork/internal/domain/model"
	"github.com/fieldwork-io/fieldwork/internal/domain/rolegate"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateStudy(ctx context.Context, title string, criteria json.RawMessage, autoApprove bool, maxParticipants int) (model.Study, error)
	GetStudy(ctx context.Context, id string) (model.Study, error)
	CloseStudy(ctx context.Context, id string) (model.Study, error)

	RegisterParticipant(ctx context.Context, id string, profile map[string]interface{}) (model.Participant, error)
	GetParticipant(ctx context.Context, id string) (model.Participant, error)

	SubmitApplication(ctx context.Context, studyID, participantID string, answers map[string]interface{}) (model.Application, error)
	GetApplication(ctx context.Context, id string) (model.Application, error)
	ListApplications(ctx context.Context, studyID string, limit int) ([]model.Application, error)
	ApproveApplication(ctx context.Context, applicationID string) (model.Match, bool, error)
	RejectApplication(ctx context.Context, applicationID string) (model.Application, error)
	WaitlistApplication(ctx context.Context, applicationID string) (model.Application, error)

	GetMatch(ctx context.Context, id string) (model.Match, error)
	ScheduleMatch(ctx context.Context, matchID string, at time.Time, externalEventRef string) (model.Match, error)

	RecordSession(ctx context.Context, deliveryID string, session model.Session) (model.Session, error)
	GetSession(ctx context.Context, id string) (model.Session, error)
	IngestTranscript(ctx context.Context, deliveryID, sessionID, rawText string, segments json.RawMessage) (model.Transcript, error)

	GenerateInsight(ctx context.Context, sessionID string) (model.InsightUnit, error)
	ListInsights(ctx context.Context, sessionID string) ([]model.InsightUnit, error)

	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// Server wires HTTP routes for the recruitment API.
type Server struct {
	gate *rolegate.Gate

	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	studiesHandler      *StudiesHandler
	participantsHandler *ParticipantsHandler
	applicationsHandler *ApplicationsHandler
	matchesHandler      *MatchesHandler
	webhooksHandler     *WebhooksHandler
	insightsHandler     *InsightsHandler
}

// NewServer creates a new API server with all handlers. A nil gate disables
// authorization, which is only intended for tests and local development.
func NewServer(deps Dependencies, gate *rolegate.Gate) *Server {
	return &Server{
		gate:                gate,
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(deps),
		studiesHandler:      NewStudiesHandler(deps),
		participantsHandler: NewParticipantsHandler(deps),
		applicationsHandler: NewApplicationsHandler(deps),
		matchesHandler:      NewMatchesHandler(deps),
		webhooksHandler:     NewWebhooksHandler(deps),
		insightsHandler:     NewInsightsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	guarded := func(endpoint string, op rolegate.Operation, next http.HandlerFunc) http.HandlerFunc {
		return MetricsMiddleware(AuthMiddleware(s.gate, op, next), endpoint)
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", guarded("stats", rolegate.OpReadStats, s.statsHandler.HandleStats))

	mux.HandleFunc("POST /studies", guarded("studies", rolegate.OpCreateStudy, s.studiesHandler.HandleCreateStudy))
	mux.HandleFunc("GET /studies/{id}", guarded("studies", rolegate.OpReadPipeline, s.studiesHandler.HandleGetStudy))
	mux.HandleFunc("POST /studies/{id}/close", guarded("studies_close", rolegate.OpCreateStudy, s.studiesHandler.HandleCloseStudy))
	mux.HandleFunc("POST /studies/{id}/apply", guarded("studies_apply", rolegate.OpSubmitApplication, s.studiesHandler.HandleApply))
	mux.HandleFunc("GET /studies/{id}/applications", guarded("studies_applications", rolegate.OpListApplications, s.studiesHandler.HandleListApplications))

	mux.HandleFunc("POST /participants", guarded("participants", rolegate.OpRegisterParticipant, s.participantsHandler.HandleRegister))
	mux.HandleFunc("GET /participants/{id}", guarded("participants", rolegate.OpReadPipeline, s.participantsHandler.HandleGetParticipant))

	mux.HandleFunc("GET /applications/{id}", guarded("applications", rolegate.OpReadPipeline, s.applicationsHandler.HandleGetApplication))
	mux.HandleFunc("POST /applications/{id}/approve", guarded("applications_approve", rolegate.OpReviewApplication, s.applicationsHandler.HandleApprove))
	mux.HandleFunc("POST /applications/{id}/reject", guarded("applications_reject", rolegate.OpReviewApplication, s.applicationsHandler.HandleReject))
	mux.HandleFunc("POST /applications/{id}/waitlist", guarded("applications_waitlist", rolegate.OpReviewApplication, s.applicationsHandler.HandleWaitlist))

	mux.HandleFunc("GET /matches/{id}", guarded("matches", rolegate.OpReadPipeline, s.matchesHandler.HandleGetMatch))
	mux.HandleFunc("POST /matches/{id}/schedule", guarded("matches_schedule", rolegate.OpScheduleMatch, s.matchesHandler.HandleSchedule))

	mux.HandleFunc("POST /webhooks/session", guarded("webhooks_session", rolegate.OpIngestSession, s.webhooksHandler.HandleSessionCompleted))
	mux.HandleFunc("POST /webhooks/transcript", guarded("webhooks_transcript", rolegate.OpIngestTranscript, s.webhooksHandler.HandleTranscriptReady))

	mux.HandleFunc("GET /sessions/{id}", guarded("sessions", rolegate.OpReadPipeline, s.insightsHandler.HandleGetSession))
	mux.HandleFunc("GET /sessions/{id}/insights", guarded("sessions_insights", rolegate.OpReadInsights, s.insightsHandler.HandleListInsights))
	mux.HandleFunc("POST /insights/generate", guarded("insights_generate", rolegate.OpGenerateInsight, s.insightsHandler.HandleGenerate))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates pipeline errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrTranscriptMissing):
		writeError(w, http.StatusNotFound, "transcript_missing", err)
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, service.ErrStudyClosed):
		writeError(w, http.StatusConflict, "study_closed", err)
	case errors.Is(err, service.ErrStudyFull):
		writeError(w, http.StatusConflict, "study_full", err)
	case errors.Is(err, service.ErrInvalidCriteria):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
