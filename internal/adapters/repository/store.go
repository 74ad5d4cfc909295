// Package repository defines the recruitment store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/fieldwork-io/fieldwork/internal/domain/model"
)

// Stats summarizes the store contents for the stats endpoint.
type Stats struct {
	Studies      int64                             `json:"studies"`
	Participants int64                             `json:"participants"`
	Applications int64                             `json:"applications"`
	ByStatus     map[model.ApplicationStatus]int64 `json:"applications_by_status"`
	Matches      int64                             `json:"matches"`
	Sessions     int64                             `json:"sessions"`
	Transcripts  int64                             `json:"transcripts"`
	Insights     int64                             `json:"insights"`
}

// Store provides read/write access to the recruitment state. Implementations
// enforce the pipeline's uniqueness constraints at the write path: one
// application per (study, participant), one match per application, one
// session per match, one transcript per session. Insights are append-only.
type Store interface {
	// PutStudy inserts or replaces a study.
	PutStudy(ctx context.Context, study model.Study) error
	// GetStudy returns ErrNotFound for an unknown id.
	GetStudy(ctx context.Context, id string) (model.Study, error)

	// PutParticipant inserts or replaces a participant.
	PutParticipant(ctx context.Context, participant model.Participant) error
	// GetParticipant returns ErrNotFound for an unknown id.
	GetParticipant(ctx context.Context, id string) (model.Participant, error)

	// CreateApplication inserts a new application. Returns ErrConflict when
	// one already exists for the same (study, participant) pair.
	CreateApplication(ctx context.Context, app model.Application) error
	// GetApplication returns ErrNotFound for an unknown id.
	GetApplication(ctx context.Context, id string) (model.Application, error)
	// GetApplicationByStudyParticipant looks an application up by its natural key.
	GetApplicationByStudyParticipant(ctx context.Context, studyID, participantID string) (model.Application, error)
	// ListApplicationsByStudy returns applications for a study ordered by
	// creation time, newest first, capped at limit.
	ListApplicationsByStudy(ctx context.Context, studyID string, limit int) ([]model.Application, error)
	// CountApplicationsByStudy counts a study's applications in one status.
	CountApplicationsByStudy(ctx context.Context, studyID string, status model.ApplicationStatus) (int64, error)

	// SetApplicationStatus transitions a pending application to a terminal
	// status and returns the updated row. A terminal application returns
	// ErrConflict; an unknown id returns ErrNotFound.
	SetApplicationStatus(ctx context.Context, id string, to model.ApplicationStatus) (model.Application, error)

	// ApproveAndMatch approves a pending application and creates its match in
	// one atomic step, so no approval can exist without a match. When the
	// application is already approved the existing match is returned with
	// created=false. A rejected or waitlisted application returns ErrConflict.
	ApproveAndMatch(ctx context.Context, applicationID string, match model.Match) (m model.Match, created bool, err error)

	// GetMatch returns ErrNotFound for an unknown id.
	GetMatch(ctx context.Context, id string) (model.Match, error)
	// GetMatchByApplication looks a match up by its application.
	GetMatchByApplication(ctx context.Context, applicationID string) (model.Match, error)
	// ScheduleMatch sets the match's scheduled time and external event
	// reference and returns the updated row. Rescheduling is allowed.
	ScheduleMatch(ctx context.Context, id string, at time.Time, externalEventRef string) (model.Match, error)

	// CreateSession records a session for a match. Returns ErrConflict when
	// the match already has one, ErrNotFound when the match is unknown.
	CreateSession(ctx context.Context, session model.Session) error
	// GetSession returns ErrNotFound for an unknown id.
	GetSession(ctx context.Context, id string) (model.Session, error)

	// CreateTranscript records a transcript for a session. Returns ErrConflict
	// when the session already has one, ErrNotFound when the session is unknown.
	CreateTranscript(ctx context.Context, transcript model.Transcript) error
	// GetTranscriptBySession returns ErrNotFound when the session has no transcript.
	GetTranscriptBySession(ctx context.Context, sessionID string) (model.Transcript, error)

	// AddInsight appends an insight unit. Returns ErrNotFound when the session
	// is unknown.
	AddInsight(ctx context.Context, unit model.InsightUnit) error
	// ListInsightsBySession returns a session's insights in insertion order.
	ListInsightsBySession(ctx context.Context, sessionID string) ([]model.InsightUnit, error)

	// Counts reports aggregate totals.
	Counts(ctx context.Context) (Stats, error)

	// Close releases any underlying resources.
	Close() error
}
