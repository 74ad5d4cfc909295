// Package model contains domain entities passed between layers.
package model

import (
	"encoding/json"
	"time"
)

// StudyStatus is the lifecycle state of a study.
type StudyStatus string

// Study statuses.
const (
	StudyRecruiting StudyStatus = "recruiting"
	StudyClosed     StudyStatus = "closed"
)

// ApplicationStatus is the triage state of an application.
type ApplicationStatus string

// Application statuses. Pending is the only non-terminal state.
const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
	ApplicationWaitlist ApplicationStatus = "waitlist"
)

// Terminal reports whether no further status transition is allowed.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationApproved || s == ApplicationRejected || s == ApplicationWaitlist
}

// MatchStatus is the scheduling state of a match.
type MatchStatus string

// Match statuses. A match is scheduled iff ScheduledAt is set.
const (
	MatchAwaitingSchedule MatchStatus = "awaiting_schedule"
	MatchScheduled        MatchStatus = "scheduled"
)

// Study is a recruiting unit a participant can apply to. Criteria holds the
// screener's criteria document as raw JSON; nil means no screening.
type Study struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Status          StudyStatus     `json:"status"`
	Criteria        json.RawMessage `json:"criteria,omitempty"`
	AutoApprove     bool            `json:"auto_approve"`
	MaxParticipants int             `json:"max_participants"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Participant carries the profile document rules are resolved against.
type Participant struct {
	ID        string                 `json:"id"`
	Profile   map[string]interface{} `json:"profile"`
	CreatedAt time.Time              `json:"created_at"`
}

// Application is a participant's request to join a study. At most one exists
// per (StudyID, ParticipantID). Score is fixed at creation time.
type Application struct {
	ID            string                 `json:"id"`
	StudyID       string                 `json:"study_id"`
	ParticipantID string                 `json:"participant_id"`
	Answers       map[string]interface{} `json:"answers"`
	Score         int                    `json:"score"`
	Status        ApplicationStatus      `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Match is the scheduling unit created once an application is approved.
// At most one exists per application.
type Match struct {
	ID               string      `json:"id"`
	ApplicationID    string      `json:"application_id"`
	ScheduledAt      *time.Time  `json:"scheduled_at,omitempty"`
	ExternalEventRef string      `json:"external_event_ref,omitempty"`
	Status           MatchStatus `json:"status"`
}

// Session records a completed match. At most one exists per match.
type Session struct {
	ID           string     `json:"id"`
	MatchID      string     `json:"match_id"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	RecordingRef string     `json:"recording_ref,omitempty"`
}

// Transcript is the raw record of a session. At most one exists per session.
type Transcript struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	RawText   string          `json:"raw_text"`
	Segments  json.RawMessage `json:"segments,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// InsightUnit is one extracted finding. Many may exist per session.
type InsightUnit struct {
	ID            string          `json:"id"`
	StudyID       string          `json:"study_id"`
	ParticipantID string          `json:"participant_id"`
	SessionID     string          `json:"session_id"`
	Theme         string          `json:"theme"`
	Rationale     string          `json:"rationale"`
	Evidence      json.RawMessage `json:"evidence,omitempty"`
	Sentiment     string          `json:"sentiment,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// InsightJob is the queue payload carrying an ingested transcript to the
// insight extraction workers.
type InsightJob struct {
	JobID         string    // unique id for idempotency
	StudyID       string    // owning study
	ParticipantID string    // session participant
	SessionID     string    // source session
	RawText       string    // transcript text the extractor reads
	EnqueuedAt    time.Time // enqueue timestamp
}
