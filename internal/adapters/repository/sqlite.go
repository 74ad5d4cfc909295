package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fieldwork-io/fieldwork/internal/domain/model"
	"github.com/fieldwork-io/fieldwork/pkg/metrics"
)

// schema is applied on open. Uniqueness constraints carry the pipeline
// invariants: one application per (study, participant), one match per
// application, one session per match, one transcript per session.
const schema = `
CREATE TABLE IF NOT EXISTS studies (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	status           TEXT NOT NULL,
	criteria         TEXT,
	auto_approve     INTEGER NOT NULL DEFAULT 0,
	max_participants INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS participants (
	id         TEXT PRIMARY KEY,
	profile    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS applications (
	id             TEXT PRIMARY KEY,
	study_id       TEXT NOT NULL REFERENCES studies(id),
	participant_id TEXT NOT NULL REFERENCES participants(id),
	answers        TEXT NOT NULL,
	score          INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	UNIQUE (study_id, participant_id)
);
CREATE TABLE IF NOT EXISTS matches (
	id                 TEXT PRIMARY KEY,
	application_id     TEXT NOT NULL UNIQUE REFERENCES applications(id),
	scheduled_at       TEXT,
	external_event_ref TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	match_id      TEXT NOT NULL UNIQUE REFERENCES matches(id),
	started_at    TEXT,
	ended_at      TEXT,
	recording_ref TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS transcripts (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL UNIQUE REFERENCES sessions(id),
	raw_text   TEXT NOT NULL,
	segments   TEXT,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS insights (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL,
	study_id       TEXT NOT NULL,
	participant_id TEXT NOT NULL,
	session_id     TEXT NOT NULL REFERENCES sessions(id),
	theme          TEXT NOT NULL,
	rationale      TEXT NOT NULL,
	evidence       TEXT,
	sentiment      TEXT NOT NULL DEFAULT '',
	tags           TEXT,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_applications_study ON applications(study_id, created_at);
CREATE INDEX IF NOT EXISTS idx_insights_session ON insights(session_id, seq);
`

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. WAL mode keeps readers off the writers' lock.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under write contention.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}

func decodeTimePtr(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := decodeTime(v.String)
	return &t
}

func encodeDoc(doc map[string]interface{}) (string, error) {
	if doc == nil {
		doc = map[string]interface{}{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	return string(raw), nil
}

func decodeDoc(raw string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}

func nullRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawFromNull(v sql.NullString) json.RawMessage {
	if !v.Valid {
		return nil
	}
	return json.RawMessage(v.String)
}

func observeWrite(op string, start time.Time, err error) {
	metrics.RecordStoreWriteLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict) {
		metrics.RecordStoreError(op)
	}
}

func observeQuery(start time.Time) {
	metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000.0)
}

// PutStudy inserts or replaces a study.
func (s *SQLiteStore) PutStudy(ctx context.Context, study model.Study) (err error) {
	start := time.Now()
	defer func() { observeWrite("put_study", start, err) }()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO studies (id, title, status, criteria, auto_approve, max_participants, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			criteria = excluded.criteria,
			auto_approve = excluded.auto_approve,
			max_participants = excluded.max_participants`,
		study.ID, study.Title, string(study.Status), nullRaw(study.Criteria),
		study.AutoApprove, study.MaxParticipants, encodeTime(study.CreatedAt))
	if err != nil {
		return fmt.Errorf("upserting study: %w", err)
	}
	return nil
}

// GetStudy returns a study by id.
func (s *SQLiteStore) GetStudy(ctx context.Context, id string) (model.Study, error) {
	defer observeQuery(time.Now())
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, status, criteria, auto_approve, max_participants, created_at
		FROM studies WHERE id = ?`, id)

	var study model.Study
	var status, createdAt string
	var criteria sql.NullString
	err := row.Scan(&study.ID, &study.Title, &status, &criteria,
		&study.AutoApprove, &study.MaxParticipants, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Study{}, ErrNotFound
	}
	if err != nil {
		return model.Study{}, fmt.Errorf("reading study: %w", err)
	}
	study.Status = model.StudyStatus(status)
	study.Criteria = rawFromNull(criteria)
	study.CreatedAt = decodeTime(createdAt)
	return study, nil
}

// PutParticipant inserts or replaces a participant.
func (s *SQLiteStore) PutParticipant(ctx context.Context, participant model.Participant) (err error) {
	start := time.Now()
	defer func() { observeWrite("put_participant", start, err) }()
	profile, err := encodeDoc(participant.Profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO participants (id, profile, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET profile = excluded.profile`,
		participant.ID, profile, encodeTime(participant.CreatedAt))
	if err != nil {
		return fmt.Errorf("upserting participant: %w", err)
	}
	return nil
}

// GetParticipant returns a participant by id.
func (s *SQLiteStore) GetParticipant(ctx context.Context, id string) (model.Participant, error) {
	defer observeQuery(time.Now())
	row := s.db.QueryRowContext(ctx,
		`SELECT id, profile, created_at FROM participants WHERE id = ?`, id)

	var participant model.Participant
	var profile, createdAt string
	err := row.Scan(&participant.ID, &profile, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Participant{}, ErrNotFound
	}
	if err != nil {
		return model.Participant{}, fmt.Errorf("reading participant: %w", err)
	}
	participant.Profile, err = decodeDoc(profile)
	if err != nil {
		return model.Participant{}, err
	}
	participant.CreatedAt = decodeTime(createdAt)
	return participant, nil
}

// CreateApplication inserts a new application. The (study_id, participant_id)
// unique constraint turns a duplicate submission into ErrConflict without a
// separate read.
func (s *SQLiteStore) CreateApplication(ctx context.Context, app model.Application) (err error) {
	start := time.Now()
	defer func() { observeWrite("create_application", start, err) }()
	answers, err := encodeDoc(app.Answers)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (id, study_id, participant_id, answers, score, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		app.ID, app.StudyID, app.ParticipantID, answers, app.Score,
		string(app.Status), encodeTime(app.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking insert result: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

func scanApplication(row interface{ Scan(...interface{}) error }) (model.Application, error) {
	var app model.Application
	var answers, status, createdAt string
	err := row.Scan(&app.ID, &app.StudyID, &app.ParticipantID, &answers,
		&app.Score, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Application{}, ErrNotFound
	}
	if err != nil {
		return model.Application{}, fmt.Errorf("reading application: %w", err)
	}
	app.Answers, err = decodeDoc(answers)
	if err != nil {
		return model.Application{}, err
	}
	app.Status = model.ApplicationStatus(status)
	app.CreatedAt = decodeTime(createdAt)
	return app, nil
}

const applicationColumns = `id, study_id, participant_id, answers, score, status, created_at`

// GetApplication returns an application by id.
func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (model.Application, error) {
	defer observeQuery(time.Now())
	return scanApplication(s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id))
}

// GetApplicationByStudyParticipant looks an application up by its natural key.
func (s *SQLiteStore) GetApplicationByStudyParticipant(ctx context.Context, studyID, participantID string) (model.Application, error) {
	defer observeQuery(time.Now())
	return scanApplication(s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE study_id = ? AND participant_id = ?`,
		studyID, participantID))
}

// ListApplicationsByStudy returns a study's applications, newest first.
func (s *SQLiteStore) ListApplicationsByStudy(ctx context.Context, studyID string, limit int) ([]model.Application, error) {
	defer observeQuery(time.Now())
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE study_id = ? ORDER BY created_at DESC, id ASC LIMIT ?`, studyID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applications: %w", err)
	}
	return apps, nil
}

// CountApplicationsByStudy counts a study's applications in one status.
func (s *SQLiteStore) CountApplicationsByStudy(ctx context.Context, studyID string, status model.ApplicationStatus) (int64, error) {
	defer observeQuery(time.Now())
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE study_id = ? AND status = ?`,
		studyID, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting applications: %w", err)
	}
	return n, nil
}

// SetApplicationStatus transitions a pending application to a terminal
// status. The conditional UPDATE makes the pending precondition atomic.
func (s *SQLiteStore) SetApplicationStatus(ctx context.Context, id string, to model.ApplicationStatus) (app model.Application, err error) {
	start := time.Now()
	defer func() { observeWrite("set_application_status", start, err) }()
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(model.ApplicationPending))
	if err != nil {
		return model.Application{}, fmt.Errorf("updating application status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.Application{}, fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		// Either the row is missing or it already reached a terminal status.
		if _, getErr := s.GetApplication(ctx, id); getErr != nil {
			return model.Application{}, getErr
		}
		return model.Application{}, ErrConflict
	}
	return s.GetApplication(ctx, id)
}

// ApproveAndMatch approves a pending application and creates its match inside
// one transaction, so no approval can be observed without its match.
func (s *SQLiteStore) ApproveAndMatch(ctx context.Context, applicationID string, match model.Match) (out model.Match, created bool, err error) {
	start := time.Now()
	defer func() { observeWrite("approve_and_match", start, err) }()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Match{}, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM applications WHERE id = ?`, applicationID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Match{}, false, ErrNotFound
	}
	if err != nil {
		return model.Match{}, false, fmt.Errorf("reading application status: %w", err)
	}

	switch model.ApplicationStatus(status) {
	case model.ApplicationApproved:
		existing, err := scanMatch(tx.QueryRowContext(ctx,
			`SELECT `+matchColumns+` FROM matches WHERE application_id = ?`, applicationID))
		if err != nil {
			return model.Match{}, false, err
		}
		return existing, false, nil
	case model.ApplicationPending:
		// fall through to the transition
	default:
		return model.Match{}, false, ErrConflict
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE applications SET status = ? WHERE id = ?`,
		string(model.ApplicationApproved), applicationID); err != nil {
		return model.Match{}, false, fmt.Errorf("approving application: %w", err)
	}
	match.ApplicationID = applicationID
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO matches (id, application_id, scheduled_at, external_event_ref, status)
		VALUES (?, ?, ?, ?, ?)`,
		match.ID, match.ApplicationID, encodeTimePtr(match.ScheduledAt),
		match.ExternalEventRef, string(match.Status)); err != nil {
		return model.Match{}, false, fmt.Errorf("inserting match: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Match{}, false, fmt.Errorf("committing approval: %w", err)
	}
	return match, true, nil
}

const matchColumns = `id, application_id, scheduled_at, external_event_ref, status`

func scanMatch(row interface{ Scan(...interface{}) error }) (model.Match, error) {
	var match model.Match
	var scheduledAt sql.NullString
	var status string
	err := row.Scan(&match.ID, &match.ApplicationID, &scheduledAt,
		&match.ExternalEventRef, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Match{}, ErrNotFound
	}
	if err != nil {
		return model.Match{}, fmt.Errorf("reading match: %w", err)
	}
	match.ScheduledAt = decodeTimePtr(scheduledAt)
	match.Status = model.MatchStatus(status)
	return match, nil
}

// GetMatch returns a match by id.
func (s *SQLiteStore) GetMatch(ctx context.Context, id string) (model.Match, error) {
	defer observeQuery(time.Now())
	return scanMatch(s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = ?`, id))
}

// GetMatchByApplication looks a match up by its application.
func (s *SQLiteStore) GetMatchByApplication(ctx context.Context, applicationID string) (model.Match, error) {
	defer observeQuery(time.Now())
	return scanMatch(s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE application_id = ?`, applicationID))
}

// ScheduleMatch sets the match's scheduled time and external reference.
func (s *SQLiteStore) ScheduleMatch(ctx context.Context, id string, at time.Time, externalEventRef string) (match model.Match, err error) {
	start := time.Now()
	defer func() { observeWrite("schedule_match", start, err) }()
	res, err := s.db.ExecContext(ctx,
		`UPDATE matches SET scheduled_at = ?, external_event_ref = ?, status = ? WHERE id = ?`,
		encodeTime(at), externalEventRef, string(model.MatchScheduled), id)
	if err != nil {
		return model.Match{}, fmt.Errorf("scheduling match: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.Match{}, fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return model.Match{}, ErrNotFound
	}
	return s.GetMatch(ctx, id)
}

// CreateSession records a session for a match, enforcing one per match.
func (s *SQLiteStore) CreateSession(ctx context.Context, session model.Session) (err error) {
	start := time.Now()
	defer func() { observeWrite("create_session", start, err) }()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM matches WHERE id = ?`, session.MatchID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking match: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, match_id, started_at, ended_at, recording_ref)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		session.ID, session.MatchID, encodeTimePtr(session.StartedAt),
		encodeTimePtr(session.EndedAt), session.RecordingRef)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking insert result: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session: %w", err)
	}
	return nil
}

// GetSession returns a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (model.Session, error) {
	defer observeQuery(time.Now())
	row := s.db.QueryRowContext(ctx,
		`SELECT id, match_id, started_at, ended_at, recording_ref FROM sessions WHERE id = ?`, id)

	var session model.Session
	var startedAt, endedAt sql.NullString
	err := row.Scan(&session.ID, &session.MatchID, &startedAt, &endedAt, &session.RecordingRef)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("reading session: %w", err)
	}
	session.StartedAt = decodeTimePtr(startedAt)
	session.EndedAt = decodeTimePtr(endedAt)
	return session, nil
}

// CreateTranscript records a transcript for a session, enforcing one per
// session.
func (s *SQLiteStore) CreateTranscript(ctx context.Context, transcript model.Transcript) (err error) {
	start := time.Now()
	defer func() { observeWrite("create_transcript", start, err) }()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE id = ?`, transcript.SessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking session: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transcripts (id, session_id, raw_text, segments, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		transcript.ID, transcript.SessionID, transcript.RawText,
		nullRaw(transcript.Segments), encodeTime(transcript.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting transcript: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking insert result: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transcript: %w", err)
	}
	return nil
}

// GetTranscriptBySession returns the transcript recorded for a session.
func (s *SQLiteStore) GetTranscriptBySession(ctx context.Context, sessionID string) (model.Transcript, error) {
	defer observeQuery(time.Now())
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, raw_text, segments, created_at FROM transcripts WHERE session_id = ?`,
		sessionID)

	var transcript model.Transcript
	var segments sql.NullString
	var createdAt string
	err := row.Scan(&transcript.ID, &transcript.SessionID, &transcript.RawText, &segments, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transcript{}, ErrNotFound
	}
	if err != nil {
		return model.Transcript{}, fmt.Errorf("reading transcript: %w", err)
	}
	transcript.Segments = rawFromNull(segments)
	transcript.CreatedAt = decodeTime(createdAt)
	return transcript, nil
}

// AddInsight appends an insight unit to its session.
func (s *SQLiteStore) AddInsight(ctx context.Context, unit model.InsightUnit) (err error) {
	start := time.Now()
	defer func() { observeWrite("add_insight", start, err) }()
	var tags sql.NullString
	if len(unit.Tags) > 0 {
		raw, err := json.Marshal(unit.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags: %w", err)
		}
		tags = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE id = ?`, unit.SessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO insights (id, study_id, participant_id, session_id, theme, rationale, evidence, sentiment, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		unit.ID, unit.StudyID, unit.ParticipantID, unit.SessionID, unit.Theme,
		unit.Rationale, nullRaw(unit.Evidence), unit.Sentiment, tags,
		encodeTime(unit.CreatedAt)); err != nil {
		return fmt.Errorf("inserting insight: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insight: %w", err)
	}
	return nil
}

// ListInsightsBySession returns a session's insights in insertion order.
func (s *SQLiteStore) ListInsightsBySession(ctx context.Context, sessionID string) ([]model.InsightUnit, error) {
	defer observeQuery(time.Now())
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, study_id, participant_id, session_id, theme, rationale, evidence, sentiment, tags, created_at
		FROM insights WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing insights: %w", err)
	}
	defer rows.Close()

	var units []model.InsightUnit
	for rows.Next() {
		var unit model.InsightUnit
		var evidence, tags sql.NullString
		var createdAt string
		if err := rows.Scan(&unit.ID, &unit.StudyID, &unit.ParticipantID,
			&unit.SessionID, &unit.Theme, &unit.Rationale, &evidence,
			&unit.Sentiment, &tags, &createdAt); err != nil {
			return nil, fmt.Errorf("reading insight: %w", err)
		}
		unit.Evidence = rawFromNull(evidence)
		if tags.Valid {
			if err := json.Unmarshal([]byte(tags.String), &unit.Tags); err != nil {
				return nil, fmt.Errorf("decoding tags: %w", err)
			}
		}
		unit.CreatedAt = decodeTime(createdAt)
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating insights: %w", err)
	}
	return units, nil
}

// Counts reports aggregate totals.
func (s *SQLiteStore) Counts(ctx context.Context) (Stats, error) {
	defer observeQuery(time.Now())
	stats := Stats{ByStatus: make(map[model.ApplicationStatus]int64)}

	singles := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM studies`, &stats.Studies},
		{`SELECT COUNT(*) FROM participants`, &stats.Participants},
		{`SELECT COUNT(*) FROM applications`, &stats.Applications},
		{`SELECT COUNT(*) FROM matches`, &stats.Matches},
		{`SELECT COUNT(*) FROM sessions`, &stats.Sessions},
		{`SELECT COUNT(*) FROM transcripts`, &stats.Transcripts},
		{`SELECT COUNT(*) FROM insights`, &stats.Insights},
	}
	for _, q := range singles {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return Stats{}, fmt.Errorf("counting rows: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM applications GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("counting applications by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, fmt.Errorf("reading status count: %w", err)
		}
		stats.ByStatus[model.ApplicationStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterating status counts: %w", err)
	}
	return stats, nil
}
