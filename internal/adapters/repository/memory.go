package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fieldwork-io/fieldwork/internal/domain/model"
	"github.com/fieldwork-io/fieldwork/pkg/metrics"
)

const defaultMetricsUpdateInterval = 30 * time.Second

// MemoryStore implements Store with mutex-guarded maps. It is the default
// backend for development and tests; durability comes from the SQLite store.
type MemoryStore struct {
	mu sync.RWMutex

	studies      map[string]model.Study
	participants map[string]model.Participant
	applications map[string]model.Application
	matches      map[string]model.Match
	sessions     map[string]model.Session
	transcripts  map[string]model.Transcript
	insights     map[string][]model.InsightUnit

	// natural-key indexes backing the uniqueness constraints
	appByStudyPart      map[string]string
	matchByApp          map[string]string
	sessionByMatch      map[string]string
	transcriptBySession map[string]string

	insightCount int64

	metricsUpdateInterval time.Duration
	stopMetrics           chan struct{}
	metricsDone           sync.WaitGroup
	closeOnce             sync.Once
}

// NewMemoryStore creates an empty in-memory store and starts its background
// metrics refresher.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		studies:               make(map[string]model.Study),
		participants:          make(map[string]model.Participant),
		applications:          make(map[string]model.Application),
		matches:               make(map[string]model.Match),
		sessions:              make(map[string]model.Session),
		transcripts:           make(map[string]model.Transcript),
		insights:              make(map[string][]model.InsightUnit),
		appByStudyPart:        make(map[string]string),
		matchByApp:            make(map[string]string),
		sessionByMatch:        make(map[string]string),
		transcriptBySession:   make(map[string]string),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopMetrics:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.metricsDone.Add(1)
	go s.refreshMetrics()
	return s
}

func naturalKey(studyID, participantID string) string {
	return studyID + "\x00" + participantID
}

func (s *MemoryStore) refreshMetrics() {
	defer s.metricsDone.Done()
	ticker := time.NewTicker(s.metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopMetrics:
			return
		case <-ticker.C:
			s.mu.RLock()
			total := len(s.applications)
			s.mu.RUnlock()
			metrics.UpdateTotalApplications(total)
		}
	}
}

// PutStudy inserts or replaces a study.
func (s *MemoryStore) PutStudy(_ context.Context, study model.Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.studies[study.ID] = study
	return nil
}

// GetStudy returns a study by id.
func (s *MemoryStore) GetStudy(_ context.Context, id string) (model.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	study, ok := s.studies[id]
	if !ok {
		return model.Study{}, ErrNotFound
	}
	return study, nil
}

// PutParticipant inserts or replaces a participant.
func (s *MemoryStore) PutParticipant(_ context.Context, participant model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[participant.ID] = participant
	return nil
}

// GetParticipant returns a participant by id.
func (s *MemoryStore) GetParticipant(_ context.Context, id string) (model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participant, ok := s.participants[id]
	if !ok {
		return model.Participant{}, ErrNotFound
	}
	return participant, nil
}

// CreateApplication inserts a new application, enforcing one per
// (study, participant).
func (s *MemoryStore) CreateApplication(_ context.Context, app model.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := naturalKey(app.StudyID, app.ParticipantID)
	if _, exists := s.appByStudyPart[key]; exists {
		return ErrConflict
	}
	if _, exists := s.applications[app.ID]; exists {
		return ErrConflict
	}
	s.applications[app.ID] = app
	s.appByStudyPart[key] = app.ID
	return nil
}

// GetApplication returns an application by id.
func (s *MemoryStore) GetApplication(_ context.Context, id string) (model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[id]
	if !ok {
		return model.Application{}, ErrNotFound
	}
	return app, nil
}

// GetApplicationByStudyParticipant looks an application up by its natural key.
func (s *MemoryStore) GetApplicationByStudyParticipant(_ context.Context, studyID, participantID string) (model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.appByStudyPart[naturalKey(studyID, participantID)]
	if !ok {
		return model.Application{}, ErrNotFound
	}
	return s.applications[id], nil
}

// ListApplicationsByStudy returns a study's applications, newest first.
func (s *MemoryStore) ListApplicationsByStudy(_ context.Context, studyID string, limit int) ([]model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var apps []model.Application
	for _, app := range s.applications {
		if app.StudyID == studyID {
			apps = append(apps, app)
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].ID < apps[j].ID
		}
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
	if limit > 0 && len(apps) > limit {
		apps = apps[:limit]
	}
	return apps, nil
}

// CountApplicationsByStudy counts a study's applications in one status.
func (s *MemoryStore) CountApplicationsByStudy(_ context.Context, studyID string, status model.ApplicationStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, app := range s.applications {
		if app.StudyID == studyID && app.Status == status {
			n++
		}
	}
	return n, nil
}

// SetApplicationStatus transitions a pending application to a terminal status.
func (s *MemoryStore) SetApplicationStatus(_ context.Context, id string, to model.ApplicationStatus) (model.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[id]
	if !ok {
		return model.Application{}, ErrNotFound
	}
	if app.Status.Terminal() {
		return model.Application{}, ErrConflict
	}
	app.Status = to
	s.applications[id] = app
	return app, nil
}

// ApproveAndMatch approves a pending application and creates its match in one
// atomic step under the store lock.
func (s *MemoryStore) ApproveAndMatch(_ context.Context, applicationID string, match model.Match) (model.Match, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[applicationID]
	if !ok {
		return model.Match{}, false, ErrNotFound
	}
	if app.Status == model.ApplicationApproved {
		if matchID, exists := s.matchByApp[applicationID]; exists {
			return s.matches[matchID], false, nil
		}
		// Approved without a match should be impossible; surface it.
		return model.Match{}, false, ErrConflict
	}
	if app.Status.Terminal() {
		return model.Match{}, false, ErrConflict
	}

	app.Status = model.ApplicationApproved
	s.applications[applicationID] = app
	match.ApplicationID = applicationID
	s.matches[match.ID] = match
	s.matchByApp[applicationID] = match.ID
	return match, true, nil
}

// GetMatch returns a match by id.
func (s *MemoryStore) GetMatch(_ context.Context, id string) (model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match, ok := s.matches[id]
	if !ok {
		return model.Match{}, ErrNotFound
	}
	return match, nil
}

// GetMatchByApplication looks a match up by its application.
func (s *MemoryStore) GetMatchByApplication(_ context.Context, applicationID string) (model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.matchByApp[applicationID]
	if !ok {
		return model.Match{}, ErrNotFound
	}
	return s.matches[id], nil
}

// ScheduleMatch sets the match's scheduled time and external reference.
func (s *MemoryStore) ScheduleMatch(_ context.Context, id string, at time.Time, externalEventRef string) (model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[id]
	if !ok {
		return model.Match{}, ErrNotFound
	}
	match.ScheduledAt = &at
	match.ExternalEventRef = externalEventRef
	match.Status = model.MatchScheduled
	s.matches[id] = match
	return match, nil
}

// CreateSession records a session for a match, enforcing one per match.
func (s *MemoryStore) CreateSession(_ context.Context, session model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[session.MatchID]; !ok {
		return ErrNotFound
	}
	if _, exists := s.sessionByMatch[session.MatchID]; exists {
		return ErrConflict
	}
	if _, exists := s.sessions[session.ID]; exists {
		return ErrConflict
	}
	s.sessions[session.ID] = session
	s.sessionByMatch[session.MatchID] = session.ID
	return nil
}

// GetSession returns a session by id.
func (s *MemoryStore) GetSession(_ context.Context, id string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	return session, nil
}

// CreateTranscript records a transcript for a session, enforcing one per
// session.
func (s *MemoryStore) CreateTranscript(_ context.Context, transcript model.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[transcript.SessionID]; !ok {
		return ErrNotFound
	}
	if _, exists := s.transcriptBySession[transcript.SessionID]; exists {
		return ErrConflict
	}
	s.transcripts[transcript.ID] = transcript
	s.transcriptBySession[transcript.SessionID] = transcript.ID
	return nil
}

// GetTranscriptBySession returns the transcript recorded for a session.
func (s *MemoryStore) GetTranscriptBySession(_ context.Context, sessionID string) (model.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.transcriptBySession[sessionID]
	if !ok {
		return model.Transcript{}, ErrNotFound
	}
	return s.transcripts[id], nil
}

// AddInsight appends an insight unit to its session.
func (s *MemoryStore) AddInsight(_ context.Context, unit model.InsightUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[unit.SessionID]; !ok {
		return ErrNotFound
	}
	s.insights[unit.SessionID] = append(s.insights[unit.SessionID], unit)
	s.insightCount++
	return nil
}

// ListInsightsBySession returns a session's insights in insertion order.
func (s *MemoryStore) ListInsightsBySession(_ context.Context, sessionID string) ([]model.InsightUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	units := s.insights[sessionID]
	out := make([]model.InsightUnit, len(units))
	copy(out, units)
	return out, nil
}

// Counts reports aggregate totals.
func (s *MemoryStore) Counts(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{
		Studies:      int64(len(s.studies)),
		Participants: int64(len(s.participants)),
		Applications: int64(len(s.applications)),
		ByStatus:     make(map[model.ApplicationStatus]int64),
		Matches:      int64(len(s.matches)),
		Sessions:     int64(len(s.sessions)),
		Transcripts:  int64(len(s.transcripts)),
		Insights:     s.insightCount,
	}
	for _, app := range s.applications {
		stats.ByStatus[app.Status]++
	}
	return stats, nil
}

// Close stops the background metrics refresher.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopMetrics)
	})
	s.metricsDone.Wait()
	return nil
}
