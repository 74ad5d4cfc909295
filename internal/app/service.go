// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	jobqueue "github.com/fieldwork-io/fieldwork/internal/adapters/mq/queue"
	workerpool "github.com/fieldwork-io/fieldwork/internal/adapters/mq/worker"
	"github.com/fieldwork-io/fieldwork/internal/adapters/repository"
	"github.com/fieldwork-io/fieldwork/internal/domain/dedupe"
	"github.com/fieldwork-io/fieldwork/internal/domain/insight"
	"github.com/fieldwork-io/fieldwork/internal/domain/model"
	"github.com/fieldwork-io/fieldwork/internal/domain/screening"
	"github.com/fieldwork-io/fieldwork/pkg/logger"
	"github.com/fieldwork-io/fieldwork/pkg/metrics"
)

// Service implements the API dependencies for the recruitment pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	deduper   dedupe.Deduper
	jobQueue  jobqueue.Queue
	extractor insight.Extractor
	pool      *workerpool.Pool

	// Configuration
	storeDriver  string
	sqlitePath   string
	workerCount  int
	queueSize    int
	dedupeSize   int
	extractMin   time.Duration
	extractMax   time.Duration
	maxPageLimit int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStoreDriver selects the persistence backend: "memory" or "sqlite".
func WithStoreDriver(driver, sqlitePath string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
		}
		if sqlitePath != "" {
			s.sqlitePath = sqlitePath
		}
	}
}

// WithWorkerCount sets the number of insight extraction workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the insight job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the webhook delivery-ID cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxPageLimit caps list operations' limit parameter.
func WithMaxPageLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxPageLimit = limit
		}
	}
}

// WithExtractionLatencyRange sets the simulated extraction latency range.
func WithExtractionLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *Service) {
		if minLatency > 0 && maxLatency > minLatency {
			s.extractMin = minLatency
			s.extractMax = maxLatency
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		storeDriver:  "memory",
		sqlitePath:   "fieldwork.db",
		workerCount:  runtime.NumCPU() * 2,
		queueSize:    100000,
		dedupeSize:   50000,
		extractMin:   80 * time.Millisecond,
		extractMax:   150 * time.Millisecond,
		maxPageLimit: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting recruitment service...")

	switch s.storeDriver {
	case "sqlite":
		store, err := repository.OpenSQLite(ctx, s.sqlitePath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		s.store = store
		s.logger.Info(ctx, "using sqlite store", logger.String("path", s.sqlitePath))
	default:
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}

	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.jobQueue = jobqueue.NewInMemoryQueue(
		jobqueue.WithCapacity(s.queueSize),
		jobqueue.WithBufferSize(s.queueSize),
	)
	s.extractor = insight.NewHeuristicExtractor(
		insight.WithLatencyRange(s.extractMin, s.extractMax),
	)

	s.pool = workerpool.NewPool(s.workerCount, s.jobQueue, s.extractor, s.store)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "recruitment service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping recruitment service...")

	// Closing the queue lets the workers drain before the pool stops.
	if s.pool != nil {
		_ = s.pool.Shutdown(ctx)
	}

	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "recruitment service stopped")
}

// CreateStudy validates the criteria document and stores a new study.
func (s *Service) CreateStudy(ctx context.Context, title string, criteria json.RawMessage, autoApprove bool, maxParticipants int) (model.Study, error) {
	if len(criteria) > 0 {
		if _, err := screening.ParseCriteria(criteria); err != nil {
			return model.Study{}, fmt.Errorf("%w: %w", ErrInvalidCriteria, err)
		}
	}
	study := model.Study{
		ID:              uuid.NewString(),
		Title:           title,
		Status:          model.StudyRecruiting,
		Criteria:        criteria,
		AutoApprove:     autoApprove,
		MaxParticipants: maxParticipants,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.PutStudy(ctx, study); err != nil {
		return model.Study{}, fmt.Errorf("storing study: %w", err)
	}
	return study, nil
}

// GetStudy returns a study by id.
func (s *Service) GetStudy(ctx context.Context, id string) (model.Study, error) {
	return s.store.GetStudy(ctx, id)
}

// CloseStudy stops recruiting for a study.
func (s *Service) CloseStudy(ctx context.Context, id string) (model.Study, error) {
	study, err := s.store.GetStudy(ctx, id)
	if err != nil {
		return model.Study{}, err
	}
	study.Status = model.StudyClosed
	if err := s.store.PutStudy(ctx, study); err != nil {
		return model.Study{}, fmt.Errorf("closing study: %w", err)
	}
	return study, nil
}

// RegisterParticipant stores a participant profile, creating an id when none
// is supplied.
func (s *Service) RegisterParticipant(ctx context.Context, id string, profile map[string]interface{}) (model.Participant, error) {
	if id == "" {
		id = uuid.NewString()
	}
	participant := model.Participant{
		ID:        id,
		Profile:   profile,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.PutParticipant(ctx, participant); err != nil {
		return model.Participant{}, fmt.Errorf("storing participant: %w", err)
	}
	return participant, nil
}

// GetParticipant returns a participant by id.
func (s *Service) GetParticipant(ctx context.Context, id string) (model.Participant, error) {
	return s.store.GetParticipant(ctx, id)
}

// SubmitApplication screens a participant against the study's criteria and
// records the application. The initial status is always pending; screening
// only fixes the stored score, and an approve decision on an auto-approve
// study promotes the application through the usual pending to approved
// transition. Rejection stays a researcher action.
func (s *Service) SubmitApplication(ctx context.Context, studyID, participantID string, answers map[string]interface{}) (model.Application, error) {
	study, err := s.store.GetStudy(ctx, studyID)
	if err != nil {
		return model.Application{}, err
	}
	if study.Status != model.StudyRecruiting {
		return model.Application{}, ErrStudyClosed
	}
	participant, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return model.Application{}, err
	}

	outcome := screening.Outcome{Decision: screening.DecisionManual}
	if len(study.Criteria) > 0 {
		criteria, err := screening.ParseCriteria(study.Criteria)
		if err != nil {
			// A study with an unreadable criteria document falls back to
			// manual review rather than blocking applicants.
			s.logger.Warn(ctx, "stored criteria failed to parse, falling back to manual review",
				logger.String("studyID", studyID),
				logger.Error(err),
			)
			metrics.RecordScreeningError()
		} else {
			screenStart := time.Now()
			outcome = screening.Evaluate(criteria, participant.Profile, answers)
			metrics.RecordScreeningLatency(float64(time.Since(screenStart).Microseconds()) / 1000.0)
		}
	}

	app := model.Application{
		ID:            uuid.NewString(),
		StudyID:       studyID,
		ParticipantID: participantID,
		Answers:       answers,
		Score:         outcome.Score,
		Status:        model.ApplicationPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.CreateApplication(ctx, app); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.RecordApplicationDuplicate()
			return model.Application{}, err
		}
		return model.Application{}, fmt.Errorf("storing application: %w", err)
	}
	metrics.RecordApplicationSubmitted()

	if outcome.Decision == screening.DecisionApprove && study.AutoApprove {
		if _, _, err := s.approve(ctx, app.ID, study); err != nil {
			// The application stays pending for manual review; approval can
			// be retried by a researcher.
			s.logger.Warn(ctx, "auto-approval failed, application left pending",
				logger.String("applicationID", app.ID),
				logger.Error(err),
			)
			return app, nil
		}
		app.Status = model.ApplicationApproved
	}
	return app, nil
}

// GetApplication returns an application by id.
func (s *Service) GetApplication(ctx context.Context, id string) (model.Application, error) {
	return s.store.GetApplication(ctx, id)
}

// ListApplications returns a study's applications, newest first.
func (s *Service) ListApplications(ctx context.Context, studyID string, limit int) ([]model.Application, error) {
	if limit <= 0 || limit > s.maxPageLimit {
		limit = s.maxPageLimit
	}
	return s.store.ListApplicationsByStudy(ctx, studyID, limit)
}

// ApproveApplication approves a pending application, creating its match
// atomically. Re-approving an approved application returns the existing
// match with created=false.
func (s *Service) ApproveApplication(ctx context.Context, applicationID string) (model.Match, bool, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return model.Match{}, false, err
	}
	study, err := s.store.GetStudy(ctx, app.StudyID)
	if err != nil {
		return model.Match{}, false, err
	}
	return s.approve(ctx, applicationID, study)
}

// approve runs the capacity check and the atomic approve-and-match write.
func (s *Service) approve(ctx context.Context, applicationID string, study model.Study) (model.Match, bool, error) {
	if study.MaxParticipants > 0 {
		approved, err := s.store.CountApplicationsByStudy(ctx, study.ID, model.ApplicationApproved)
		if err != nil {
			return model.Match{}, false, fmt.Errorf("counting approvals: %w", err)
		}
		if approved >= int64(study.MaxParticipants) {
			return model.Match{}, false, ErrStudyFull
		}
	}

	match := model.Match{
		ID:     uuid.NewString(),
		Status: model.MatchAwaitingSchedule,
	}
	out, created, err := s.store.ApproveAndMatch(ctx, applicationID, match)
	if err != nil {
		return model.Match{}, false, err
	}
	if created {
		metrics.RecordApplicationApproved()
	} else {
		metrics.RecordApprovalIdempotent()
	}
	return out, created, nil
}

// RejectApplication moves a pending application to rejected.
func (s *Service) RejectApplication(ctx context.Context, applicationID string) (model.Application, error) {
	app, err := s.store.SetApplicationStatus(ctx, applicationID, model.ApplicationRejected)
	if err != nil {
		return model.Application{}, err
	}
	metrics.RecordApplicationRejected()
	return app, nil
}

// WaitlistApplication moves a pending application to the waitlist.
func (s *Service) WaitlistApplication(ctx context.Context, applicationID string) (model.Application, error) {
	app, err := s.store.SetApplicationStatus(ctx, applicationID, model.ApplicationWaitlist)
	if err != nil {
		return model.Application{}, err
	}
	metrics.RecordApplicationWaitlisted()
	return app, nil
}

// GetMatch returns a match by id.
func (s *Service) GetMatch(ctx context.Context, id string) (model.Match, error) {
	return s.store.GetMatch(ctx, id)
}

// ScheduleMatch books a time slot for a match.
func (s *Service) ScheduleMatch(ctx context.Context, matchID string, at time.Time, externalEventRef string) (model.Match, error) {
	match, err := s.store.ScheduleMatch(ctx, matchID, at, externalEventRef)
	if err != nil {
		return model.Match{}, err
	}
	metrics.RecordMatchScheduled()
	return match, nil
}

// RecordSession ingests a session-completed webhook. The delivery ID guards
// against redelivery; the one-session-per-match constraint guards against
// replays that slip past the dedupe window.
func (s *Service) RecordSession(ctx context.Context, deliveryID string, session model.Session) (model.Session, error) {
	if deliveryID != "" && s.deduper.SeenAndRecord(ctx, deliveryID) {
		return model.Session{}, ErrDuplicateDelivery
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		if deliveryID != "" && !errors.Is(err, repository.ErrConflict) {
			// Non-conflict failures may be transient; let the sender retry.
			s.deduper.Unrecord(ctx, deliveryID)
		}
		return model.Session{}, err
	}
	metrics.RecordSessionRecorded()
	return session, nil
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, id string) (model.Session, error) {
	return s.store.GetSession(ctx, id)
}

// IngestTranscript ingests a transcript webhook, stores the transcript, and
// enqueues an insight extraction job.
func (s *Service) IngestTranscript(ctx context.Context, deliveryID, sessionID, rawText string, segments json.RawMessage) (model.Transcript, error) {
	if deliveryID != "" && s.deduper.SeenAndRecord(ctx, deliveryID) {
		metrics.RecordTranscriptDuplicate()
		return model.Transcript{}, ErrDuplicateDelivery
	}

	transcript := model.Transcript{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		RawText:   rawText,
		Segments:  segments,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateTranscript(ctx, transcript); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.RecordTranscriptDuplicate()
		} else if deliveryID != "" {
			s.deduper.Unrecord(ctx, deliveryID)
		}
		return model.Transcript{}, err
	}
	metrics.RecordTranscriptIngested()

	job, err := s.buildJob(ctx, sessionID, rawText)
	if err != nil {
		return model.Transcript{}, err
	}
	if !s.jobQueue.Enqueue(ctx, job) {
		// The transcript is durable; extraction can be retried through the
		// synchronous generate path.
		s.logger.Warn(ctx, "insight queue refused job",
			logger.String("sessionID", sessionID),
		)
		return transcript, ErrQueueFull
	}
	return transcript, nil
}

// buildJob resolves the study and participant behind a session.
func (s *Service) buildJob(ctx context.Context, sessionID, rawText string) (model.InsightJob, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.InsightJob{}, err
	}
	match, err := s.store.GetMatch(ctx, session.MatchID)
	if err != nil {
		return model.InsightJob{}, err
	}
	app, err := s.store.GetApplication(ctx, match.ApplicationID)
	if err != nil {
		return model.InsightJob{}, err
	}
	return model.InsightJob{
		JobID:         uuid.NewString(),
		StudyID:       app.StudyID,
		ParticipantID: app.ParticipantID,
		SessionID:     sessionID,
		RawText:       rawText,
		EnqueuedAt:    time.Now().UTC(),
	}, nil
}

// GenerateInsight runs extraction synchronously for a session's stored
// transcript and appends the resulting unit. Each call appends a new unit.
func (s *Service) GenerateInsight(ctx context.Context, sessionID string) (model.InsightUnit, error) {
	transcript, err := s.store.GetTranscriptBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Distinguish a missing transcript from a missing session.
			if _, sessErr := s.store.GetSession(ctx, sessionID); sessErr != nil {
				return model.InsightUnit{}, sessErr
			}
			return model.InsightUnit{}, ErrTranscriptMissing
		}
		return model.InsightUnit{}, err
	}

	job, err := s.buildJob(ctx, sessionID, transcript.RawText)
	if err != nil {
		return model.InsightUnit{}, err
	}
	unit, err := s.extractor.Extract(ctx, job)
	if err != nil {
		return model.InsightUnit{}, fmt.Errorf("extracting insight: %w", err)
	}
	if err := s.store.AddInsight(ctx, unit); err != nil {
		return model.InsightUnit{}, fmt.Errorf("storing insight: %w", err)
	}
	metrics.RecordInsightGenerated()
	return unit, nil
}

// ListInsights returns a session's insights in insertion order.
func (s *Service) ListInsights(ctx context.Context, sessionID string) ([]model.InsightUnit, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListInsightsBySession(ctx, sessionID)
}

// GetStats returns service statistics for monitoring. It requires a started
// service; the store and queue only exist after Start.
func (s *Service) GetStats(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil, ErrNotStarted
	}

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	counts, err := s.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting store: %w", err)
	}
	queueLen := s.jobQueue.Len(ctx)

	stats["queueLength"] = queueLen
	stats["dedupeEntries"] = s.deduper.Size()
	stats["counts"] = counts

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateTotalApplications(int(counts.Applications))
	metrics.UpdateWorkerCount(s.workerCount)

	return stats, nil
}
