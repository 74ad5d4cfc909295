// Package insight defines the contract for extracting insight units from
// session transcripts.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fieldwork-io/fieldwork/internal/domain/model"
	"github.com/google/uuid"
)

// Default extraction configuration constants.
const (
	defaultMinLatency = 80 * time.Millisecond
	defaultMaxLatency = 150 * time.Millisecond
	defaultRandomSeed = 42
	themeMaxLen       = 80
	evidenceMaxLen    = 160
)

// Option applies a configuration option to the HeuristicExtractor.
type Option func(*HeuristicExtractor)

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(e *HeuristicExtractor) {
		if minLatency > 0 && maxLatency > minLatency {
			e.minLatency = minLatency
			e.maxLatency = maxLatency
		}
	}
}

// Extractor turns a transcript job into an insight unit. The implementation
// may simulate latency to model an external LLM service.
type Extractor interface {
	// Extract derives one insight unit from the job, honoring ctx for
	// cancellation.
	Extract(ctx context.Context, job model.InsightJob) (model.InsightUnit, error)
}

// HeuristicExtractor implements Extractor with a deterministic heuristic in
// place of a real language model. The theme is the leading slice of the
// transcript, the evidence quotes its opening, and the sentiment is always
// neutral.
type HeuristicExtractor struct {
	minLatency time.Duration
	maxLatency time.Duration

	// rngMu serializes rng access; one extractor is shared by all workers.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewHeuristicExtractor creates an extractor with configuration options.
func NewHeuristicExtractor(opts ...Option) *HeuristicExtractor {
	e := &HeuristicExtractor{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract derives an insight unit from the job's transcript text. Each call
// yields a unit with a fresh ID; callers decide whether repeats are stored.
func (e *HeuristicExtractor) Extract(ctx context.Context, job model.InsightJob) (model.InsightUnit, error) {
	e.rngMu.Lock()
	jitter := e.rng.Int63n(int64(e.maxLatency - e.minLatency))
	e.rngMu.Unlock()
	latency := e.minLatency + time.Duration(jitter)
	select {
	case <-ctx.Done():
		return model.InsightUnit{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(latency):
	}

	text := strings.TrimSpace(job.RawText)
	evidence, err := json.Marshal([]string{truncate(text, evidenceMaxLen)})
	if err != nil {
		return model.InsightUnit{}, fmt.Errorf("encoding evidence: %w", err)
	}

	return model.InsightUnit{
		ID:            uuid.NewString(),
		StudyID:       job.StudyID,
		ParticipantID: job.ParticipantID,
		SessionID:     job.SessionID,
		Theme:         truncate(text, themeMaxLen),
		Rationale:     "Heuristic extraction from transcript opening.",
		Evidence:      evidence,
		Sentiment:     "neutral",
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// truncate cuts s to at most n runes without splitting a multibyte character.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
