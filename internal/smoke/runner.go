package smoke

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldwork-io/fieldwork/pkg/logger"
)

// studyThreshold is the pass score the smoke screener requires; applications
// scoring below it get rejected by the run acting as researcher.
const studyThreshold = 50

// studyCriteria is the screener the smoke study runs: one weighted language
// rule plus a mandatory purchase-count rule, threshold 50.
const studyCriteria = `{
	"threshold": 50,
	"rules": [
		{"field": "languages", "op": "includesAny", "target": ["English", "Arabic"], "weight": 30},
		{"field": "answers.purchases30d", "op": "gte", "target": 2, "weight": 30, "must": true}
	]
}`

// Run executes the complete pipeline smoke test against a running service.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting fieldwork pipeline smoke run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("participants", config.NumParticipants),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Float64("duplicateRate", config.DuplicateRate),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Create the smoke study
	studyID, err := createStudy(ctx, config)
	if err != nil {
		return fmt.Errorf("study creation failed: %w", err)
	}

	// Step 3: Generate participants
	participants := generateParticipants(ctx, config, stats)

	// Step 4: Drive the pipeline concurrently
	sessionIDs, err := drivePipeline(ctx, config, studyID, participants, stats)
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	// Step 5: Wait for extraction to settle
	logger.Get().Info(ctx, "waiting for insight extraction")
	time.Sleep(ExtractionSettleDelay)

	// Step 6: Collect insights
	if err := collectInsights(ctx, config, sessionIDs, stats); err != nil {
		logger.Get().Warn(ctx, "insight collection incomplete", logger.Error(err))
	}

	// Step 7: Verify service counters
	if err := verifyStats(ctx, config, stats); err != nil {
		return fmt.Errorf("stats verification failed: %w", err)
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "smoke run completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	status, _, err := client.Get(ctx, config.BaseURL+"/healthz", "")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", status)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// createStudy provisions the recruiting study the run applies to.
func createStudy(ctx context.Context, config *Config) (string, error) {
	client := newHTTPClient(config.Timeout)
	status, body, err := client.Post(ctx, config.BaseURL+"/studies", config.ResearcherToken, "", map[string]interface{}{
		"title":    "Smoke run " + time.Now().Format("20060102_150405"),
		"criteria": json.RawMessage(studyCriteria),
	})
	if err != nil {
		return "", err
	}
	if status != StatusCreated {
		return "", fmt.Errorf("study creation answered status %d", status)
	}

	var study struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &study); err != nil {
		return "", fmt.Errorf("failed to decode study: %w", err)
	}

	logger.Get().Info(ctx, "created smoke study", logger.String("studyID", study.ID))
	return study.ID, nil
}

// verifyStats cross-checks the service counters against what the run drove.
func verifyStats(ctx context.Context, config *Config, stats *Stats) error {
	client := newHTTPClient(config.Timeout)
	status, body, err := client.Get(ctx, config.BaseURL+"/stats", config.ResearcherToken)
	if err != nil {
		return err
	}
	if status != StatusOK {
		return fmt.Errorf("stats endpoint answered status %d", status)
	}

	var payload struct {
		Counts struct {
			Sessions    int64 `json:"sessions"`
			Transcripts int64 `json:"transcripts"`
			Insights    int64 `json:"insights"`
		} `json:"counts"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("failed to decode stats: %w", err)
	}

	if payload.Counts.Sessions < int64(stats.SessionsRecorded) {
		return fmt.Errorf("service reports %d sessions, run recorded %d", payload.Counts.Sessions, stats.SessionsRecorded)
	}
	if payload.Counts.Transcripts < int64(stats.TranscriptsIngested) {
		return fmt.Errorf("service reports %d transcripts, run ingested %d", payload.Counts.Transcripts, stats.TranscriptsIngested)
	}

	logger.Get().Info(ctx, "service counters verified",
		logger.Any("sessions", payload.Counts.Sessions),
		logger.Any("transcripts", payload.Counts.Transcripts),
		logger.Any("insights", payload.Counts.Insights))
	return nil
}

// displayFinalStats prints the final run statistics.
func displayFinalStats(stats *Stats) {
	var acceptRate, participantsPerSecond float64

	driven := stats.ApplicationsAccepted + stats.ApplicationsRejected + stats.ApplicationsFailed
	if driven > 0 {
		acceptRate = float64(stats.ApplicationsAccepted) / float64(driven) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		participantsPerSecond = float64(driven) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("participantsGenerated", stats.ParticipantsGenerated),
		logger.Int("applicationsAccepted", stats.ApplicationsAccepted),
		logger.Int("applicationsRejected", stats.ApplicationsRejected),
		logger.Int("applicationsFailed", stats.ApplicationsFailed),
		logger.Int("matchesScheduled", stats.MatchesScheduled),
		logger.Int("sessionsRecorded", stats.SessionsRecorded),
		logger.Int("transcriptsIngested", stats.TranscriptsIngested),
		logger.Int("duplicatesAcked", stats.DuplicatesAcked),
		logger.Int("insightsRetrieved", stats.InsightsRetrieved),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("participantsPerSecond", participantsPerSecond))
}
