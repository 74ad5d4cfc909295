package smoke

import "time"

// Config holds configuration for the pipeline smoke run.
type Config struct {
	BaseURL         string        // Base URL of the service
	NumParticipants int           // Number of participants to drive through the pipeline
	Workers         int           // Number of concurrent workers
	Timeout         time.Duration // HTTP request timeout
	LogFile         string        // Log file for run output
	Verbose         bool          // Enable verbose logging
	ResearcherToken string        // Bearer token for researcher operations
	WebhookToken    string        // Bearer token for webhook deliveries
	DuplicateRate   float64       // Fraction of webhook deliveries replayed on purpose
}

// participant is a generated applicant profile plus screener answers.
type participant struct {
	ID      string
	Profile map[string]interface{}
	Answers map[string]interface{}
}

// Stats holds smoke run statistics.
type Stats struct {
	ParticipantsGenerated int
	ApplicationsAccepted  int
	ApplicationsRejected  int
	ApplicationsFailed    int
	MatchesScheduled      int
	SessionsRecorded      int
	TranscriptsIngested   int
	DuplicatesAcked       int
	InsightsRetrieved     int
	StartTime             time.Time
	EndTime               time.Time
	Duration              time.Duration
}
