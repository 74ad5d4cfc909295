package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/fieldwork-io/fieldwork/internal/smoke"
)

// Default configuration constants.
const (
	defaultParticipants  = 500
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultTimeout       = 30 * time.Second
	defaultRunTimeout    = 10 * time.Minute
	defaultDuplicateRate = 0.1
)

func main() {
	var (
		baseURL         = flag.String("url", "http://localhost:9080", "Base URL of the service")
		participants    = flag.Int("participants", defaultParticipants, "Number of participants to drive through the pipeline")
		workers         = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout         = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		researcherToken = flag.String("researcher-token", "researcher-token", "Bearer token for researcher operations")
		webhookToken    = flag.String("webhook-token", "webhook-token", "Bearer token for webhook deliveries")
		duplicateRate   = flag.Float64("duplicate-rate", defaultDuplicateRate, "Fraction of webhook deliveries replayed on purpose")
		logFile         = flag.String("log", "", "Log file for run output (default: smoke_log_TIMESTAMP.log)")
		verbose         = flag.Bool("verbose", false, "Enable verbose logging")
		help            = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		smoke.ShowHelp()
		return
	}

	// Setup logging
	if err := smoke.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	// Create run configuration
	config := &smoke.Config{
		BaseURL:         *baseURL,
		NumParticipants: *participants,
		Workers:         *workers,
		Timeout:         *timeout,
		LogFile:         *logFile,
		Verbose:         *verbose,
		ResearcherToken: *researcherToken,
		WebhookToken:    *webhookToken,
		DuplicateRate:   *duplicateRate,
	}

	// Run the smoke test
	if err := smoke.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Smoke run failed: " + err.Error() + "\n")
		return
	}
}
