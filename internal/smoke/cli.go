package smoke

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fieldwork-io/fieldwork/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "smoke_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the smoke tool.
func ShowHelp() {
	os.Stdout.WriteString(`Fieldwork Pipeline Smoke Tool
=============================

A concurrent tool for exercising the full recruitment pipeline of a running
fieldwork service: applications, review, scheduling, webhooks and insights.

Usage:
  go run cmd/smoke/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -participants int
        Number of participants to drive through the pipeline (default 500)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -researcher-token string
        Bearer token for researcher operations (default "researcher-token")
  -webhook-token string
        Bearer token for webhook deliveries (default "webhook-token")
  -duplicate-rate float
        Fraction of webhook deliveries replayed on purpose (default 0.1)
  -log string
        Log file for run output (default: smoke_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Smoke a local service with default settings
  go run cmd/smoke/main.go

  # Larger run against another host
  go run cmd/smoke/main.go -participants 5000 -workers 16 -url http://localhost:8080

  # Replay a third of all webhook deliveries
  go run cmd/smoke/main.go -duplicate-rate 0.33
`)
}
