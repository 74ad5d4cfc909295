package smoke

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// application mirrors the API's application shape.
type application struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Score  int    `json:"score"`
}

// approveResponse mirrors the API's approval response.
type approveResponse struct {
	Match struct {
		ID string `json:"id"`
	} `json:"match"`
	Created bool `json:"created"`
}

// session mirrors the API's session shape.
type session struct {
	ID      string `json:"id"`
	MatchID string `json:"match_id"`
}

// drivePipeline pushes every generated participant through registration,
// application, review, scheduling and the webhook pair. It returns the
// session IDs that made it to transcript ingestion.
func drivePipeline(ctx context.Context, config *Config, studyID string, participants []participant, stats *Stats) ([]string, error) {
	log.Printf("driving %d participants with %d workers...", len(participants), config.Workers)

	client := newHTTPClient(config.Timeout)

	var (
		accepted   int64
		rejected   int64
		failed     int64
		scheduled  int64
		sessions   int64
		transcript int64
		duplicates int64
	)

	var mu sync.Mutex
	var sessionIDs []string

	participantChan := make(chan participant, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range participantChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				sessionID, outcome := driveParticipant(ctx, client, config, studyID, p, &scheduled, &sessions, &transcript, &duplicates)
				switch outcome {
				case "accepted":
					atomic.AddInt64(&accepted, 1)
				case "rejected":
					atomic.AddInt64(&rejected, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				if sessionID != "" {
					mu.Lock()
					sessionIDs = append(sessionIDs, sessionID)
					mu.Unlock()
				}
			}
		}()
	}

	go func() {
		defer close(participantChan)
		for _, p := range participants {
			select {
			case <-ctx.Done():
				return
			case participantChan <- p:
			}
		}
	}()

	wg.Wait()

	stats.ApplicationsAccepted = int(atomic.LoadInt64(&accepted))
	stats.ApplicationsRejected = int(atomic.LoadInt64(&rejected))
	stats.ApplicationsFailed = int(atomic.LoadInt64(&failed))
	stats.MatchesScheduled = int(atomic.LoadInt64(&scheduled))
	stats.SessionsRecorded = int(atomic.LoadInt64(&sessions))
	stats.TranscriptsIngested = int(atomic.LoadInt64(&transcript))
	stats.DuplicatesAcked = int(atomic.LoadInt64(&duplicates))

	log.Printf(`pipeline run completed:
   Accepted: %d
   Rejected: %d
   Failed: %d
   Sessions: %d
   Transcripts: %d
   Duplicate acks: %d
`, stats.ApplicationsAccepted, stats.ApplicationsRejected, stats.ApplicationsFailed,
		stats.SessionsRecorded, stats.TranscriptsIngested, stats.DuplicatesAcked)

	return sessionIDs, nil
}

// driveParticipant runs one participant end to end. The returned outcome is
// "accepted", "rejected" or "failed"; sessionID is empty unless a transcript
// was ingested.
func driveParticipant(ctx context.Context, client *HTTPClient, config *Config, studyID string, p participant,
	scheduled, sessions, transcripts, duplicates *int64) (string, string) {
	status, _, err := client.Post(ctx, config.BaseURL+"/participants", config.ResearcherToken, "", map[string]interface{}{
		"id":      p.ID,
		"profile": p.Profile,
	})
	if err != nil || status != StatusCreated {
		return "", "failed"
	}

	status, body, err := client.Post(ctx, config.BaseURL+"/studies/"+studyID+"/apply", config.ResearcherToken, "", map[string]interface{}{
		"participant_id": p.ID,
		"answers":        p.Answers,
	})
	if err != nil || status != StatusCreated {
		return "", "failed"
	}
	var app application
	if err := json.Unmarshal(body, &app); err != nil {
		return "", "failed"
	}

	// Applications always land pending; the run plays researcher and rejects
	// the ones whose screening score missed the study threshold.
	if app.Score < studyThreshold {
		status, _, err = client.Post(ctx, config.BaseURL+"/applications/"+app.ID+"/reject", config.ResearcherToken, "", nil)
		if err != nil || status != StatusOK {
			return "", "failed"
		}
		return "", "rejected"
	}

	status, body, err = client.Post(ctx, config.BaseURL+"/applications/"+app.ID+"/approve", config.ResearcherToken, "", nil)
	if err != nil || (status != StatusOK && status != StatusCreated) {
		return "", "failed"
	}
	var approval approveResponse
	if err := json.Unmarshal(body, &approval); err != nil {
		return "", "failed"
	}

	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	status, _, err = client.Post(ctx, config.BaseURL+"/matches/"+approval.Match.ID+"/schedule", config.ResearcherToken, "", map[string]interface{}{
		"at":                 at,
		"external_event_ref": "smoke-" + p.ID,
	})
	if err != nil || status != StatusOK {
		return "", "failed"
	}
	atomic.AddInt64(scheduled, 1)

	sessionDelivery := "smoke-session-" + p.ID
	status, body, err = client.Post(ctx, config.BaseURL+"/webhooks/session", config.WebhookToken, sessionDelivery, map[string]interface{}{
		"match_id": approval.Match.ID,
	})
	if err != nil || status != StatusCreated {
		return "", "failed"
	}
	var sess session
	if err := json.Unmarshal(body, &sess); err != nil {
		return "", "failed"
	}
	atomic.AddInt64(sessions, 1)

	if getRandomFloat() < config.DuplicateRate {
		status, _, err = client.Post(ctx, config.BaseURL+"/webhooks/session", config.WebhookToken, sessionDelivery, map[string]interface{}{
			"match_id": approval.Match.ID,
		})
		if err == nil && status == StatusOK {
			atomic.AddInt64(duplicates, 1)
		}
	}

	transcriptDelivery := "smoke-transcript-" + p.ID
	status, _, err = client.Post(ctx, config.BaseURL+"/webhooks/transcript", config.WebhookToken, transcriptDelivery, map[string]interface{}{
		"session_id": sess.ID,
		"raw_text":   pickTranscript(),
	})
	if err != nil || status != StatusAccepted {
		return "", "failed"
	}
	atomic.AddInt64(transcripts, 1)

	if getRandomFloat() < config.DuplicateRate {
		status, _, err = client.Post(ctx, config.BaseURL+"/webhooks/transcript", config.WebhookToken, transcriptDelivery, map[string]interface{}{
			"session_id": sess.ID,
			"raw_text":   "replayed",
		})
		if err == nil && status == StatusOK {
			atomic.AddInt64(duplicates, 1)
		}
	}

	return sess.ID, "accepted"
}

// collectInsights fetches the extracted units for every ingested session.
func collectInsights(ctx context.Context, config *Config, sessionIDs []string, stats *Stats) error {
	client := newHTTPClient(config.Timeout)

	var retrieved int64
	missing := 0
	for _, id := range sessionIDs {
		status, body, err := client.Get(ctx, config.BaseURL+"/sessions/"+id+"/insights", config.ResearcherToken)
		if err != nil || status != StatusOK {
			missing++
			continue
		}
		var units []json.RawMessage
		if err := json.Unmarshal(body, &units); err != nil {
			missing++
			continue
		}
		if len(units) == 0 {
			missing++
			continue
		}
		retrieved += int64(len(units))
	}

	stats.InsightsRetrieved = int(retrieved)
	if missing > 0 {
		return fmt.Errorf("%d of %d sessions have no insights yet", missing, len(sessionIDs))
	}
	return nil
}
