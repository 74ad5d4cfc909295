// Package rolegate maps bearer tokens to caller roles and decides which
// operations each role may invoke.
package rolegate

import (
	"errors"
	"sync"
)

// Role identifies a class of caller.
type Role string

// Caller roles.
const (
	RoleParticipant Role = "participant"
	RoleResearcher  Role = "researcher"
	RoleWebhook     Role = "webhook"
	RoleWorker      Role = "worker"
)

// Operation names the privileged actions the gate arbitrates.
type Operation string

// Gated operations.
const (
	OpCreateStudy         Operation = "create_study"
	OpSubmitApplication   Operation = "submit_application"
	OpReviewApplication   Operation = "review_application"
	OpScheduleMatch       Operation = "schedule_match"
	OpIngestSession       Operation = "ingest_session"
	OpIngestTranscript    Operation = "ingest_transcript"
	OpGenerateInsight     Operation = "generate_insight"
	OpReadInsights        Operation = "read_insights"
	OpReadStats           Operation = "read_stats"
	OpListApplications    Operation = "list_applications"
	OpRegisterParticipant Operation = "register_participant"
	OpReadPipeline        Operation = "read_pipeline"
)

// Gate errors.
var (
	ErrUnknownToken = errors.New("unknown token")
	ErrForbidden    = errors.New("operation not allowed for role")
)

// policy maps each operation to the roles allowed to perform it. Researchers
// run the desk; participants only apply; webhook callers deliver session and
// transcript events; workers read transcripts back out for extraction.
var policy = map[Operation]map[Role]bool{
	OpCreateStudy:         {RoleResearcher: true},
	OpSubmitApplication:   {RoleParticipant: true, RoleResearcher: true},
	OpReviewApplication:   {RoleResearcher: true},
	OpScheduleMatch:       {RoleResearcher: true},
	OpIngestSession:       {RoleWebhook: true, RoleResearcher: true},
	OpIngestTranscript:    {RoleWebhook: true, RoleResearcher: true},
	OpGenerateInsight:     {RoleWorker: true, RoleResearcher: true},
	OpReadInsights:        {RoleResearcher: true},
	OpReadStats:           {RoleResearcher: true},
	OpListApplications:    {RoleResearcher: true},
	OpRegisterParticipant: {RoleParticipant: true, RoleResearcher: true},
	OpReadPipeline:        {RoleParticipant: true, RoleResearcher: true, RoleWebhook: true, RoleWorker: true},
}

// Gate resolves bearer tokens to roles and authorizes operations against the
// policy table. Token assignments come from configuration at startup.
type Gate struct {
	mu     sync.RWMutex
	tokens map[string]Role
}

// New creates a gate with the given token assignments.
func New(tokens map[string]Role) *Gate {
	g := &Gate{tokens: make(map[string]Role, len(tokens))}
	for token, role := range tokens {
		if token == "" {
			continue
		}
		g.tokens[token] = role
	}
	return g
}

// Resolve maps a bearer token to its role.
func (g *Gate) Resolve(token string) (Role, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	role, ok := g.tokens[token]
	if !ok {
		return "", ErrUnknownToken
	}
	return role, nil
}

// Allowed reports whether role may perform op.
func (g *Gate) Allowed(role Role, op Operation) bool {
	roles, ok := policy[op]
	if !ok {
		return false
	}
	return roles[role]
}

// Authorize resolves the token and checks it against the operation in one
// step. It distinguishes an unknown token from a known-but-forbidden one so
// the transport can answer 401 versus 403.
func (g *Gate) Authorize(token string, op Operation) (Role, error) {
	role, err := g.Resolve(token)
	if err != nil {
		return "", err
	}
	if !g.Allowed(role, op) {
		return role, ErrForbidden
	}
	return role, nil
}
