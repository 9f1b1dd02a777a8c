package core

import (
	"context"
	"time"

	"github.com/leadwatch/leadwatch/internal/domain/model"
)

// CredentialResolver hands out valid access tokens for users.
type CredentialResolver interface {
	// Resolve returns a token valid for at least the refresh margin, refreshing first when needed.
	Resolve(ctx context.Context, userID string) (model.AccessToken, error)
	// Invalidate clears the user's credential after the platform rejected it.
	Invalidate(ctx context.Context, userID string) error
}

// RelevanceScorer scores a candidate against a product. It never fails: unavailable
// reasoning falls back to the heuristic.
type RelevanceScorer interface {
	Score(ctx context.Context, product *model.Product, candidate model.Candidate) model.Relevance
}

// LeadIngestor persists scored candidates idempotently.
type LeadIngestor interface {
	Known(ctx context.Context, job *model.Job, postIDs []string) (map[string]struct{}, error)
	Ingest(ctx context.Context, job *model.Job, scored model.ScoredCandidate) (bool, error)
}

// ExecutionReport summarizes one discovery execution.
type ExecutionReport struct {
	Searches   int
	Candidates int
	Skipped    int
	Ingested   int
	Aborted    bool
	Duration   time.Duration
}

// JobExecutor runs the discovery pipeline for one claimed job.
type JobExecutor interface {
	Execute(ctx context.Context, job *model.Job) (ExecutionReport, error)
}

// SchedulerConfig holds configuration for the scheduler service.
// The effective claim lease is the larger of ClaimLease and ExecutionTimeout plus the
// outcome write budget.
type SchedulerConfig struct {
	BatchSize int `json:"batch_size"`
	Workers   int `json:"workers"`
	// ExecutionTimeout bounds each execution the scheduler starts.
	ExecutionTimeout time.Duration `json:"execution_timeout"`
	ClaimLease       time.Duration `json:"claim_lease"`
	BackoffBase      time.Duration `json:"backoff_base"`
	BackoffMax       time.Duration `json:"backoff_max"`
}

// DefaultSchedulerConfig returns a SchedulerConfig with sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BatchSize:        25,
		Workers:          4,
		ExecutionTimeout: 30 * time.Second,
		ClaimLease:       5 * time.Minute,
		BackoffBase:      time.Minute,
		BackoffMax:       time.Hour,
	}
}

// TickResult reports what one scheduling pass did.
type TickResult struct {
	Due       int
	Claimed   int
	Succeeded int
	Transient int
	Fatal     int
}

// JobScheduler runs scheduling passes.
type JobScheduler interface {
	Tick(ctx context.Context, now time.Time) (TickResult, error)
}

// CredentialConnector stores credentials received at the OAuth callback boundary.
type CredentialConnector interface {
	Connect(ctx context.Context, userID string, grant model.TokenGrant) (*model.Credential, error)
}
