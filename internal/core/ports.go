// Package core declares the ports the leadwatch services depend on.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/leadwatch/leadwatch/internal/domain/model"
)

// This file contains repository and adapter interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on concrete implementations.

// ErrRefreshTokenRejected is wrapped by TokenRefresher implementations when the platform
// rejects the refresh token as revoked or invalid. Any other refresh error is transient.
var ErrRefreshTokenRejected = errors.New("refresh token rejected")

// JobRepository defines persistence for discovery jobs.
type JobRepository interface {
	// Create inserts the job for the triple, or returns the existing one with created=false.
	Create(ctx context.Context, req model.CreateJobRequest) (*model.Job, bool, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	GetByTriple(ctx context.Context, key JobKey) (*model.Job, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Job, error)
	// FindDue returns active jobs with next_run <= now ordered by next_run.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error)
	// Claim atomically moves next_run to the lease when the row still matches the expected next_run.
	// Return semantics:
	//   - (true, nil): this caller owns the execution
	//   - (false, nil): another trigger claimed it first, or the job is no longer active
	Claim(ctx context.Context, p model.ClaimParams) (bool, error)
	// RecordOutcome applies a finished execution's update while the job is still active and
	// still holds u.LeaseUntil.
	RecordOutcome(ctx context.Context, u model.JobOutcomeUpdate) (bool, error)
	// Pause pauses every job for the (user, product) pair and returns the number changed.
	Pause(ctx context.Context, userID, productID string) (int, error)
	// Reactivate sets status active, next_run to p.NextRun and clears error state.
	Reactivate(ctx context.Context, p ReactivateParams) (*model.Job, error)
	// ReactivateErroredForUser reactivates every errored job of the user and returns the count.
	ReactivateErroredForUser(ctx context.Context, userID string, now time.Time) (int, error)
}

// JobKey identifies a job by its unique triple.
type JobKey struct {
	UserID    string
	ProductID string
	Type      model.JobType
}

// ReactivateParams groups parameters for JobRepository.Reactivate.
// A nil IntervalMinutes keeps the stored interval.
type ReactivateParams struct {
	ID              string
	NextRun         time.Time
	IntervalMinutes *int
}

// CredentialRepository stores OAuth credentials keyed by user id.
type CredentialRepository interface {
	Get(ctx context.Context, userID string) (*model.Credential, error)
	// Upsert returns data.ErrCredentialChanged when req.IfRevision no longer matches.
	Upsert(ctx context.Context, req model.SaveCredentialRequest) (*model.Credential, error)
	Delete(ctx context.Context, userID string) (bool, error)
	// DeleteRevision deletes the credential only while it still has revision.
	DeleteRevision(ctx context.Context, userID, revision string) (bool, error)
	// ListExpiring returns user ids whose access token expires at or before the cutoff.
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// ProductRepository reads product descriptions. This core never writes products.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*model.Product, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*model.Product, error)
}

// LeadRepository persists leads keyed by (user_id, product_id, platform_post_id).
type LeadRepository interface {
	// ExistingPostIDs returns the subset of postIDs already stored for the pair.
	ExistingPostIDs(ctx context.Context, userID, productID string, postIDs []string) (map[string]struct{}, error)
	// InsertIfAbsent inserts the lead; (false, nil) means it already existed.
	// A racing unique violation may surface as an errors.IngestError duplicate instead.
	InsertIfAbsent(ctx context.Context, req model.NewLeadRequest) (bool, error)
	CountByProduct(ctx context.Context, userID, productID string) (int, error)
}

// TokenRefresher exchanges a refresh token at the platform's token endpoint.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (model.TokenGrant, error)
}

// AppTokenSource yields the application-level platform token used when a user has no credential.
type AppTokenSource interface {
	Token(ctx context.Context) (model.AccessToken, error)
}

// SearchRequest describes one platform search call.
type SearchRequest struct {
	Token     model.AccessToken
	Community string
	Query     string
	Sort      string
	Window    string
	Limit     int
}

// PlatformSearcher queries the discussion platform.
// Errors are *errors.PlatformError values.
type PlatformSearcher interface {
	Search(ctx context.Context, req SearchRequest) ([]model.Candidate, error)
}

// ReasoningClient sends a prompt to the external reasoning service and returns its raw reply.
type ReasoningClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// TokenCache stores short-lived bearer tokens shared across restarts.
type TokenCache interface {
	// Get returns ok=false when the key is absent or expired.
	Get(ctx context.Context, key string) (model.AccessToken, bool, error)
	Set(ctx context.Context, key string, token model.AccessToken) error
}
