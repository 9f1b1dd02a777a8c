package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/data/pgxutil"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
)

// DiscoveryJobRepo provides database operations for discovery jobs.
type DiscoveryJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewDiscoveryJobRepo creates a new DiscoveryJobRepo instance with the given database connection.
func NewDiscoveryJobRepo(db *sql.DB) *DiscoveryJobRepo {
	return &DiscoveryJobRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewDiscoveryJobRepoWithTimeProvider creates a DiscoveryJobRepo with a custom TimeProvider (useful for testing).
func NewDiscoveryJobRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *DiscoveryJobRepo {
	return &DiscoveryJobRepo{DB: db, timeProvider: tp}
}

const discoveryJobColumns = `
  id::text AS id,
  user_id,
  product_id,
  job_type,
  status,
  interval_minutes,
  next_run,
  leased_until,
  last_run,
  run_count,
  consecutive_failures,
  error_message,
  created_at,
  updated_at
`

func (r *DiscoveryJobRepo) queryJobs(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	jobs, err := pgxutil.Query(ctx, r.DB, pgx.RowToAddrOfStructByName[model.Job], query, args...)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		normalizeJobTimes(j)
	}
	return jobs, nil
}

func (r *DiscoveryJobRepo) queryJob(ctx context.Context, query string, args ...any) (*model.Job, error) {
	jobs, err := r.queryJobs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrJobNotFound
	}
	return jobs[0], nil
}

func normalizeJobTimes(j *model.Job) {
	j.NextRun = j.NextRun.UTC()
	if j.LastRun != nil {
		lr := j.LastRun.UTC()
		j.LastRun = &lr
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
}

// Create inserts the job for the (user, product, type) triple. When a row already exists it is
// returned unchanged with created=false; the unique constraint is the arbiter under concurrency.
func (r *DiscoveryJobRepo) Create(ctx context.Context, req model.CreateJobRequest) (*model.Job, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, apperrors.Validation(err.Error())
	}
	now := r.timeProvider.Now().UTC()
	nextRun := req.NextRun
	if nextRun.IsZero() {
		nextRun = now
	}

	inserted, err := r.queryJobs(ctx, `
		INSERT INTO discovery_jobs (user_id, product_id, job_type, status, interval_minutes, next_run, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', $4, $5, $6, $6)
		ON CONFLICT ON CONSTRAINT discovery_jobs_triple_key DO NOTHING
		RETURNING `+discoveryJobColumns,
		req.UserID, req.ProductID, string(req.Type), req.IntervalMinutes, nextRun.UTC(), now)
	if err != nil {
		return nil, false, fmt.Errorf("insert discovery job: %w", apperrors.MapDBError(err))
	}
	if len(inserted) == 1 {
		return inserted[0], true, nil
	}

	existing, err := r.GetByTriple(ctx, core.JobKey{UserID: req.UserID, ProductID: req.ProductID, Type: req.Type})
	if err != nil {
		return nil, false, fmt.Errorf("load existing discovery job: %w", err)
	}
	return existing, false, nil
}

// GetByID returns the job with the given id or ErrJobNotFound.
func (r *DiscoveryJobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := r.queryJob(ctx, `SELECT `+discoveryJobColumns+` FROM discovery_jobs WHERE id = $1::uuid`, id)
	if isMalformedID(err) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// GetByTriple returns the job for the unique triple or ErrJobNotFound.
func (r *DiscoveryJobRepo) GetByTriple(ctx context.Context, key core.JobKey) (*model.Job, error) {
	return r.queryJob(ctx, `
		SELECT `+discoveryJobColumns+`
		FROM discovery_jobs
		WHERE user_id = $1 AND product_id = $2 AND job_type = $3`,
		key.UserID, key.ProductID, string(key.Type))
}

// ListByUser returns all jobs of a user ordered by creation.
func (r *DiscoveryJobRepo) ListByUser(ctx context.Context, userID string) ([]*model.Job, error) {
	jobs, err := r.queryJobs(ctx, `
		SELECT `+discoveryJobColumns+`
		FROM discovery_jobs
		WHERE user_id = $1
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list discovery jobs: %w", err)
	}
	return jobs, nil
}

// FindDue returns active jobs whose next_run is at or before now, oldest first.
// Selection does not lock; Claim is the only gate to execution.
func (r *DiscoveryJobRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	jobs, err := r.queryJobs(ctx, `
		SELECT `+discoveryJobColumns+`
		FROM discovery_jobs
		WHERE status = 'active' AND next_run <= $1
		ORDER BY next_run ASC, created_at ASC
		LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due discovery jobs: %w", err)
	}
	return jobs, nil
}

// Claim performs the compare-and-swap on next_run that grants a single trigger the execution.
// next_run and leased_until both move to the lease, so a crashed execution is retried once it lapses.
func (r *DiscoveryJobRepo) Claim(ctx context.Context, p model.ClaimParams) (bool, error) {
	now := p.Now
	if now.IsZero() {
		now = r.timeProvider.Now()
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE discovery_jobs
		SET next_run = $3, leased_until = $3, updated_at = $4
		WHERE id = $1::uuid
		  AND status = 'active'
		  AND next_run = $2
		  AND (leased_until IS NULL OR leased_until <= $5)`,
		p.ID, p.ExpectedNextRun.UTC(), p.LeaseUntil.UTC(), r.timeProvider.Now().UTC(), now.UTC())
	if isMalformedID(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim discovery job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return n == 1, nil
}

// RecordOutcome persists an execution outcome. It only applies while the job is still active
// and still carries the lease of the claim that ran it, so a job paused during execution keeps
// its paused status and a stale execution cannot overwrite a newer claim.
func (r *DiscoveryJobRepo) RecordOutcome(ctx context.Context, u model.JobOutcomeUpdate) (bool, error) {
	if !u.Status.Valid() {
		return false, fmt.Errorf("invalid job status %q", u.Status)
	}
	var nextRun any
	if u.NextRun != nil {
		nextRun = u.NextRun.UTC()
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE discovery_jobs
		SET status = $2,
		    next_run = COALESCE($3, next_run),
		    leased_until = NULL,
		    last_run = $4,
		    run_count = run_count + 1,
		    error_message = $5,
		    consecutive_failures = $6,
		    updated_at = $7
		WHERE id = $1::uuid AND status = 'active' AND leased_until = $8`,
		u.ID, string(u.Status), nextRun, u.LastRun.UTC(), u.ErrorMessage, u.ConsecutiveFailures,
		r.timeProvider.Now().UTC(), u.LeaseUntil.UTC())
	if isMalformedID(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record job outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record outcome rows affected: %w", err)
	}
	return n == 1, nil
}

// Pause pauses all job types for a (user, product) pair. History is preserved.
func (r *DiscoveryJobRepo) Pause(ctx context.Context, userID, productID string) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE discovery_jobs
		SET status = 'paused', updated_at = $3
		WHERE user_id = $1 AND product_id = $2 AND status <> 'paused'`,
		userID, productID, r.timeProvider.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("pause discovery jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pause rows affected: %w", err)
	}
	return int(n), nil
}

// Reactivate makes a job executable again and clears its error state.
func (r *DiscoveryJobRepo) Reactivate(ctx context.Context, p core.ReactivateParams) (*model.Job, error) {
	job, err := r.queryJob(ctx, `
		UPDATE discovery_jobs
		SET status = 'active',
		    next_run = $2,
		    interval_minutes = COALESCE($3, interval_minutes),
		    error_message = NULL,
		    consecutive_failures = 0,
		    updated_at = $4
		WHERE id = $1::uuid
		RETURNING `+discoveryJobColumns,
		p.ID, p.NextRun.UTC(), p.IntervalMinutes, r.timeProvider.Now().UTC())
	if errors.Is(err, ErrJobNotFound) || isMalformedID(err) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reactivate discovery job: %w", apperrors.MapDBError(err))
	}
	return job, nil
}

// ReactivateErroredForUser reactivates every errored job of the user, due immediately.
func (r *DiscoveryJobRepo) ReactivateErroredForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE discovery_jobs
		SET status = 'active', next_run = $2, error_message = NULL, consecutive_failures = 0, updated_at = $3
		WHERE user_id = $1 AND status = 'error'`,
		userID, now.UTC(), r.timeProvider.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reactivate errored jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reactivate rows affected: %w", err)
	}
	return int(n), nil
}
