// Package scheduler holds the pure policy that turns an execution outcome into the next job state.
package scheduler

import (
	"errors"
	"time"

	"github.com/leadwatch/leadwatch/internal/domain/model"
)

// ErrInvalidBackoff indicates the configured backoff bounds are not usable.
var ErrInvalidBackoff = errors.New("backoff base must be positive and not exceed backoff max")

// OutcomeKind classifies a finished execution.
type OutcomeKind string

const (
	// OutcomeSuccess means the pipeline completed; partial progress counts as success only when no error surfaced.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeTransient means the failure is expected to resolve on retry.
	OutcomeTransient OutcomeKind = "transient"
	// OutcomeFatal means the job needs external reactivation.
	OutcomeFatal OutcomeKind = "fatal"
)

// maxErrorMessageLen bounds the error_message column.
const maxErrorMessageLen = 1024

// Outcome is the result of one job execution.
type Outcome struct {
	Kind    OutcomeKind
	Message string
}

// OutcomePolicyOptions configures the transient backoff bounds.
type OutcomePolicyOptions struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// OutcomePolicy computes job updates for success, transient and fatal outcomes.
// Transient backoff is base*2^(streak-1), capped at both the job interval and BackoffMax.
type OutcomePolicy struct {
	base time.Duration
	max  time.Duration
}

// NewOutcomePolicy constructs an OutcomePolicy.
func NewOutcomePolicy(opts OutcomePolicyOptions) (*OutcomePolicy, error) {
	if opts.BackoffBase <= 0 || opts.BackoffMax < opts.BackoffBase {
		return nil, ErrInvalidBackoff
	}
	return &OutcomePolicy{base: opts.BackoffBase, max: opts.BackoffMax}, nil
}

// Apply returns the update to persist for job after an execution finished at now.
// job is the snapshot read before the claim.
func (p *OutcomePolicy) Apply(job *model.Job, outcome Outcome, now time.Time) model.JobOutcomeUpdate {
	now = now.UTC()
	update := model.JobOutcomeUpdate{
		ID:      job.ID,
		Status:  model.JobStatusActive,
		LastRun: now,
	}

	switch outcome.Kind {
	case OutcomeSuccess:
		next := now.Add(job.Interval())
		update.NextRun = &next
	case OutcomeTransient:
		streak := job.ConsecutiveFailures + 1
		next := now.Add(p.Backoff(streak, job.Interval()))
		update.NextRun = &next
		update.ConsecutiveFailures = streak
		update.ErrorMessage = errorMessage(outcome.Message, "transient failure")
	case OutcomeFatal:
		stale := job.NextRun.UTC()
		update.Status = model.JobStatusError
		update.NextRun = &stale
		update.ConsecutiveFailures = job.ConsecutiveFailures + 1
		update.ErrorMessage = errorMessage(outcome.Message, "fatal failure")
	default:
		// Unknown kinds retry like transient failures rather than stalling the job.
		return p.Apply(job, Outcome{Kind: OutcomeTransient, Message: outcome.Message}, now)
	}
	return update
}

// Backoff returns the delay before retrying after streak consecutive transient failures.
func (p *OutcomePolicy) Backoff(streak int, interval time.Duration) time.Duration {
	limit := p.max
	if interval > 0 && interval < limit {
		limit = interval
	}
	if streak < 1 {
		streak = 1
	}
	delay := p.base
	for i := 1; i < streak; i++ {
		if delay >= limit {
			break
		}
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}
	return delay
}

func errorMessage(msg, fallback string) *string {
	if msg == "" {
		msg = fallback
	}
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return &msg
}
