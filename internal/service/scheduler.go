// Package service implements the leadwatch services: credential management, relevance scoring,
// lead ingestion, discovery execution, job lifecycle and scheduling.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/data"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	domainscheduler "github.com/leadwatch/leadwatch/internal/domain/scheduler"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
	"github.com/leadwatch/leadwatch/internal/observability/metrics"
	"github.com/leadwatch/leadwatch/internal/observability/notify"
	"github.com/leadwatch/leadwatch/internal/observability/statsd"
	"golang.org/x/sync/errgroup"
)

const outcomeWriteTimeout = 10 * time.Second

// ErrJobNotActive is returned by RunJobNow for paused or errored jobs.
var ErrJobNotActive = errors.New("job is not active")

// FailureNotifier receives jobs that entered the error state.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
}

// SchedulerServiceOptions holds the dependencies for creating a SchedulerService.
type SchedulerServiceOptions struct {
	Jobs         core.JobRepository
	Executor     core.JobExecutor
	Config       *core.SchedulerConfig
	TimeProvider data.TimeProvider
	Metrics      statsd.Sink
	// Notifier is optional.
	Notifier FailureNotifier
	Logger   *slog.Logger
}

// SchedulerService implements core.JobScheduler.
//
// Every execution, whether started by Tick or RunJobNow, first claims the job with a
// compare-and-swap on next_run. Only the caller whose claim changed the row executes,
// so a job runs at most once per due time regardless of trigger source.
type SchedulerService struct {
	jobs     core.JobRepository
	executor core.JobExecutor
	cfg      core.SchedulerConfig
	lease    time.Duration
	clock    data.TimeProvider
	policy   *domainscheduler.OutcomePolicy
	metrics  statsd.Sink
	notifier FailureNotifier
	logger   *slog.Logger
}

var _ core.JobScheduler = (*SchedulerService)(nil)

// NewSchedulerService creates a new SchedulerService with the given dependencies.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job repository is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("job executor is required")
	}
	cfg := core.DefaultSchedulerConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = core.DefaultSchedulerConfig().BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = core.DefaultSchedulerConfig().ClaimLease
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = core.DefaultSchedulerConfig().ExecutionTimeout
	}
	policy, err := domainscheduler.NewOutcomePolicy(domainscheduler.OutcomePolicyOptions{
		BackoffBase: cfg.BackoffBase,
		BackoffMax:  cfg.BackoffMax,
	})
	if err != nil {
		return nil, fmt.Errorf("outcome policy: %w", err)
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SchedulerService{
		jobs:     opts.Jobs,
		executor: opts.Executor,
		cfg:      cfg,
		lease:    claimLease(cfg),
		clock:    clock,
		policy:   policy,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
		logger:   logger.With("component", "scheduler"),
	}, nil
}

// claimLease is the lease a claim takes. It always outlasts one bounded execution plus
// the outcome write, so a live execution never loses its claim.
func claimLease(cfg core.SchedulerConfig) time.Duration {
	return max(cfg.ClaimLease, cfg.ExecutionTimeout+outcomeWriteTimeout)
}

// MustNewSchedulerService constructs a SchedulerService and panics on error.
func MustNewSchedulerService(opts SchedulerServiceOptions) *SchedulerService {
	svc, err := NewSchedulerService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return svc
}

// Tick runs one scheduling pass at now.
//
// Algorithm:
// 1. Find up to BatchSize active jobs with next_run <= now
// 2. Hand each one to a worker, at most Workers at a time
// 3. The worker claims the job (CAS on next_run, moving it to the lease end) right
//    before executing it, so queued jobs hold no lease while they wait
// 4. Persist each job's outcome through the outcome policy, fenced by the claim's lease
//
// A failing or panicking job never affects the others. The returned error reports
// repository failures only; execution failures are counted in TickResult.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (core.TickResult, error) {
	due, err := s.jobs.FindDue(ctx, now.UTC(), s.cfg.BatchSize)
	if err != nil {
		return core.TickResult{}, fmt.Errorf("find due jobs: %w", err)
	}
	res := core.TickResult{Due: len(due)}

	var (
		mu       sync.Mutex
		claimErr error
		group    errgroup.Group
	)
	group.SetLimit(s.cfg.Workers)
	for _, job := range due {
		group.Go(func() error {
			claimAt := now
			if c := s.clock.Now(); c.After(claimAt) {
				claimAt = c
			}
			lease, ok, err := s.claim(ctx, job, claimAt)
			if err != nil {
				s.logger.ErrorContext(ctx, "claim job", "job_id", job.ID, "error", err)
				mu.Lock()
				claimErr = errors.Join(claimErr, err)
				mu.Unlock()
				return nil
			}
			if !ok {
				return nil
			}
			kind := s.run(ctx, job, lease)
			mu.Lock()
			defer mu.Unlock()
			res.Claimed++
			countOutcome(&res, kind)
			return nil
		})
	}
	_ = group.Wait()

	return res, claimErr
}

// ProcessJobs runs one scheduling pass immediately.
func (s *SchedulerService) ProcessJobs(ctx context.Context) (core.TickResult, error) {
	return s.Tick(ctx, s.clock.Now())
}

// RunResult reports a manual trigger.
type RunResult struct {
	// Claimed is false when another trigger owned the execution.
	Claimed bool
	Outcome domainscheduler.OutcomeKind
}

// RunJobNow executes one job immediately through the same claim path as Tick, even when
// it is not yet due. The claim expects the next_run just read and refuses live leases, so
// a concurrent tick and a manual trigger cannot both execute the job.
func (s *SchedulerService) RunJobNow(ctx context.Context, jobID string) (RunResult, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return RunResult{}, fmt.Errorf("load job: %w", err)
	}
	if job.Status != model.JobStatusActive {
		return RunResult{}, ErrJobNotActive
	}
	now := s.clock.Now()
	if job.Leased(now) {
		return RunResult{}, nil
	}
	lease, ok, err := s.claim(ctx, job, now)
	if err != nil {
		return RunResult{}, err
	}
	if !ok {
		return RunResult{}, nil
	}
	return RunResult{Claimed: true, Outcome: s.run(ctx, job, lease)}, nil
}

// claim returns the lease end it wrote when the CAS succeeded. The lease is truncated to
// the column's microsecond precision so the outcome fence compares equal.
func (s *SchedulerService) claim(ctx context.Context, job *model.Job, now time.Time) (time.Time, bool, error) {
	lease := now.UTC().Add(s.lease).Truncate(time.Microsecond)
	ok, err := s.jobs.Claim(ctx, model.ClaimParams{
		ID:              job.ID,
		ExpectedNextRun: job.NextRun,
		LeaseUntil:      lease,
		Now:             now.UTC(),
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	return lease, ok, nil
}

// run executes a claimed job and commits its outcome. job is the pre-claim snapshot and
// lease the value the claim wrote; the outcome is dropped if another claim replaced it.
func (s *SchedulerService) run(ctx context.Context, job *model.Job, lease time.Time) domainscheduler.OutcomeKind {
	ectx, cancelExec := context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
	report, execErr := s.safeExecute(ectx, job)
	cancelExec()
	outcome := classifyOutcome(execErr)

	update := s.policy.Apply(job, outcome, s.clock.Now())
	update.LeaseUntil = lease
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
	defer cancel()
	applied, err := s.jobs.RecordOutcome(wctx, update)
	switch {
	case err != nil:
		s.logger.ErrorContext(ctx, "record job outcome", "job_id", job.ID, "outcome", outcome.Kind, "error", err)
	case !applied:
		s.logger.InfoContext(ctx, "job changed state or lost its lease during execution, outcome discarded",
			"job_id", job.ID, "outcome", outcome.Kind)
	}

	metrics.EmitExecution(s.metrics, metrics.ExecutionMetric{
		JobType:  string(job.Type),
		Outcome:  string(outcome.Kind),
		Duration: report.Duration,
		Ingested: report.Ingested,
		Err:      execErr,
	})
	if outcome.Kind == domainscheduler.OutcomeFatal && applied {
		s.notifyFatal(wctx, job, execErr)
	}
	return outcome.Kind
}

func (s *SchedulerService) safeExecute(ctx context.Context, job *model.Job) (report core.ExecutionReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "job execution panicked", "job_id", job.ID, "panic", r)
			err = fmt.Errorf("execution panicked: %v", r)
		}
	}()
	return s.executor.Execute(ctx, job)
}

func classifyOutcome(err error) domainscheduler.Outcome {
	switch {
	case err == nil:
		return domainscheduler.Outcome{Kind: domainscheduler.OutcomeSuccess}
	case apperrors.IsFatal(err):
		return domainscheduler.Outcome{Kind: domainscheduler.OutcomeFatal, Message: err.Error()}
	default:
		return domainscheduler.Outcome{Kind: domainscheduler.OutcomeTransient, Message: err.Error()}
	}
}

func (s *SchedulerService) notifyFatal(ctx context.Context, job *model.Job, err error) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:      job.ID,
		JobType:    string(job.Type),
		UserID:     job.UserID,
		ProductID:  job.ProductID,
		Error:      err.Error(),
		ErrorClass: apperrors.Class(err),
		OccurredAt: s.clock.Now().UTC(),
	})
}

func countOutcome(res *core.TickResult, kind domainscheduler.OutcomeKind) {
	switch kind {
	case domainscheduler.OutcomeSuccess:
		res.Succeeded++
	case domainscheduler.OutcomeFatal:
		res.Fatal++
	default:
		res.Transient++
	}
}
