// Package scheduler provides the lifecycle adapter that drives the job scheduler on a fixed period.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/data"
	"github.com/leadwatch/leadwatch/internal/observability/metrics"
	"github.com/leadwatch/leadwatch/internal/observability/statsd"
)

// DefaultInterval is the tick period used when none is configured.
const DefaultInterval = 30 * time.Second

// ErrAlreadyRunning is returned by Start when the runner's loop is active.
var ErrAlreadyRunning = errors.New("scheduler runner already running")

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Scheduler core.JobScheduler
	Interval  time.Duration
	// RunOnStart runs one pass immediately instead of waiting for the first tick.
	RunOnStart   bool
	TimeProvider data.TimeProvider
	Metrics      statsd.Sink
	Logger       *slog.Logger
}

// Runner owns one tick loop. Each Runner is independent; there is no process-wide state,
// so tests and tools can run several side by side.
type Runner struct {
	scheduler  core.JobScheduler
	interval   time.Duration
	runOnStart bool
	clock      data.TimeProvider
	metrics    statsd.Sink
	logger     *slog.Logger

	mu        sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	cancelRun context.CancelFunc
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		scheduler:  opts.Scheduler,
		interval:   interval,
		runOnStart: opts.RunOnStart,
		clock:      clock,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "scheduler_runner"),
	}, nil
}

// Start launches the tick loop in the background. The loop's work is bound to ctx.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.cancelRun = cancel

	go r.loop(runCtx, r.stop, r.done)
	r.logger.InfoContext(ctx, "scheduler runner started", "interval", r.interval)
	return nil
}

// Stop ends the loop and waits for an in-flight pass to finish. When ctx expires first the
// pass is cancelled and ctx's error returned. Stopping a stopped runner is a no-op.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	stop, done, cancel := r.stop, r.done, r.cancelRun
	r.stop, r.done, r.cancelRun = nil, nil, nil
	r.mu.Unlock()
	if stop == nil {
		return nil
	}
	defer cancel()

	close(stop)
	select {
	case <-done:
		r.logger.InfoContext(ctx, "scheduler runner stopped")
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// IsRunning reports whether the tick loop is active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}

// Run starts the loop and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.interval)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// ProcessJobs runs one scheduling pass immediately, whether or not the loop is running.
func (r *Runner) ProcessJobs(ctx context.Context) (core.TickResult, error) {
	return r.tick(ctx, r.clock.Now())
}

func (r *Runner) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if r.runOnStart {
		_, _ = r.tick(ctx, r.clock.Now())
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.tick(ctx, r.clock.Now())
		}
	}
}

func (r *Runner) tick(ctx context.Context, now time.Time) (core.TickResult, error) {
	start := time.Now()
	res, err := r.scheduler.Tick(ctx, now)
	elapsed := time.Since(start)

	metrics.EmitTick(r.metrics, metrics.TickMetric{Claimed: res.Claimed, Duration: elapsed, Err: err})

	switch {
	case err != nil:
		// The loop keeps running; the next tick retries.
		r.logger.ErrorContext(ctx, "scheduler tick error", "error", err, "claimed", res.Claimed)
	case res.Claimed > 0:
		r.logger.InfoContext(ctx, "scheduler tick",
			"due", res.Due,
			"claimed", res.Claimed,
			"succeeded", res.Succeeded,
			"transient", res.Transient,
			"fatal", res.Fatal,
			"duration", elapsed,
		)
	}
	return res, err
}
