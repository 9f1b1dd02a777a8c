// Package credrefresh runs the proactive credential refresh loop.
package credrefresh

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/leadwatch/leadwatch/internal/observability/statsd"
	"github.com/leadwatch/leadwatch/internal/service"
)

// DefaultInterval is how often expiring credentials are checked when none is configured.
const DefaultInterval = time.Minute

// Refresher refreshes credentials that are close to expiry.
type Refresher interface {
	RefreshExpiring(ctx context.Context) (service.RefreshSummary, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Refresher Refresher
	Interval  time.Duration
	// DisableJitter skips the randomized initial delay.
	DisableJitter bool
	Logger        *slog.Logger
	Metrics       statsd.Sink
}

// Runner calls RefreshExpiring on a fixed period until its context ends.
type Runner struct {
	refresher Refresher
	interval  time.Duration
	jitter    bool
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewRunner creates a new credential refresh runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}
	return &Runner{
		refresher: opts.Refresher,
		interval:  opts.Interval,
		jitter:    !opts.DisableJitter,
		logger:    opts.Logger.With("component", "credential_refresh"),
		metrics:   opts.Metrics,
	}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Refresher == nil {
		return errors.New("refresher is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run refreshes once after a short jittered delay, then on every interval.
// It returns nil when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting credential refresh runner", "interval", r.interval)

	if r.jitter {
		r.waitWithJitter(ctx)
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "credential refresh runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single refresh pass and reports its summary.
func (r *Runner) RunOnce(ctx context.Context) service.RefreshSummary {
	if ctx.Err() != nil {
		return service.RefreshSummary{}
	}
	start := time.Now()
	summary, err := r.refresher.RefreshExpiring(ctx)
	elapsed := time.Since(start)

	if r.metrics != nil {
		r.metrics.Timing("credential.refresh_pass_duration", elapsed, nil)
		r.metrics.Gauge("credential.refresh_pass_checked", float64(summary.Checked), nil)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "credential refresh pass failed", "error", err)
		return summary
	}
	if summary.Checked > 0 {
		r.logger.InfoContext(ctx, "credential refresh pass",
			"checked", summary.Checked,
			"refreshed", summary.Refreshed,
			"revoked", summary.Revoked,
			"failed", summary.Failed,
			"duration", elapsed,
		)
	}
	return summary
}

// waitWithJitter delays up to 10% of the interval so replicas started together spread out.
func (r *Runner) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		r.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}
