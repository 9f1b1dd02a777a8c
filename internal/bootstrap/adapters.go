package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadwatch/leadwatch/internal/adapters/credrefresh"
	schedrunner "github.com/leadwatch/leadwatch/internal/adapters/scheduler"
	"github.com/leadwatch/leadwatch/internal/observability/statsd"
	"github.com/leadwatch/leadwatch/internal/service"
)

// SchedulerRunConfig contains configuration for the scheduler loop.
type SchedulerRunConfig struct {
	Scheduler  *service.SchedulerService
	Interval   time.Duration
	RunOnStart bool
	Metrics    statsd.Sink
	Logger     *slog.Logger
}

// RunScheduler runs the scheduler tick loop until ctx is cancelled.
func RunScheduler(ctx context.Context, cfg SchedulerRunConfig) error {
	if cfg.Scheduler == nil {
		return errors.New("scheduler service is required")
	}
	runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
		Scheduler:  cfg.Scheduler,
		Interval:   cfg.Interval,
		RunOnStart: cfg.RunOnStart,
		Metrics:    cfg.Metrics,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create scheduler runner: %w", err)
	}
	return runner.Run(ctx)
}

// CredentialRefresherConfig contains configuration for the proactive refresh loop.
type CredentialRefresherConfig struct {
	Credentials *service.CredentialService
	Interval    time.Duration
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// RunCredentialRefresher refreshes expiring credentials until ctx is cancelled.
func RunCredentialRefresher(ctx context.Context, cfg CredentialRefresherConfig) error {
	if cfg.Credentials == nil {
		return errors.New("credential service is required")
	}
	runner, err := credrefresh.NewRunner(credrefresh.RunnerOptions{
		Refresher: cfg.Credentials,
		Interval:  cfg.Interval,
		Metrics:   cfg.Metrics,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create credential refresher: %w", err)
	}
	return runner.Run(ctx)
}
