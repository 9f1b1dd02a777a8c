// Package failurenotifier fans discovery job failures out to operator alert channels.
package failurenotifier

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/leadwatch/leadwatch/internal/observability/notify"
)

// DefaultDeliveryTimeout bounds a single channel's delivery, retries included.
const DefaultDeliveryTimeout = 30 * time.Second

// SinkRegistration names an alert channel for logs.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the notifier.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// DeliveryTimeout caps each channel independently of the caller's deadline.
	DeliveryTimeout time.Duration
}

// Service delivers failure alerts to every registered channel.
type Service struct {
	logger   *slog.Logger
	channels []SinkRegistration
	timeout  time.Duration
}

// NewService builds a notifier. Nil sinks are skipped; unnamed sinks are numbered.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}
	timeout := opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}

	channels := make([]SinkRegistration, 0, len(opts.Sinks))
	for i, reg := range opts.Sinks {
		if reg.Sink == nil {
			continue
		}
		if reg.Name == "" {
			reg.Name = "sink-" + strconv.Itoa(i+1)
		}
		channels = append(channels, reg)
	}
	return &Service{logger: logger, channels: channels, timeout: timeout}
}

// Enabled reports whether any channel is registered.
func (s *Service) Enabled() bool {
	return s != nil && len(s.channels) > 0
}

// Channels lists the registered channel names in registration order.
func (s *Service) Channels() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.channels))
	for i, reg := range s.channels {
		names[i] = reg.Name
	}
	return names
}

// NotifyJobFailure blocks until every channel has been tried. Deliveries are detached from
// ctx cancellation so alerts raised during shutdown still go out; failures are only logged.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if !s.Enabled() {
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now().UTC()
	}

	base := context.WithoutCancel(ctx)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	for _, reg := range s.channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.deliver(base, reg, payload); err != nil {
				mu.Lock()
				failed = append(failed, reg.Name)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(failed) == len(s.channels) {
		s.logger.ErrorContext(ctx, "job failure alert not delivered to any channel",
			"job_id", payload.JobID, "channels", failed)
	}
}

func (s *Service) deliver(ctx context.Context, reg SinkRegistration, payload notify.JobFailurePayload) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := reg.Sink.SendJobFailure(ctx, payload)
	if err != nil {
		s.logger.WarnContext(ctx, "job failure alert delivery failed",
			"channel", reg.Name,
			"job_id", payload.JobID,
			"product_id", payload.ProductID,
			"elapsed", time.Since(start),
			"error", err,
		)
		return err
	}
	s.logger.DebugContext(ctx, "job failure alert delivered", "channel", reg.Name, "job_id", payload.JobID)
	return nil
}
