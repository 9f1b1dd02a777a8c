package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leadwatch/leadwatch/internal/observability/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceSkipsNilAndNamesChannels(t *testing.T) {
	noop := notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error { return nil })
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "slack", Sink: noop},
		{Name: "broken"},
		{Sink: noop},
	}})

	require.True(t, svc.Enabled())
	assert.Equal(t, []string{"slack", "sink-3"}, svc.Channels())
	assert.Equal(t, DefaultDeliveryTimeout, svc.timeout)
}

func TestServiceDisabled(t *testing.T) {
	assert.False(t, NewService(Options{}).Enabled())
	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
	assert.NotPanics(t, func() {
		nilSvc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})
	})
}

func TestNotifyJobFailureFillsDefaults(t *testing.T) {
	var (
		mu       sync.Mutex
		received []notify.JobFailurePayload
	)
	capture := notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, p)
		return nil
	})
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "a", Sink: capture}, {Name: "b", Sink: capture}}})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1", ProductID: "prod-1"})

	require.Len(t, received, 2)
	for _, p := range received {
		assert.Equal(t, notify.SeverityCritical, p.Severity)
		assert.Equal(t, "prod-1", p.ProductID)
		assert.False(t, p.OccurredAt.IsZero())
	}
}

func TestNotifyJobFailureIsolatesChannelErrors(t *testing.T) {
	var okCalls atomic.Int32
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "fail", Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
			return errors.New("boom")
		})},
		{Name: "ok", Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
			okCalls.Add(1)
			return nil
		})},
	}})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})
	assert.Equal(t, int32(1), okCalls.Load())
}

func TestNotifyJobFailureSurvivesCallerCancellation(t *testing.T) {
	var sawErr atomic.Value
	svc := NewService(Options{
		DeliveryTimeout: time.Second,
		Sinks: []SinkRegistration{{Name: "slack", Sink: notify.SinkFunc(func(ctx context.Context, _ notify.JobFailurePayload) error {
			sawErr.Store(ctx.Err() == nil)
			return nil
		})}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.NotifyJobFailure(ctx, notify.JobFailurePayload{JobID: "job-1"})
	assert.Equal(t, true, sawErr.Load())
}

func TestNotifyJobFailureBoundsSlowChannels(t *testing.T) {
	svc := NewService(Options{
		DeliveryTimeout: 20 * time.Millisecond,
		Sinks: []SinkRegistration{{Name: "slow", Sink: notify.SinkFunc(func(ctx context.Context, _ notify.JobFailurePayload) error {
			<-ctx.Done()
			return ctx.Err()
		})}},
	})

	start := time.Now()
	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})
	assert.Less(t, time.Since(start), time.Second)
}
