package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	"github.com/leadwatch/leadwatch/internal/observability/notify"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type executorFunc func(ctx context.Context, job *model.Job) (core.ExecutionReport, error)

func (f executorFunc) Execute(ctx context.Context, job *model.Job) (core.ExecutionReport, error) {
	return f(ctx, job)
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []notify.JobFailurePayload
}

func (n *recordingNotifier) NotifyJobFailure(_ context.Context, p notify.JobFailurePayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, p)
}

func (n *recordingNotifier) all() []notify.JobFailurePayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.JobFailurePayload(nil), n.payloads...)
}

type countingSink struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCountingSink() *countingSink {
	return &countingSink{counts: make(map[string]int64)}
}

func (s *countingSink) Count(name string, value int64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := name
	if r, ok := tags["result"]; ok {
		key += ":" + r
	}
	if r, ok := tags["reason"]; ok {
		key += ":" + r
	}
	s.counts[key] += value
}

func (s *countingSink) Gauge(string, float64, map[string]string)       {}
func (s *countingSink) Timing(string, time.Duration, map[string]string) {}

func (s *countingSink) get(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}
