// Package metrics holds the metric names and tag conventions shared by the scheduler and pipeline.
package metrics

import (
	"time"

	apperrors "github.com/leadwatch/leadwatch/internal/errors"
	obserrors "github.com/leadwatch/leadwatch/internal/observability/errors"
	"github.com/leadwatch/leadwatch/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultNoop      = "noop"
	ResultTransient = "transient"
	ResultFatal     = "fatal"
	ResultRevoked   = "revoked"
)

// ExecutionMetric describes one finished discovery execution.
type ExecutionMetric struct {
	JobType  string
	Outcome  string
	Duration time.Duration
	Ingested int
	Err      error
}

// EmitExecution emits discovery.execution, its duration and the ingested lead count.
func EmitExecution(sink statsd.Sink, in ExecutionMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"job_type": in.JobType,
		"outcome":  in.Outcome,
	}
	if in.Err != nil {
		tags["error_class"] = ErrorClass(in.Err)
	}
	sink.Count("discovery.execution", 1, tags)
	if in.Duration > 0 {
		sink.Timing("discovery.execution_duration", in.Duration, CloneTags(tags))
	}
	if in.Ingested > 0 {
		sink.Count("discovery.leads_ingested", int64(in.Ingested), map[string]string{"job_type": in.JobType})
	}
}

// TickMetric describes one scheduling pass.
type TickMetric struct {
	Claimed  int
	Duration time.Duration
	Err      error
}

// EmitTick emits scheduler.tick, scheduler.jobs_claimed and scheduler.tick_duration.
func EmitTick(sink statsd.Sink, in TickMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Claimed == 0:
		result = ResultNoop
	}
	tags := map[string]string{"result": result}
	if in.Err != nil {
		tags["error_class"] = ErrorClass(in.Err)
	}
	sink.Count("scheduler.tick", 1, tags)
	if in.Claimed > 0 {
		sink.Count("scheduler.jobs_claimed", int64(in.Claimed), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("scheduler.tick_duration", in.Duration, CloneTags(tags))
	}
	if in.Err == nil {
		sink.Gauge("scheduler.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

// EmitCredentialRefresh counts one refresh attempt by result.
func EmitCredentialRefresh(sink statsd.Sink, result string) {
	if sink == nil {
		return
	}
	sink.Count("credential.refresh", 1, map[string]string{"result": result})
}

// EmitScorerFallback counts a heuristic fallback and why it happened.
func EmitScorerFallback(sink statsd.Sink, reason string) {
	if sink == nil {
		return
	}
	sink.Count("scorer.fallback", 1, map[string]string{"reason": reason})
}

// ErrorClass prefers the pipeline taxonomy label and falls back to the innermost Go type.
func ErrorClass(err error) string {
	if class := apperrors.Class(err); class != "other" && class != "none" {
		return class
	}
	return obserrors.Classify(err)
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
