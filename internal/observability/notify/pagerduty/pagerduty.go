// Package pagerduty triggers PagerDuty incidents for jobs that entered the error state.
package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leadwatch/leadwatch/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

const (
	retryStep       = 200 * time.Millisecond
	maxSummaryRunes = 1024
)

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	// Endpoint overrides APIEndpoint.
	Endpoint   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes trigger events via the Events API v2.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ notify.Sink = (*Client)(nil)

type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string            `json:"summary"`
	Severity      string            `json:"severity"`
	Source        string            `json:"source"`
	Component     string            `json:"component"`
	Class         string            `json:"class,omitempty"`
	Timestamp     string            `json:"timestamp"`
	CustomDetails map[string]string `json:"custom_details"`
}

// NewClient validates cfg and fills defaults. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	cfg.RoutingKey = strings.TrimSpace(cfg.RoutingKey)
	if cfg.RoutingKey == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	cfg.Source = fallback(cfg.Source, "leadwatch")
	cfg.Component = fallback(cfg.Component, "discovery-scheduler")
	cfg.Endpoint = fallback(cfg.Endpoint, APIEndpoint)
	cfg.RetryLimit = max(cfg.RetryLimit, 0)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc}, nil
}

// SendJobFailure triggers an incident keyed on the job so repeats collapse into one.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.triggerEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty event: %w", err)
	}
	return notify.Retry(ctx, c.cfg.RetryLimit+1, retryStep, func(ctx context.Context) error {
		return c.post(ctx, body)
	})
}

func (c *Client) triggerEvent(p notify.JobFailurePayload) event {
	at := p.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	details := make(map[string]string, len(p.Metadata)+6)
	for k, v := range p.Metadata {
		details[k] = v
	}
	details["job_id"] = p.JobID
	details["job_type"] = p.JobType
	details["user_id"] = p.UserID
	details["product_id"] = p.ProductID
	details["error"] = p.Error
	details["error_class"] = p.ErrorClass

	summary := fmt.Sprintf("Discovery job %s for product %s is in error: %s",
		fallback(p.JobID, "unknown"), fallback(p.ProductID, "unknown"), fallback(p.Error, "no detail"))

	return event{
		RoutingKey:  c.cfg.RoutingKey,
		EventAction: "trigger",
		DedupKey:    strings.Trim(p.JobType+":"+p.JobID, ":"),
		Payload: eventPayload{
			Summary:       truncate(summary, maxSummaryRunes),
			Severity:      severity(p.Severity),
			Source:        c.cfg.Source,
			Component:     c.cfg.Component,
			Class:         p.ErrorClass,
			Timestamp:     at.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

// severity maps onto the four values the Events API accepts.
func severity(s string) string {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "critical", "error", "warning", "info":
		return v
	default:
		return notify.SeverityCritical
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

func fallback(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return notify.Permanent(fmt.Errorf("create pagerduty request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("pagerduty api %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	default:
		return notify.Permanent(fmt.Errorf("pagerduty rejected event %s: %s", resp.Status, strings.TrimSpace(string(msg))))
	}
}
