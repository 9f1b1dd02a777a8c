package config

import (
	"log/slog"
	"strings"
	"time"
)

const defaultObservabilityName = "leadwatch"

// ObservabilityConfig groups logging, metrics and failure alerting.
type ObservabilityConfig struct {
	Logging       LoggingConfig
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Logging.Sanitize()
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// LoggingConfig selects the slog handler and threshold.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Sanitize lowercases values and falls back to info/json for anything unrecognised.
func (c *LoggingConfig) Sanitize() {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Level = "info"
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format != "text" {
		c.Format = "json"
	}
}

// SlogLevel maps Level onto a slog threshold.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ObservabilityMetricsConfig controls DogStatsD emission.
type ObservabilityMetricsConfig struct {
	Enabled       bool              `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string            `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string            `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"leadwatch"`
	GlobalTags    map[string]string `env:"OBSERVABILITY_METRICS_TAGS"           envKeyValSeparator:":"`
}

// Sanitize trims values and disables emission without an address.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	if len(c.GlobalTags) == 0 {
		return
	}
	tags := make(map[string]string, len(c.GlobalTags))
	for k, v := range c.GlobalTags {
		if key := strings.TrimSpace(k); key != "" {
			tags[key] = strings.TrimSpace(v)
		}
	}
	c.GlobalTags = tags
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls alerts for jobs that enter the error state.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                        `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration               `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                         `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig     `envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty  PagerDutyNotificationConfig `envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize clamps delivery settings and switches off channels missing their credentials.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	c.Timeout = max(c.Timeout, time.Second)
	c.RetryLimit = min(max(c.RetryLimit, 0), 10)

	c.Slack.sanitize(c.Enabled)
	c.PagerDuty.sanitize(c.Enabled)
}

// HasChannels reports whether at least one channel survived sanitisation.
func (c *ObservabilityNotificationsConfig) HasChannels() bool {
	return c.Slack.Enabled || c.PagerDuty.Enabled
}

// SlackNotificationConfig controls Slack webhook delivery.
type SlackNotificationConfig struct {
	Enabled          bool   `env:"ENABLED"            envDefault:"false"`
	WebhookURL       string `env:"WEBHOOK_URL"`
	Channel          string `env:"CHANNEL"`
	Username         string `env:"USERNAME"           envDefault:"leadwatch"`
	ProductURLPrefix string `env:"PRODUCT_URL_PREFIX"`
}

func (c *SlackNotificationConfig) sanitize(parentEnabled bool) {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.ProductURLPrefix = strings.TrimSpace(c.ProductURLPrefix)
	c.Username = orDefault(c.Username, defaultObservabilityName)
	c.Enabled = parentEnabled && c.Enabled && c.WebhookURL != ""
}

// PagerDutyNotificationConfig controls PagerDuty Events API v2 delivery.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"leadwatch"`
	Component  string `env:"COMPONENT"   envDefault:"leadwatch"`
}

func (c *PagerDutyNotificationConfig) sanitize(parentEnabled bool) {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	c.Source = orDefault(c.Source, defaultObservabilityName)
	c.Component = orDefault(c.Component, defaultObservabilityName)
	c.Enabled = parentEnabled && c.Enabled && c.RoutingKey != ""
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
