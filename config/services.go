package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeScheduler runs the discovery job scheduler.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeCredentialRefresher runs the proactive credential refresh loop.
	ServiceModeCredentialRefresher ServiceMode = "credential-refresher"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeScheduler,
		ServiceModeCredentialRefresher,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeScheduler, ServiceModeCredentialRefresher:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: scheduler, credential-refresher)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// SchedulerConfig contains scheduler service configuration.
type SchedulerConfig struct {
	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"30s"`

	// BatchSize is the maximum number of due jobs fetched per tick.
	BatchSize int `env:"SCHEDULER_BATCH_SIZE" envDefault:"25"`

	// Workers bounds concurrent job executions within a tick.
	Workers int `env:"SCHEDULER_WORKERS" envDefault:"4"`

	// ExecutionTimeout bounds a single discovery execution.
	ExecutionTimeout time.Duration `env:"SCHEDULER_EXECUTION_TIMEOUT" envDefault:"30s"`

	// ClaimLease is how long a claimed job is hidden from other claimers.
	ClaimLease time.Duration `env:"SCHEDULER_CLAIM_LEASE" envDefault:"5m"`

	// BackoffBase and BackoffMax shape the retry delay after transient failures.
	BackoffBase time.Duration `env:"SCHEDULER_BACKOFF_BASE" envDefault:"1m"`
	BackoffMax  time.Duration `env:"SCHEDULER_BACKOFF_MAX"  envDefault:"1h"`

	// DefaultIntervalMinutes is used when a job is created without an interval.
	DefaultIntervalMinutes int `env:"SCHEDULER_DEFAULT_INTERVAL_MINUTES" envDefault:"60"`

	// RunOnStart runs one pass as soon as the scheduler starts.
	RunOnStart bool `env:"SCHEDULER_RUN_ON_START" envDefault:"true"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.Workers < 1 {
		s.Workers = 1
	}
	if s.Workers > 16 {
		s.Workers = 16
	}
	if s.ExecutionTimeout <= 0 {
		s.ExecutionTimeout = 30 * time.Second
	}
	// A lease shorter than an execution would let a second claimer in mid-run.
	if s.ClaimLease < s.ExecutionTimeout {
		s.ClaimLease = s.ExecutionTimeout
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = time.Minute
	}
	if s.BackoffMax < s.BackoffBase {
		s.BackoffMax = s.BackoffBase
	}
	if s.DefaultIntervalMinutes < 1 {
		s.DefaultIntervalMinutes = 60
	}
}

// CredentialsConfig controls proactive credential refresh.
type CredentialsConfig struct {
	// RefreshMargin refreshes tokens that expire within this window.
	RefreshMargin time.Duration `env:"CREDENTIALS_REFRESH_MARGIN" envDefault:"5m"`

	// RefreshInterval is how often the refresher scans for expiring tokens.
	RefreshInterval time.Duration `env:"CREDENTIALS_REFRESH_INTERVAL" envDefault:"1m"`

	// RefreshBatchSize caps the credentials refreshed per pass.
	RefreshBatchSize int `env:"CREDENTIALS_REFRESH_BATCH_SIZE" envDefault:"50"`
}

// Sanitize applies guardrails to credential refresh configuration values.
func (c *CredentialsConfig) Sanitize() {
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = 5 * time.Minute
	}
	if c.RefreshInterval < 10*time.Second {
		c.RefreshInterval = 10 * time.Second
	}
	if c.RefreshBatchSize < 1 {
		c.RefreshBatchSize = 1
	}
	if c.RefreshBatchSize > 1000 {
		c.RefreshBatchSize = 1000
	}
}
