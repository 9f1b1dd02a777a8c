package config

import (
	"os"
	"strings"
)

// AppConfig is the root configuration, parsed from the environment with caarlos0/env.
// Each embedded section documents its own variables.
type AppConfig struct {
	// IsDev controls development mode behavior (plaintext token storage, text logs).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// SecretsEncryptionKey encrypts stored OAuth tokens.
	// Required for production, optional for development.
	SecretsEncryptionKey string `env:"SECRETS_ENCRYPTION_KEY"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"scheduler"`

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Credential refresh configuration
	Credentials CredentialsConfig

	// Discussion platform configuration
	Platform PlatformConfig `envPrefix:"PLATFORM_"`

	// Reasoning service configuration
	Reasoning ReasoningConfig `envPrefix:"REASONING_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize clamps every section to safe values. Call it once after parsing.
func (c *AppConfig) Sanitize() {
	c.Postgres.Sanitize()
	c.Scheduler.Sanitize()
	c.Credentials.Sanitize()
	c.Platform.Sanitize()
	c.Reasoning.Sanitize()
	c.Observability.Sanitize()

	if !c.IsDev {
		switch strings.ToLower(os.Getenv("NODE_ENV")) {
		case "development", "dev":
			c.IsDev = true
		}
	}
	if c.IsDev && c.Observability.Logging.Format == "json" {
		c.Observability.Logging.Format = "text"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsSchedulerEnabled returns true if the scheduler service is enabled.
func (c *AppConfig) IsSchedulerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeScheduler]
}

// IsCredentialRefresherEnabled returns true if the credential refresher service is enabled.
func (c *AppConfig) IsCredentialRefresherEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeCredentialRefresher]
}
