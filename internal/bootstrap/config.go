package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/leadwatch/leadwatch/config"
)

// InitLogger returns the process logger used before configuration is loaded.
func InitLogger() *slog.Logger {
	return ConfigureLogger(config.LoggingConfig{Level: "info", Format: "json"}, false)
}

// ConfigureLogger builds the slog logger described by cfg and installs it as the default.
// Development mode forces text output.
func ConfigureLogger(cfg config.LoggingConfig, dev bool) *slog.Logger {
	logger := newLogger(os.Stdout, cfg, dev)
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, cfg config.LoggingConfig, dev bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if dev || cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// LoadConfig reads an optional .env file, parses the environment and sanitises the result.
func LoadConfig() (config.AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
	}
	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (config.AppConfig, error) {
	var cfg config.AppConfig
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig checks the SERVICES list and the settings each enabled service needs.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	var problems []error
	if services[config.ServiceModeCredentialRefresher] && !cfg.Platform.HasAppCredentials() {
		problems = append(problems, errors.New(
			"credential-refresher requires PLATFORM_CLIENT_ID and PLATFORM_CLIENT_SECRET"))
	}
	if !cfg.IsDev && strings.TrimSpace(cfg.SecretsEncryptionKey) == "" {
		problems = append(problems, ErrEncryptionKeyRequired)
	}
	return errors.Join(problems...)
}

// GetEnabledServices returns enabled service names in canonical order, or none when
// SERVICES is invalid.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return []string{}
	}

	names := make([]string, 0, len(services))
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			names = append(names, string(mode))
		}
	}
	return names
}
