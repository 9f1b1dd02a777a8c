// Command leadwatch runs the background services selected by SERVICES.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/leadwatch/leadwatch/config"
	"github.com/leadwatch/leadwatch/internal/bootstrap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	checkConfig bool
	showVersion bool
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("leadwatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.checkConfig, "check-config", false, "validate configuration and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()

	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2) //nolint:forbidigo // usage errors exit like flag.ExitOnError
	}
	if opts.showVersion {
		fmt.Fprintln(os.Stdout, version) //nolint:errcheck // best effort
		return
	}

	if err := run(ctx, logger, opts); err != nil {
		slog.Default().ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.ConfigureLogger(cfg.Observability.Logging, cfg.IsDev)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}
	if opts.checkConfig {
		logger.InfoContext(ctx, "configuration ok", "enabled_services", bootstrap.GetEnabledServices(&cfg))
		return nil
	}
	logStartupInfo(ctx, logger, &cfg)

	infra, err := bootstrap.OpenInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, infra.DB, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	services, err := infra.Services(&cfg, logger)
	if err != nil {
		return err
	}
	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   &cfg,
		Services: services,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting leadwatch service",
		"version", version,
		"dev", cfg.IsDev,
		"db", cfg.Postgres.Host+"/"+cfg.Postgres.Name,
		"redis_enabled", cfg.Redis.Enabled,
		"reasoning_enabled", cfg.Reasoning.Enabled,
		"metrics_enabled", cfg.Observability.Metrics.IsEnabled(),
		"notification_channels", cfg.Observability.Notifications.HasChannels(),
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}
