package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leadwatch/leadwatch/config"
	"github.com/leadwatch/leadwatch/internal/adapters/platform"
	"github.com/leadwatch/leadwatch/internal/adapters/reasoning"
	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/data"
	"github.com/leadwatch/leadwatch/internal/data/cryptoutil"
	"github.com/leadwatch/leadwatch/internal/observability/notify/pagerduty"
	"github.com/leadwatch/leadwatch/internal/observability/notify/slack"
	"github.com/leadwatch/leadwatch/internal/observability/statsd"
	"github.com/leadwatch/leadwatch/internal/service"
	"github.com/leadwatch/leadwatch/internal/service/failurenotifier"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *data.DiscoveryJobRepo
	Credentials   *service.CredentialService
	Lifecycle     *service.LifecycleService
	Scheduler     *service.SchedulerService
	OAuth         *platform.OAuthClient
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil when metrics are disabled.
	MetricsSink     statsd.Sink
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	DB     *sql.DB
	// RedisClient is optional; without it app tokens are cached in-process only.
	RedisClient redis.UniversalClient
	Encryptor   cryptoutil.Encryptor
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Jobs        *data.DiscoveryJobRepo
	Credentials *data.CredentialRepo
	Products    *data.ProductRepo
	Leads       *data.LeadRepo
}

// platformAdapters groups the outbound clients for the discussion platform and reasoning service.
type platformAdapters struct {
	OAuth     *platform.OAuthClient
	Searcher  *platform.Client
	Reasoning core.ReasoningClient
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink statsd.Sink
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			GlobalTags: cfg.Metrics.GlobalTags,
			Logger:     obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, enc cryptoutil.Encryptor) *serviceRepositories {
	return &serviceRepositories{
		Jobs:        data.NewDiscoveryJobRepo(db),
		Credentials: data.NewCredentialRepo(db, enc),
		Products:    data.NewProductRepo(db),
		Leads:       data.NewLeadRepo(db),
	}
}

// buildPlatformAdapters wires the OAuth refresher, the rate-limited search client
// (with the app-only token fallback) and the optional reasoning client.
func buildPlatformAdapters(cfg *config.AppConfig, rdb redis.UniversalClient, logger *slog.Logger) (*platformAdapters, error) {
	pc := cfg.Platform
	httpClient := &http.Client{Timeout: pc.RequestTimeout}

	oauth, err := platform.NewOAuthClient(platform.OAuthOptions{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		AuthURL:      pc.AuthURL,
		TokenURL:     pc.TokenURL,
		RedirectURL:  pc.RedirectURL,
		Scopes:       pc.Scopes,
		UserAgent:    pc.UserAgent,
		HTTPClient:   httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create oauth client: %w", err)
	}

	var appTokens core.AppTokenSource
	if pc.HasAppCredentials() {
		var cache core.TokenCache
		if rdb != nil {
			cache = data.NewRedisTokenCache(rdb, cfg.Redis.TokenKeyPrefix)
		}
		src, srcErr := platform.NewAppTokenSource(platform.AppTokenOptions{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			TokenURL:     pc.TokenURL,
			UserAgent:    pc.UserAgent,
			HTTPClient:   httpClient,
			Cache:        cache,
			Logger:       logger,
		})
		if srcErr != nil {
			return nil, fmt.Errorf("create app token source: %w", srcErr)
		}
		appTokens = src
	} else {
		logger.Warn("platform app credentials not configured, users without a connected account cannot be searched")
	}

	searcher, err := platform.NewClient(platform.ClientOptions{
		BaseURL:           pc.BaseURL,
		WebURL:            pc.WebURL,
		UserAgent:         pc.UserAgent,
		RequestTimeout:    pc.RequestTimeout,
		RequestsPerSecond: pc.RequestsPerSecond,
		Burst:             pc.Burst,
		MaxPages:          pc.MaxPages,
		AppTokens:         appTokens,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create platform client: %w", err)
	}

	adapters := &platformAdapters{OAuth: oauth, Searcher: searcher}
	if cfg.Reasoning.Enabled {
		client, rerr := reasoning.NewOpenAIClient(reasoning.Options{
			APIKey:     cfg.Reasoning.APIKey,
			BaseURL:    cfg.Reasoning.BaseURL,
			Model:      cfg.Reasoning.Model,
			Timeout:    cfg.Reasoning.Timeout,
			MaxRetries: cfg.Reasoning.MaxRetries,
		})
		if rerr != nil {
			logger.Warn("reasoning client unavailable, scoring heuristically", "error", rerr)
		} else {
			adapters.Reasoning = client
		}
	}
	return adapters, nil
}

// NewServices wires repositories, adapters and services from configuration.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("service deps require config and database")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enc := deps.Encryptor
	if enc == nil {
		var err error
		if enc, err = CreateEncryptor(deps.Config.SecretsEncryptionKey, deps.Config.IsDev, logger); err != nil {
			return ServiceContainer{}, err
		}
	}

	cfg := deps.Config
	observability := buildObservability(logger, cfg.Observability)
	repos := buildRepositories(deps.DB, enc)
	adapters, err := buildPlatformAdapters(cfg, deps.RedisClient, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	credentials, err := service.NewCredentialService(service.CredentialServiceOptions{
		Repo:      repos.Credentials,
		Refresher: adapters.OAuth,
		Config: service.CredentialConfig{
			RefreshMargin: cfg.Credentials.RefreshMargin,
			BatchSize:     cfg.Credentials.RefreshBatchSize,
		},
		Metrics: observability.MetricsSink,
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create credential service: %w", err)
	}

	discovery, err := service.NewDiscoveryService(service.DiscoveryServiceOptions{
		Deps: service.DiscoveryDeps{
			Products:    repos.Products,
			Jobs:        repos.Jobs,
			Credentials: credentials,
			Searcher:    adapters.Searcher,
			Scorer: service.NewScorerService(service.ScorerServiceOptions{
				Client:  adapters.Reasoning,
				Metrics: observability.MetricsSink,
				Logger:  logger,
			}),
			Ingestor: service.NewIngestService(service.IngestServiceOptions{Leads: repos.Leads, Logger: logger}),
		},
		Config: service.DiscoveryConfig{
			ExecutionTimeout: cfg.Scheduler.ExecutionTimeout,
			MaxTerms:         cfg.Platform.MaxSearchTerms,
			ResultsPerSearch: cfg.Platform.ResultsPerSearch,
			Sort:             cfg.Platform.Sort,
			Window:           cfg.Platform.TimeWindow,
		},
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create discovery service: %w", err)
	}

	schedOpts := service.SchedulerServiceOptions{
		Jobs:     repos.Jobs,
		Executor: discovery,
		Config: &core.SchedulerConfig{
			BatchSize:        cfg.Scheduler.BatchSize,
			Workers:          cfg.Scheduler.Workers,
			ExecutionTimeout: cfg.Scheduler.ExecutionTimeout,
			ClaimLease:       cfg.Scheduler.ClaimLease,
			BackoffBase:      cfg.Scheduler.BackoffBase,
			BackoffMax:       cfg.Scheduler.BackoffMax,
		},
		Metrics: observability.MetricsSink,
		Logger:  logger,
	}
	if observability.FailureNotifier.Enabled() {
		schedOpts.Notifier = observability.FailureNotifier
	}
	scheduler, err := service.NewSchedulerService(schedOpts)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create scheduler service: %w", err)
	}

	lifecycle := service.NewLifecycleService(service.LifecycleServiceOptions{
		Jobs:            repos.Jobs,
		Products:        repos.Products,
		Credentials:     repos.Credentials,
		Connector:       credentials,
		DefaultInterval: cfg.Scheduler.DefaultIntervalMinutes,
		Logger:          logger,
	})

	return ServiceContainer{
		Jobs:          repos.Jobs,
		Credentials:   credentials,
		Lifecycle:     lifecycle,
		Scheduler:     scheduler,
		OAuth:         adapters.OAuth,
		Observability: observability,
	}, nil
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:       cfg.Slack.WebhookURL,
			Channel:          cfg.Slack.Channel,
			Username:         cfg.Slack.Username,
			Timeout:          cfg.Timeout,
			RetryLimit:       cfg.RetryLimit,
			ProductURLPrefix: cfg.Slack.ProductURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:          baseLogger.With("component", "failure_notifier"),
		Sinks:           sinks,
		DeliveryTimeout: cfg.Timeout * time.Duration(cfg.RetryLimit+2),
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newSchedulerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeScheduler,
		name: "scheduler",
		start: func(ctx context.Context) error {
			svc := deps.cfg.Services
			return RunScheduler(ctx, SchedulerRunConfig{
				Scheduler:  svc.Scheduler,
				Interval:   deps.cfg.Config.Scheduler.Interval,
				RunOnStart: deps.cfg.Config.Scheduler.RunOnStart,
				Metrics:    svc.Observability.MetricsSink,
				Logger:     deps.logger,
			})
		},
	}
}

func newCredentialRefresherBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeCredentialRefresher,
		name: "credential refresher",
		start: func(ctx context.Context) error {
			svc := deps.cfg.Services
			return RunCredentialRefresher(ctx, CredentialRefresherConfig{
				Credentials: svc.Credentials,
				Interval:    deps.cfg.Config.Credentials.RefreshInterval,
				Metrics:     svc.Observability.MetricsSink,
				Logger:      deps.logger,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newSchedulerBackgroundService(deps),
		newCredentialRefresherBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	backgrounds := startBackgroundServices(deps, buildBackgroundServices(deps))

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		logger:      logger,
		backgrounds: backgrounds,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		gracefulStop(cfg)
		return nil
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		gracefulStop(cfg)
		return err
	}
}

// gracefulStop waits for background services to drain in-flight work.
func gracefulStop(cfg shutdownConfig) {
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
