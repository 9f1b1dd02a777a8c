package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/data"
	"github.com/leadwatch/leadwatch/internal/domain/model"
)

// DefaultIntervalMinutes is used when callers pass no interval.
const DefaultIntervalMinutes = 60

// LifecycleServiceOptions groups dependencies for LifecycleService.
type LifecycleServiceOptions struct {
	Jobs        core.JobRepository
	Products    core.ProductRepository
	Credentials core.CredentialRepository
	// Connector is optional; HandleCredentialConnected requires it.
	Connector       core.CredentialConnector
	DefaultInterval int
	TimeProvider    data.TimeProvider
	Logger          *slog.Logger
}

// LifecycleService creates, stops, inspects and reactivates discovery jobs, and reacts to
// product and credential events from the surrounding system.
type LifecycleService struct {
	jobs            core.JobRepository
	products        core.ProductRepository
	credentials     core.CredentialRepository
	connector       core.CredentialConnector
	defaultInterval int
	clock           data.TimeProvider
	logger          *slog.Logger
}

// NewLifecycleService constructs a LifecycleService.
func NewLifecycleService(opts LifecycleServiceOptions) *LifecycleService {
	if opts.Jobs == nil || opts.Products == nil || opts.Credentials == nil {
		panic("lifecycle service requires jobs, products and credentials") //nolint:forbidigo // fail fast on wiring errors
	}
	interval := opts.DefaultInterval
	if interval <= 0 || interval > model.MaxIntervalMinutes {
		interval = DefaultIntervalMinutes
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleService{
		jobs:            opts.Jobs,
		products:        opts.Products,
		credentials:     opts.Credentials,
		connector:       opts.Connector,
		defaultInterval: interval,
		clock:           clock,
		logger:          logger.With("component", "job_lifecycle"),
	}
}

// CreateJob returns the job for the triple, creating it due now when absent.
// An existing paused or errored job is reactivated with the requested interval instead of duplicated.
func (s *LifecycleService) CreateJob(
	ctx context.Context,
	userID, productID string,
	jobType model.JobType,
	intervalMinutes int,
) (*model.Job, error) {
	if intervalMinutes == 0 {
		intervalMinutes = s.defaultInterval
	}
	now := s.clock.Now().UTC()
	job, created, err := s.jobs.Create(ctx, model.CreateJobRequest{
		UserID:          userID,
		ProductID:       productID,
		Type:            jobType,
		IntervalMinutes: intervalMinutes,
		NextRun:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if created {
		s.logger.InfoContext(ctx, "job created", "job_id", job.ID, "user_id", userID, "product_id", productID)
		return job, nil
	}
	if job.Status == model.JobStatusActive {
		return job, nil
	}
	job, err = s.jobs.Reactivate(ctx, core.ReactivateParams{ID: job.ID, NextRun: now, IntervalMinutes: &intervalMinutes})
	if err != nil {
		return nil, fmt.Errorf("reactivate existing job: %w", err)
	}
	s.logger.InfoContext(ctx, "existing job reactivated", "job_id", job.ID, "user_id", userID, "product_id", productID)
	return job, nil
}

// StopJob pauses the pair's jobs, keeping their history. It reports whether any job changed.
func (s *LifecycleService) StopJob(ctx context.Context, userID, productID string) (bool, error) {
	n, err := s.jobs.Pause(ctx, userID, productID)
	if err != nil {
		return false, fmt.Errorf("pause job: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "job stopped", "user_id", userID, "product_id", productID)
	}
	return n > 0, nil
}

// GetJobStatus returns the pair's discovery job, or nil when none exists.
func (s *LifecycleService) GetJobStatus(ctx context.Context, userID, productID string) (*model.Job, error) {
	job, err := s.jobs.GetByTriple(ctx, core.JobKey{UserID: userID, ProductID: productID, Type: model.JobTypeLeadDiscovery})
	if errors.Is(err, data.ErrJobNotFound) {
		return nil, nil //nolint:nilnil // absence is a valid status answer
	}
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	return job, nil
}

// Reactivate makes the job active and due now, clearing the error and failure streak.
func (s *LifecycleService) Reactivate(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.jobs.Reactivate(ctx, core.ReactivateParams{ID: jobID, NextRun: s.clock.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("reactivate job: %w", err)
	}
	s.logger.InfoContext(ctx, "job reactivated", "job_id", job.ID)
	return job, nil
}

// HandleProductCreated creates the product's discovery job when its owner has connected the platform.
// It returns nil when no credential exists yet; the job is created on connection instead.
func (s *LifecycleService) HandleProductCreated(ctx context.Context, productID string) (*model.Job, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if !product.IsActive() {
		return nil, nil //nolint:nilnil // inactive products get no job
	}
	if _, err := s.credentials.Get(ctx, product.UserID); err != nil {
		if errors.Is(err, data.ErrCredentialNotFound) {
			return nil, nil //nolint:nilnil // waits for HandleCredentialConnected
		}
		return nil, fmt.Errorf("check credential: %w", err)
	}
	return s.CreateJob(ctx, product.UserID, product.ID, model.JobTypeLeadDiscovery, 0)
}

// HandleProductDeleted stops the product's jobs.
func (s *LifecycleService) HandleProductDeleted(ctx context.Context, userID, productID string) error {
	_, err := s.StopJob(ctx, userID, productID)
	return err
}

// ConnectResult reports what HandleCredentialConnected changed.
type ConnectResult struct {
	Credential  *model.Credential
	Jobs        []*model.Job
	Reactivated int
}

// HandleCredentialConnected stores the credential, ensures a job for every active product,
// and reactivates the user's jobs that a revoked credential had put in error.
func (s *LifecycleService) HandleCredentialConnected(
	ctx context.Context,
	userID string,
	grant model.TokenGrant,
) (ConnectResult, error) {
	if s.connector == nil {
		return ConnectResult{}, errors.New("credential connector not configured")
	}
	cred, err := s.connector.Connect(ctx, userID, grant)
	if err != nil {
		return ConnectResult{}, err
	}
	res := ConnectResult{Credential: cred}

	products, err := s.products.ListActiveByUser(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("list products: %w", err)
	}
	for _, p := range products {
		job, err := s.CreateJob(ctx, userID, p.ID, model.JobTypeLeadDiscovery, 0)
		if err != nil {
			return res, err
		}
		res.Jobs = append(res.Jobs, job)
	}

	n, err := s.jobs.ReactivateErroredForUser(ctx, userID, s.clock.Now().UTC())
	if err != nil {
		return res, fmt.Errorf("reactivate errored jobs: %w", err)
	}
	res.Reactivated = n
	s.logger.InfoContext(ctx, "credential connected",
		"user_id", userID, "jobs", len(res.Jobs), "reactivated", n)
	return res, nil
}
