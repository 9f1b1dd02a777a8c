package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/data"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	"github.com/leadwatch/leadwatch/internal/domain/searchterms"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
)

// Discovery defaults.
const (
	DefaultExecutionTimeout = 30 * time.Second
	DefaultResultsPerSearch = 25
	DefaultSearchSort       = "new"
	DefaultSearchWindow     = "week"
)

// DiscoveryConfig tunes one discovery execution.
type DiscoveryConfig struct {
	ExecutionTimeout time.Duration
	MaxTerms         int
	ResultsPerSearch int
	Sort             string
	Window           string
}

// DiscoveryDeps are the ports a discovery execution calls, in pipeline order.
type DiscoveryDeps struct {
	Products    core.ProductRepository
	Jobs        core.JobRepository
	Credentials core.CredentialResolver
	Searcher    core.PlatformSearcher
	Scorer      core.RelevanceScorer
	Ingestor    core.LeadIngestor
}

// DiscoveryServiceOptions groups dependencies for DiscoveryService.
type DiscoveryServiceOptions struct {
	Deps   DiscoveryDeps
	Config DiscoveryConfig
	Logger *slog.Logger
}

// DiscoveryService runs the lead discovery pipeline for one claimed job:
// product → credential → search terms → platform search → scoring → ingestion.
type DiscoveryService struct {
	deps   DiscoveryDeps
	cfg    DiscoveryConfig
	logger *slog.Logger
}

var _ core.JobExecutor = (*DiscoveryService)(nil)

// NewDiscoveryService constructs a DiscoveryService.
func NewDiscoveryService(opts DiscoveryServiceOptions) (*DiscoveryService, error) {
	d := opts.Deps
	if d.Products == nil || d.Jobs == nil || d.Credentials == nil || d.Searcher == nil || d.Scorer == nil ||
		d.Ingestor == nil {
		return nil, errors.New("discovery service requires products, jobs, credentials, searcher, scorer and ingestor")
	}
	cfg := opts.Config
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = DefaultExecutionTimeout
	}
	if cfg.MaxTerms <= 0 {
		cfg.MaxTerms = searchterms.DefaultMaxTerms
	}
	if cfg.ResultsPerSearch <= 0 {
		cfg.ResultsPerSearch = DefaultResultsPerSearch
	}
	if cfg.Sort == "" {
		cfg.Sort = DefaultSearchSort
	}
	if cfg.Window == "" {
		cfg.Window = DefaultSearchWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscoveryService{deps: d, cfg: cfg, logger: logger.With("component", "discovery")}, nil
}

// MustNewDiscoveryService constructs a DiscoveryService and panics on error.
func MustNewDiscoveryService(opts DiscoveryServiceOptions) *DiscoveryService {
	svc, err := NewDiscoveryService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return svc
}

// Execute runs the pipeline under the execution timeout. Leads ingested before an abort are kept.
//
// Error semantics (consumed by the outcome policy):
//   - nil: success, including the no-op cases (inactive product, nothing to search)
//   - CredentialError{RefreshFailed} or PlatformError{AuthFailed} with a user token: fatal
//   - anything else: transient
func (s *DiscoveryService) Execute(ctx context.Context, job *model.Job) (core.ExecutionReport, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
	defer cancel()

	report, err := s.execute(ctx, job)
	report.Duration = time.Since(start)

	log := s.logger.With("job_id", job.ID, "user_id", job.UserID, "product_id", job.ProductID)
	if err != nil {
		log.WarnContext(ctx, "discovery execution failed",
			"searches", report.Searches,
			"ingested", report.Ingested,
			"aborted", report.Aborted,
			"error_class", apperrors.Class(err),
			"error", err,
		)
		return report, err
	}
	log.InfoContext(ctx, "discovery execution finished",
		"searches", report.Searches,
		"candidates", report.Candidates,
		"skipped", report.Skipped,
		"ingested", report.Ingested,
		"duration", report.Duration,
	)
	return report, nil
}

func (s *DiscoveryService) execute(ctx context.Context, job *model.Job) (core.ExecutionReport, error) {
	var report core.ExecutionReport

	product, err := s.deps.Products.GetByID(ctx, job.ProductID)
	if errors.Is(err, data.ErrProductNotFound) || (err == nil && product.UserID != job.UserID) {
		// The product is gone; the job is paused instead of failing forever.
		if _, perr := s.deps.Jobs.Pause(ctx, job.UserID, job.ProductID); perr != nil {
			return report, fmt.Errorf("pause job for missing product: %w", perr)
		}
		s.logger.InfoContext(ctx, "product missing, job paused", "job_id", job.ID, "product_id", job.ProductID)
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("load product: %w", err)
	}
	if !product.IsActive() {
		return report, nil
	}

	token, err := s.deps.Credentials.Resolve(ctx, job.UserID)
	switch {
	case apperrors.IsCredentialKind(err, apperrors.CredentialNotConnected):
		// The platform client substitutes the application token.
		token = model.AccessToken{}
	case err != nil:
		return report, err
	}

	terms := searchterms.Generate(product, s.cfg.MaxTerms)
	targets := normalizeTargets(product.SearchTargets)
	if len(terms) == 0 || len(targets) == 0 {
		s.logger.InfoContext(ctx, "nothing to search", "job_id", job.ID, "terms", len(terms), "targets", len(targets))
		return report, nil
	}

	run := &discoveryRun{svc: s, job: job, product: product, token: token, seen: make(map[string]struct{})}
	err = run.search(ctx, targets, terms)
	report = run.report
	return report, err
}

type discoveryRun struct {
	svc     *DiscoveryService
	job     *model.Job
	product *model.Product
	token   model.AccessToken
	seen    map[string]struct{}
	report  core.ExecutionReport
}

// search walks target × term. RateLimited and Timeout abort the remaining searches.
// A community that refuses the token is skipped. Other platform errors skip one search
// and surface as a transient failure at the end.
func (r *discoveryRun) search(ctx context.Context, targets, terms []string) error {
	var softErr error
targets:
	for _, target := range targets {
		for _, term := range terms {
			if err := ctx.Err(); err != nil {
				r.report.Aborted = true
				return apperrors.NewPlatformError(apperrors.PlatformTimeout, 0, err)
			}
			candidates, err := r.svc.deps.Searcher.Search(ctx, core.SearchRequest{
				Token:     r.token,
				Community: target,
				Query:     term,
				Sort:      r.svc.cfg.Sort,
				Window:    r.svc.cfg.Window,
				Limit:     r.svc.cfg.ResultsPerSearch,
			})
			r.report.Searches++
			if perr := r.process(ctx, candidates); perr != nil {
				r.report.Aborted = true
				return perr
			}
			if err == nil {
				continue
			}
			switch {
			case apperrors.IsPlatformKind(err, apperrors.PlatformRateLimited),
				apperrors.IsPlatformKind(err, apperrors.PlatformTimeout):
				r.report.Aborted = true
				return err
			case apperrors.IsPlatformKind(err, apperrors.PlatformAuthFailed):
				r.report.Aborted = true
				return r.authFailed(ctx, err)
			case apperrors.IsPlatformKind(err, apperrors.PlatformForbidden):
				r.svc.logger.WarnContext(ctx, "community refused access, skipping",
					"job_id", r.job.ID, "community", target, "error", err)
				continue targets
			default:
				r.svc.logger.WarnContext(ctx, "search failed, continuing",
					"job_id", r.job.ID, "community", target, "error", err)
				if softErr == nil {
					softErr = err
				}
			}
		}
	}
	return softErr
}

// authFailed routes a rejected user token to the credential fatal path. A rejected
// application token is an operator problem, so it stays transient for the job.
func (r *discoveryRun) authFailed(ctx context.Context, err error) error {
	if r.token.IsZero() || r.token.AppLevel {
		return apperrors.NewPlatformError(apperrors.PlatformServerError, 0,
			fmt.Errorf("application token rejected: %s", err.Error()))
	}
	if ierr := r.svc.deps.Credentials.Invalidate(ctx, r.job.UserID); ierr != nil {
		r.svc.logger.ErrorContext(ctx, "invalidate credential", "user_id", r.job.UserID, "error", ierr)
	}
	return err
}

// process scores and ingests one search's new candidates, skipping posts already seen
// in this execution or already stored as leads.
func (r *discoveryRun) process(ctx context.Context, candidates []model.Candidate) error {
	fresh := make([]model.Candidate, 0, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := r.seen[c.PostID]; dup {
			continue
		}
		r.seen[c.PostID] = struct{}{}
		fresh = append(fresh, c)
		ids = append(ids, c.PostID)
	}
	r.report.Candidates += len(fresh)
	if len(fresh) == 0 {
		return nil
	}

	known, err := r.svc.deps.Ingestor.Known(ctx, r.job, ids)
	if err != nil {
		return err
	}
	for _, c := range fresh {
		if _, ok := known[c.PostID]; ok {
			r.report.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return apperrors.NewPlatformError(apperrors.PlatformTimeout, 0, err)
		}
		rel := r.svc.deps.Scorer.Score(ctx, r.product, c)
		inserted, err := r.svc.deps.Ingestor.Ingest(ctx, r.job, model.ScoredCandidate{Candidate: c, Relevance: rel})
		if err != nil {
			return err
		}
		if inserted {
			r.report.Ingested++
		} else {
			r.report.Skipped++
		}
	}
	return nil
}

func normalizeTargets(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		t = strings.TrimPrefix(strings.TrimPrefix(t, "/"), "r/")
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
