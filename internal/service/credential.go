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
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
	"github.com/leadwatch/leadwatch/internal/observability/metrics"
	"github.com/leadwatch/leadwatch/internal/observability/statsd"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRefreshMargin is how close to expiry a token is refreshed ahead of use.
	DefaultRefreshMargin = 5 * time.Minute
	defaultRefreshBatch  = 50
	refreshCallTimeout   = 20 * time.Second
	refreshConcurrency   = 4
)

// CredentialConfig tunes refresh behavior.
type CredentialConfig struct {
	RefreshMargin time.Duration
	BatchSize     int
}

// CredentialServiceOptions groups dependencies for CredentialService.
type CredentialServiceOptions struct {
	Repo         core.CredentialRepository
	Refresher    core.TokenRefresher
	Config       CredentialConfig
	TimeProvider data.TimeProvider
	Metrics      statsd.Sink
	Logger       *slog.Logger
}

// CredentialService resolves per-user access tokens, refreshing them ahead of expiry.
// Refreshes are serialized per user: concurrent callers share a single in-flight exchange.
type CredentialService struct {
	repo      core.CredentialRepository
	refresher core.TokenRefresher
	margin    time.Duration
	batchSize int
	clock     data.TimeProvider
	metrics   statsd.Sink
	logger    *slog.Logger
	flights   singleflight.Group
}

var _ core.CredentialResolver = (*CredentialService)(nil)

// NewCredentialService constructs a CredentialService.
func NewCredentialService(opts CredentialServiceOptions) (*CredentialService, error) {
	if opts.Repo == nil {
		return nil, errors.New("credential repository is required")
	}
	if opts.Refresher == nil {
		return nil, errors.New("token refresher is required")
	}
	margin := opts.Config.RefreshMargin
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	batch := opts.Config.BatchSize
	if batch <= 0 {
		batch = defaultRefreshBatch
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		repo:      opts.Repo,
		refresher: opts.Refresher,
		margin:    margin,
		batchSize: batch,
		clock:     clock,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "credential_service"),
	}, nil
}

// MustNewCredentialService constructs a CredentialService and panics on error.
func MustNewCredentialService(opts CredentialServiceOptions) *CredentialService {
	svc, err := NewCredentialService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return svc
}

// Resolve returns a user token valid for at least the refresh margin.
//
// Errors:
//   - CredentialError{NotConnected} when the user has no stored credential
//   - CredentialError{RefreshFailed} when the platform rejected the refresh token (the row is deleted)
//   - any other error is transient and leaves the row untouched
func (s *CredentialService) Resolve(ctx context.Context, userID string) (model.AccessToken, error) {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return model.AccessToken{}, err
	}
	if !cred.ExpiresWithin(s.clock.Now(), s.margin) {
		return userToken(cred), nil
	}
	return s.refresh(ctx, userID)
}

// Connect stores the credential obtained from an OAuth callback.
func (s *CredentialService) Connect(ctx context.Context, userID string, grant model.TokenGrant) (*model.Credential, error) {
	if err := grant.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	cred, err := s.repo.Upsert(ctx, model.SaveCredentialRequest{
		UserID:       userID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
		Scope:        grant.Scope,
	})
	if err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	s.logger.InfoContext(ctx, "credential connected", "user_id", userID, "expires_at", cred.ExpiresAt)
	return cred, nil
}

// Invalidate clears the user's credential after the platform rejected its access token.
func (s *CredentialService) Invalidate(ctx context.Context, userID string) error {
	deleted, err := s.repo.Delete(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if deleted {
		s.logger.WarnContext(ctx, "credential invalidated", "user_id", userID)
	}
	return nil
}

// RefreshSummary reports what one proactive refresh pass did.
type RefreshSummary struct {
	Checked   int
	Refreshed int
	Revoked   int
	Failed    int
}

// RefreshExpiring refreshes credentials that expire within the margin.
// Per-user failures are counted, not returned; only a listing failure is an error.
func (s *CredentialService) RefreshExpiring(ctx context.Context) (RefreshSummary, error) {
	users, err := s.repo.ListExpiring(ctx, s.clock.Now().Add(s.margin), s.batchSize)
	if err != nil {
		return RefreshSummary{}, fmt.Errorf("list expiring credentials: %w", err)
	}
	summary := RefreshSummary{Checked: len(users)}
	if len(users) == 0 {
		return summary, nil
	}

	results := make([]error, len(users))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(refreshConcurrency)
	for i, userID := range users {
		group.Go(func() error {
			_, results[i] = s.refresh(gctx, userID)
			return nil
		})
	}
	_ = group.Wait()

	for _, rerr := range results {
		switch {
		case rerr == nil:
			summary.Refreshed++
		case apperrors.IsCredentialKind(rerr, apperrors.CredentialRefreshFailed):
			summary.Revoked++
		case apperrors.IsCredentialKind(rerr, apperrors.CredentialNotConnected):
			// Deleted between listing and refresh.
		default:
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *CredentialService) load(ctx context.Context, userID string) (*model.Credential, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewCredentialError(apperrors.CredentialNotConnected, userID, errors.New("empty user id"))
	}
	cred, err := s.repo.Get(ctx, userID)
	if errors.Is(err, data.ErrCredentialNotFound) {
		return nil, apperrors.NewCredentialError(apperrors.CredentialNotConnected, userID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return cred, nil
}

// refresh runs at most one exchange per user at a time. The row is re-read inside the
// flight so callers arriving after a completed refresh get the stored token instead of
// exchanging again. The exchange is detached from the first caller's cancellation so a
// waiter is never failed by someone else's deadline.
func (s *CredentialService) refresh(ctx context.Context, userID string) (model.AccessToken, error) {
	ch := s.flights.DoChan(userID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshCallTimeout)
		defer cancel()
		return s.refreshLocked(fctx, userID)
	})
	select {
	case <-ctx.Done():
		return model.AccessToken{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.AccessToken{}, res.Err
		}
		tok, ok := res.Val.(model.AccessToken)
		if !ok {
			return model.AccessToken{}, errors.New("unexpected refresh result type")
		}
		return tok, nil
	}
}

func (s *CredentialService) refreshLocked(ctx context.Context, userID string) (model.AccessToken, error) {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return model.AccessToken{}, err
	}
	if !cred.ExpiresWithin(s.clock.Now(), s.margin) {
		return userToken(cred), nil
	}

	grant, err := s.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, core.ErrRefreshTokenRejected) {
			return s.revoke(ctx, cred, err)
		}
		metrics.EmitCredentialRefresh(s.metrics, metrics.ResultError)
		s.logger.WarnContext(ctx, "credential refresh failed", "user_id", userID, "error", err)
		return model.AccessToken{}, fmt.Errorf("refresh credential: %w", err)
	}
	if err := grant.Validate(); err != nil {
		metrics.EmitCredentialRefresh(s.metrics, metrics.ResultError)
		return model.AccessToken{}, fmt.Errorf("refresh credential: invalid grant: %w", err)
	}

	refreshToken := grant.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}
	scope := grant.Scope
	if scope == "" {
		scope = cred.Scope
	}
	saved, err := s.repo.Upsert(ctx, model.SaveCredentialRequest{
		UserID:       userID,
		AccessToken:  grant.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    grant.ExpiresAt,
		Scope:        scope,
		IfRevision:   cred.Revision,
	})
	if errors.Is(err, data.ErrCredentialChanged) {
		// The user reconnected during the exchange; their new credential wins.
		s.logger.InfoContext(ctx, "credential replaced during refresh, keeping stored one", "user_id", userID)
		return s.current(ctx, userID)
	}
	if err != nil {
		metrics.EmitCredentialRefresh(s.metrics, metrics.ResultError)
		return model.AccessToken{}, fmt.Errorf("persist refreshed credential: %w", err)
	}
	metrics.EmitCredentialRefresh(s.metrics, metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "credential refreshed", "user_id", userID, "expires_at", saved.ExpiresAt)
	return userToken(saved), nil
}

// revoke clears cred after its refresh token was rejected. A credential stored since cred
// was read is left alone and returned instead.
func (s *CredentialService) revoke(ctx context.Context, cred *model.Credential, cause error) (model.AccessToken, error) {
	userID := cred.UserID
	deleted, err := s.repo.DeleteRevision(ctx, userID, cred.Revision)
	if err != nil {
		s.logger.ErrorContext(ctx, "delete revoked credential", "user_id", userID, "error", err)
	}
	if err == nil && !deleted {
		if tok, cerr := s.current(ctx, userID); cerr == nil {
			s.logger.InfoContext(ctx, "credential replaced during refresh, keeping stored one", "user_id", userID)
			return tok, nil
		}
	}
	metrics.EmitCredentialRefresh(s.metrics, metrics.ResultRevoked)
	s.logger.WarnContext(ctx, "refresh token rejected, credential cleared", "user_id", userID)
	return model.AccessToken{}, apperrors.NewCredentialError(apperrors.CredentialRefreshFailed, userID, cause)
}

// current returns the stored token without refreshing it.
func (s *CredentialService) current(ctx context.Context, userID string) (model.AccessToken, error) {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return model.AccessToken{}, err
	}
	return userToken(cred), nil
}

func userToken(c *model.Credential) model.AccessToken {
	return model.AccessToken{Value: c.AccessToken, ExpiresAt: c.ExpiresAt}
}
