package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	appTokenCacheKey     = "app"
	appTokenSkew         = time.Minute
	appTokenFetchTimeout = 20 * time.Second
)

// AppTokenOptions configures the application-only token source.
type AppTokenOptions struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	UserAgent    string
	HTTPClient   *http.Client
	// Cache optionally shares the token across processes.
	Cache  core.TokenCache
	Logger *slog.Logger
}

// AppTokenSource fetches and caches the client-credentials token.
type AppTokenSource struct {
	cfg        *clientcredentials.Config
	httpClient *http.Client
	cache      core.TokenCache
	logger     *slog.Logger
	now        func() time.Time
	group      singleflight.Group

	mu      sync.Mutex
	current model.AccessToken
}

var _ core.AppTokenSource = (*AppTokenSource)(nil)

// NewAppTokenSource constructs an AppTokenSource.
func NewAppTokenSource(opts AppTokenOptions) (*AppTokenSource, error) {
	if opts.ClientID == "" || opts.TokenURL == "" {
		return nil, errors.New("app token source requires client id and token url")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AppTokenSource{
		cfg: &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: userAgentClient(opts.HTTPClient, opts.UserAgent),
		cache:      opts.Cache,
		logger:     logger.With("component", "app_token_source"),
		now:        time.Now,
	}, nil
}

// Token returns a valid application token, fetching a new one when the cached token is near expiry.
// Concurrent callers share one fetch, which is detached from the first caller's cancellation
// so one caller giving up does not fail the others.
func (s *AppTokenSource) Token(ctx context.Context) (model.AccessToken, error) {
	if tok, ok := s.cached(); ok {
		return tok, nil
	}
	ch := s.group.DoChan(appTokenCacheKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appTokenFetchTimeout)
		defer cancel()
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
		if s.cache != nil {
			tok, ok, err := s.cache.Get(fctx, appTokenCacheKey)
			if err != nil {
				s.logger.WarnContext(fctx, "app token cache read failed", "error", err)
			} else if ok && s.usable(tok) {
				s.store(tok)
				return tok, nil
			}
		}
		return s.fetch(fctx)
	})
	select {
	case <-ctx.Done():
		return model.AccessToken{}, classifyTransportError(ctx, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return model.AccessToken{}, res.Err
		}
		tok, ok := res.Val.(model.AccessToken)
		if !ok {
			return model.AccessToken{}, errors.New("unexpected app token type")
		}
		return tok, nil
	}
}

func (s *AppTokenSource) fetch(ctx context.Context) (model.AccessToken, error) {
	octx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	t, err := s.cfg.Token(octx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			code := re.Response.StatusCode
			if code == http.StatusUnauthorized || code == http.StatusForbidden {
				return model.AccessToken{}, apperrors.NewPlatformError(apperrors.PlatformAuthFailed, code, err)
			}
			return model.AccessToken{}, apperrors.NewPlatformError(apperrors.PlatformServerError, code, err)
		}
		return model.AccessToken{}, classifyTransportError(ctx, fmt.Errorf("fetch app token: %w", err))
	}
	tok := model.AccessToken{Value: t.AccessToken, ExpiresAt: t.Expiry.UTC(), AppLevel: true}
	if t.Expiry.IsZero() {
		tok.ExpiresAt = s.now().Add(defaultTokenLifetime).UTC()
	}
	s.store(tok)
	if s.cache != nil {
		if err := s.cache.Set(ctx, appTokenCacheKey, tok); err != nil {
			s.logger.WarnContext(ctx, "app token cache write failed", "error", err)
		}
	}
	return tok, nil
}

func (s *AppTokenSource) cached() (model.AccessToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usable(s.current) {
		return s.current, true
	}
	return model.AccessToken{}, false
}

func (s *AppTokenSource) usable(tok model.AccessToken) bool {
	return !tok.IsZero() && tok.ExpiresAt.After(s.now().Add(appTokenSkew))
}

func (s *AppTokenSource) store(tok model.AccessToken) {
	tok.AppLevel = true
	s.mu.Lock()
	s.current = tok
	s.mu.Unlock()
}
