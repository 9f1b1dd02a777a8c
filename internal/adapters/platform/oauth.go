package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	"golang.org/x/oauth2"
)

// defaultTokenLifetime applies when the token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

// OAuthOptions configures the platform's OAuth token endpoint.
type OAuthOptions struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
	UserAgent    string
	HTTPClient   *http.Client
}

// OAuthClient performs the authorization-code exchange and refresh-token grants.
type OAuthClient struct {
	cfg        *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
}

var _ core.TokenRefresher = (*OAuthClient)(nil)

// NewOAuthClient constructs an OAuthClient.
func NewOAuthClient(opts OAuthOptions) (*OAuthClient, error) {
	if strings.TrimSpace(opts.ClientID) == "" {
		return nil, errors.New("oauth client id is required")
	}
	if strings.TrimSpace(opts.TokenURL) == "" {
		return nil, errors.New("oauth token url is required")
	}
	return &OAuthClient{
		cfg: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: userAgentClient(opts.HTTPClient, opts.UserAgent),
		now:        time.Now,
	}, nil
}

// AuthCodeURL returns the consent URL a user visits to connect their account.
func (c *OAuthClient) AuthCodeURL(state string) string {
	return c.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("duration", "permanent"))
}

// Exchange trades an authorization code for a token grant.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (model.TokenGrant, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.cfg.Exchange(ctx, code)
	if err != nil {
		return model.TokenGrant{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	return c.grant(tok), nil
}

// Refresh performs a refresh-token grant. A 4xx response from the token endpoint
// wraps core.ErrRefreshTokenRejected; any other failure is returned as-is.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (model.TokenGrant, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return model.TokenGrant{}, fmt.Errorf("%w: empty refresh token", core.ErrRefreshTokenRejected)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	// An already expired token forces the source to hit the token endpoint.
	src := c.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil &&
			re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 &&
			re.Response.StatusCode != http.StatusTooManyRequests {
			return model.TokenGrant{}, fmt.Errorf("%w: status %d", core.ErrRefreshTokenRejected, re.Response.StatusCode)
		}
		return model.TokenGrant{}, fmt.Errorf("refresh token: %w", err)
	}
	return c.grant(tok), nil
}

func (c *OAuthClient) grant(tok *oauth2.Token) model.TokenGrant {
	g := model.TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.UTC(),
	}
	if tok.Expiry.IsZero() {
		g.ExpiresAt = c.now().Add(defaultTokenLifetime).UTC()
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		g.Scope = scope
	}
	return g
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}

// userAgentClient wraps base so every token request carries the platform-required User-Agent.
func userAgentClient(base *http.Client, userAgent string) *http.Client {
	if base == nil {
		base = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if userAgent == "" {
		return base
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	clone := *base
	clone.Transport = &userAgentTransport{base: transport, userAgent: userAgent}
	return &clone
}
