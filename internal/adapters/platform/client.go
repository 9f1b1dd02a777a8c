// Package platform talks to the discussion platform: post search, OAuth refresh and app-only tokens.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestTimeout bounds each platform HTTP request.
	DefaultRequestTimeout = 15 * time.Second
	// MaxRequestTimeout is the upper bound accepted for the request timeout.
	MaxRequestTimeout = 20 * time.Second
	defaultMaxPages   = 1
	defaultLimit      = 25
	maxLimit          = 100
	maxBodyBytes      = 4 << 20
)

// listingExpr projects a search listing into the fields the pipeline needs.
// Anything else in the payload is ignored; the projection is then strictly decoded.
const listingExpr = `{
  after: data.after,
  posts: data.children[?kind == 't3'].data.{
    id: name,
    community: subreddit,
    title: title,
    content: selftext,
    author: author,
    permalink: permalink,
    score: score,
    num_comments: num_comments,
    created_utc: created_utc
  }
}`

// ClientOptions configures the search client.
type ClientOptions struct {
	BaseURL           string
	WebURL            string
	UserAgent         string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxPages          int
	HTTPClient        *http.Client
	// AppTokens supplies the application token used when a request carries no user token.
	AppTokens core.AppTokenSource
	Logger    *slog.Logger
}

// Client implements core.PlatformSearcher against an authenticated listing API.
type Client struct {
	baseURL   string
	webURL    string
	userAgent string
	maxPages  int
	http      *http.Client
	limiter   *rate.Limiter
	appTokens core.AppTokenSource
	logger    *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	blockedUntil time.Time
}

var _ core.PlatformSearcher = (*Client)(nil)

// NewClient constructs a Client. It fails fast if the projection expression does not compile.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("platform base URL is required")
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		return nil, errors.New("platform user agent is required")
	}
	if _, err := jmespath.Compile(listingExpr); err != nil {
		return nil, fmt.Errorf("compile listing projection: %w", err)
	}
	timeout := ClampRequestTimeout(opts.RequestTimeout)
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	webURL := opts.WebURL
	if webURL == "" {
		webURL = "https://www.reddit.com"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		webURL:    strings.TrimRight(webURL, "/"),
		userAgent: opts.UserAgent,
		maxPages:  maxPages,
		http:      httpClient,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		appTokens: opts.AppTokens,
		logger:    logger.With("component", "platform_client"),
		now:       time.Now,
	}, nil
}

// ClampRequestTimeout keeps request timeouts within one to twenty seconds.
func ClampRequestTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultRequestTimeout
	case d < time.Second:
		return time.Second
	case d > MaxRequestTimeout:
		return MaxRequestTimeout
	default:
		return d
	}
}

type listing struct {
	After *string   `json:"after"`
	Posts []rawPost `json:"posts"`
}

type rawPost struct {
	ID          string   `json:"id"`
	Community   string   `json:"community"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Author      string   `json:"author"`
	Permalink   string   `json:"permalink"`
	Score       *float64 `json:"score"`
	NumComments *float64 `json:"num_comments"`
	CreatedUTC  *float64 `json:"created_utc"`
}

// Search runs one query against one community, following pagination cursors up to MaxPages.
func (c *Client) Search(ctx context.Context, req core.SearchRequest) ([]model.Candidate, error) {
	if strings.TrimSpace(req.Community) == "" || strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("community and query are required")
	}
	token := req.Token
	if token.IsZero() {
		if c.appTokens == nil {
			return nil, apperrors.NewPlatformError(apperrors.PlatformAuthFailed, 0, errors.New("no token available"))
		}
		appTok, err := c.appTokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		token = appTok
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var (
		out   []model.Candidate
		after string
	)
	for page := 0; page < c.maxPages && len(out) < limit; page++ {
		l, err := c.fetchPage(ctx, req, token, pageParams{after: after, limit: limit - len(out)})
		if err != nil {
			return out, err
		}
		for _, p := range l.Posts {
			cand, ok := c.toCandidate(p, req)
			if ok {
				out = append(out, cand)
			}
		}
		if l.After == nil || *l.After == "" {
			break
		}
		after = *l.After
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type pageParams struct {
	after string
	limit int
}

func (c *Client) fetchPage(ctx context.Context, req core.SearchRequest, token model.AccessToken, p pageParams) (*listing, error) {
	if err := c.checkBlocked(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewPlatformError(apperrors.PlatformTimeout, 0, err)
	}

	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("restrict_sr", "1")
	q.Set("limit", strconv.Itoa(p.limit))
	q.Set("raw_json", "1")
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}
	if req.Window != "" {
		q.Set("t", req.Window)
	}
	if p.after != "" {
		q.Set("after", p.after)
	}
	endpoint := fmt.Sprintf("%s/r/%s/search.json?%s", c.baseURL, url.PathEscape(req.Community), q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Authorization", "bearer "+token.Value)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.DebugContext(ctx, "close response body", "error", cerr)
		}
	}()

	c.trackRateLimit(resp.Header)
	if perr := statusError(resp); perr != nil {
		if perr.Kind == apperrors.PlatformRateLimited {
			c.block(perr.RetryAfter)
		}
		return nil, perr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	return decodeListing(body)
}

func decodeListing(body []byte) (*listing, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, apperrors.NewPlatformError(apperrors.PlatformServerError, 0, fmt.Errorf("decode listing: %w", err))
	}
	projected, err := jmespath.Search(listingExpr, doc)
	if err != nil {
		return nil, apperrors.NewPlatformError(apperrors.PlatformServerError, 0, fmt.Errorf("project listing: %w", err))
	}
	raw, err := json.Marshal(projected)
	if err != nil {
		return nil, fmt.Errorf("encode projection: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	var l listing
	if err := dec.Decode(&l); err != nil {
		return nil, apperrors.NewPlatformError(apperrors.PlatformServerError, 0, fmt.Errorf("unexpected listing shape: %w", err))
	}
	return &l, nil
}

func (c *Client) toCandidate(p rawPost, req core.SearchRequest) (model.Candidate, bool) {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Title) == "" {
		return model.Candidate{}, false
	}
	cand := model.Candidate{
		PostID:    p.ID,
		Community: p.Community,
		Title:     p.Title,
		Content:   p.Content,
		Author:    p.Author,
		Query:     req.Query,
	}
	if cand.Community == "" {
		cand.Community = req.Community
	}
	if p.Permalink != "" {
		if strings.HasPrefix(p.Permalink, "/") {
			cand.URL = c.webURL + p.Permalink
		} else {
			cand.URL = p.Permalink
		}
	}
	if p.Score != nil {
		cand.Score = int(*p.Score)
	}
	if p.NumComments != nil {
		cand.NumComments = int(*p.NumComments)
	}
	if p.CreatedUTC != nil && *p.CreatedUTC > 0 {
		cand.PostedAt = time.Unix(int64(*p.CreatedUTC), 0).UTC()
	}
	return cand, true
}

func (c *Client) checkBlocked() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Before(c.blockedUntil) {
		perr := apperrors.NewPlatformError(apperrors.PlatformRateLimited, 0, errors.New("rate limit window exhausted"))
		perr.RetryAfter = c.blockedUntil.Sub(now)
		return perr
	}
	return nil
}

func (c *Client) block(d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	until := c.now().Add(d)
	if until.After(c.blockedUntil) {
		c.blockedUntil = until
	}
}

// trackRateLimit blocks further calls until the reset when the platform reports no remaining quota.
func (c *Client) trackRateLimit(h http.Header) {
	remaining, err := strconv.ParseFloat(strings.TrimSpace(h.Get("X-Ratelimit-Remaining")), 64)
	if err != nil || remaining >= 1 {
		return
	}
	reset, err := strconv.ParseFloat(strings.TrimSpace(h.Get("X-Ratelimit-Reset")), 64)
	if err != nil || reset <= 0 {
		reset = 1
	}
	c.block(time.Duration(reset * float64(time.Second)))
}

func statusError(resp *http.Response) *apperrors.PlatformError {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		perr := apperrors.NewPlatformError(apperrors.PlatformRateLimited, code, nil)
		perr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return perr
	case code == http.StatusUnauthorized:
		return apperrors.NewPlatformError(apperrors.PlatformAuthFailed, code, nil)
	case code == http.StatusForbidden:
		return apperrors.NewPlatformError(apperrors.PlatformForbidden, code, nil)
	default:
		return apperrors.NewPlatformError(apperrors.PlatformServerError, code, nil)
	}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func classifyTransportError(ctx context.Context, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
		return apperrors.NewPlatformError(apperrors.PlatformTimeout, 0, err)
	}
	return apperrors.NewPlatformError(apperrors.PlatformServerError, 0, err)
}
