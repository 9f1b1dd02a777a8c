package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAppTokens struct {
	tok   model.AccessToken
	err   error
	calls atomic.Int32
}

func (s *staticAppTokens) Token(context.Context) (model.AccessToken, error) {
	s.calls.Add(1)
	return s.tok, s.err
}

func listingJSON(after string, ids ...string) string {
	children := ""
	for i, id := range ids {
		if i > 0 {
			children += ","
		}
		children += fmt.Sprintf(`{"kind":"t3","data":{"name":%q,"subreddit":"saas","title":"need a crm %d",
"selftext":"body","author":"alice","permalink":"/r/saas/comments/%s/","score":12,"num_comments":3,
"created_utc":1700000000.0,"ups":12,"thumbnail":"self"}}`, id, i, id)
	}
	afterJSON := "null"
	if after != "" {
		afterJSON = fmt.Sprintf("%q", after)
	}
	return fmt.Sprintf(`{"kind":"Listing","data":{"after":%s,"dist":%d,"children":[%s]}}`, afterJSON, len(ids), children)
}

func newTestSearchClient(t *testing.T, srv *httptest.Server, mutate func(*ClientOptions)) *Client {
	t.Helper()
	opts := ClientOptions{
		BaseURL:           srv.URL,
		UserAgent:         "leadwatch-test/1.0",
		RequestsPerSecond: 1000,
		Burst:             10,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := NewClient(opts)
	require.NoError(t, err)
	return c
}

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/saas/search.json", r.URL.Path)
		assert.Equal(t, "need crm", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("restrict_sr"))
		assert.Equal(t, "new", r.URL.Query().Get("sort"))
		assert.Equal(t, "week", r.URL.Query().Get("t"))
		assert.Equal(t, "bearer user-token", r.Header.Get("Authorization"))
		assert.Equal(t, "leadwatch-test/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(listingJSON("", "t3_a", "t3_b")))
	}))
	defer srv.Close()

	c := newTestSearchClient(t, srv, nil)
	got, err := c.Search(context.Background(), core.SearchRequest{
		Token:     model.AccessToken{Value: "user-token"},
		Community: "saas",
		Query:     "need crm",
		Sort:      "new",
		Window:    "week",
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t3_a", got[0].PostID)
	assert.Equal(t, "saas", got[0].Community)
	assert.Equal(t, "https://www.reddit.com/r/saas/comments/t3_a/", got[0].URL)
	assert.Equal(t, 12, got[0].Score)
	assert.Equal(t, 3, got[0].NumComments)
	assert.Equal(t, "need crm", got[0].Query)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got[0].PostedAt)
}

func TestClient_SearchDropsIncompletePosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"after":null,"children":[
{"kind":"t3","data":{"name":"t3_ok","title":"has title"}},
{"kind":"t3","data":{"name":"t3_notitle","title":""}},
{"kind":"t3","data":{"title":"no id"}},
{"kind":"t1","data":{"name":"t1_comment","title":"comment"}}]}}`))
	}))
	defer srv.Close()

	got, err := newTestSearchClient(t, srv, nil).Search(context.Background(), core.SearchRequest{
		Token: model.AccessToken{Value: "tok"}, Community: "saas", Query: "crm",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t3_ok", got[0].PostID)
	assert.Equal(t, "saas", got[0].Community, "falls back to the searched community")
}

func TestClient_SearchFollowsPages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			assert.Empty(t, r.URL.Query().Get("after"))
			_, _ = w.Write([]byte(listingJSON("t3_b", "t3_a", "t3_b")))
		default:
			assert.Equal(t, "t3_b", r.URL.Query().Get("after"))
			_, _ = w.Write([]byte(listingJSON("t3_d", "t3_c", "t3_d")))
		}
	}))
	defer srv.Close()

	c := newTestSearchClient(t, srv, func(o *ClientOptions) { o.MaxPages = 2 })
	got, err := c.Search(context.Background(), core.SearchRequest{
		Token: model.AccessToken{Value: "tok"}, Community: "saas", Query: "crm", Limit: 25,
	})
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, int32(2), calls.Load(), "stops at MaxPages even with a cursor")
}

func TestClient_SearchUsesAppToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bearer app-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(listingJSON("", "t3_a")))
	}))
	defer srv.Close()

	app := &staticAppTokens{tok: model.AccessToken{Value: "app-token", AppLevel: true}}
	c := newTestSearchClient(t, srv, func(o *ClientOptions) { o.AppTokens = app })
	got, err := c.Search(context.Background(), core.SearchRequest{Community: "saas", Query: "crm"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(1), app.calls.Load())
}

func TestClient_SearchWithoutAnyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	}))
	defer srv.Close()

	_, err := newTestSearchClient(t, srv, nil).Search(context.Background(), core.SearchRequest{Community: "saas", Query: "crm"})
	require.Error(t, err)
	assert.True(t, apperrors.IsPlatformKind(err, apperrors.PlatformAuthFailed))
}

func TestClient_SearchStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		kind   apperrors.PlatformKind
		retry  time.Duration
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "7"}, kind: apperrors.PlatformRateLimited, retry: 7 * time.Second},
		{name: "unauthorized", status: http.StatusUnauthorized, kind: apperrors.PlatformAuthFailed},
		{name: "forbidden", status: http.StatusForbidden, kind: apperrors.PlatformForbidden},
		{name: "server error", status: http.StatusBadGateway, kind: apperrors.PlatformServerError},
		{name: "not found", status: http.StatusNotFound, kind: apperrors.PlatformServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestSearchClient(t, srv, nil).Search(context.Background(), core.SearchRequest{
				Token: model.AccessToken{Value: "tok"}, Community: "saas", Query: "crm",
			})
			require.Error(t, err)
			var perr *apperrors.PlatformError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, tt.retry, perr.RetryAfter)
		})
	}
}

func TestClient_SearchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := newTestSearchClient(t, srv, nil).Search(context.Background(), core.SearchRequest{
		Token: model.AccessToken{Value: "tok"}, Community: "saas", Query: "crm",
	})
	assert.True(t, apperrors.IsPlatformKind(err, apperrors.PlatformServerError))
}

func TestClient_SearchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newTestSearchClient(t, srv, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Search(ctx, core.SearchRequest{Token: model.AccessToken{Value: "tok"}, Community: "saas", Query: "crm"})
	assert.True(t, apperrors.IsPlatformKind(err, apperrors.PlatformTimeout))
}

func TestClient_ExhaustedQuotaBlocksFurtherCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("X-Ratelimit-Remaining", "0.0")
		w.Header().Set("X-Ratelimit-Reset", "120")
		_, _ = w.Write([]byte(listingJSON("", "t3_a")))
	}))
	defer srv.Close()

	c := newTestSearchClient(t, srv, nil)
	req := core.SearchRequest{Token: model.AccessToken{Value: "tok"}, Community: "saas", Query: "crm"}
	_, err := c.Search(context.Background(), req)
	require.NoError(t, err)

	_, err = c.Search(context.Background(), req)
	var perr *apperrors.PlatformError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, apperrors.PlatformRateLimited, perr.Kind)
	assert.Greater(t, perr.RetryAfter, time.Minute)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClampRequestTimeout(t *testing.T) {
	assert.Equal(t, DefaultRequestTimeout, ClampRequestTimeout(0))
	assert.Equal(t, time.Second, ClampRequestTimeout(10*time.Millisecond))
	assert.Equal(t, MaxRequestTimeout, ClampRequestTimeout(time.Minute))
	assert.Equal(t, 5*time.Second, ClampRequestTimeout(5*time.Second))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(ClientOptions{UserAgent: "ua"})
	require.Error(t, err)
	_, err = NewClient(ClientOptions{BaseURL: "http://x"})
	require.Error(t, err)
}
