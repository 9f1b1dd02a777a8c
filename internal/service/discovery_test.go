package service

import (
	"context"
	"testing"
	"time"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
	"github.com/leadwatch/leadwatch/internal/mocks"
	"github.com/leadwatch/leadwatch/internal/testutil"
	"github.com/leadwatch/leadwatch/internal/testutil/fakes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type discoveryFixture struct {
	products *fakes.ProductStore
	jobs     *fakes.JobStore
	leads    *fakes.LeadStore
	creds    *mocks.MockCredentialResolver
	searcher *mocks.MockPlatformSearcher
	svc      *DiscoveryService
	job      *model.Job
}

func newDiscoveryFixture(t *testing.T, cfg DiscoveryConfig, targets ...string) *discoveryFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &discoveryFixture{
		products: fakes.NewProductStore(testutil.NewProduct("product-1", "user-1", targets...)),
		jobs:     fakes.NewJobStore(),
		leads:    fakes.NewLeadStore(),
		creds:    mocks.NewMockCredentialResolver(ctrl),
		searcher: mocks.NewMockPlatformSearcher(ctrl),
		job:      testutil.NewJob("job-1", "user-1", "product-1", testNow),
	}
	f.jobs.Put(f.job)
	if cfg.MaxTerms == 0 {
		cfg.MaxTerms = 2
	}
	f.svc = MustNewDiscoveryService(DiscoveryServiceOptions{
		Deps: DiscoveryDeps{
			Products:    f.products,
			Jobs:        f.jobs,
			Credentials: f.creds,
			Searcher:    f.searcher,
			Scorer:      NewScorerService(ScorerServiceOptions{Logger: discardLogger()}),
			Ingestor:    NewIngestService(IngestServiceOptions{Leads: f.leads, Logger: discardLogger()}),
		},
		Config: cfg,
		Logger: discardLogger(),
	})
	return f
}

func testUserToken() model.AccessToken {
	return model.AccessToken{Value: "user-token", ExpiresAt: testNow.Add(time.Hour)}
}

func post(id string) model.Candidate {
	return model.Candidate{PostID: id, Community: "startups", Title: "Need a CRM for finding customers"}
}

func TestDiscoveryService_IngestsDistinctCandidates(t *testing.T) {
	f := newDiscoveryFixture(t, DiscoveryConfig{}, "startups", "r/SaaS", "/r/startups")
	f.creds.EXPECT().Resolve(gomock.Any(), "user-1").Return(testUserToken(), nil)

	communities := map[string]int{}
	f.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Times(4).
		DoAndReturn(func(_ context.Context, req core.SearchRequest) ([]model.Candidate, error) {
			communities[req.Community]++
			assert.Equal(t, "user-token", req.Token.Value)
			assert.Equal(t, DefaultSearchSort, req.Sort)
			assert.Equal(t, DefaultSearchWindow, req.Window)
			assert.Equal(t, DefaultResultsPerSearch, req.Limit)
			// Every search returns the same overlapping page.
			return []model.Candidate{post("t3_a"), post("t3_b"), post("t3_" + req.Community)}, nil
		})

	report, err := f.svc.Execute(context.Background(), f.job)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"startups": 2, "SaaS": 2}, communities)
	assert.Equal(t, 4, report.Searches)
	assert.Equal(t, 4, report.Ingested)
	assert.False(t, report.Aborted)
	assert.Len(t, f.leads.All(), 4)
	for _, l := range f.leads.All() {
		assert.Equal(t, model.ScoreMethodHeuristic, l.Scored.Relevance.Method)
		assert.Equal(t, "user-1", l.UserID)
	}
}

func TestDiscoveryService_SkipsKnownLeads(t *testing.T) {
	f := newDiscoveryFixture(t, DiscoveryConfig{MaxTerms: 1}, "startups")
	_, err := f.leads.InsertIfAbsent(context.Background(), model.NewLeadRequest{
		UserID: "user-1", ProductID: "product-1", Scored: model.ScoredCandidate{Candidate: post("t3_a")},
	})
	require.NoError(t, err)
	f.creds.EXPECT().Resolve(gomock.Any(), "user-1").Return(testUserToken(), nil)
	f.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Return([]model.Candidate{post("t3_a"), post("t3_b")}, nil)

	report, err := f.svc.Execute(context.Background(), f.job)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 1, report.Skipped)
}

func TestDiscoveryService_AbortRules(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "rate limited", err: apperrors.NewPlatformError(apperrors.PlatformRateLimited, 429, nil)},
		{name: "timeout", err: apperrors.NewPlatformError(apperrors.PlatformTimeout, 0, context.DeadlineExceeded)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDiscoveryFixture(t, DiscoveryConfig{}, "startups", "SaaS")
			f.creds.EXPECT().Resolve(gomock.Any(), "user-1").Return(testUserToken(), nil)
			f.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Return([]model.Candidate{post("t3_a")}, tt.err).Times(1)

			report, err := f.svc.Execute(context.Background(), f.job)
			require.ErrorIs(t, err, tt.err)
			assert.False(t, apperrors.IsFatal(err))
			assert.True(t, report.Aborted)
			assert.Equal(t, 1, report.Searches)
			assert.Equal(t, 1, report.Ingested, "candidates returned with the error are still ingested")
		})
	}
}

func TestDiscoveryService_UserTokenRejectedIsFatal(t *testing.T) {
	f := newDiscoveryFixture(t, DiscoveryConfig{}, "startups")
	gomock.InOrder(
		f.creds.EXPECT().Resolve(gomock.Any(), "user-1").Return(testUserToken(), nil),
		f.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).
			Return(nil, apperrors.NewPlatformError(apperrors.PlatformAuthFailed, 401, nil)),
		f.creds.EXPECT().Invalidate(gomock.Any(), "user-1").Return(nil),
	)

	_, err := f.svc.Execute(context.Background(), f.job)
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
}

func TestDiscoveryService_AppTokenRejectedIsTransient(t *testing.T) {
	f := newDiscoveryFixture(t, DiscoveryConfig{}, "startups")
	f.creds.EXPECT().Resolve(gomock.Any(), "user-1").
		Return(model.AccessToken{}, apperrors.NewCredentialError(apperrors.CredentialNotConnected, "user-1", nil))
	f.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req core.SearchRequest) ([]model.Candidate, error) {
			assert.True(t, req.Token.IsZero(), "no user token means the app token is used")
			return nil, apperrors.NewPlatformError(apperrors.PlatformAuthFailed, 401, nil)
		})

	_, err := f.svc.Execute(context.Background(), f.job)
	require.Error(t, err)
	assert.False(t, apperrors.IsFatal(err))
	assert.True(t, apperrors.IsPlatformKind(err, apperrors.PlatformServerError))
}

func TestDiscoveryService_ServerErrorSkipsOneSearch(t *testing.T) {
	f := newDiscoveryFixture(t, DiscoveryConfig{}, "startups")
	f.creds.EXPECT().Resolve(gomock.Any(), "user-1").Return(testUserToken(), nil)
	gomock.InOrder(
		f.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).
			Return(nil, apperrors.NewPlatformError(apperrors.PlatformServerError, 502, nil)),
		f.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).
			Return([]model.Candidate{post("t3_a")}, nil),
	)

	report, err := f.svc.Execute(context.Background(), f.job)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
	assert.Equal(t, 2, report.Searches)
	assert.Equal(t, 1, report.Ingested)
	assert.False(t, report.Aborted)
}

func TestDiscoveryService_ForbiddenCommunityIsSkipped(t *testing.T) {
	f := newDiscoveryFixture(t, DiscoveryConfig{}, "privatesub", "startups")
	f.creds.EXPECT().Resolve(gomock.Any(), "user-1").Return(testUserToken(), nil)

	communities := map[string]int{}
	f.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Times(3).
		DoAndReturn(func(_ context.Context, req core.SearchRequest) ([]model.Candidate, error) {
			communities[req.Community]++
			if req.Community == "privatesub" {
				return nil, apperrors.NewPlatformError(apperrors.PlatformForbidden, 403, nil)
			}
			return []model.Candidate{post("t3_" + req.Query)}, nil
		})
	// Invalidate has no expectation: the credential must survive a 403.

	report, err := f.svc.Execute(context.Background(), f.job)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"privatesub": 1, "startups": 2}, communities)
	assert.Equal(t, 3, report.Searches)
	assert.Equal(t, 2, report.Ingested)
	assert.False(t, report.Aborted)
}

func TestDiscoveryService_RevokedCredentialIsFatal(t *testing.T) {
	f := newDiscoveryFixture(t, DiscoveryConfig{}, "startups")
	f.creds.EXPECT().Resolve(gomock.Any(), "user-1").
		Return(model.AccessToken{}, apperrors.NewCredentialError(apperrors.CredentialRefreshFailed, "user-1", nil))

	report, err := f.svc.Execute(context.Background(), f.job)
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Zero(t, report.Searches)
}

func TestDiscoveryService_MissingProductPausesJob(t *testing.T) {
	f := newDiscoveryFixture(t, DiscoveryConfig{}, "startups")
	f.products.Remove("product-1")

	_, err := f.svc.Execute(context.Background(), f.job)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPaused, f.jobs.Get("job-1").Status)
}

func TestDiscoveryService_ProductOwnedByAnotherUserPausesJob(t *testing.T) {
	f := newDiscoveryFixture(t, DiscoveryConfig{}, "startups")
	f.products.Put(testutil.NewProduct("product-1", "someone-else", "startups"))

	_, err := f.svc.Execute(context.Background(), f.job)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPaused, f.jobs.Get("job-1").Status)
}

func TestDiscoveryService_NoOpCases(t *testing.T) {
	t.Run("inactive product", func(t *testing.T) {
		f := newDiscoveryFixture(t, DiscoveryConfig{}, "startups")
		p := testutil.NewProduct("product-1", "user-1", "startups")
		p.Status = model.ProductStatusInactive
		f.products.Put(p)

		report, err := f.svc.Execute(context.Background(), f.job)
		require.NoError(t, err)
		assert.Zero(t, report.Searches)
		assert.Equal(t, model.JobStatusActive, f.jobs.Get("job-1").Status)
	})

	t.Run("no search targets", func(t *testing.T) {
		f := newDiscoveryFixture(t, DiscoveryConfig{}, " ", "/r/")
		f.creds.EXPECT().Resolve(gomock.Any(), "user-1").Return(testUserToken(), nil)

		report, err := f.svc.Execute(context.Background(), f.job)
		require.NoError(t, err)
		assert.Zero(t, report.Searches)
	})
}

func TestDiscoveryService_TimeoutKeepsIngestedLeads(t *testing.T) {
	f := newDiscoveryFixture(t, DiscoveryConfig{ExecutionTimeout: 50 * time.Millisecond}, "startups")
	f.creds.EXPECT().Resolve(gomock.Any(), "user-1").Return(testUserToken(), nil)
	gomock.InOrder(
		f.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).
			Return([]model.Candidate{post("t3_a"), post("t3_b")}, nil),
		f.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ core.SearchRequest) ([]model.Candidate, error) {
				<-ctx.Done()
				return nil, apperrors.NewPlatformError(apperrors.PlatformTimeout, 0, ctx.Err())
			}),
	)

	report, err := f.svc.Execute(context.Background(), f.job)
	require.Error(t, err)
	assert.True(t, apperrors.IsPlatformKind(err, apperrors.PlatformTimeout))
	assert.True(t, report.Aborted)
	assert.Equal(t, 2, report.Ingested)
	assert.Len(t, f.leads.All(), 2)
}

func TestNormalizeTargets(t *testing.T) {
	got := normalizeTargets([]string{"startups", " r/SaaS ", "/r/startups", "STARTUPS", "", "/"})
	assert.Equal(t, []string{"startups", "SaaS"}, got)
}
