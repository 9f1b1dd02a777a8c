package service

import (
	"context"
	"testing"
	"time"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/data"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	"github.com/leadwatch/leadwatch/internal/mocks"
	"github.com/leadwatch/leadwatch/internal/testutil"
	"github.com/leadwatch/leadwatch/internal/testutil/fakes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// pipeline wires the scheduler to the real discovery services over in-memory stores.
type pipeline struct {
	clock     *data.FixedTimeProvider
	jobs      *fakes.JobStore
	creds     *fakes.CredentialStore
	leads     *fakes.LeadStore
	searcher  *mocks.MockPlatformSearcher
	refresher *mocks.MockTokenRefresher
	reasoning *mocks.MockReasoningClient
	scheduler *SchedulerService
}

func newPipeline(t *testing.T, withReasoning bool) *pipeline {
	t.Helper()
	ctrl := gomock.NewController(t)
	p := &pipeline{
		clock:     data.NewFixedTimeProvider(testNow),
		jobs:      fakes.NewJobStore(),
		creds:     fakes.NewCredentialStore(),
		leads:     fakes.NewLeadStore(),
		searcher:  mocks.NewMockPlatformSearcher(ctrl),
		refresher: mocks.NewMockTokenRefresher(ctrl),
		reasoning: mocks.NewMockReasoningClient(ctrl),
	}
	products := fakes.NewProductStore(testutil.NewProduct("product-1", "user-1", "startups"))
	credentials := MustNewCredentialService(CredentialServiceOptions{
		Repo:         p.creds,
		Refresher:    p.refresher,
		TimeProvider: p.clock,
		Logger:       discardLogger(),
	})
	scorerOpts := ScorerServiceOptions{Logger: discardLogger()}
	if withReasoning {
		scorerOpts.Client = p.reasoning
	}
	discovery := MustNewDiscoveryService(DiscoveryServiceOptions{
		Deps: DiscoveryDeps{
			Products:    products,
			Jobs:        p.jobs,
			Credentials: credentials,
			Searcher:    p.searcher,
			Scorer:      NewScorerService(scorerOpts),
			Ingestor:    NewIngestService(IngestServiceOptions{Leads: p.leads, Logger: discardLogger()}),
		},
		Config: DiscoveryConfig{MaxTerms: 1},
		Logger: discardLogger(),
	})
	p.scheduler = MustNewSchedulerService(SchedulerServiceOptions{
		Jobs:         p.jobs,
		Executor:     discovery,
		Config:       testSchedulerConfig(),
		TimeProvider: p.clock,
		Logger:       discardLogger(),
	})
	p.jobs.Put(testutil.NewJob("job-1", "user-1", "product-1", testNow))
	return p
}

func (p *pipeline) connect(t *testing.T, expiresAt time.Time) {
	t.Helper()
	_, err := p.creds.Upsert(context.Background(), model.SaveCredentialRequest{
		UserID:       "user-1",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
	})
	require.NoError(t, err)
}

func page(ids ...string) []model.Candidate {
	out := make([]model.Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Candidate{
			PostID:    id,
			Community: "startups",
			Title:     "Any tools for finding customers? " + id,
			Content:   "Looking for a crm with lead scoring",
		})
	}
	return out
}

func TestPipeline_OverlappingTicksYieldUnionOfLeads(t *testing.T) {
	p := newPipeline(t, false)
	p.connect(t, testNow.Add(24*time.Hour))
	gomock.InOrder(
		p.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Return(page("p1", "p2", "p3", "p4", "p5"), nil),
		p.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Return(page("p4", "p5", "p6", "p7", "p8"), nil),
	)

	res, err := p.scheduler.Tick(context.Background(), p.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	job := p.jobs.Get("job-1")
	require.NotNil(t, job.LastRun)
	assert.Equal(t, job.LastRun.Add(60*time.Minute), job.NextRun)

	p.clock.AddTime(60 * time.Minute)
	res, err = p.scheduler.Tick(context.Background(), p.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	n, err := p.leads.CountByProduct(context.Background(), "user-1", "product-1")
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, int64(2), p.jobs.Get("job-1").RunCount)
}

func TestPipeline_InvalidReasoningReplyStillIngests(t *testing.T) {
	p := newPipeline(t, true)
	p.connect(t, testNow.Add(24*time.Hour))
	p.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Return(page("p1", "p2"), nil)
	p.reasoning.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("{not json", nil).Times(2)

	res, err := p.scheduler.Tick(context.Background(), p.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	leads := p.leads.All()
	require.Len(t, leads, 2)
	for _, l := range leads {
		rel := l.Scored.Relevance
		assert.Equal(t, model.ScoreMethodHeuristic, rel.Method)
		assert.GreaterOrEqual(t, rel.QualityScore, model.MinQualityScore)
		assert.LessOrEqual(t, rel.QualityScore, model.MaxQualityScore)
	}
}

func TestPipeline_RefreshesExpiringTokenBeforeSearch(t *testing.T) {
	p := newPipeline(t, false)
	p.connect(t, testNow.Add(3*time.Minute))
	gomock.InOrder(
		p.refresher.EXPECT().Refresh(gomock.Any(), "refresh-1").Return(model.TokenGrant{
			AccessToken: "fresh-token",
			ExpiresAt:   testNow.Add(time.Hour),
		}, nil),
		p.searcher.EXPECT().Search(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req core.SearchRequest) ([]model.Candidate, error) {
				assert.Equal(t, "fresh-token", req.Token.Value, "no request may use the stale token")
				return page("p1"), nil
			}),
	)

	res, err := p.scheduler.Tick(context.Background(), p.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
}

func TestPipeline_RevokedCredentialErrorsJobAndClearsCredential(t *testing.T) {
	p := newPipeline(t, false)
	p.connect(t, testNow.Add(time.Minute))
	p.refresher.EXPECT().Refresh(gomock.Any(), "refresh-1").Return(model.TokenGrant{}, core.ErrRefreshTokenRejected)

	res, err := p.scheduler.Tick(context.Background(), p.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fatal)
	assert.Equal(t, model.JobStatusError, p.jobs.Get("job-1").Status)
	_, err = p.creds.Get(context.Background(), "user-1")
	require.ErrorIs(t, err, data.ErrCredentialNotFound)

	p.clock.AddTime(2 * time.Hour)
	res, err = p.scheduler.Tick(context.Background(), p.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, res.Due)
}
