package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/leadwatch/leadwatch/internal/domain/model"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
	"github.com/leadwatch/leadwatch/internal/testutil"
	"github.com/leadwatch/leadwatch/internal/testutil/fakes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(postID string, score float64) model.ScoredCandidate {
	return model.ScoredCandidate{
		Candidate: model.Candidate{PostID: postID, Title: "title " + postID},
		Relevance: model.Relevance{QualityScore: score, Method: model.ScoreMethodHeuristic},
	}
}

func TestIngestService_IngestIsIdempotent(t *testing.T) {
	leads := fakes.NewLeadStore()
	svc := NewIngestService(IngestServiceOptions{Leads: leads, Logger: discardLogger()})
	job := testutil.NewJob("job-1", "u1", "p1", testNow)
	ctx := context.Background()

	inserted, err := svc.Ingest(ctx, job, scored("t3_a", 5))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = svc.Ingest(ctx, job, scored("t3_a", 9))
	require.NoError(t, err)
	assert.False(t, inserted)

	other := testutil.NewJob("job-2", "u1", "p2", testNow)
	inserted, err = svc.Ingest(ctx, other, scored("t3_a", 5))
	require.NoError(t, err)
	assert.True(t, inserted, "same post for a different product is a separate lead")

	n, err := leads.CountByProduct(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngestService_ConcurrentIngestOfSamePost(t *testing.T) {
	leads := fakes.NewLeadStore()
	svc := NewIngestService(IngestServiceOptions{Leads: leads, Logger: discardLogger()})
	job := testutil.NewJob("job-1", "u1", "p1", testNow)

	results := make([]bool, 10)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Ingest(context.Background(), job, scored("t3_race", 4))
			assert.NoError(t, err)
			results[i] = ok
		}()
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, leads.All(), 1)
}

func TestIngestService_Known(t *testing.T) {
	leads := fakes.NewLeadStore()
	svc := NewIngestService(IngestServiceOptions{Leads: leads, Logger: discardLogger()})
	job := testutil.NewJob("job-1", "u1", "p1", testNow)
	ctx := context.Background()
	_, err := svc.Ingest(ctx, job, scored("t3_a", 1))
	require.NoError(t, err)

	known, err := svc.Known(ctx, job, []string{"t3_a", "t3_b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"t3_a": {}}, known)
}

// scriptedLeads returns a fixed error from InsertIfAbsent.
type scriptedLeads struct {
	*fakes.LeadStore
	err error
}

func (s scriptedLeads) InsertIfAbsent(context.Context, model.NewLeadRequest) (bool, error) {
	return false, s.err
}

func TestIngestService_ErrorMapping(t *testing.T) {
	job := testutil.NewJob("job-1", "u1", "p1", testNow)
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "racing duplicate", err: &apperrors.IngestError{Kind: apperrors.IngestDuplicateKey, PostID: "t3_a"}},
		{name: "conflict", err: apperrors.Conflict("lead already exists")},
		{name: "invalid lead dropped", err: apperrors.Validation("quality score must be between 0 and 10")},
		{name: "database down", err: errors.New("connection refused"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewIngestService(IngestServiceOptions{
				Leads:  scriptedLeads{LeadStore: fakes.NewLeadStore(), err: tt.err},
				Logger: discardLogger(),
			})
			inserted, err := svc.Ingest(context.Background(), job, scored("t3_a", 1))
			assert.False(t, inserted)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "insert lead t3_a")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewIngestService_PanicsWithoutRepository(t *testing.T) {
	assert.Panics(t, func() { NewIngestService(IngestServiceOptions{}) })
}
