package data

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/leadwatch/leadwatch/internal/domain/model"
	"github.com/leadwatch/leadwatch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leadReq(postID string) model.NewLeadRequest {
	return model.NewLeadRequest{
		UserID:    "u1",
		ProductID: "p1",
		Scored: model.ScoredCandidate{
			Candidate: model.Candidate{PostID: postID, Community: "startups", Title: "Need a CRM"},
			Relevance: model.Relevance{QualityScore: 6, Confidence: 0.5, Reasoning: "fit", Method: model.ScoreMethodHeuristic},
		},
	}
}

func TestLeadRepo_InsertIfAbsent_Idempotent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewLeadRepo(db)
		ctx := context.Background()

		inserted, err := repo.InsertIfAbsent(ctx, leadReq("t3_a"))
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = repo.InsertIfAbsent(ctx, leadReq("t3_a"))
		require.NoError(t, err)
		assert.False(t, inserted)

		n, err := repo.CountByProduct(ctx, "u1", "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		leads, err := repo.ListByProduct(ctx, "u1", "p1", 10)
		require.NoError(t, err)
		require.Len(t, leads, 1)
		assert.Equal(t, model.LeadStatusNew, leads[0].Status)
		assert.Equal(t, model.ScoreMethodHeuristic, leads[0].ScoreMethod)
	})
}

func TestLeadRepo_ConcurrentIngestOneRowPerPost(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewLeadRepo(db)
		ctx := context.Background()

		var wg sync.WaitGroup
		for w := range 4 {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := range 5 {
					_, err := repo.InsertIfAbsent(ctx, leadReq(fmt.Sprintf("t3_%d", i+w)))
					assert.NoError(t, err)
				}
			}(w)
		}
		wg.Wait()

		n, err := repo.CountByProduct(ctx, "u1", "p1")
		require.NoError(t, err)
		assert.Equal(t, 8, n)
	})
}

func TestLeadRepo_ExistingPostIDs(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewLeadRepo(db)
		ctx := context.Background()

		_, err := repo.InsertIfAbsent(ctx, leadReq("t3_a"))
		require.NoError(t, err)

		known, err := repo.ExistingPostIDs(ctx, "u1", "p1", []string{"t3_a", "t3_b"})
		require.NoError(t, err)
		assert.Equal(t, map[string]struct{}{"t3_a": {}}, known)

		known, err = repo.ExistingPostIDs(ctx, "u1", "p1", nil)
		require.NoError(t, err)
		assert.Empty(t, known)
	})
}

func TestLeadRepo_RejectsInvalid(t *testing.T) {
	repo := NewLeadRepo(nil)
	req := leadReq("t3_a")
	req.Scored.Relevance.QualityScore = 11
	_, err := repo.InsertIfAbsent(context.Background(), req)
	require.Error(t, err)
}

func TestProductRepo_GetByID_ListActive(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewProductRepo(db)
		ctx := context.Background()

		id := testutil.InsertProduct(t, db, testutil.ProductFixture{
			UserID: "u1", Name: "LeadPilot", SearchTargets: []string{"startups"}, Keywords: []string{"crm"},
		})
		testutil.InsertProduct(t, db, testutil.ProductFixture{UserID: "u1", Name: "Old", Inactive: true})

		p, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "LeadPilot", p.Name)
		assert.Equal(t, []string{"startups"}, p.SearchTargets)
		assert.True(t, p.IsActive())

		active, err := repo.ListActiveByUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, id, active[0].ID)

		_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, ErrProductNotFound)
	})
}
