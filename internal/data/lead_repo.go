package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/leadwatch/leadwatch/internal/data/pgxutil"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
)

// LeadRepo persists leads. The (user_id, product_id, platform_post_id) key is the only dedup authority.
type LeadRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewLeadRepo creates a new LeadRepo.
func NewLeadRepo(db *sql.DB) *LeadRepo {
	return &LeadRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// ExistingPostIDs returns the subset of postIDs that already have a lead for the pair.
func (r *LeadRepo) ExistingPostIDs(
	ctx context.Context,
	userID, productID string,
	postIDs []string,
) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	ids, err := pgxutil.Query(ctx, r.DB, pgx.RowTo[string], `
		SELECT platform_post_id FROM leads
		WHERE user_id = $1 AND product_id = $2 AND platform_post_id = ANY($3)`,
		userID, productID, postIDs)
	if err != nil {
		return nil, fmt.Errorf("query existing leads: %w", err)
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// InsertIfAbsent inserts a lead with status new. (false, nil) means ON CONFLICT found the key;
// a unique violation raised by any other path is reported as an IngestError duplicate.
func (r *LeadRepo) InsertIfAbsent(ctx context.Context, req model.NewLeadRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, apperrors.Validation(err.Error())
	}
	c := req.Scored.Candidate
	rel := req.Scored.Relevance
	var postedAt any
	if !c.PostedAt.IsZero() {
		postedAt = c.PostedAt.UTC()
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO leads (
			user_id, product_id, platform_post_id, community, title, content, author, url,
			score, num_comments, relevance_score, confidence, reasoning, suggested_reply,
			score_method, status, posted_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT ON CONSTRAINT leads_post_key DO NOTHING`,
		req.UserID, req.ProductID, c.PostID, c.Community, c.Title, c.Content, c.Author, c.URL,
		c.Score, c.NumComments, rel.QualityScore, rel.Confidence, rel.Reasoning, rel.SuggestedReply,
		string(rel.Method), string(model.LeadStatusNew), postedAt, r.timeProvider.Now().UTC())
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsConflict(mapped) {
			return false, &apperrors.IngestError{Kind: apperrors.IngestDuplicateKey, PostID: c.PostID, Cause: mapped}
		}
		return false, fmt.Errorf("insert lead: %w", mapped)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert lead rows affected: %w", err)
	}
	return n == 1, nil
}

// CountByProduct returns the number of leads stored for the pair.
func (r *LeadRepo) CountByProduct(ctx context.Context, userID, productID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE user_id = $1 AND product_id = $2`, userID, productID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}

// ListByProduct returns the most recent leads for the pair.
func (r *LeadRepo) ListByProduct(ctx context.Context, userID, productID string, limit int) ([]*model.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	leads, err := pgxutil.Query(ctx, r.DB, pgx.RowToAddrOfStructByName[model.Lead], `
		SELECT id::text AS id, user_id, product_id, platform_post_id, community, title, content, author, url,
		       score, num_comments, relevance_score, confidence, reasoning, suggested_reply,
		       score_method, status, posted_at, created_at
		FROM leads
		WHERE user_id = $1 AND product_id = $2
		ORDER BY created_at DESC
		LIMIT $3`, userID, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}
