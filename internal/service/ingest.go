package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
)

// IngestServiceOptions groups dependencies for IngestService.
type IngestServiceOptions struct {
	Leads  core.LeadRepository
	Logger *slog.Logger
}

// IngestService stores scored candidates. The lead table's unique key is the only
// dedup authority; duplicates are an expected outcome, never an error.
type IngestService struct {
	leads  core.LeadRepository
	logger *slog.Logger
}

var _ core.LeadIngestor = (*IngestService)(nil)

// NewIngestService constructs an IngestService.
func NewIngestService(opts IngestServiceOptions) *IngestService {
	if opts.Leads == nil {
		panic("lead repository is required") //nolint:forbidigo // constructor fails fast on missing dependency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{leads: opts.Leads, logger: logger.With("component", "lead_ingestor")}
}

// Known returns the post ids the job's (user, product) pair already has leads for.
func (s *IngestService) Known(ctx context.Context, job *model.Job, postIDs []string) (map[string]struct{}, error) {
	known, err := s.leads.ExistingPostIDs(ctx, job.UserID, job.ProductID, postIDs)
	if err != nil {
		return nil, fmt.Errorf("lookup existing leads: %w", err)
	}
	return known, nil
}

// Ingest stores the candidate as a new lead. It reports false when the lead already existed,
// including when a concurrent execution inserted it first.
func (s *IngestService) Ingest(ctx context.Context, job *model.Job, scored model.ScoredCandidate) (bool, error) {
	inserted, err := s.leads.InsertIfAbsent(ctx, model.NewLeadRequest{
		UserID:    job.UserID,
		ProductID: job.ProductID,
		Scored:    scored,
	})
	switch {
	case apperrors.IsDuplicateLead(err):
		s.logger.DebugContext(ctx, "lead inserted concurrently", "job_id", job.ID, "post_id", scored.Candidate.PostID)
		return false, nil
	case err != nil && apperrors.IsConflict(err):
		return false, nil
	case err != nil && apperrors.IsValidation(err):
		// A malformed candidate is dropped; it must not fail the whole execution.
		s.logger.WarnContext(ctx, "dropping invalid lead", "job_id", job.ID, "post_id", scored.Candidate.PostID, "error", err)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("insert lead %s: %w", scored.Candidate.PostID, err)
	}
	return inserted, nil
}
