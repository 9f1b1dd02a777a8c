// Package fakes provides in-memory implementations of the core repositories with the same
// atomicity guarantees as the Postgres ones, for concurrency tests without a database.
package fakes

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/data"
	"github.com/leadwatch/leadwatch/internal/domain/model"
)

// JobStore is an in-memory core.JobRepository. Claim is a real compare-and-swap.
type JobStore struct {
	mu     sync.Mutex
	jobs   map[string]*model.Job
	claims int
}

// NewJobStore returns an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*model.Job)}
}

var _ core.JobRepository = (*JobStore)(nil)

func clone(j *model.Job) *model.Job {
	c := *j
	if j.LastRun != nil {
		lr := *j.LastRun
		c.LastRun = &lr
	}
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		c.ErrorMessage = &msg
	}
	if j.LeasedUntil != nil {
		lu := *j.LeasedUntil
		c.LeasedUntil = &lu
	}
	return &c
}

// Put stores a copy of job as-is.
func (s *JobStore) Put(job *model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = clone(job)
}

// Get returns a copy of the stored job, or nil.
func (s *JobStore) Get(id string) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return clone(j)
	}
	return nil
}

// SuccessfulClaims returns how many Claim calls succeeded.
func (s *JobStore) SuccessfulClaims() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims
}

func (s *JobStore) findTriple(key core.JobKey) *model.Job {
	for _, j := range s.jobs {
		if j.UserID == key.UserID && j.ProductID == key.ProductID && j.Type == key.Type {
			return j
		}
	}
	return nil
}

func (s *JobStore) Create(_ context.Context, req model.CreateJobRequest) (*model.Job, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.findTriple(core.JobKey{UserID: req.UserID, ProductID: req.ProductID, Type: req.Type}); existing != nil {
		return clone(existing), false, nil
	}
	now := time.Now().UTC()
	next := req.NextRun
	if next.IsZero() {
		next = now
	}
	j := &model.Job{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		ProductID:       req.ProductID,
		Type:            req.Type,
		Status:          model.JobStatusActive,
		IntervalMinutes: req.IntervalMinutes,
		NextRun:         next.UTC(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.jobs[j.ID] = j
	return clone(j), true, nil
}

func (s *JobStore) GetByID(_ context.Context, id string) (*model.Job, error) {
	if j := s.Get(id); j != nil {
		return j, nil
	}
	return nil, data.ErrJobNotFound
}

func (s *JobStore) GetByTriple(_ context.Context, key core.JobKey) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j := s.findTriple(key); j != nil {
		return clone(j), nil
	}
	return nil, data.ErrJobNotFound
}

func (s *JobStore) ListByUser(_ context.Context, userID string) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Job
	for _, j := range s.jobs {
		if j.UserID == userID {
			out = append(out, clone(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *JobStore) FindDue(_ context.Context, now time.Time, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Job
	for _, j := range s.jobs {
		if j.IsDue(now) {
			out = append(out, clone(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].NextRun.Before(out[b].NextRun) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *JobStore) Claim(_ context.Context, p model.ClaimParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[p.ID]
	if !ok || j.Status != model.JobStatusActive || !j.NextRun.Equal(p.ExpectedNextRun) || j.Leased(p.Now) {
		return false, nil
	}
	lease := p.LeaseUntil.UTC()
	j.NextRun = lease
	j.LeasedUntil = &lease
	s.claims++
	return true, nil
}

func (s *JobStore) RecordOutcome(_ context.Context, u model.JobOutcomeUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[u.ID]
	if !ok || j.Status != model.JobStatusActive || j.LeasedUntil == nil || !j.LeasedUntil.Equal(u.LeaseUntil) {
		return false, nil
	}
	j.Status = u.Status
	if u.NextRun != nil {
		j.NextRun = u.NextRun.UTC()
	}
	j.LeasedUntil = nil
	lr := u.LastRun.UTC()
	j.LastRun = &lr
	j.RunCount++
	j.ErrorMessage = u.ErrorMessage
	j.ConsecutiveFailures = u.ConsecutiveFailures
	return true, nil
}

func (s *JobStore) Pause(_ context.Context, userID, productID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.UserID == userID && j.ProductID == productID && j.Status != model.JobStatusPaused {
			j.Status = model.JobStatusPaused
			n++
		}
	}
	return n, nil
}

func (s *JobStore) Reactivate(_ context.Context, p core.ReactivateParams) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[p.ID]
	if !ok {
		return nil, data.ErrJobNotFound
	}
	j.Status = model.JobStatusActive
	j.NextRun = p.NextRun.UTC()
	if p.IntervalMinutes != nil {
		j.IntervalMinutes = *p.IntervalMinutes
	}
	j.ErrorMessage = nil
	j.ConsecutiveFailures = 0
	return clone(j), nil
}

func (s *JobStore) ReactivateErroredForUser(_ context.Context, userID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.UserID == userID && j.Status == model.JobStatusError {
			j.Status = model.JobStatusActive
			j.NextRun = now.UTC()
			j.ErrorMessage = nil
			j.ConsecutiveFailures = 0
			n++
		}
	}
	return n, nil
}
