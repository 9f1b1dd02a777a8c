package scheduler

import (
	"testing"
	"time"

	"github.com/leadwatch/leadwatch/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPolicy(t *testing.T) *OutcomePolicy {
	t.Helper()
	p, err := NewOutcomePolicy(OutcomePolicyOptions{BackoffBase: time.Minute, BackoffMax: time.Hour})
	require.NoError(t, err)
	return p
}

func TestNewOutcomePolicy_Invalid(t *testing.T) {
	_, err := NewOutcomePolicy(OutcomePolicyOptions{BackoffBase: 0, BackoffMax: time.Hour})
	require.ErrorIs(t, err, ErrInvalidBackoff)

	_, err = NewOutcomePolicy(OutcomePolicyOptions{BackoffBase: time.Hour, BackoffMax: time.Minute})
	require.ErrorIs(t, err, ErrInvalidBackoff)
}

func TestApply_Success(t *testing.T) {
	p := newPolicy(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	job := &model.Job{ID: "j1", IntervalMinutes: 60, ConsecutiveFailures: 3, NextRun: now.Add(-time.Minute)}

	u := p.Apply(job, Outcome{Kind: OutcomeSuccess}, now)

	assert.Equal(t, "j1", u.ID)
	assert.Equal(t, model.JobStatusActive, u.Status)
	require.NotNil(t, u.NextRun)
	assert.Equal(t, u.LastRun.Add(60*time.Minute), *u.NextRun)
	assert.Nil(t, u.ErrorMessage)
	assert.Zero(t, u.ConsecutiveFailures)
}

func TestApply_TransientBackoffGrowsAndCaps(t *testing.T) {
	p := newPolicy(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	job := &model.Job{ID: "j1", IntervalMinutes: 10}

	wantDelays := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute, 8 * time.Minute, 10 * time.Minute, 10 * time.Minute}
	for i, want := range wantDelays {
		u := p.Apply(job, Outcome{Kind: OutcomeTransient, Message: "rate limited"}, now)
		require.NotNil(t, u.NextRun)
		assert.Equal(t, now.Add(want), *u.NextRun, "attempt %d", i+1)
		assert.Equal(t, model.JobStatusActive, u.Status)
		require.NotNil(t, u.ErrorMessage)
		assert.Equal(t, "rate limited", *u.ErrorMessage)
		assert.Equal(t, i+1, u.ConsecutiveFailures)
		job.ConsecutiveFailures = u.ConsecutiveFailures
	}
}

func TestApply_TransientRespectsBackoffMax(t *testing.T) {
	p, err := NewOutcomePolicy(OutcomePolicyOptions{BackoffBase: time.Minute, BackoffMax: 5 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, p.Backoff(10, 24*time.Hour))
	assert.Equal(t, time.Minute, p.Backoff(0, 24*time.Hour))
	assert.Equal(t, 2*time.Minute, p.Backoff(2, 24*time.Hour))
}

func TestApply_Fatal(t *testing.T) {
	p := newPolicy(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-5 * time.Minute)
	job := &model.Job{ID: "j1", IntervalMinutes: 60, NextRun: stale}

	u := p.Apply(job, Outcome{Kind: OutcomeFatal, Message: "credential revoked"}, now)

	assert.Equal(t, model.JobStatusError, u.Status)
	require.NotNil(t, u.NextRun)
	assert.Equal(t, stale, *u.NextRun)
	require.NotNil(t, u.ErrorMessage)
	assert.Equal(t, "credential revoked", *u.ErrorMessage)
}

func TestApply_ErrorMessageTruncatedAndDefaulted(t *testing.T) {
	p := newPolicy(t)
	now := time.Now()
	job := &model.Job{ID: "j1", IntervalMinutes: 60}

	long := make([]byte, maxErrorMessageLen*2)
	for i := range long {
		long[i] = 'x'
	}
	u := p.Apply(job, Outcome{Kind: OutcomeTransient, Message: string(long)}, now)
	assert.Len(t, *u.ErrorMessage, maxErrorMessageLen)

	u = p.Apply(job, Outcome{Kind: OutcomeFatal}, now)
	assert.Equal(t, "fatal failure", *u.ErrorMessage)

	u = p.Apply(job, Outcome{Kind: "weird"}, now)
	assert.Equal(t, model.JobStatusActive, u.Status)
	assert.Equal(t, 1, u.ConsecutiveFailures)
}
