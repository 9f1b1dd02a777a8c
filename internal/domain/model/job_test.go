//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType_Valid(t *testing.T) {
	assert.True(t, JobTypeLeadDiscovery.Valid())
	assert.False(t, JobType("unknown").Valid())
	assert.False(t, JobType("").Valid())
}

func TestJobType_UnmarshalText(t *testing.T) {
	var jt JobType
	require.NoError(t, jt.UnmarshalText([]byte("  Lead_Discovery ")))
	assert.Equal(t, JobTypeLeadDiscovery, jt)

	err := jt.UnmarshalText([]byte("browser"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JobType")
}

func TestJobStatus_Valid(t *testing.T) {
	for _, s := range []JobStatus{JobStatusActive, JobStatusPaused, JobStatusError} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, JobStatus("running").Valid())
}

func TestJob_IsDue(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		job  *Job
		want bool
	}{
		{name: "nil job", job: nil, want: false},
		{name: "active and past", job: &Job{Status: JobStatusActive, NextRun: now.Add(-time.Minute)}, want: true},
		{name: "active and exactly now", job: &Job{Status: JobStatusActive, NextRun: now}, want: true},
		{name: "active and future", job: &Job{Status: JobStatusActive, NextRun: now.Add(time.Second)}, want: false},
		{name: "paused and past", job: &Job{Status: JobStatusPaused, NextRun: now.Add(-time.Hour)}, want: false},
		{name: "error and past", job: &Job{Status: JobStatusError, NextRun: now.Add(-time.Hour)}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.job.IsDue(now))
		})
	}
}

func TestJob_Interval(t *testing.T) {
	j := &Job{IntervalMinutes: 90}
	assert.Equal(t, 90*time.Minute, j.Interval())
	var nilJob *Job
	assert.Zero(t, nilJob.Interval())
}

func TestCreateJobRequest_Validate(t *testing.T) {
	valid := func() CreateJobRequest {
		return CreateJobRequest{
			UserID:          "user-1",
			ProductID:       "product-1",
			Type:            JobTypeLeadDiscovery,
			IntervalMinutes: 60,
		}
	}

	tests := []struct {
		name     string
		mutate   func(r *CreateJobRequest)
		errorMsg string
	}{
		{name: "valid", mutate: func(*CreateJobRequest) {}},
		{name: "missing user", mutate: func(r *CreateJobRequest) { r.UserID = " " }, errorMsg: "user id is required"},
		{name: "missing product", mutate: func(r *CreateJobRequest) { r.ProductID = "" }, errorMsg: "product id is required"},
		{name: "bad type", mutate: func(r *CreateJobRequest) { r.Type = "rules" }, errorMsg: "invalid job type"},
		{name: "zero interval", mutate: func(r *CreateJobRequest) { r.IntervalMinutes = 0 }, errorMsg: "interval minutes"},
		{
			name:     "interval over a week",
			mutate:   func(r *CreateJobRequest) { r.IntervalMinutes = MaxIntervalMinutes + 1 },
			errorMsg: "interval minutes",
		},
		{name: "interval of one week", mutate: func(r *CreateJobRequest) { r.IntervalMinutes = MaxIntervalMinutes }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := req.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestCredential_ExpiresWithin(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := &Credential{ExpiresAt: now.Add(4 * time.Minute)}
	assert.True(t, c.ExpiresWithin(now, 5*time.Minute))
	assert.False(t, c.ExpiresWithin(now, 3*time.Minute))

	c.ExpiresAt = now.Add(5 * time.Minute)
	assert.True(t, c.ExpiresWithin(now, 5*time.Minute), "boundary counts as expiring")

	var nilCred *Credential
	assert.True(t, nilCred.ExpiresWithin(now, 0))
}

func TestSaveCredentialRequest_Validate(t *testing.T) {
	req := SaveCredentialRequest{
		UserID:       "u",
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresAt:    time.Now(),
	}
	require.NoError(t, req.Validate())

	req.RefreshToken = ""
	assert.EqualError(t, req.Validate(), "refresh token is required")

	req.RefreshToken = "r"
	req.ExpiresAt = time.Time{}
	assert.EqualError(t, req.Validate(), "expires at is required")
}

func TestNewLeadRequest_Validate(t *testing.T) {
	req := NewLeadRequest{
		UserID:    "u",
		ProductID: "p",
		Scored: ScoredCandidate{
			Candidate: Candidate{PostID: "t3_abc"},
			Relevance: Relevance{QualityScore: 7.5},
		},
	}
	require.NoError(t, req.Validate())

	req.Scored.Relevance.QualityScore = 10.5
	assert.EqualError(t, req.Validate(), "quality score must be between 0 and 10")

	req.Scored.Relevance.QualityScore = 3
	req.Scored.Candidate.PostID = ""
	assert.EqualError(t, req.Validate(), "platform post id is required")
}

func TestProduct_IsActive(t *testing.T) {
	assert.True(t, (&Product{Status: ProductStatusActive}).IsActive())
	assert.False(t, (&Product{Status: ProductStatusInactive}).IsActive())
	var p *Product
	assert.False(t, p.IsActive())
}

func TestJob_Leased(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	lease := now.Add(time.Minute)
	j := &Job{LeasedUntil: &lease}
	assert.True(t, j.Leased(now))
	assert.False(t, j.Leased(lease), "a lease lapses at its deadline")
	assert.False(t, (&Job{}).Leased(now))
}
