// Package model defines the core data types shared by the leadwatch scheduler and discovery pipeline.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType represents the monitoring type bound to a (user, product) pair.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	// JobTypeLeadDiscovery searches the discussion platform for posts relevant to a product.
	JobTypeLeadDiscovery JobType = "lead_discovery"

	// JobStatusActive jobs are eligible for execution once due.
	JobStatusActive JobStatus = "active"
	// JobStatusPaused jobs keep their history but are never executed.
	JobStatusPaused JobStatus = "paused"
	// JobStatusError jobs hit a fatal failure and wait for external reactivation.
	JobStatusError JobStatus = "error"
)

// MaxIntervalMinutes bounds the recurrence interval to one week.
const MaxIntervalMinutes = 7 * 24 * 60

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeLeadDiscovery
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusActive || s == JobStatusPaused || s == JobStatusError
}

// Job is a persisted recurring task binding a user, a product and a monitoring type.
// NextRun and LastRun are always stored in UTC.
type Job struct {
	ID                  string     `json:"id"                      db:"id"`
	UserID              string     `json:"user_id"                 db:"user_id"`
	ProductID           string     `json:"product_id"              db:"product_id"`
	Type                JobType    `json:"job_type"                db:"job_type"`
	Status              JobStatus  `json:"status"                  db:"status"`
	IntervalMinutes     int        `json:"interval_minutes"        db:"interval_minutes"`
	NextRun             time.Time  `json:"next_run"                db:"next_run"`
	LeasedUntil         *time.Time `json:"leased_until,omitempty"  db:"leased_until"`
	LastRun             *time.Time `json:"last_run,omitempty"      db:"last_run"`
	RunCount            int64      `json:"run_count"               db:"run_count"`
	ConsecutiveFailures int        `json:"consecutive_failures"    db:"consecutive_failures"`
	ErrorMessage        *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt           time.Time  `json:"created_at"              db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"              db:"updated_at"`
}

// Interval returns the recurrence interval as a duration.
func (j *Job) Interval() time.Duration {
	if j == nil {
		return 0
	}
	return time.Duration(j.IntervalMinutes) * time.Minute
}

// IsDue reports whether an active job should run at now.
func (j *Job) IsDue(now time.Time) bool {
	if j == nil || j.Status != JobStatusActive {
		return false
	}
	return !j.NextRun.After(now)
}

// CreateJobRequest represents a request to create (or return) the job for a (user, product, type) triple.
type CreateJobRequest struct {
	UserID          string    `json:"user_id"`
	ProductID       string    `json:"product_id"`
	Type            JobType   `json:"job_type"`
	IntervalMinutes int       `json:"interval_minutes"`
	NextRun         time.Time `json:"next_run"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(r.ProductID) == "" {
		return errors.New("product id is required")
	}
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if r.IntervalMinutes < 1 || r.IntervalMinutes > MaxIntervalMinutes {
		return fmt.Errorf("interval minutes must be between 1 and %d", MaxIntervalMinutes)
	}
	return nil
}

// ClaimParams describes an atomic claim of a job.
// The claim only succeeds when the stored next_run still equals ExpectedNextRun and no
// lease taken by another trigger is still live at Now.
type ClaimParams struct {
	ID              string
	ExpectedNextRun time.Time
	LeaseUntil      time.Time
	Now             time.Time
}

// Leased reports whether an execution holds the job at now.
func (j *Job) Leased(now time.Time) bool {
	return j != nil && j.LeasedUntil != nil && j.LeasedUntil.After(now)
}

// JobOutcomeUpdate is the state change committed after an execution finishes.
// A nil NextRun leaves the stored value untouched.
type JobOutcomeUpdate struct {
	ID                  string
	Status              JobStatus
	NextRun             *time.Time
	LastRun             time.Time
	ErrorMessage        *string
	ConsecutiveFailures int
	// LeaseUntil is the lease written by the claim that ran the job. The update only
	// applies while the row still carries it.
	LeaseUntil time.Time
}
