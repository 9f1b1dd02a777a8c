package errors

import (
	"errors"
	"fmt"
	"time"
)

// CredentialKind enumerates credential failures.
type CredentialKind string

const (
	// CredentialNotConnected means the user has no stored credential.
	CredentialNotConnected CredentialKind = "not_connected"
	// CredentialRefreshFailed means the platform rejected the refresh token; the credential was cleared.
	CredentialRefreshFailed CredentialKind = "refresh_failed"
)

// CredentialError is returned by the credential manager.
type CredentialError struct {
	Kind   CredentialKind
	UserID string
	Cause  error
}

func (e *CredentialError) Error() string {
	msg := fmt.Sprintf("credential %s for user %s", e.Kind, e.UserID)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CredentialError) Unwrap() error { return e.Cause }

// PlatformKind enumerates discussion platform failures.
type PlatformKind string

const (
	// PlatformRateLimited means the platform throttled the caller.
	PlatformRateLimited PlatformKind = "rate_limited"
	// PlatformAuthFailed means the bearer token was rejected.
	PlatformAuthFailed PlatformKind = "auth_failed"
	// PlatformForbidden means one resource, such as a private or banned community, refused
	// a valid token.
	PlatformForbidden PlatformKind = "forbidden"
	// PlatformTimeout means the request exceeded its deadline.
	PlatformTimeout PlatformKind = "timeout"
	// PlatformServerError covers 5xx and unexpected responses.
	PlatformServerError PlatformKind = "server_error"
)

// PlatformError is returned by the platform search client.
type PlatformError struct {
	Kind       PlatformKind
	StatusCode int
	RetryAfter time.Duration
	Cause      error
}

func (e *PlatformError) Error() string {
	msg := "platform " + string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *PlatformError) Unwrap() error { return e.Cause }

// ScoringKind enumerates relevance scoring failures.
type ScoringKind string

const (
	// ScoringUnavailable means the reasoning service could not be reached or errored.
	ScoringUnavailable ScoringKind = "unavailable"
	// ScoringInvalidResponse means the reasoning service answered with data that failed validation.
	ScoringInvalidResponse ScoringKind = "invalid_response"
)

// ScoringError is produced when the reasoning service cannot score a candidate.
// It always triggers the heuristic fallback.
type ScoringError struct {
	Kind  ScoringKind
	Cause error
}

func (e *ScoringError) Error() string {
	if e.Cause != nil {
		return "scoring " + string(e.Kind) + ": " + e.Cause.Error()
	}
	return "scoring " + string(e.Kind)
}

// Unwrap returns the underlying cause.
func (e *ScoringError) Unwrap() error { return e.Cause }

// IngestKind enumerates lead ingestion outcomes reported as errors by the store.
type IngestKind string

// IngestDuplicateKey means another writer stored the same (user, product, post) first.
const IngestDuplicateKey IngestKind = "duplicate_key"

// IngestError is raised by lead stores when a racing insert hits the unique key.
// Ingestion treats it as "already exists" and never surfaces it.
type IngestError struct {
	Kind   IngestKind
	PostID string
	Cause  error
}

func (e *IngestError) Error() string {
	msg := "ingest " + string(e.Kind) + " for post " + e.PostID
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *IngestError) Unwrap() error { return e.Cause }

// IsDuplicateLead reports whether err is an IngestError for a duplicate key.
func IsDuplicateLead(err error) bool {
	var ie *IngestError
	return errors.As(err, &ie) && ie.Kind == IngestDuplicateKey
}

// NewCredentialError builds a CredentialError.
func NewCredentialError(kind CredentialKind, userID string, cause error) *CredentialError {
	return &CredentialError{Kind: kind, UserID: userID, Cause: cause}
}

// NewPlatformError builds a PlatformError.
func NewPlatformError(kind PlatformKind, status int, cause error) *PlatformError {
	return &PlatformError{Kind: kind, StatusCode: status, Cause: cause}
}

// IsCredentialKind reports whether err carries a CredentialError of kind.
func IsCredentialKind(err error, kind CredentialKind) bool {
	var ce *CredentialError
	return errors.As(err, &ce) && ce.Kind == kind
}

// IsPlatformKind reports whether err carries a PlatformError of kind.
func IsPlatformKind(err error, kind PlatformKind) bool {
	var pe *PlatformError
	return errors.As(err, &pe) && pe.Kind == kind
}

// IsFatal reports whether err requires external intervention before the job can run again.
// Revoked credentials and platform auth failures are fatal. NotConnected is not: discovery
// falls back to the application credential.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return IsCredentialKind(err, CredentialRefreshFailed) || IsPlatformKind(err, PlatformAuthFailed)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	return err != nil && !IsFatal(err)
}

// Class returns a low-cardinality label for metrics and logs.
func Class(err error) string {
	var (
		ce *CredentialError
		pe *PlatformError
		se *ScoringError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &ce):
		return "credential_" + string(ce.Kind)
	case errors.As(err, &pe):
		return "platform_" + string(pe.Kind)
	case errors.As(err, &se):
		return "scoring_" + string(se.Kind)
	case IsTimeout(err):
		return "timeout"
	default:
		return "other"
	}
}
