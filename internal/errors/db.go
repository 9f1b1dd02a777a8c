package errors

import (
	"context"
	"errors"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyColumns extracts the key columns from "Key (a, b)=(x, y) already exists.".
var reKeyColumns = regexp.MustCompile(`Key \(([^)]+)\)=`)

// constraintMessages describes the leadwatch schema's named constraints.
var constraintMessages = map[string]struct {
	field   string
	message string
}{
	"discovery_jobs_triple_key":             {"product_id", "a discovery job already exists for this user and product"},
	"leads_post_key":                        {"platform_post_id", "lead already stored for this post"},
	"platform_credentials_pkey":             {"user_id", "credential already stored for this user"},
	"discovery_jobs_interval_minutes_check": {"interval_minutes", "interval must be between 1 and 10080 minutes"},
	"discovery_jobs_status_check":           {"status", "unknown job status"},
	"discovery_jobs_job_type_check":         {"job_type", "unknown job type"},
	"leads_relevance_score_check":           {"relevance_score", "relevance score must be between 0 and 10"},
	"leads_score_method_check":              {"score_method", "unknown score method"},
	"products_status_check":                 {"status", "unknown product status"},
}

// MapDBError converts driver errors into AppErrors: no rows become NotFound, unique
// violations Conflict, check and not-null violations Validation, and context expiry
// Timeout or Canceled. Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "database statement timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "database statement canceled")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "row not found")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return constraintError(pgErr, ErrCodeConflict, "value already exists")
	case pgerrcode.CheckViolation:
		return constraintError(pgErr, ErrCodeValidation, "value violates a check constraint")
	case pgerrcode.NotNullViolation:
		return &AppError{Code: ErrCodeValidation, Message: pgErr.ColumnName + " is required", Field: pgErr.ColumnName, Cause: pgErr}
	case pgerrcode.ForeignKeyViolation:
		return constraintError(pgErr, ErrCodeValidation, "referenced row does not exist")
	default:
		return Wrap(pgErr, ErrCodeInternal, "database error")
	}
}

func constraintError(pgErr *pgconn.PgError, code ErrorCode, fallback string) *AppError {
	appErr := &AppError{Code: code, Message: fallback, Field: pgErr.ColumnName, Cause: pgErr}
	if known, ok := constraintMessages[pgErr.ConstraintName]; ok {
		appErr.Message = known.message
		appErr.Field = known.field
		return appErr
	}
	if appErr.Field == "" {
		if m := reKeyColumns.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			appErr.Field = m[1]
		}
	}
	return appErr
}
