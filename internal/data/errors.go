package data

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Shared sentinel errors for data-layer repositories.
var (
	ErrJobNotFound        = errors.New("discovery job not found")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrProductNotFound    = errors.New("product not found")
	// ErrCredentialChanged means a conditional write found a different credential revision.
	ErrCredentialChanged = errors.New("credential changed concurrently")
)

// isMalformedID reports whether Postgres rejected a key because it is not a UUID.
// Such a key cannot match any row.
func isMalformedID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}
