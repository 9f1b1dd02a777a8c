package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/leadwatch/leadwatch/internal/data/cryptoutil"
	"github.com/leadwatch/leadwatch/internal/data/pgxutil"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
)

// CredentialRepo stores platform OAuth credentials with both tokens encrypted at rest.
type CredentialRepo struct {
	DB           *sql.DB
	Enc          cryptoutil.Encryptor
	timeProvider TimeProvider
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(db *sql.DB, enc cryptoutil.Encryptor) *CredentialRepo {
	return &CredentialRepo{DB: db, Enc: enc, timeProvider: &RealTimeProvider{}}
}

const credentialColumns = `user_id, access_token, refresh_token, expires_at, scope, created_at, updated_at`

// tokenBinding ties a sealed token to its owner and column.
func tokenBinding(userID, column string) string {
	return userID + "/" + column
}

// decrypt opens both tokens. The sealed refresh token carries a fresh nonce per write, so it
// doubles as the credential's revision.
func (r *CredentialRepo) decrypt(c *model.Credential) error {
	c.Revision = c.RefreshToken
	access, err := r.Enc.Open(c.AccessToken, tokenBinding(c.UserID, "access_token"))
	if err != nil {
		return fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := r.Enc.Open(c.RefreshToken, tokenBinding(c.UserID, "refresh_token"))
	if err != nil {
		return fmt.Errorf("decrypt refresh token: %w", err)
	}
	c.AccessToken = string(access)
	c.RefreshToken = string(refresh)
	c.ExpiresAt = c.ExpiresAt.UTC()
	return nil
}

func (r *CredentialRepo) queryOne(ctx context.Context, query string, args ...any) (*model.Credential, error) {
	c, err := pgxutil.QueryOne(ctx, r.DB, pgx.RowToStructByName[model.Credential], query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.decrypt(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Get returns the decrypted credential for userID or ErrCredentialNotFound.
func (r *CredentialRepo) Get(ctx context.Context, userID string) (*model.Credential, error) {
	c, err := r.queryOne(ctx, `SELECT `+credentialColumns+` FROM platform_credentials WHERE user_id = $1`, userID)
	if err != nil && !errors.Is(err, ErrCredentialNotFound) {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return c, err
}

// Upsert stores the credential, replacing any previous tokens for the user. With IfRevision
// set only that exact credential is replaced, otherwise ErrCredentialChanged is returned.
func (r *CredentialRepo) Upsert(ctx context.Context, req model.SaveCredentialRequest) (*model.Credential, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	access, err := r.Enc.Seal([]byte(req.AccessToken), tokenBinding(req.UserID, "access_token"))
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := r.Enc.Seal([]byte(req.RefreshToken), tokenBinding(req.UserID, "refresh_token"))
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}
	now := r.timeProvider.Now().UTC()

	if req.IfRevision != "" {
		c, err := r.queryOne(ctx, `
			UPDATE platform_credentials
			SET access_token = $2, refresh_token = $3, expires_at = $4, scope = $5, updated_at = $6
			WHERE user_id = $1 AND refresh_token = $7
			RETURNING `+credentialColumns,
			req.UserID, access, refresh, req.ExpiresAt.UTC(), req.Scope, now, req.IfRevision)
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, ErrCredentialChanged
		}
		if err != nil {
			return nil, fmt.Errorf("replace credential: %w", apperrors.MapDBError(err))
		}
		return c, nil
	}

	c, err := r.queryOne(ctx, `
		INSERT INTO platform_credentials (user_id, access_token, refresh_token, expires_at, scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at,
		    scope = EXCLUDED.scope,
		    updated_at = EXCLUDED.updated_at
		RETURNING `+credentialColumns,
		req.UserID, access, refresh, req.ExpiresAt.UTC(), req.Scope, now)
	if err != nil {
		return nil, fmt.Errorf("upsert credential: %w", apperrors.MapDBError(err))
	}
	return c, nil
}

// Delete removes the user's credential. Returns true if a row was deleted.
func (r *CredentialRepo) Delete(ctx context.Context, userID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM platform_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteRevision removes the user's credential only while its revision is unchanged.
func (r *CredentialRepo) DeleteRevision(ctx context.Context, userID, revision string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM platform_credentials WHERE user_id = $1 AND refresh_token = $2`, userID, revision)
	if err != nil {
		return false, fmt.Errorf("delete credential revision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return n > 0, nil
}

// ListExpiring returns user ids whose access tokens expire at or before the cutoff, soonest first.
func (r *CredentialRepo) ListExpiring(ctx context.Context, before time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	ids, err := pgxutil.Query(ctx, r.DB, pgx.RowTo[string], `
		SELECT user_id FROM platform_credentials
		WHERE expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2`, before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list expiring credentials: %w", err)
	}
	return ids, nil
}
