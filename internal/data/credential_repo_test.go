package data

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/leadwatch/leadwatch/internal/data/cryptoutil"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	"github.com/leadwatch/leadwatch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCredentialRepo(t *testing.T, db *sql.DB) *CredentialRepo {
	enc, err := cryptoutil.NewAESGCMEncryptor(cryptoutil.DeriveKey("leadwatch-test-key"))
	require.NoError(t, err)
	return NewCredentialRepo(db, enc)
}

func TestCredentialRepo_Upsert_Get_EncryptedAtRest(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestCredentialRepo(t, db)
		ctx := context.Background()
		exp := testutil.TestTime().Add(time.Hour)

		saved, err := repo.Upsert(ctx, model.SaveCredentialRequest{
			UserID: "u1", AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresAt: exp,
		})
		require.NoError(t, err)
		assert.Equal(t, "access-1", saved.AccessToken)
		assert.Equal(t, exp, saved.ExpiresAt)

		var storedAccess, storedRefresh string
		require.NoError(t, db.QueryRow(
			`SELECT access_token, refresh_token FROM platform_credentials WHERE user_id = $1`, "u1",
		).Scan(&storedAccess, &storedRefresh))
		assert.True(t, strings.HasPrefix(storedAccess, "lw1:"))
		assert.NotContains(t, storedRefresh, "refresh-1")

		_, err = repo.Upsert(ctx, model.SaveCredentialRequest{
			UserID: "u1", AccessToken: "access-2", RefreshToken: "refresh-2", ExpiresAt: exp.Add(time.Hour),
		})
		require.NoError(t, err)

		got, err := repo.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "access-2", got.AccessToken)
		assert.Equal(t, "refresh-2", got.RefreshToken)
	})
}

func TestCredentialRepo_Delete_And_NotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestCredentialRepo(t, db)
		ctx := context.Background()

		_, err := repo.Get(ctx, "nobody")
		require.ErrorIs(t, err, ErrCredentialNotFound)

		_, err = repo.Upsert(ctx, model.SaveCredentialRequest{
			UserID: "u1", AccessToken: "a", RefreshToken: "r", ExpiresAt: testutil.TestTime(),
		})
		require.NoError(t, err)

		deleted, err := repo.Delete(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestCredentialRepo_ConditionalWritesRequireRevision(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestCredentialRepo(t, db)
		ctx := context.Background()
		exp := testutil.TestTime().Add(time.Hour)

		first, err := repo.Upsert(ctx, model.SaveCredentialRequest{
			UserID: "u1", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: exp,
		})
		require.NoError(t, err)
		require.NotEmpty(t, first.Revision)

		second, err := repo.Upsert(ctx, model.SaveCredentialRequest{
			UserID: "u1", AccessToken: "a2", RefreshToken: "r2", ExpiresAt: exp,
		})
		require.NoError(t, err)
		assert.NotEqual(t, first.Revision, second.Revision)

		_, err = repo.Upsert(ctx, model.SaveCredentialRequest{
			UserID: "u1", AccessToken: "a3", RefreshToken: "r1", ExpiresAt: exp, IfRevision: first.Revision,
		})
		require.ErrorIs(t, err, ErrCredentialChanged)

		deleted, err := repo.DeleteRevision(ctx, "u1", first.Revision)
		require.NoError(t, err)
		assert.False(t, deleted)

		got, err := repo.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "a2", got.AccessToken)
		assert.Equal(t, second.Revision, got.Revision)

		third, err := repo.Upsert(ctx, model.SaveCredentialRequest{
			UserID: "u1", AccessToken: "a3", RefreshToken: "r2", ExpiresAt: exp, IfRevision: got.Revision,
		})
		require.NoError(t, err)
		assert.Equal(t, "a3", third.AccessToken)

		deleted, err = repo.DeleteRevision(ctx, "u1", third.Revision)
		require.NoError(t, err)
		assert.True(t, deleted)
	})
}

func TestCredentialRepo_ListExpiring(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestCredentialRepo(t, db)
		ctx := context.Background()
		now := testutil.TestTime()

		for user, exp := range map[string]time.Time{
			"soon":  now.Add(2 * time.Minute),
			"later": now.Add(2 * time.Hour),
			"past":  now.Add(-time.Minute),
		} {
			_, err := repo.Upsert(ctx, model.SaveCredentialRequest{UserID: user, AccessToken: "a", RefreshToken: "r", ExpiresAt: exp})
			require.NoError(t, err)
		}

		ids, err := repo.ListExpiring(ctx, now.Add(5*time.Minute), 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"past", "soon"}, ids)
	})
}
