package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/leadwatch/leadwatch/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestProductRepo_GetByID_NotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewProductRepo(db)
		ctx := context.Background()

		_, err := repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, ErrProductNotFound)

		_, err = repo.GetByID(ctx, "not-a-uuid")
		require.ErrorIs(t, err, ErrProductNotFound)
	})
}
