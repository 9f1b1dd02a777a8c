package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/leadwatch/leadwatch/internal/data/pgxutil"
	"github.com/leadwatch/leadwatch/internal/domain/model"
)

// ProductRepo reads product descriptions owned by the surrounding application.
type ProductRepo struct {
	DB *sql.DB
}

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(db *sql.DB) *ProductRepo {
	return &ProductRepo{DB: db}
}

const productColumns = `
  id::text AS id, user_id, name, description, features, benefits, pain_points,
  ideal_customer, keywords, search_targets, status, created_at, updated_at
`

func (r *ProductRepo) query(ctx context.Context, query string, args ...any) ([]*model.Product, error) {
	return pgxutil.Query(ctx, r.DB, pgx.RowToAddrOfStructByName[model.Product], query, args...)
}

// GetByID returns the product or ErrProductNotFound.
func (r *ProductRepo) GetByID(ctx context.Context, id string) (*model.Product, error) {
	products, err := r.query(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1::uuid`, id)
	if isMalformedID(err) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(products) == 0 {
		return nil, ErrProductNotFound
	}
	return products[0], nil
}

// ListActiveByUser returns the user's active products.
func (r *ProductRepo) ListActiveByUser(ctx context.Context, userID string) ([]*model.Product, error) {
	products, err := r.query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}
	return products, nil
}
