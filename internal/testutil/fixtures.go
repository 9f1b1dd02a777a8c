// Package testutil provides database, Redis and fixture helpers for leadwatch tests.
package testutil

import (
	"context"
	"database/sql"
	"time"

	"github.com/leadwatch/leadwatch/internal/domain/model"
)

// ProductFixture describes a product row inserted directly for repository tests.
type ProductFixture struct {
	UserID        string
	Name          string
	Features      []string
	PainPoints    []string
	Keywords      []string
	SearchTargets []string
	Inactive      bool
}

// InsertProduct writes a product row and returns its id. Products are owned by the
// surrounding application, so there is no repository write path to use instead.
func InsertProduct(t TestingTB, db *sql.DB, f ProductFixture) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := model.ProductStatusActive
	if f.Inactive {
		status = model.ProductStatusInactive
	}
	var id string
	err := db.QueryRowContext(ctx, `
		INSERT INTO products (user_id, name, features, pain_points, keywords, search_targets, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text`,
		f.UserID, f.Name, orEmpty(f.Features), orEmpty(f.PainPoints), orEmpty(f.Keywords),
		orEmpty(f.SearchTargets), string(status),
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert product fixture: %v", err)
	}
	return id
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// NewProduct returns an active in-memory product searching the given communities.
func NewProduct(id, userID string, targets ...string) *model.Product {
	return &model.Product{
		ID:            id,
		UserID:        userID,
		Name:          "LeadPilot",
		Features:      []string{"lead scoring", "reply drafts"},
		PainPoints:    []string{"finding customers"},
		IdealCustomer: "saas founders",
		Keywords:      []string{"crm"},
		SearchTargets: targets,
		Status:        model.ProductStatusActive,
	}
}

// NewJob returns an active lead discovery job due at nextRun.
func NewJob(id, userID, productID string, nextRun time.Time) *model.Job {
	return &model.Job{
		ID:              id,
		UserID:          userID,
		ProductID:       productID,
		Type:            model.JobTypeLeadDiscovery,
		Status:          model.JobStatusActive,
		IntervalMinutes: 60,
		NextRun:         nextRun.UTC(),
		CreatedAt:       nextRun.UTC(),
		UpdatedAt:       nextRun.UTC(),
	}
}
