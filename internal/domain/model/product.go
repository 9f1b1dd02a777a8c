//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import "time"

// ProductStatus represents whether a product is being monitored.
type ProductStatus string

const (
	// ProductStatusActive products are monitored by their discovery jobs.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusInactive products are kept but not searched for.
	ProductStatusInactive ProductStatus = "inactive"
)

// Product is the read-only description of what a user sells.
// SearchTargets are the platform communities searched for leads.
type Product struct {
	ID            string        `json:"id"             db:"id"`
	UserID        string        `json:"user_id"        db:"user_id"`
	Name          string        `json:"name"           db:"name"`
	Description   string        `json:"description"    db:"description"`
	Features      []string      `json:"features"       db:"features"`
	Benefits      []string      `json:"benefits"       db:"benefits"`
	PainPoints    []string      `json:"pain_points"    db:"pain_points"`
	IdealCustomer string        `json:"ideal_customer" db:"ideal_customer"`
	Keywords      []string      `json:"keywords"       db:"keywords"`
	SearchTargets []string      `json:"search_targets" db:"search_targets"`
	Status        ProductStatus `json:"status"         db:"status"`
	CreatedAt     time.Time     `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"     db:"updated_at"`
}

// IsActive reports whether the product should be searched for.
func (p *Product) IsActive() bool {
	return p != nil && p.Status == ProductStatusActive
}
