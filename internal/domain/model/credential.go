//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"errors"
	"strings"
	"time"
)

// Credential is the OAuth access/refresh token pair for a user's platform account.
// Token values are plaintext in memory and encrypted at rest by the repository.
type Credential struct {
	UserID       string    `json:"user_id"          db:"user_id"`
	AccessToken  string    `json:"-"                db:"access_token"`
	RefreshToken string    `json:"-"                db:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"       db:"expires_at"`
	Scope        string    `json:"scope,omitempty"  db:"scope"`
	CreatedAt    time.Time `json:"created_at"       db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"       db:"updated_at"`
	// Revision changes on every write. Conditional writes compare against it.
	Revision string `json:"-" db:"-"`
}

// ExpiresWithin reports whether the access token expires within margin of now.
func (c *Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if c == nil {
		return true
	}
	return !c.ExpiresAt.After(now.Add(margin))
}

// AccessToken is a bearer token resolved for a platform call.
// AppLevel is true when the token belongs to the application rather than a user.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
	AppLevel  bool
}

// IsZero reports whether no token value is present.
func (t AccessToken) IsZero() bool {
	return t.Value == ""
}

// TokenGrant is the result of an OAuth callback or a refresh exchange.
// An empty RefreshToken on refresh means the provider did not rotate it.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// Validate checks that the grant carries a usable access token.
func (g *TokenGrant) Validate() error {
	if strings.TrimSpace(g.AccessToken) == "" {
		return errors.New("access token is required")
	}
	if g.ExpiresAt.IsZero() {
		return errors.New("expiry is required")
	}
	return nil
}

// SaveCredentialRequest upserts a user's credential.
type SaveCredentialRequest struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
	// IfRevision, when set, makes the save replace only the credential with that revision.
	IfRevision string
}

// Validate validates the SaveCredentialRequest fields.
func (r *SaveCredentialRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(r.AccessToken) == "" {
		return errors.New("access token is required")
	}
	if strings.TrimSpace(r.RefreshToken) == "" {
		return errors.New("refresh token is required")
	}
	if r.ExpiresAt.IsZero() {
		return errors.New("expires at is required")
	}
	return nil
}
