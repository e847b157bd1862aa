package model

import (
	"time"
)

// PortalToken is a bearer capability granting one external identity access to
// the portal. Tokens are never physically deleted; revocation keeps the audit
// trail intact.
type PortalToken struct {
	ID           string     `db:"id" json:"id"`
	IdentityID   string     `db:"identity_id" json:"identityId"`
	TokenValue   string     `db:"token_value" json:"-"`
	ViewCount    int        `db:"view_count" json:"viewCount"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	RevokedAt    *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
	LastViewedAt *time.Time `db:"last_viewed_at" json:"lastViewedAt,omitempty"`
}

// Active reports whether the token has not been revoked.
func (t *PortalToken) Active() bool {
	return t.RevokedAt == nil
}

// TokenStatus is the operator-dashboard projection for an identity's portal
// access.
type TokenStatus struct {
	IdentityID   string     `json:"identityId"`
	Active       bool       `json:"active"`
	TokenID      string     `json:"tokenId,omitempty"`
	URL          string     `json:"url,omitempty"`
	ViewCount    int        `json:"viewCount"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	LastViewedAt *time.Time `json:"lastViewedAt,omitempty"`
}

// IssuedToken is the result of creating a fresh portal token.
type IssuedToken struct {
	Token *PortalToken `json:"token"`
	URL   string       `json:"url"`
}
