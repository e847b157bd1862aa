package model

import (
	"time"
)

// Identity is the external client-side user a portal token belongs to. Access
// is always mediated through the identity's organization, never granted on a
// resource directly.
type Identity struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organizationId"`
	Name           string    `db:"name" json:"name"`
	Email          string    `db:"email" json:"email"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Organization is the tenant boundary: every access-control comparison in the
// portal resolves to organization equality.
type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
