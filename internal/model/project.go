package model

import (
	"time"
)

type Project struct {
	ID             string        `db:"id" json:"id"`
	OrganizationID string        `db:"organization_id" json:"organizationId"`
	Name           string        `db:"name" json:"name"`
	Status         ProjectStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
}

// ProjectSummary is a project annotated with the viewer's unread message
// count, as returned in the portal manifest.
type ProjectSummary struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Status      ProjectStatus `json:"status"`
	UnreadCount int           `json:"unreadCount"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Manifest is the portal home view assembled for a validated token.
type Manifest struct {
	Identity     *Identity        `json:"identity"`
	Organization *Organization    `json:"organization"`
	Projects     []ProjectSummary `json:"projects"`
}
