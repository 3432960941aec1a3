package models

import (
	"fmt"
	"time"
)

// Organization is the tenant that owns profiles, beneficiaries and reports.
type Organization struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Mission    *string   `json:"mission" db:"mission"`
	FocusAreas []string  `json:"focus_areas" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleStaff     UserRole = "staff"
	RoleVolunteer UserRole = "volunteer"
)

// ParseUserRole validates a role submitted by a form.
func ParseUserRole(s string) (UserRole, error) {
	switch r := UserRole(s); r {
	case RoleAdmin, RoleStaff, RoleVolunteer:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// Profile is a row of the users table. Its id is the identity provider's user id
// and it always belongs to exactly one organization.
type Profile struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Role           UserRole  `json:"role" db:"role"`
	FullName       *string   `json:"full_name" db:"full_name"`
	AvatarURL      *string   `json:"avatar_url" db:"avatar_url"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName returns the full name or an empty string.
func (p *Profile) DisplayName() string {
	if p == nil || p.FullName == nil {
		return ""
	}
	return *p.FullName
}
