package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleReviewer UserRole = "REVIEWER"
	RoleViewer   UserRole = "VIEWER"
)

// Valid reports whether the role is a supported value.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleReviewer, RoleViewer:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
//
// Like every mutable aggregate in this system, users carry a version counter
// and are written through the compare-and-swap discipline.
type User struct {
	ID           string     `db:"id" json:"id"`
	Version      int64      `db:"version" json:"version"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	ResetToken   *string    `db:"reset_token" json:"-"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserPatch carries the caller-editable subset of user fields. The password
// hash and reset token are internal: they are stripped from partial payloads
// and only change through dedicated flows.
type UserPatch struct {
	Email    *string   `json:"email,omitempty"`
	FullName *string   `json:"full_name,omitempty"`
	Role     *UserRole `json:"role,omitempty"`
	Active   *bool     `json:"active,omitempty"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role     *UserRole
	Active   *bool
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
