package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleReviewer   UserRole = "REVIEWER"
	RoleAuthor     UserRole = "AUTHOR"
)

// IsEditor reports whether the role carries editorial authority.
func (r UserRole) IsEditor() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User represents an application user stored in the users table.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ReviewerWorkload pairs a reviewer with their active assignment count.
type ReviewerWorkload struct {
	User
	ActiveAssignments int `db:"active_assignments" json:"active_assignments"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// UserFilter captures user listing filters.
type UserFilter struct {
	Role     *UserRole
	Active   *bool
	Search   string
	Page     int
	PageSize int
}
