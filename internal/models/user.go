package models

import (
	"time"
)

// Role is the ordered role hierarchy: STUDENT < FACULTY < STAFF < ADMIN.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleFaculty Role = "FACULTY"
	RoleStaff   Role = "STAFF"
	RoleAdmin   Role = "ADMIN"
)

// roleRanks maps each role to its position in the hierarchy.
var roleRanks = map[Role]int{
	RoleStudent: 0,
	RoleFaculty: 1,
	RoleStaff:   2,
	RoleAdmin:   3,
}

// Rank returns the integer rank of the role. Unknown roles rank below STUDENT.
func (r Role) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// AtLeast reports whether r sits at or above min in the hierarchy.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() >= min.Rank()
}

// IsValidRole checks if a role string is one of the known hierarchy values.
func IsValidRole(role string) bool {
	_, ok := roleRanks[Role(role)]
	return ok
}

// AccessibleLevels returns every access level the role may see, lowest first.
// An item is visible when its access_level ranks at or below the caller's role.
func (r Role) AccessibleLevels() []string {
	levels := make([]string, 0, len(roleRanks))
	for _, role := range []Role{RoleStudent, RoleFaculty, RoleStaff, RoleAdmin} {
		if role.Rank() <= r.Rank() {
			levels = append(levels, string(role))
		}
	}
	return levels
}

// User represents an account in the system
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // Never expose in JSON
	FirstName    *string    `json:"first_name,omitempty"`
	LastName     *string    `json:"last_name,omitempty"`
	Role         Role       `json:"role"`
	Department   string     `json:"department,omitempty"`
	StudentID    string     `json:"student_id,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	IsActive     bool       `json:"is_active"`
	IsFlagged    bool       `json:"is_flagged"`
	OverdueCount int        `json:"overdue_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// LoginRequest represents the request body for user login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the response body for successful login
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ChangePasswordRequest represents the request body for changing password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// ChangeRoleRequest represents the request body for an admin role change
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// GetDisplayName returns the user's display name
func (u *User) GetDisplayName() string {
	if u.FirstName != nil && u.LastName != nil {
		return *u.FirstName + " " + *u.LastName
	}
	if u.FirstName != nil {
		return *u.FirstName
	}
	if u.LastName != nil {
		return *u.LastName
	}
	return u.Username
}

// Redacted returns a copy of the user with sensitive fields removed
func (u *User) Redacted() User {
	redacted := *u
	redacted.PasswordHash = ""
	return redacted
}
