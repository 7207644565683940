package domain

import (
	"time"

	"github.com/meridianhq/platform/pkg/constants"
)

// User is an identity-store origin row (spec.md §3, §4.2).
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	RoleID       string
	Role         *Role // eagerly resolved by findUserById/findUserByEmail
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is an identity-store origin row.
type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the user's role is the built-in Admin role, which
// short-circuits every authorization check to allow (spec.md §4.3).
func (u *User) IsAdmin() bool {
	return u.Role != nil && u.Role.Name == constants.AdminRoleName
}
