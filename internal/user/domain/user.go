package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the core user record consumed by the auth flows. CRUD beyond what
// authentication needs (profile edits, deletion) lives with the inventory
// backend, not here.
type User struct {
	ID               string
	Email            string // stored normalized: trimmed, lowercased
	PasswordHash     string
	Phone            string // optional; used for OTP delivery and username recovery
	Role             Role
	TwoFactorEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// NormalizeEmail returns the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the user for persistence. Returns an error describing the
// first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Role == "" {
		u.Role = RoleEmployee
	}
	return nil
}

// PublicUser is the caller-facing projection of a user: never includes the
// password hash.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Public returns the caller-facing projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Role: string(u.Role)}
}
