package auth

import (
	"context"
	"strings"
	"time"
)

// Role is a coarse-grained authorization label attached to a user.
type Role string

const (
	RoleUser      Role = "user"       // default role for every signup
	RoleAdmin     Role = "admin"      // catalog management
	RoleSuperUser Role = "super_user" // destructive catalog operations
)

// User represents an authenticated identity (a principal).
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialized, excluded from default reads
	FullName     string    `json:"full_name"`
	IsActive     bool      `json:"is_active"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasAnyRole reports whether the user holds at least one of the given roles.
// An empty required set matches any user.
func (u *User) HasAnyRole(required ...Role) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		for _, have := range u.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// NormalizeEmail lower-cases and trims an email address. Applied before every
// persistence and lookup so the unique constraint is case-insensitive in
// practice.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserStore is the credential store consumed by the Authenticator and the
// access gate.
type UserStore interface {
	// CreateUser persists a new user. A duplicate email surfaces as
	// storage.ErrConflict.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByEmail loads a user without its password hash.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserWithPassword loads a user including the password hash, which is
	// excluded from the default read path. Only the signin flow uses this.
	GetUserWithPassword(ctx context.Context, email string) (*User, error)
}
