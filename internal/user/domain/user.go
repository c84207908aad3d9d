package domain

import (
	"errors"
	"time"
)

// User is the core user entity. Downstream subsystems (KYC, wallet,
// notifications) consume it; only identity concerns live here.
type User struct {
	ID            string
	Email         string
	Phone         string // optional second login identifier
	Name          string
	Role          Role
	EmailVerified bool
	PasswordHash  string // empty for social-only accounts
	Status        UserStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Role string

const (
	// RoleUser is the baseline role attached to principals whose resolved
	// user carries no explicit role.
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// EffectiveRole returns the user's role, defaulting to RoleUser.
func (u *User) EffectiveRole() Role {
	if u.Role == "" {
		return RoleUser
	}
	return u.Role
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}
