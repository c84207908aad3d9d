package domain

import (
	"errors"
	"time"
)

// Credential links a user to an external or local identity.
// (ProviderType, ProviderID) is unique across the system.
type Credential struct {
	ID           string
	UserID       string
	ProviderType ProviderType
	ProviderID   string
	CreatedAt    time.Time
}

type ProviderType string

const (
	ProviderLocal  ProviderType = "local"
	ProviderGoogle ProviderType = "google"
	ProviderApple  ProviderType = "apple"
)

// Profile is the identity asserted by a verified social token.
type Profile struct {
	Provider      ProviderType
	ProviderID    string
	Email         string
	Name          string
	EmailVerified bool
}

// Validate checks the fields link-or-create depends on.
func (p *Profile) Validate() error {
	if p.Provider == "" {
		return errors.New("profile provider is required")
	}
	if p.ProviderID == "" {
		return errors.New("profile provider id is required")
	}
	if p.Email == "" {
		return errors.New("profile email is required")
	}
	return nil
}
