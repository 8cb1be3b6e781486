package models

import (
	"time"
)

// Provider identifies which backend a model or credential belongs to.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderZAI       Provider = "zai"
	ProviderCustom    Provider = "custom"
)

// Profile is a named credential configuration that can be swapped without
// stopping the orchestrator.
type Profile struct {
	// ID is the stable profile identifier.
	ID string `json:"id"`

	// Name is the human-readable profile name (often an email).
	Name string `json:"name"`

	// Provider is the backend this profile authenticates against.
	Provider Provider `json:"provider"`

	// Active marks the currently selected profile.
	Active bool `json:"active"`

	// CreatedAt is when the profile was first saved.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the profile was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the profile is valid.
func (p *Profile) Validate() error {
	validation := &ValidationErrors{}
	if p.ID == "" {
		validation.AddMessage("id", "id is required")
	}
	if p.Name == "" {
		validation.AddMessage("name", "name is required")
	}
	return validation.Err()
}
