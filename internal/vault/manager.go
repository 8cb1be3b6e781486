package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tasklift/autopilot/internal/logging"
	"github.com/tasklift/autopilot/internal/models"
)

// Manager errors.
var (
	ErrNoActiveProfile = errors.New("no active profile")
	ErrNoAlternative   = errors.New("no alternative profile available")
	ErrAlreadyActive   = errors.New("profile is already active")
)

// Manager is the credential-swap primitive used by the monitor and
// orchestrator: it tracks which vault profile is active and switches the
// live auth files between profiles.
type Manager struct {
	vaultPath string
	logger    zerolog.Logger

	// mu serializes switches so two swap attempts cannot interleave
	// half-restored auth files.
	mu sync.Mutex
}

// NewManager creates a Manager for the given vault path.
func NewManager(vaultPath string) *Manager {
	if vaultPath == "" {
		vaultPath = DefaultVaultPath()
	}
	return &Manager{
		vaultPath: vaultPath,
		logger:    logging.Component("vault"),
	}
}

// VaultPath returns the vault root directory.
func (m *Manager) VaultPath() string {
	return m.vaultPath
}

// List returns all stored profiles as model objects, with the active one
// flagged.
func (m *Manager) List(ctx context.Context) ([]*models.Profile, error) {
	profiles, err := List(m.vaultPath)
	if err != nil {
		return nil, err
	}

	active, _ := GetActive(m.vaultPath)

	result := make([]*models.Profile, 0, len(profiles))
	for _, p := range profiles {
		result = append(result, toModel(p, active != nil && active.Name == p.Name))
	}
	return result, nil
}

// Active returns the currently active profile, or ErrNoActiveProfile when
// the live auth files match no stored profile.
func (m *Manager) Active(ctx context.Context) (*models.Profile, error) {
	active, err := GetActive(m.vaultPath)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveProfile
	}
	return toModel(active, true), nil
}

// SwitchTo restores the named profile's auth files, making it active.
// Switching to the already-active profile is a no-op.
func (m *Manager) SwitchTo(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if active, _ := GetActive(m.vaultPath); active != nil && active.Name == name {
		return nil
	}

	if err := Restore(m.vaultPath, name); err != nil {
		return fmt.Errorf("failed to switch profile: %w", err)
	}

	m.logger.Info().Str("profile", name).Msg("switched credential profile")
	return nil
}

// Alternative picks a stored profile other than currentName, for proactive
// failover. Returns ErrNoAlternative when none exists.
func (m *Manager) Alternative(ctx context.Context, currentName string) (*models.Profile, error) {
	profiles, err := List(m.vaultPath)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if p.Name != currentName {
			return toModel(p, false), nil
		}
	}
	return nil, ErrNoAlternative
}

func toModel(p *Profile, active bool) *models.Profile {
	return &models.Profile{
		ID:        p.Name,
		Name:      p.Name,
		Provider:  models.ProviderAnthropic,
		Active:    active,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
