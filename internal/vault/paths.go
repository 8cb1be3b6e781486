// Package vault provides credential profile storage and instant profile
// switching for the agent CLI.
package vault

import (
	"os"
	"path/filepath"
)

// AuthPaths represents the agent CLI's auth file locations.
type AuthPaths struct {
	// Primary is the main auth file path.
	Primary string

	// Secondary contains additional auth file paths.
	Secondary []string
}

// AllPaths returns all auth file paths (primary + secondary).
func (p AuthPaths) AllPaths() []string {
	paths := make([]string, 0, 1+len(p.Secondary))
	if p.Primary != "" {
		paths = append(paths, p.Primary)
	}
	paths = append(paths, p.Secondary...)
	return paths
}

// ExistingPaths returns only the paths that currently exist on disk.
func (p AuthPaths) ExistingPaths() []string {
	var existing []string
	for _, path := range p.AllPaths() {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	return existing
}

// HasAuth returns true if any auth files exist.
func (p AuthPaths) HasAuth() bool {
	return len(p.ExistingPaths()) > 0
}

// GetAuthPaths returns the agent CLI's auth file paths.
func GetAuthPaths() AuthPaths {
	home := homeDir()
	return AuthPaths{
		Primary: filepath.Join(home, ".claude.json"),
		Secondary: []string{
			filepath.Join(home, ".config", "claude-code", "auth.json"),
		},
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// DefaultVaultPath returns the default vault directory path.
func DefaultVaultPath() string {
	return filepath.Join(homeDir(), ".config", "autopilot", "vault")
}

// ProfilesPath returns the profiles subdirectory within a vault.
func ProfilesPath(vaultPath string) string {
	return filepath.Join(vaultPath, "profiles")
}

// ProfilePath returns the path for a specific profile within a vault.
func ProfilePath(vaultPath, profileName string) string {
	return filepath.Join(ProfilesPath(vaultPath), profileName)
}
