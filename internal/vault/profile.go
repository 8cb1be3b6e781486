package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Profile errors.
var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrNoAuthFiles        = errors.New("no auth files found to backup")
	ErrInvalidProfileName = errors.New("invalid profile name")
)

// Profile represents a saved credential profile.
type Profile struct {
	// Name is the profile name (e.g., "work", "personal", "user@email.com").
	Name string `json:"name"`

	// Path is the full path to the profile directory.
	Path string `json:"path"`

	// CreatedAt is when the profile was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the profile was last updated.
	UpdatedAt time.Time `json:"updated_at"`

	// AuthFiles lists the auth file names stored in this profile.
	AuthFiles []string `json:"auth_files"`

	// ContentHash is the SHA-256 hash of all auth file contents, used
	// for detecting which profile is currently active.
	ContentHash string `json:"content_hash"`
}

// ProfileMeta is stored as meta.json in each profile directory.
type ProfileMeta struct {
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	AuthFiles   []string  `json:"auth_files"`
	ContentHash string    `json:"content_hash"`
}

// Backup copies the current auth files to a profile in the vault.
func Backup(vaultPath, profileName string) (*Profile, error) {
	if profileName == "" || profileName != filepath.Base(profileName) {
		return nil, ErrInvalidProfileName
	}

	authPaths := GetAuthPaths()
	existingPaths := authPaths.ExistingPaths()
	if len(existingPaths) == 0 {
		return nil, ErrNoAuthFiles
	}

	profilePath := ProfilePath(vaultPath, profileName)
	if err := os.MkdirAll(profilePath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	now := time.Now().UTC()
	profile := &Profile{
		Name:      profileName,
		Path:      profilePath,
		CreatedAt: now,
		UpdatedAt: now,
		AuthFiles: make([]string, 0, len(existingPaths)),
	}

	// Preserve CreatedAt when overwriting an existing profile.
	metaPath := filepath.Join(profilePath, "meta.json")
	if metaData, err := os.ReadFile(metaPath); err == nil {
		var existingMeta ProfileMeta
		if err := json.Unmarshal(metaData, &existingMeta); err == nil {
			profile.CreatedAt = existingMeta.CreatedAt
		}
	}

	var hashInputs []byte
	for _, srcPath := range existingPaths {
		fileName := filepath.Base(srcPath)
		dstPath := filepath.Join(profilePath, fileName)

		data, err := os.ReadFile(srcPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read auth file %s: %w", srcPath, err)
		}
		if err := os.WriteFile(dstPath, data, 0600); err != nil {
			return nil, fmt.Errorf("failed to write auth file %s: %w", dstPath, err)
		}

		profile.AuthFiles = append(profile.AuthFiles, fileName)
		hashInputs = append(hashInputs, data...)
	}

	hash := sha256.Sum256(hashInputs)
	profile.ContentHash = hex.EncodeToString(hash[:])

	meta := ProfileMeta{
		Name:        profileName,
		CreatedAt:   profile.CreatedAt,
		UpdatedAt:   profile.UpdatedAt,
		AuthFiles:   profile.AuthFiles,
		ContentHash: profile.ContentHash,
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaJSON, 0600); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	return profile, nil
}

// Restore copies a profile's auth files back to their live locations,
// making that profile the active credential.
func Restore(vaultPath, profileName string) error {
	if profileName == "" {
		return ErrInvalidProfileName
	}

	profilePath := ProfilePath(vaultPath, profileName)
	metaPath := filepath.Join(profilePath, "meta.json")
	metaData, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to read profile metadata: %w", err)
	}

	var meta ProfileMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return fmt.Errorf("failed to parse profile metadata: %w", err)
	}

	authPaths := GetAuthPaths()
	destMap := make(map[string]string)
	destMap[filepath.Base(authPaths.Primary)] = authPaths.Primary
	for _, secondary := range authPaths.Secondary {
		destMap[filepath.Base(secondary)] = secondary
	}

	for _, fileName := range meta.AuthFiles {
		dstPath, ok := destMap[fileName]
		if !ok {
			continue // Unknown file, skip
		}

		srcPath := filepath.Join(profilePath, fileName)
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", srcPath, err)
		}

		if err := os.MkdirAll(filepath.Dir(dstPath), 0700); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", dstPath, err)
		}
		if err := os.WriteFile(dstPath, data, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", dstPath, err)
		}
	}

	return nil
}

// Delete removes a profile from the vault.
func Delete(vaultPath, profileName string) error {
	if profileName == "" {
		return ErrInvalidProfileName
	}

	profilePath := ProfilePath(vaultPath, profileName)
	if _, err := os.Stat(profilePath); os.IsNotExist(err) {
		return ErrProfileNotFound
	}
	return os.RemoveAll(profilePath)
}

// Get retrieves a profile by name.
func Get(vaultPath, profileName string) (*Profile, error) {
	if profileName == "" {
		return nil, ErrInvalidProfileName
	}

	profilePath := ProfilePath(vaultPath, profileName)
	metaPath := filepath.Join(profilePath, "meta.json")
	metaData, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to read profile metadata: %w", err)
	}

	var meta ProfileMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse profile metadata: %w", err)
	}

	return &Profile{
		Name:        profileName,
		Path:        profilePath,
		CreatedAt:   meta.CreatedAt,
		UpdatedAt:   meta.UpdatedAt,
		AuthFiles:   meta.AuthFiles,
		ContentHash: meta.ContentHash,
	}, nil
}

// List returns all profiles in the vault.
func List(vaultPath string) ([]*Profile, error) {
	entries, err := os.ReadDir(ProfilesPath(vaultPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	var profiles []*Profile
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		profile, err := Get(vaultPath, entry.Name())
		if err != nil {
			continue // Skip invalid profiles
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// GetActive returns the currently active profile by comparing content
// hashes of the live auth files against stored profiles. Returns nil when
// no profile matches.
func GetActive(vaultPath string) (*Profile, error) {
	currentHash, err := currentAuthHash()
	if err != nil || currentHash == "" {
		return nil, nil
	}

	profiles, err := List(vaultPath)
	if err != nil {
		return nil, err
	}
	for _, profile := range profiles {
		if profile.ContentHash == currentHash {
			return profile, nil
		}
	}
	return nil, nil
}

// currentAuthHash calculates the content hash of the live auth files.
func currentAuthHash() (string, error) {
	existingPaths := GetAuthPaths().ExistingPaths()
	if len(existingPaths) == 0 {
		return "", nil
	}

	var hashInputs []byte
	for _, path := range existingPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		hashInputs = append(hashInputs, data...)
	}

	hash := sha256.Sum256(hashInputs)
	return hex.EncodeToString(hash[:]), nil
}
