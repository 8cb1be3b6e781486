package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupHome points the auth paths at a temp home and writes live auth
// files with the given marker content.
func setupHome(t *testing.T, marker string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeAuth(t, home, marker)
	return home
}

func writeAuth(t *testing.T, home, marker string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(home, ".claude.json"), []byte(`{"account":"`+marker+`"}`), 0600))
}

func readAuth(t *testing.T, home string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(home, ".claude.json"))
	require.NoError(t, err)
	return string(data)
}

func TestBackupAndRestore(t *testing.T) {
	home := setupHome(t, "alice")
	vaultPath := filepath.Join(home, "vault")

	profile, err := Backup(vaultPath, "work")
	require.NoError(t, err)
	require.Equal(t, "work", profile.Name)
	require.Contains(t, profile.AuthFiles, ".claude.json")
	require.NotEmpty(t, profile.ContentHash)

	// Different credentials become a second profile.
	writeAuth(t, home, "bob")
	_, err = Backup(vaultPath, "personal")
	require.NoError(t, err)

	require.NoError(t, Restore(vaultPath, "work"))
	require.Contains(t, readAuth(t, home), "alice")

	require.NoError(t, Restore(vaultPath, "personal"))
	require.Contains(t, readAuth(t, home), "bob")
}

func TestBackupWithoutAuthFiles(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	_, err := Backup(filepath.Join(home, "vault"), "work")
	require.ErrorIs(t, err, ErrNoAuthFiles)
}

func TestBackupRejectsPathTraversal(t *testing.T) {
	home := setupHome(t, "alice")

	_, err := Backup(filepath.Join(home, "vault"), "../escape")
	require.ErrorIs(t, err, ErrInvalidProfileName)

	_, err = Backup(filepath.Join(home, "vault"), "")
	require.ErrorIs(t, err, ErrInvalidProfileName)
}

func TestBackupPreservesCreatedAt(t *testing.T) {
	home := setupHome(t, "alice")
	vaultPath := filepath.Join(home, "vault")

	first, err := Backup(vaultPath, "work")
	require.NoError(t, err)

	writeAuth(t, home, "alice-rotated")
	second, err := Backup(vaultPath, "work")
	require.NoError(t, err)

	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.NotEqual(t, first.ContentHash, second.ContentHash)
}

func TestGetActiveMatchesByContentHash(t *testing.T) {
	home := setupHome(t, "alice")
	vaultPath := filepath.Join(home, "vault")

	_, err := Backup(vaultPath, "work")
	require.NoError(t, err)

	active, err := GetActive(vaultPath)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, "work", active.Name)

	// Live credentials change to something not in the vault.
	writeAuth(t, home, "stranger")
	active, err = GetActive(vaultPath)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestDeleteProfile(t *testing.T) {
	home := setupHome(t, "alice")
	vaultPath := filepath.Join(home, "vault")

	_, err := Backup(vaultPath, "work")
	require.NoError(t, err)

	require.NoError(t, Delete(vaultPath, "work"))
	require.ErrorIs(t, Delete(vaultPath, "work"), ErrProfileNotFound)

	_, err = Get(vaultPath, "work")
	require.ErrorIs(t, err, ErrProfileNotFound)
}

func TestListEmptyVault(t *testing.T) {
	profiles, err := List(filepath.Join(t.TempDir(), "vault"))
	require.NoError(t, err)
	require.Empty(t, profiles)
}

func TestManagerSwitchAndAlternative(t *testing.T) {
	ctx := context.Background()
	home := setupHome(t, "alice")
	vaultPath := filepath.Join(home, "vault")
	manager := NewManager(vaultPath)

	_, err := Backup(vaultPath, "work")
	require.NoError(t, err)
	writeAuth(t, home, "bob")
	_, err = Backup(vaultPath, "backup")
	require.NoError(t, err)

	active, err := manager.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, "backup", active.Name)

	alt, err := manager.Alternative(ctx, active.Name)
	require.NoError(t, err)
	require.Equal(t, "work", alt.Name)

	require.NoError(t, manager.SwitchTo(ctx, alt.Name))
	active, err = manager.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, "work", active.Name)
	require.Contains(t, readAuth(t, home), "alice")

	// Switching to the already-active profile is a no-op.
	require.NoError(t, manager.SwitchTo(ctx, "work"))
}

func TestManagerAlternativeWithSingleProfile(t *testing.T) {
	home := setupHome(t, "alice")
	vaultPath := filepath.Join(home, "vault")
	manager := NewManager(vaultPath)

	_, err := Backup(vaultPath, "work")
	require.NoError(t, err)

	_, err = manager.Alternative(context.Background(), "work")
	require.ErrorIs(t, err, ErrNoAlternative)
}

func TestManagerActiveWithoutMatch(t *testing.T) {
	home := setupHome(t, "alice")
	manager := NewManager(filepath.Join(home, "vault"))

	_, err := manager.Active(context.Background())
	require.ErrorIs(t, err, ErrNoActiveProfile)
}

func TestManagerListFlagsActive(t *testing.T) {
	ctx := context.Background()
	home := setupHome(t, "alice")
	vaultPath := filepath.Join(home, "vault")
	manager := NewManager(vaultPath)

	_, err := Backup(vaultPath, "work")
	require.NoError(t, err)
	writeAuth(t, home, "bob")
	_, err = Backup(vaultPath, "backup")
	require.NoError(t, err)

	profiles, err := manager.List(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	activeCount := 0
	for _, p := range profiles {
		if p.Active {
			activeCount++
			require.Equal(t, "backup", p.Name)
		}
	}
	require.Equal(t, 1, activeCount)
}
