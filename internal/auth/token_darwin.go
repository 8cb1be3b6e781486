//go:build darwin

package auth

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// credentialStoreToken reads the agent CLI's OAuth token from the macOS
// Keychain.
func credentialStoreToken(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "/usr/bin/security",
		"find-generic-password", "-s", credStoreName, "-w").Output()
	if err != nil {
		return "", fmt.Errorf("keychain lookup failed: %w", err)
	}
	raw := strings.TrimSpace(string(out))
	if raw == "" {
		return "", fmt.Errorf("empty credential from keychain")
	}
	return parseCredentialJSON(raw)
}
