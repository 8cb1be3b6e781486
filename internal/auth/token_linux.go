//go:build linux

package auth

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// credentialStoreToken reads the agent CLI's OAuth token from the Linux
// secret store via libsecret (gnome-keyring / kwallet).
func credentialStoreToken(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "secret-tool", "lookup",
		"service", credStoreName).Output()
	if err != nil {
		return "", fmt.Errorf("secret-tool lookup failed (install libsecret-tools): %w", err)
	}
	raw := strings.TrimSpace(string(out))
	if raw == "" {
		return "", fmt.Errorf("empty credential from secret-tool")
	}
	return parseCredentialJSON(raw)
}
