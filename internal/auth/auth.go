// Package auth resolves worker credentials and provider environment.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tasklift/autopilot/internal/models"
)

// AuthTokenEnvVars is the resolution priority for auth tokens. The plain
// API key variable is deliberately absent: falling back to it would
// silently bill the user's API credits when OAuth fails.
var AuthTokenEnvVars = []string{
	"CLAUDE_CODE_OAUTH_TOKEN",
	"ANTHROPIC_AUTH_TOKEN",
}

// SDKEnvVars are passed through to the worker subprocess when set.
var SDKEnvVars = []string{
	"ANTHROPIC_BASE_URL",
	"ANTHROPIC_AUTH_TOKEN",
	"NO_PROXY",
	"DISABLE_TELEMETRY",
	"DISABLE_COST_WARNINGS",
	"API_TIMEOUT_MS",
}

// Z.ai serves GLM models over an Anthropic-compatible endpoint. The long
// timeout follows the provider's documentation.
const (
	ZAIBaseURL    = "https://api.z.ai/api/anthropic"
	ZAITimeoutMS  = 3000000
	ZAIKeyEnvVar  = "ZAI_API_KEY"
	credStoreName = "Claude Code-credentials"
)

// Auth errors.
var (
	ErrNoToken = errors.New("no authentication token found")
)

// ResolveToken returns the auth token from the environment, falling back
// to the OS credential store.
func ResolveToken(ctx context.Context) (string, error) {
	for _, name := range AuthTokenEnvVars {
		if token := strings.TrimSpace(os.Getenv(name)); token != "" {
			return token, nil
		}
	}

	token, err := credentialStoreToken(ctx)
	if err != nil || token == "" {
		return "", fmt.Errorf("%w: set %s or sign in with the agent CLI", ErrNoToken, AuthTokenEnvVars[0])
	}
	return token, nil
}

// ValidateCredentials checks that a usable token is available without
// returning it. The error message is user-actionable.
func ValidateCredentials(ctx context.Context) error {
	_, err := ResolveToken(ctx)
	return err
}

// parseCredentialJSON extracts the OAuth access token from the agent CLI's
// credential JSON stored in the system credential store.
func parseCredentialJSON(raw string) (string, error) {
	var creds struct {
		ClaudeAiOauth struct {
			AccessToken string `json:"accessToken"`
		} `json:"claudeAiOauth"`
	}
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return "", fmt.Errorf("parse credentials: %w", err)
	}
	if creds.ClaudeAiOauth.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}
	return creds.ClaudeAiOauth.AccessToken, nil
}

// ProviderForModel maps a model name to the backend that serves it.
func ProviderForModel(model string) models.Provider {
	if strings.HasPrefix(strings.ToLower(model), "glm") {
		return models.ProviderZAI
	}
	return models.ProviderAnthropic
}

// BaseURL returns the base-URL override for a provider, or empty when the
// default endpoint applies.
func BaseURL(provider models.Provider) string {
	if provider == models.ProviderZAI {
		return ZAIBaseURL
	}
	return ""
}

// RequiredKeyEnv returns the environment variable a provider requires, or
// empty when none is needed beyond the resolved token.
func RequiredKeyEnv(provider models.Provider) string {
	if provider == models.ProviderZAI {
		return ZAIKeyEnvVar
	}
	return ""
}

// CheckProviderKeys verifies that every model's provider has its required
// key present, returning an error that names the offending models.
func CheckProviderKeys(modelNames []string) error {
	var missing []string
	for _, model := range modelNames {
		keyVar := RequiredKeyEnv(ProviderForModel(model))
		if keyVar == "" {
			continue
		}
		if strings.TrimSpace(os.Getenv(keyVar)) == "" {
			missing = append(missing, fmt.Sprintf("%s (requires %s)", model, keyVar))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing provider API key for: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PassthroughEnv returns KEY=VALUE pairs for the SDK variables that are
// set in the current environment.
func PassthroughEnv() []string {
	var env []string
	for _, name := range SDKEnvVars {
		if value, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+value)
		}
	}
	return env
}

// ProviderEnv returns the environment overrides needed to route a model to
// its provider. Empty for the default provider.
func ProviderEnv(model string) []string {
	provider := ProviderForModel(model)
	if provider != models.ProviderZAI {
		return nil
	}
	env := []string{
		"ANTHROPIC_BASE_URL=" + ZAIBaseURL,
		fmt.Sprintf("API_TIMEOUT_MS=%d", ZAITimeoutMS),
	}
	if key := os.Getenv(ZAIKeyEnvVar); key != "" {
		env = append(env, "ANTHROPIC_AUTH_TOKEN="+key)
	}
	return env
}
