package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tasklift/autopilot/internal/models"
)

func clearTokenEnv(t *testing.T) {
	t.Helper()
	for _, name := range AuthTokenEnvVars {
		t.Setenv(name, "")
	}
	t.Setenv("ANTHROPIC_API_KEY", "")
}

func TestResolveTokenEnvPriority(t *testing.T) {
	clearTokenEnv(t)
	t.Setenv("CLAUDE_CODE_OAUTH_TOKEN", "oauth-tok")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "auth-tok")

	token, err := ResolveToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "oauth-tok", token)
}

func TestResolveTokenFallsBackToSecondVar(t *testing.T) {
	clearTokenEnv(t)
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "auth-tok")

	token, err := ResolveToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "auth-tok", token)
}

func TestResolveTokenIgnoresAPIKey(t *testing.T) {
	clearTokenEnv(t)
	// The plain API key must never satisfy token resolution.
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-key")
	t.Setenv("HOME", t.TempDir())

	_, err := ResolveToken(context.Background())
	require.ErrorIs(t, err, ErrNoToken)
}

func TestValidateCredentialsErrorIsActionable(t *testing.T) {
	clearTokenEnv(t)
	t.Setenv("HOME", t.TempDir())

	err := ValidateCredentials(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "CLAUDE_CODE_OAUTH_TOKEN")
}

func TestParseCredentialJSON(t *testing.T) {
	token, err := parseCredentialJSON(`{"claudeAiOauth":{"accessToken":"tok_abc"}}`)
	require.NoError(t, err)
	require.Equal(t, "tok_abc", token)

	_, err = parseCredentialJSON(`{"claudeAiOauth":{}}`)
	require.Error(t, err)

	_, err = parseCredentialJSON(`not json`)
	require.Error(t, err)
}

func TestProviderForModel(t *testing.T) {
	require.Equal(t, models.ProviderZAI, ProviderForModel("glm-4.7"))
	require.Equal(t, models.ProviderZAI, ProviderForModel("GLM-4.7-Air"))
	require.Equal(t, models.ProviderAnthropic, ProviderForModel("claude-sonnet"))
	require.Equal(t, models.ProviderAnthropic, ProviderForModel(""))
}

func TestCheckProviderKeys(t *testing.T) {
	t.Setenv(ZAIKeyEnvVar, "")

	err := CheckProviderKeys([]string{"claude-sonnet", "glm-4.7"})
	require.Error(t, err)
	require.ErrorContains(t, err, "glm-4.7 (requires ZAI_API_KEY)")

	t.Setenv(ZAIKeyEnvVar, "zk-123")
	require.NoError(t, CheckProviderKeys([]string{"claude-sonnet", "glm-4.7"}))

	require.NoError(t, CheckProviderKeys(nil))
}

func TestProviderEnvRoutesGLM(t *testing.T) {
	t.Setenv(ZAIKeyEnvVar, "zk-123")

	env := ProviderEnv("glm-4.7")
	require.Contains(t, env, "ANTHROPIC_BASE_URL="+ZAIBaseURL)
	require.Contains(t, env, "API_TIMEOUT_MS=3000000")
	require.Contains(t, env, "ANTHROPIC_AUTH_TOKEN=zk-123")

	require.Nil(t, ProviderEnv("claude-sonnet"))
}

func TestPassthroughEnvOnlyIncludesSetVars(t *testing.T) {
	t.Setenv("DISABLE_TELEMETRY", "1")

	env := PassthroughEnv()
	require.Contains(t, env, "DISABLE_TELEMETRY=1")
	for _, kv := range env {
		require.NotEmpty(t, kv)
	}
}
