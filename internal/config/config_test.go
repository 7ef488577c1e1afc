package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain map[string]string

func (m mockKeychain) Get(service, account string) (string, error) {
	if service != keychainService {
		return "", errors.New("unknown service")
	}
	v, ok := m[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func writeTempConfig(t *testing.T, content string) *tomlBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	b, err := newTOMLBackend(path)
	require.NoError(t, err)
	return b
}

// clearEnv unsets every PARLEY_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
	t.Setenv("GEMINI_API_KEY", "")
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, ""), mockKeychain{})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, 64, cfg.Server.MaxConnections)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.NotEmpty(t, cfg.Storage.DataDir)
	assert.Equal(t, "gemini", cfg.Generation.Provider)
	assert.Equal(t, 60*time.Second, cfg.Generation.Timeout)
	assert.False(t, cfg.Chat.StoreRawInput)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Generation.APIKey)
}

func TestFileValues(t *testing.T) {
	clearEnv(t)

	b := writeTempConfig(t, `
[server]
host = "0.0.0.0"
port = 5000

[generation]
provider = "anthropic"
model = "claude-test"
timeout = "2m"

[chat]
store_raw_input = true
`)
	cfg, err := loadWith(b, mockKeychain{})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.Generation.Provider)
	assert.Equal(t, "claude-test", cfg.Generation.Model)
	assert.Equal(t, 2*time.Minute, cfg.Generation.Timeout)
	assert.True(t, cfg.Chat.StoreRawInput)
	assert.Equal(t, "http://127.0.0.1:5000", cfg.BaseURL())
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARLEY_SERVER_PORT", "6000")
	t.Setenv("PARLEY_GENERATION_API_KEY", "env-key")
	t.Setenv("PARLEY_CHAT_STORE_RAW_INPUT", "true")

	cfg, err := loadWith(writeTempConfig(t, "[server]\nport = 5000\n"), mockKeychain{"generation_api_key": "kc-key"})
	require.NoError(t, err)

	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Generation.APIKey, "env wins over keychain")
	assert.True(t, cfg.Chat.StoreRawInput)
}

func TestEnvOverride_InvalidValueKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARLEY_SERVER_PORT", "not-a-port")
	t.Setenv("PARLEY_GENERATION_TIMEOUT", "soon")

	cfg, err := loadWith(writeTempConfig(t, ""), mockKeychain{})
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Generation.Timeout)
}

func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, ""), mockKeychain{
		"generation_api_key":   "kc-key",
		"server_token":         "kc-token",
		"storage_postgres_dsn": "postgres://localhost/parley",
	})
	require.NoError(t, err)

	assert.Equal(t, "kc-key", cfg.Generation.APIKey)
	assert.Equal(t, "kc-token", cfg.Server.Token)
	assert.Equal(t, "postgres://localhost/parley", cfg.Storage.PostgresDSN)
}

func TestGeminiAPIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	cfg, err := loadWith(writeTempConfig(t, ""), mockKeychain{})
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.Generation.APIKey)
}

func TestSecretsIgnoredInFile(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, "[generation]\napi_key = \"from-file\"\n"), mockKeychain{})
	require.NoError(t, err)
	assert.Empty(t, cfg.Generation.APIKey)
}

func TestInvalidFileValue(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(writeTempConfig(t, "[server]\nport = \"abc\"\n"), mockKeychain{})
	assert.ErrorContains(t, err, "server.port")
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARLEY_GENERATION_API_KEY")

	cfg.Generation.APIKey = "k"
	assert.NoError(t, cfg.Validate())

	ollama := defaults()
	ollama.Generation.Provider = "ollama"
	assert.NoError(t, ollama.Validate(), "ollama needs no key")

	pg := defaults()
	pg.Generation.APIKey = "k"
	pg.Storage.Driver = "postgres"
	assert.ErrorContains(t, pg.Validate(), "postgres_dsn")

	bad := defaults()
	bad.Generation.APIKey = "k"
	bad.Storage.Driver = "mysql"
	assert.ErrorContains(t, bad.Validate(), "invalid storage.driver")
}

func TestGenerationSettings(t *testing.T) {
	cfg := defaults()
	cfg.Generation.APIKey = "k"
	cfg.Generation.Model = "m"

	g := cfg.GenerationSettings()
	assert.Equal(t, "gemini", g.Provider)
	assert.Equal(t, "m", g.Model)
	assert.Equal(t, "k", g.APIKey)
	assert.Equal(t, 60*time.Second, g.Timeout)
}
