package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kalambet/parley/internal/generation"
)

const keychainService = "parley"

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Generation GenerationConfig
	Chat       ChatConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	MaxConnections int
	// Token enables bearer auth on the API when set.
	Token string
}

type StorageConfig struct {
	Driver      string
	DataDir     string
	PostgresDSN string
}

type GenerationConfig struct {
	Provider string
	// Model is empty for the provider's default.
	Model   string
	BaseURL string
	Timeout time.Duration
	APIKey  string
}

type ChatConfig struct {
	// StoreRawInput persists project requests as typed instead of the composed prompt.
	StoreRawInput bool
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           4100,
			MaxConnections: 64,
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
		},
		Generation: GenerationConfig{
			Provider: generation.ProviderGemini,
			Timeout:  60 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the TOML config file, environment variables
// (PARLEY_*, which override the file) and the platform secret store.
//
// On macOS secrets fall back to the Keychain (service: parley). Elsewhere
// they fall back to $XDG_DATA_HOME/parley/secrets.toml.
//
// Load does not require credentials; call Validate before serving.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	// The hosted default reads the same variable as the Gemini SDKs.
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	return cfg, nil
}

// applySecrets fills empty secrets from the secret store.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, secretAccount(s.key)); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

// secretAccount maps "generation.api_key" to "generation_api_key".
func secretAccount(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}

// Validate reports settings that prevent the server from starting.
func (c Config) Validate() error {
	if generation.RequiresAPIKey(strings.ToLower(c.Generation.Provider)) && c.Generation.APIKey == "" {
		return fmt.Errorf("missing required config: generation API key for provider %q. "+
			"Set it via environment variable PARLEY_GENERATION_API_KEY or GEMINI_API_KEY%s",
			c.Generation.Provider, apiKeyHint())
	}
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("missing required config: storage.postgres_dsn (PARLEY_STORAGE_POSTGRES_DSN) for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q (supported: sqlite, postgres)", c.Storage.Driver)
	}
	return nil
}

// GenerationSettings converts the generation section for generation.New.
func (c Config) GenerationSettings() generation.Config {
	return generation.Config{
		Provider: c.Generation.Provider,
		Model:    c.Generation.Model,
		BaseURL:  c.Generation.BaseURL,
		APIKey:   c.Generation.APIKey,
		Timeout:  c.Generation.Timeout,
	}
}

// Addr is the host:port the server listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BaseURL is the URL clients use to reach the local server.
func (c Config) BaseURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
