package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Storage StorageConfig
	Objects ObjectsConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type AIConfig struct {
	Provider        string // "gemini" or "noop"
	GeminiAPIKey    string
	Model           string
	CacheTTLSeconds int
}

type StorageConfig struct {
	DataDir string
}

type ObjectsConfig struct {
	Backend   string // "disk" or "gcs"
	Dir       string
	GCSBucket string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		AI: AIConfig{
			Provider:        "gemini",
			Model:           "gemini-2.5-flash",
			CacheTTLSeconds: 86400,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Objects: ObjectsConfig{
			Backend: "disk",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.aide.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/aide/config.json
// and secrets must be provided via environment variables.
//
// Environment variables (AIDE_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for the Gemini key if still empty.
	if cfg.AI.GeminiAPIKey == "" {
		if key, err := kc.Get("aide", "gemini_api_key"); err == nil && key != "" {
			cfg.AI.GeminiAPIKey = key
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.AI.Provider {
	case "gemini":
		if cfg.AI.GeminiAPIKey == "" {
			msg := "missing required config: Gemini API key. " +
				"Set it via environment variable AIDE_GEMINI_API_KEY" +
				apiKeyHint() +
				", or run with AIDE_AI_PROVIDER=noop to disable generation"
			return fmt.Errorf("%s", msg)
		}
	case "noop":
	default:
		return fmt.Errorf("unknown ai provider %q (valid: gemini, noop)", cfg.AI.Provider)
	}

	switch cfg.Objects.Backend {
	case "disk":
	case "gcs":
		if cfg.Objects.GCSBucket == "" {
			return fmt.Errorf("objects.backend is gcs but objects.gcs_bucket is empty")
		}
	default:
		return fmt.Errorf("unknown objects backend %q (valid: disk, gcs)", cfg.Objects.Backend)
	}

	return nil
}

// keychainReader reads from macOS Keychain via the security CLI.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
