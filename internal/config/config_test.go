package config

import (
	"errors"
	"strings"
	"testing"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

// mapBackend is an in-memory ConfigBackend for tests.
type mapBackend map[string]any

func (b mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (b mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (b mapBackend) SetString(key, val string) error { b[key] = val; return nil }
func (b mapBackend) SetInt(key string, val int) error { b[key] = val; return nil }
func (b mapBackend) Delete(key string) error          { delete(b, key); return nil }

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(mapBackend{}, mockKeychain{value: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.AI.Provider != "gemini" {
		t.Errorf("AI.Provider = %q, want gemini", cfg.AI.Provider)
	}
	if cfg.AI.Model != "gemini-2.5-flash" {
		t.Errorf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.CacheTTLSeconds != 86400 {
		t.Errorf("AI.CacheTTLSeconds = %d, want 86400", cfg.AI.CacheTTLSeconds)
	}
	if cfg.Objects.Backend != "disk" {
		t.Errorf("Objects.Backend = %q, want disk", cfg.Objects.Backend)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.AI.GeminiAPIKey != "test-key" {
		t.Errorf("GeminiAPIKey = %q, want keychain value", cfg.AI.GeminiAPIKey)
	}
}

func TestBackendOverrides(t *testing.T) {
	b := mapBackend{
		"server.port": 8080,
		"ai.provider": "noop",
		"ai.model":    "gemini-2.5-pro",
		"log.level":   "debug",
	}

	cfg, err := loadWith(b, mockKeychain{err: errors.New("no keychain")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.AI.Provider != "noop" || cfg.AI.Model != "gemini-2.5-pro" {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	t.Setenv("AIDE_SERVER_PORT", "9999")
	t.Setenv("AIDE_AI_PROVIDER", "noop")
	t.Setenv("AIDE_API_TOKEN", "secret-token")

	b := mapBackend{"server.port": 8080}
	cfg, err := loadWith(b, mockKeychain{err: errors.New("no keychain")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want env override 9999", cfg.Server.Port)
	}
	if cfg.Server.APIToken != "secret-token" {
		t.Errorf("APIToken = %q", cfg.Server.APIToken)
	}
}

func TestMissingGeminiKey(t *testing.T) {
	_, err := loadWith(mapBackend{}, mockKeychain{err: errors.New("no keychain")})
	if err == nil {
		t.Fatal("expected error for gemini provider without API key")
	}
	if !strings.Contains(err.Error(), "AIDE_GEMINI_API_KEY") {
		t.Errorf("error should name the env var, got: %v", err)
	}
}

func TestNoopProviderNeedsNoKey(t *testing.T) {
	b := mapBackend{"ai.provider": "noop"}
	if _, err := loadWith(b, mockKeychain{err: errors.New("no keychain")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGCSBackendRequiresBucket(t *testing.T) {
	b := mapBackend{"ai.provider": "noop", "objects.backend": "gcs"}
	if _, err := loadWith(b, mockKeychain{}); err == nil {
		t.Fatal("expected error for gcs backend without bucket")
	}

	b["objects.gcs_bucket"] = "aide-uploads"
	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Objects.GCSBucket != "aide-uploads" {
		t.Errorf("GCSBucket = %q", cfg.Objects.GCSBucket)
	}
}

func TestUnknownProvider(t *testing.T) {
	b := mapBackend{"ai.provider": "openai"}
	if _, err := loadWith(b, mockKeychain{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.AI.GeminiAPIKey = "super-secret"
	cfg.Server.APIToken = "also-secret"

	for _, info := range ShowAll(cfg) {
		if info.Value == "super-secret" || info.Value == "also-secret" {
			t.Errorf("secret leaked through ShowAll: %+v", info)
		}
	}
}
