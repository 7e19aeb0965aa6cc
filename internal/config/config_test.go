// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable ApplyEnvOverrides reads for the duration of a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"LONGEVITY_PROVIDER", "LONGEVITY_MODEL", "LONGEVITY_API_KEY", "LONGEVITY_BASE_URL",
		"LONGEVITY_RELAY_PORT", "LONGEVITY_AUTH_TOKEN", "LONGEVITY_RELAY_URL",
		"LONGEVITY_WEB_PORT", "LONGEVITY_KNOWLEDGE_PATH", "LONGEVITY_LOG_LEVEL",
		"OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENROUTER_API_KEY",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

// =============================================================================
// DEFAULTS AND VALIDATION
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "gpt-4o", cfg.Completion.Model)
	assert.Equal(t, 10, cfg.Completion.HistoryWindow)
	assert.Equal(t, "127.0.0.1:8000", cfg.Relay.Addr())
}

func TestSetDefaults_ModelFollowsProvider(t *testing.T) {
	cfg := Default()
	cfg.Completion.Provider = "Google"
	cfg.SetDefaults()
	if cfg.Completion.Provider != "google" {
		t.Errorf("Provider = %q, want %q", cfg.Completion.Provider, "google")
	}
	if cfg.Completion.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q, want %q", cfg.Completion.Model, "gemini-2.5-flash")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad relay port", func(c *Config) { c.Relay.Port = 70000 }, "relay.port"},
		{"bad web port", func(c *Config) { c.Web.Port = -1 }, "web.port"},
		{"unknown provider", func(c *Config) { c.Completion.Provider = "acme" }, "completion.provider"},
		{"temperature too high", func(c *Config) { c.Completion.Temperature = 3 }, "completion.temperature"},
		{"negative retries", func(c *Config) { c.Completion.MaxRetries = -1 }, "completion.max_retries"},
		{"relay url without scheme", func(c *Config) { c.Web.RelayURL = "localhost:8000" }, "web.relay_url"},
		{"bad base url", func(c *Config) { c.Completion.BaseURL = "not a url" }, "completion.base_url"},
		{"unknown catalog format", func(c *Config) { c.Knowledge.Path = "catalog.csv" }, "knowledge.path"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"short session", func(c *Config) { c.Web.SessionTimeoutSecs = 5 }, "web.session_timeout_secs"},
		{"frontend gives up before a turn", func(c *Config) { c.Completion.TimeoutSecs = 90 }, "web.relay_timeout_secs"},
		{"relay write cut before a turn", func(c *Config) { c.Completion.TimeoutSecs = 150; c.Web.RelayTimeoutSecs = 200 }, "relay.write_timeout_secs"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.SetDefaults()
			tc.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() = %v, want ValidateErrors", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tc.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want error for field %s", err, tc.field)
			}
		})
	}
}

func TestValidateErrors_Error(t *testing.T) {
	if got := (ValidateErrors{}).Error(); got != "no validation errors" {
		t.Errorf("empty Error() = %q", got)
	}
	errs := ValidateErrors{{Field: "a", Message: "x"}, {Field: "b", Message: "y"}}
	if got := errs.Error(); got != "a: x; b: y" {
		t.Errorf("Error() = %q, want %q", got, "a: x; b: y")
	}
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoadFromPath_TOMLKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[completion]
provider = "openrouter"
temperature = 0.0
max_retries = 4

[relay]
port = 9100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.Completion.Provider)
	assert.Equal(t, "openai/gpt-4o", cfg.Completion.Model)
	assert.Equal(t, 0.0, cfg.Completion.Temperature)
	assert.Equal(t, 4, cfg.Completion.MaxRetries)
	assert.Equal(t, 9100, cfg.Relay.Port)
	assert.Equal(t, 800, cfg.Completion.MaxTokens, "unset keys keep defaults")
	assert.Equal(t, 8501, cfg.Web.Port)
}

func TestLoadFromPath_JSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"web":{"relay_url":"https://relay.example.com"}}`), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "https://relay.example.com", cfg.Web.RelayURL)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "permissions tightened on load")
}

func TestLoadFromPath_Invalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[completion]\nprovider = \"acme\"\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion.provider")
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Completion.Provider = "google"
	cfg.Knowledge.Path = "/srv/catalog.yaml"
	cfg.SetDefaults()

	require.NoError(t, SaveTOML(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "google", loaded.Completion.Provider)
	assert.Equal(t, "/srv/catalog.yaml", loaded.Knowledge.Path)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LONGEVITY_PROVIDER", "OpenRouter")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("LONGEVITY_RELAY_PORT", "9999")
	t.Setenv("LONGEVITY_AUTH_TOKEN", "secret")
	t.Setenv("LONGEVITY_WEB_PORT", "not-a-number")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "openrouter", cfg.Completion.Provider)
	assert.Equal(t, "sk-or-test", cfg.Completion.APIKey)
	assert.Equal(t, 9999, cfg.Relay.Port)
	assert.Equal(t, "secret", cfg.Relay.AuthToken)
	assert.Equal(t, "secret", cfg.Web.RelayToken)
	assert.Equal(t, 8501, cfg.Web.Port, "invalid port ignored")
}

func TestApplyEnvOverrides_ExplicitKeyWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "from-openai")
	t.Setenv("LONGEVITY_API_KEY", "from-longevity")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if cfg.Completion.APIKey != "from-longevity" {
		t.Errorf("APIKey = %q, want %q", cfg.Completion.APIKey, "from-longevity")
	}
}

// =============================================================================
// GET/SET AND REDACTION
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("relay.port", "9000"))
	require.NoError(t, cfg.Set("completion.temperature", "0.2"))
	require.NoError(t, cfg.Set("knowledge.watch", "yes"))
	require.NoError(t, cfg.Set("relay.cors_origins", "https://a.example, https://b.example"))

	v, err := cfg.Get("relay.port")
	require.NoError(t, err)
	assert.Equal(t, 9000, v)
	assert.Equal(t, 0.2, cfg.Completion.Temperature)
	assert.True(t, cfg.Knowledge.Watch)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Relay.CORSOrigins)

	_, err = cfg.Get("relay.nope")
	assert.Error(t, err)
	_, err = cfg.Get("relay.port.deeper")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("relay.port", "abc"))
}

func TestGetAllKeys_Resolve(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("Get(%q) = %v", key, err)
		}
	}
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Completion.APIKey = "sk-very-secret"
	cfg.Relay.AuthToken = "relay-secret"
	cfg.Web.RelayToken = "relay-secret"

	out := cfg.String()
	if strings.Contains(out, "sk-very-secret") || strings.Contains(out, "relay-secret") {
		t.Errorf("String() leaked a secret: %s", out)
	}
	if cfg.Completion.APIKey != "sk-very-secret" {
		t.Error("String() modified the original config")
	}
}
