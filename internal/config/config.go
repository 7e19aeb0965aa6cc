// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// the relay, the web frontend and the terminal client.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - the path given with --config
//   - ~/.longevity/config.toml
//   - ~/.longevity/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ayseljafar/Longevity-check/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete application configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Relay backend (POST /chat)
	Relay RelayConfig `toml:"relay" json:"relay"`

	// Browser frontend
	Web WebConfig `toml:"web" json:"web"`

	// Upstream completion API
	Completion CompletionConfig `toml:"completion" json:"completion"`

	// Supplement catalog
	Knowledge KnowledgeConfig `toml:"knowledge" json:"knowledge"`

	// Structured logging
	Log LogConfig `toml:"log" json:"log"`
}

// RelayConfig contains the relay HTTP server settings.
type RelayConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`

	// AuthToken enables bearer authentication when non-empty.
	AuthToken  string   `toml:"auth_token" json:"auth_token"`
	AllowedIPs []string `toml:"allowed_ips" json:"allowed_ips"`

	// CORSOrigins lists browser origins allowed to call the relay directly.
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins"`

	// Per-client token bucket.
	RateLimitPerMinute int `toml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	RateLimitBurst     int `toml:"rate_limit_burst" json:"rate_limit_burst"`

	ReadTimeoutSecs  int `toml:"read_timeout_secs" json:"read_timeout_secs"`
	WriteTimeoutSecs int `toml:"write_timeout_secs" json:"write_timeout_secs"`

	// SessionTimeoutSecs bounds sessions kept for clients that post a
	// session_id instead of the full history.
	SessionTimeoutSecs int `toml:"session_timeout_secs" json:"session_timeout_secs"`
}

// WebConfig contains the browser frontend settings.
type WebConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`

	// RelayURL is the base URL of the relay backend.
	RelayURL string `toml:"relay_url" json:"relay_url"`

	// RelayToken is sent as a bearer token when the relay requires auth.
	RelayToken string `toml:"relay_token" json:"relay_token"`

	RelayTimeoutSecs   int `toml:"relay_timeout_secs" json:"relay_timeout_secs"`
	SessionTimeoutSecs int `toml:"session_timeout_secs" json:"session_timeout_secs"`
}

// CompletionConfig contains the upstream completion API settings.
type CompletionConfig struct {
	// Provider is one of openai, google, openrouter, static.
	Provider string `toml:"provider" json:"provider"`
	APIKey   string `toml:"api_key" json:"api_key"`
	BaseURL  string `toml:"base_url" json:"base_url"`
	Model    string `toml:"model" json:"model"`

	Temperature float64 `toml:"temperature" json:"temperature"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens"`

	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	MaxRetries  int `toml:"max_retries" json:"max_retries"`

	// HistoryWindow is the number of recent turns forwarded upstream.
	HistoryWindow int `toml:"history_window" json:"history_window"`

	// GoalDetection enables the extra JSON-mode call that extracts health goals.
	GoalDetection bool `toml:"goal_detection" json:"goal_detection"`
}

// KnowledgeConfig contains the supplement catalog settings.
type KnowledgeConfig struct {
	// Path is a .json, .yaml/.yml or .db/.sqlite catalog. Empty uses built-ins.
	Path string `toml:"path" json:"path"`

	// Watch reloads the catalog file when it changes.
	Watch bool `toml:"watch" json:"watch"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`

	// File enables a rotated log file in addition to stderr.
	File       string `toml:"file" json:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress"`
}

// Timeout returns the upstream timeout as a duration.
func (c CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Addr returns the relay listen address.
func (c RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionTimeout returns the relay session timeout as a duration.
func (c RelayConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSecs) * time.Second
}

// Addr returns the web frontend listen address.
func (c WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RelayTimeout returns the frontend-to-relay timeout as a duration.
func (c WebConfig) RelayTimeout() time.Duration {
	return time.Duration(c.RelayTimeoutSecs) * time.Second
}

// SessionTimeout returns the browser session timeout as a duration.
func (c WebConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSecs) * time.Second
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Providers lists the completion providers the relay can be configured with.
var Providers = []string{"openai", "google", "openrouter", "static"}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Relay: RelayConfig{
			Host:               "127.0.0.1",
			Port:               8000,
			AllowedIPs:         []string{},
			CORSOrigins:        []string{"http://localhost:8501", "http://127.0.0.1:8501"},
			RateLimitPerMinute: 60,
			RateLimitBurst:     10,
			ReadTimeoutSecs:    30,
			WriteTimeoutSecs:   120,
			SessionTimeoutSecs: 3600,
		},

		Web: WebConfig{
			Host:               "127.0.0.1",
			Port:               8501,
			RelayURL:           "http://127.0.0.1:8000",
			RelayTimeoutSecs:   90,
			SessionTimeoutSecs: 3600,
		},

		Completion: CompletionConfig{
			Provider:      "openai",
			Temperature:   0.7,
			MaxTokens:     800,
			TimeoutSecs:   60,
			MaxRetries:    2,
			HistoryWindow: 10,
			GoalDetection: true,
		},

		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  5,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

// defaultModels maps each provider to the model used when none is configured.
var defaultModels = map[string]string{
	"openai":     "gpt-4o",
	"google":     "gemini-2.5-flash",
	"openrouter": "openai/gpt-4o",
	"static":     "static",
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".longevity"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens config files to 0600 since they may hold API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}

	cfg := Default()
	return cfg, cfg.finish()
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
// Keys missing from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies environment overrides and defaults, then validates.
func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SetDefaults fills zero values that have no meaningful zero setting.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}

	if c.Relay.Host == "" {
		c.Relay.Host = d.Relay.Host
	}
	if c.Relay.Port == 0 {
		c.Relay.Port = d.Relay.Port
	}
	if c.Relay.RateLimitPerMinute == 0 {
		c.Relay.RateLimitPerMinute = d.Relay.RateLimitPerMinute
	}
	if c.Relay.RateLimitBurst == 0 {
		c.Relay.RateLimitBurst = d.Relay.RateLimitBurst
	}
	if c.Relay.ReadTimeoutSecs == 0 {
		c.Relay.ReadTimeoutSecs = d.Relay.ReadTimeoutSecs
	}
	if c.Relay.WriteTimeoutSecs == 0 {
		c.Relay.WriteTimeoutSecs = d.Relay.WriteTimeoutSecs
	}
	if c.Relay.SessionTimeoutSecs == 0 {
		c.Relay.SessionTimeoutSecs = d.Relay.SessionTimeoutSecs
	}

	if c.Web.Host == "" {
		c.Web.Host = d.Web.Host
	}
	if c.Web.Port == 0 {
		c.Web.Port = d.Web.Port
	}
	if c.Web.RelayURL == "" {
		c.Web.RelayURL = d.Web.RelayURL
	}
	if c.Web.RelayTimeoutSecs == 0 {
		c.Web.RelayTimeoutSecs = d.Web.RelayTimeoutSecs
	}
	if c.Web.SessionTimeoutSecs == 0 {
		c.Web.SessionTimeoutSecs = d.Web.SessionTimeoutSecs
	}

	c.Completion.Provider = strings.ToLower(strings.TrimSpace(c.Completion.Provider))
	if c.Completion.Provider == "" {
		c.Completion.Provider = d.Completion.Provider
	}
	if c.Completion.Model == "" {
		c.Completion.Model = defaultModels[c.Completion.Provider]
	}
	if c.Completion.MaxTokens == 0 {
		c.Completion.MaxTokens = d.Completion.MaxTokens
	}
	if c.Completion.TimeoutSecs == 0 {
		c.Completion.TimeoutSecs = d.Completion.TimeoutSecs
	}
	if c.Completion.HistoryWindow == 0 {
		c.Completion.HistoryWindow = d.Completion.HistoryWindow
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = d.Log.MaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = d.Log.MaxBackups
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = d.Log.MaxAgeDays
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var sb strings.Builder
	sb.WriteString("# Longevity Check configuration file\n")
	sb.WriteString("# Secrets may also be supplied through LONGEVITY_API_KEY and friends.\n\n")

	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration atomically with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	validPort := func(field string, port int) {
		if port < 1 || port > 65535 {
			add(field, "must be between 1 and 65535, got %d", port)
		}
	}
	validPort("relay.port", c.Relay.Port)
	validPort("web.port", c.Web.Port)

	if c.Relay.RateLimitPerMinute < 0 {
		add("relay.rate_limit_per_minute", "must not be negative")
	}
	if c.Relay.RateLimitBurst < 0 {
		add("relay.rate_limit_burst", "must not be negative")
	}
	if c.Relay.ReadTimeoutSecs < 0 || c.Relay.WriteTimeoutSecs < 0 {
		add("relay.timeouts", "must not be negative")
	}
	if c.Relay.SessionTimeoutSecs < 60 {
		add("relay.session_timeout_secs", "must be at least 60, got %d", c.Relay.SessionTimeoutSecs)
	}

	if u, err := url.Parse(c.Web.RelayURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("web.relay_url", "must be an absolute http(s) URL, got %q", c.Web.RelayURL)
	}
	if c.Web.RelayTimeoutSecs < 1 {
		add("web.relay_timeout_secs", "must be at least 1")
	}
	if c.Web.SessionTimeoutSecs < 60 {
		add("web.session_timeout_secs", "must be at least 60, got %d", c.Web.SessionTimeoutSecs)
	}

	if !isValidProvider(c.Completion.Provider) {
		add("completion.provider", "must be one of %s, got %q", strings.Join(Providers, ", "), c.Completion.Provider)
	}
	if c.Completion.BaseURL != "" {
		if u, err := url.Parse(c.Completion.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("completion.base_url", "must be an absolute URL, got %q", c.Completion.BaseURL)
		}
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		add("completion.temperature", "must be between 0 and 2, got %.2f", c.Completion.Temperature)
	}
	if c.Completion.MaxTokens < 1 || c.Completion.MaxTokens > 128000 {
		add("completion.max_tokens", "must be between 1 and 128000, got %d", c.Completion.MaxTokens)
	}
	if c.Completion.TimeoutSecs < 1 || c.Completion.TimeoutSecs > 600 {
		add("completion.timeout_secs", "must be between 1 and 600, got %d", c.Completion.TimeoutSecs)
	}
	// A turn, goal detection included, is bounded by completion.timeout_secs.
	// Callers must wait longer than that to see the relay's own 504.
	if c.Web.RelayTimeoutSecs <= c.Completion.TimeoutSecs {
		add("web.relay_timeout_secs", "must exceed completion.timeout_secs (%d), got %d",
			c.Completion.TimeoutSecs, c.Web.RelayTimeoutSecs)
	}
	if c.Relay.WriteTimeoutSecs > 0 && c.Relay.WriteTimeoutSecs <= c.Completion.TimeoutSecs {
		add("relay.write_timeout_secs", "must exceed completion.timeout_secs (%d), got %d",
			c.Completion.TimeoutSecs, c.Relay.WriteTimeoutSecs)
	}
	if c.Completion.MaxRetries < 0 || c.Completion.MaxRetries > 10 {
		add("completion.max_retries", "must be between 0 and 10, got %d", c.Completion.MaxRetries)
	}
	if c.Completion.HistoryWindow < 1 || c.Completion.HistoryWindow > 100 {
		add("completion.history_window", "must be between 1 and 100, got %d", c.Completion.HistoryWindow)
	}

	if c.Knowledge.Path != "" {
		switch strings.ToLower(filepath.Ext(c.Knowledge.Path)) {
		case ".json", ".yaml", ".yml", ".db", ".sqlite", ".sqlite3":
		default:
			add("knowledge.path", "unsupported catalog format %q", filepath.Ext(c.Knowledge.Path))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", "must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format", "must be text or json, got %q", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isValidProvider(name string) bool {
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - LONGEVITY_PROVIDER: overrides completion.provider
//   - LONGEVITY_MODEL: overrides completion.model
//   - LONGEVITY_API_KEY: overrides completion.api_key
//   - OPENAI_API_KEY, GEMINI_API_KEY, GOOGLE_API_KEY, OPENROUTER_API_KEY:
//     used when completion.api_key is still empty, matched to the provider
//   - LONGEVITY_BASE_URL: overrides completion.base_url
//   - LONGEVITY_RELAY_PORT: overrides relay.port
//   - LONGEVITY_AUTH_TOKEN: overrides relay.auth_token and web.relay_token
//   - LONGEVITY_RELAY_URL: overrides web.relay_url
//   - LONGEVITY_WEB_PORT: overrides web.port
//   - LONGEVITY_KNOWLEDGE_PATH: overrides knowledge.path
//   - LONGEVITY_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if provider := os.Getenv("LONGEVITY_PROVIDER"); provider != "" {
		c.Completion.Provider = strings.ToLower(provider)
	}
	if model := os.Getenv("LONGEVITY_MODEL"); model != "" {
		c.Completion.Model = model
	}
	if key := os.Getenv("LONGEVITY_API_KEY"); key != "" {
		c.Completion.APIKey = key
	}
	if c.Completion.APIKey == "" {
		c.Completion.APIKey = providerKeyFromEnv(c.Completion.Provider)
	}
	if baseURL := os.Getenv("LONGEVITY_BASE_URL"); baseURL != "" {
		c.Completion.BaseURL = baseURL
	}

	if port := os.Getenv("LONGEVITY_RELAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Relay.Port = p
		}
	}
	if token := os.Getenv("LONGEVITY_AUTH_TOKEN"); token != "" {
		c.Relay.AuthToken = token
		c.Web.RelayToken = token
	}

	if relayURL := os.Getenv("LONGEVITY_RELAY_URL"); relayURL != "" {
		c.Web.RelayURL = relayURL
	}
	if port := os.Getenv("LONGEVITY_WEB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Web.Port = p
		}
	}

	if path := os.Getenv("LONGEVITY_KNOWLEDGE_PATH"); path != "" {
		c.Knowledge.Path = path
	}
	if level := os.Getenv("LONGEVITY_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

func providerKeyFromEnv(provider string) string {
	var names []string
	switch provider {
	case "openai", "":
		names = []string{"OPENAI_API_KEY"}
	case "google":
		names = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case "openrouter":
		names = []string{"OPENROUTER_API_KEY"}
	}
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "completion.model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "relay.port").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"relay.host",
		"relay.port",
		"relay.auth_token",
		"relay.allowed_ips",
		"relay.cors_origins",
		"relay.rate_limit_per_minute",
		"relay.rate_limit_burst",
		"relay.read_timeout_secs",
		"relay.write_timeout_secs",
		"relay.session_timeout_secs",
		"web.host",
		"web.port",
		"web.relay_url",
		"web.relay_token",
		"web.relay_timeout_secs",
		"web.session_timeout_secs",
		"completion.provider",
		"completion.api_key",
		"completion.base_url",
		"completion.model",
		"completion.temperature",
		"completion.max_tokens",
		"completion.timeout_secs",
		"completion.max_retries",
		"completion.history_window",
		"completion.goal_detection",
		"knowledge.path",
		"knowledge.watch",
		"log.level",
		"log.format",
		"log.file",
		"log.max_size_mb",
		"log.max_backups",
		"log.max_age_days",
		"log.compress",
	}
}

// IsSecretKey reports whether a dot-notation key holds a credential.
func IsSecretKey(key string) bool {
	switch key {
	case "relay.auth_token", "web.relay_token", "completion.api_key":
		return true
	}
	return false
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Relay.AllowedIPs = append([]string(nil), c.Relay.AllowedIPs...)
	clone.Relay.CORSOrigins = append([]string(nil), c.Relay.CORSOrigins...)
	return &clone
}

// String returns a JSON rendering of the config with credentials redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Completion.APIKey != "" {
		safe.Completion.APIKey = "[REDACTED]"
	}
	if safe.Relay.AuthToken != "" {
		safe.Relay.AuthToken = "[REDACTED]"
	}
	if safe.Web.RelayToken != "" {
		safe.Web.RelayToken = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
