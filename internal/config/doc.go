// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - RelayConfig: Relay listen address, auth, CORS and rate limits
//   - WebConfig: Browser frontend listen address and relay location
//   - CompletionConfig: Upstream provider, model and retry policy
//   - KnowledgeConfig: Supplement catalog source
//   - LogConfig: Log level, format and rotation
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (LONGEVITY_*, plus OPENAI_API_KEY and friends)
//   - ~/.longevity/config.toml
//   - ~/.longevity/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	addr := cfg.Relay.Addr()
package config
