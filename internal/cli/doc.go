// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the longevity command line.
//
// # Commands
//
//	longevity relay         Run the chat relay backend
//	longevity web           Run the browser frontend
//	longevity chat          Chat in the terminal (TUI, --plain, or piped stdin)
//	longevity supplements   Look up the supplement catalog offline
//	longevity config        Show, get, set, validate and initialise settings
//	longevity version       Print version information
//
// # Global Flags
//
//	--config PATH      Use a specific TOML or JSON config file
//	--log-level LEVEL  Override log.level
//	--json             Machine-readable output where supported
package cli
