// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session keeps ephemeral, in-memory conversations keyed by a random
// session ID.
//
// Sessions expire after a period of inactivity. Expired sessions are removed
// lazily when accessed and periodically by Run. Nothing is persisted; a
// restart forgets every session.
package session
