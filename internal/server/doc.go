// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server is the chat relay: it accepts a conversation from the
// frontend, asks the completion provider for one assistant reply and
// returns it.
//
// # Endpoints
//
//   - POST /chat                   - {messages} or {session_id, message} -> {reply, messages}
//   - GET  /health                 - Liveness, provider and catalog size
//   - GET  /stats                  - Request and token counters
//   - GET  /v1/supplements?goal=   - Catalog lookup
//   - GET  /v1/disclaimers/{kind}  - Disclaimer text
//
// # Status Codes
//
// Client mistakes (empty content, bad roles, malformed JSON) are 400 and 413
// for oversized bodies. Upstream failures are 502 when the provider answered
// with an error, 503 with Retry-After when it could not be reached or is
// rate limiting, and 504 when it timed out. Provider details are logged,
// never returned.
//
// # Middleware
//
// Recovery, security headers, request logging, per-IP rate limiting, CORS
// and optional bearer/IP allowlist auth, applied in that order.
package server
