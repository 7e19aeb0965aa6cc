// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package completion wraps the external chat completion APIs behind a single
// Provider interface.
//
// Providers register themselves by name from init(). The relay builds one
// from configuration with NewFromConfig, which also applies the retry policy,
// and tests substitute a Func.
//
// # Providers
//
//   - openai: OpenAI chat completions through the official SDK
//   - google: Gemini through the Google Gen AI SDK
//   - openrouter: OpenRouter's OpenAI-compatible HTTP API
//   - static: canned offline replies, no network
//
// # Errors
//
// Every provider error is converted to *Error with a Kind. Callers branch on
// the kind with errors.Is against the exported sentinels:
//
//	resp, err := provider.Complete(ctx, req)
//	switch {
//	case errors.Is(err, completion.ErrNotConfigured):
//	    // 503
//	case errors.Is(err, completion.ErrTimeout):
//	    // 504
//	}
//
// # Retry Policy
//
// Rate limits, 5xx responses and transport failures are retried with
// exponential backoff (500ms, 1s, 2s ... capped at 8s) up to MaxRetries
// times. An upstream Retry-After is honoured when it fits under the cap.
// Authentication failures, invalid requests and malformed responses are
// returned immediately. The whole call, retries included, is bounded by the
// configured timeout.
package completion
