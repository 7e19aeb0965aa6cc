// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// Kind classifies an upstream failure.
type Kind string

const (
	KindNotConfigured  Kind = "not_configured"
	KindAuth           Kind = "auth"
	KindRateLimited    Kind = "rate_limited"
	KindTimeout        Kind = "timeout"
	KindUnavailable    Kind = "unavailable"
	KindBadResponse    Kind = "bad_response"
	KindInvalidRequest Kind = "invalid_request"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrNotConfigured  = &Error{Kind: KindNotConfigured, Message: "completion provider not configured (missing API key)"}
	ErrAuthFailed     = &Error{Kind: KindAuth, Message: "upstream authentication failed"}
	ErrRateLimited    = &Error{Kind: KindRateLimited, Message: "upstream rate limit exceeded"}
	ErrTimeout        = &Error{Kind: KindTimeout, Message: "upstream request timed out"}
	ErrUnavailable    = &Error{Kind: KindUnavailable, Message: "upstream unavailable"}
	ErrBadResponse    = &Error{Kind: KindBadResponse, Message: "upstream returned an unusable response"}
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest, Message: "upstream rejected the request"}
)

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string

	// Status is the upstream HTTP status, 0 when none was received.
	Status int

	Message string

	// RetryAfter is the upstream's requested delay, if it sent one.
	RetryAfter time.Duration

	Err error
}

// Error implements error.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindUnavailable, KindTimeout:
		return true
	}
	return false
}

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// FromStatus classifies an upstream HTTP status code.
func FromStatus(provider string, status int, message string) *Error {
	e := &Error{Provider: provider, Status: status, Message: message}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
	case status >= 500:
		e.Kind = KindUnavailable
	case status == http.StatusPaymentRequired:
		// OpenRouter signals exhausted credits this way.
		e.Kind = KindAuth
	default:
		e.Kind = KindInvalidRequest
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// Classify converts an arbitrary provider or transport error into *Error.
// Already classified errors pass through with the provider name filled in.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var ce *Error
	if errors.As(err, &ce) {
		if ce.Provider == "" {
			cp := *ce
			cp.Provider = provider
			return &cp
		}
		return err
	}

	// Caller cancellation is not an upstream failure; keep it recognisable.
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: provider, Message: "upstream request timed out", Err: err}
	}

	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		e := FromStatus(provider, oaErr.StatusCode, oaErr.Message)
		if oaErr.Response != nil {
			e.RetryAfter = parseRetryAfter(oaErr.Response.Header.Get("Retry-After"))
		}
		e.Err = err
		return e
	}

	var gErr genai.APIError
	if errors.As(err, &gErr) {
		e := FromStatus(provider, gErr.Code, gErr.Message)
		e.Err = err
		return e
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Provider: provider, Message: "upstream request timed out", Err: err}
		}
		return &Error{Kind: KindUnavailable, Provider: provider, Message: "upstream connection failed", Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindUnavailable, Provider: provider, Message: "upstream connection failed", Err: err}
	}

	return &Error{Kind: KindUnavailable, Provider: provider, Message: "upstream request failed", Err: err}
}

// parseRetryAfter reads a Retry-After header in delta-seconds or HTTP-date form.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
