// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusPaymentRequired, KindAuth},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusRequestTimeout, KindTimeout},
		{http.StatusGatewayTimeout, KindTimeout},
		{http.StatusInternalServerError, KindUnavailable},
		{http.StatusServiceUnavailable, KindUnavailable},
		{http.StatusBadRequest, KindInvalidRequest},
		{http.StatusNotFound, KindInvalidRequest},
	}
	for _, tt := range tests {
		e := FromStatus("p", tt.status, "")
		if e.Kind != tt.want {
			t.Errorf("FromStatus(%d).Kind = %q, want %q", tt.status, e.Kind, tt.want)
		}
		if e.Message == "" {
			t.Errorf("FromStatus(%d) left message empty", tt.status)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"net timeout", timeoutErr{}, KindTimeout},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindUnavailable},
		{"unknown", errors.New("boom"), KindUnavailable},
		{"already classified", ErrRateLimited, KindRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(Classify("p", tt.err)); got != tt.want {
				t.Errorf("Classify(%v) kind = %q, want %q", tt.err, got, tt.want)
			}
		})
	}

	if Classify("p", nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
	if err := Classify("p", context.Canceled); !errors.Is(err, context.Canceled) || KindOf(err) != "" {
		t.Errorf("Classify(Canceled) = %v, want passthrough", err)
	}
}

func TestClassify_FillsProvider(t *testing.T) {
	err := Classify("openai", ErrNotConfigured)
	var ce *Error
	if !errors.As(err, &ce) || ce.Provider != "openai" {
		t.Fatalf("provider not filled: %v", err)
	}
	if ErrNotConfigured.Provider != "" {
		t.Error("Classify mutated the sentinel")
	}
}

func TestError_Message(t *testing.T) {
	e := &Error{Kind: KindUnavailable, Provider: "openrouter", Status: 503, Message: "down", Err: errors.New("eof")}
	got := e.Error()
	for _, want := range []string{"openrouter", "down", "503", "eof"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
	if !e.Retryable() {
		t.Error("unavailable should be retryable")
	}
	if (&Error{Kind: KindAuth}).Retryable() {
		t.Error("auth should not be retryable")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("5"); got != 5*time.Second {
		t.Errorf("parseRetryAfter(5) = %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(\"\") = %v", got)
	}
	if got := parseRetryAfter("garbage"); got != 0 {
		t.Errorf("parseRetryAfter(garbage) = %v", got)
	}
	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > 11*time.Second {
		t.Errorf("parseRetryAfter(date) = %v", got)
	}
}
