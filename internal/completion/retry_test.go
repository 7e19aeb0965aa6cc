// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayseljafar/Longevity-check/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scripted returns the given errors in order, then succeeds.
func scripted(errs ...error) (Func, *int) {
	calls := 0
	return func(ctx context.Context, req Request) (Response, error) {
		calls++
		if calls <= len(errs) {
			return Response{}, errs[calls-1]
		}
		return Response{Content: "ok"}, nil
	}, &calls
}

func newTestRetrying(p Provider, maxRetries int) (*Retrying, *[]time.Duration) {
	policy := DefaultRetryPolicy()
	policy.MaxRetries = maxRetries
	r := WithRetry(p, policy, quietLogger())
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return r, &slept
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		attempt    int
		retryAfter time.Duration
		want       time.Duration
	}{
		{0, 0, 500 * time.Millisecond},
		{1, 0, time.Second},
		{2, 0, 2 * time.Second},
		{4, 0, 8 * time.Second},
		{10, 0, 8 * time.Second},
		{0, 3 * time.Second, 3 * time.Second},
		{0, 30 * time.Second, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt, tt.retryAfter); got != tt.want {
			t.Errorf("Backoff(%d, %v) = %v, want %v", tt.attempt, tt.retryAfter, got, tt.want)
		}
	}
}

func TestRetrying_RetriesTransientFailures(t *testing.T) {
	f, calls := scripted(ErrRateLimited, ErrUnavailable)
	r, slept := newTestRetrying(f, 2)

	resp, err := r.Complete(context.Background(), Request{Messages: []model.ChatMessage{model.NewUserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *slept)
}

func TestRetrying_GivesUpAfterMaxRetries(t *testing.T) {
	f, calls := scripted(ErrUnavailable, ErrUnavailable, ErrUnavailable, ErrUnavailable)
	r, _ := newTestRetrying(f, 2)

	_, err := r.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, *calls)
}

func TestRetrying_NoRetryOnPermanentFailures(t *testing.T) {
	for _, perm := range []error{ErrAuthFailed, ErrInvalidRequest, ErrBadResponse, ErrNotConfigured} {
		f, calls := scripted(perm)
		r, slept := newTestRetrying(f, 2)

		_, err := r.Complete(context.Background(), Request{})
		assert.ErrorIs(t, err, perm)
		assert.Equal(t, 1, *calls, "kind %s", KindOf(perm))
		assert.Empty(t, *slept)
	}
}

func TestRetrying_HonoursRetryAfter(t *testing.T) {
	limited := &Error{Kind: KindRateLimited, Status: 429, RetryAfter: 2 * time.Second}
	f, _ := scripted(limited)
	r, slept := newTestRetrying(f, 1)

	_, err := r.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, *slept)
}

func TestRetrying_RetryAfterBeyondMaxDelayReturnsHint(t *testing.T) {
	limited := &Error{Kind: KindRateLimited, Status: 429, RetryAfter: 30 * time.Second}
	f, calls := scripted(limited)
	r, slept := newTestRetrying(f, 2)

	_, err := r.Complete(context.Background(), Request{})
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindRateLimited, ce.Kind)
	assert.Equal(t, 30*time.Second, ce.RetryAfter)
	assert.Equal(t, 1, *calls)
	assert.Empty(t, *slept)
}

func TestRetrying_NoRetryRequest(t *testing.T) {
	f, calls := scripted(ErrUnavailable)
	r, slept := newTestRetrying(f, 2)

	_, err := r.Complete(context.Background(), Request{NoRetry: true})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, *calls)
	assert.Empty(t, *slept)
}

func TestRetrying_ZeroRetries(t *testing.T) {
	f, calls := scripted(ErrRateLimited)
	r, _ := newTestRetrying(f, 0)

	_, err := r.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, *calls)
}

func TestRetrying_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := Func(func(ctx context.Context, req Request) (Response, error) {
		cancel()
		return Response{}, ctx.Err()
	})
	r, _ := newTestRetrying(f, 2)

	_, err := r.Complete(ctx, Request{})
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
	assert.Empty(t, KindOf(err))
}

func TestRetrying_OverallTimeout(t *testing.T) {
	f := Func(func(ctx context.Context, req Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	})
	r := WithRetry(f, RetryPolicy{MaxRetries: 0, Timeout: 20 * time.Millisecond}, quietLogger())

	start := time.Now()
	_, err := r.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRetrying_Name(t *testing.T) {
	r := WithRetry(Static{}, DefaultRetryPolicy(), nil)
	assert.Equal(t, "static", r.Name())
	assert.Equal(t, 2, r.Policy().MaxRetries)
}
