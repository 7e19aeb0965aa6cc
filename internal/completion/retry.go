// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 8 * time.Second
)

// RetryPolicy bounds how a Retrying provider re-attempts failed calls.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Timeout bounds the whole call including retries. Zero means no bound
	// beyond the caller's context.
	Timeout time.Duration
}

// DefaultRetryPolicy returns two retries at 500ms/1s with a 60s ceiling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  retryBaseDelay,
		MaxDelay:   retryMaxDelay,
		Timeout:    60 * time.Second,
	}
}

// Backoff returns the delay before retry number attempt (0-based).
// An upstream Retry-After wins over the exponential delay, capped at
// MaxDelay.
func (p RetryPolicy) Backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, p.MaxDelay)
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Retrying wraps a provider with a RetryPolicy.
type Retrying struct {
	inner  Provider
	policy RetryPolicy
	logger *slog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps p. A nil logger uses slog.Default.
func WithRetry(p Provider, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = retryBaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = retryMaxDelay
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Retrying{inner: p, policy: policy, logger: logger, sleep: sleepContext}
}

// Name implements Provider.
func (r *Retrying) Name() string { return r.inner.Name() }

// Policy returns the effective policy.
func (r *Retrying) Policy() RetryPolicy { return r.policy }

// Complete implements Provider.
func (r *Retrying) Complete(ctx context.Context, req Request) (Response, error) {
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = Classify(r.inner.Name(), err)

		var ce *Error
		if req.NoRetry || !errors.As(lastErr, &ce) || !ce.Retryable() || attempt >= r.policy.MaxRetries {
			return Response{}, lastErr
		}
		// The upstream wants a longer pause than we are willing to wait;
		// hand its hint back to the caller instead of retrying early.
		if ce.RetryAfter > r.policy.MaxDelay {
			r.logger.Info("upstream_retry_after_too_long",
				"provider", r.inner.Name(),
				"retry_after", ce.RetryAfter,
				"max_delay", r.policy.MaxDelay,
			)
			return Response{}, lastErr
		}
		if ctx.Err() != nil {
			return Response{}, Classify(r.inner.Name(), ctx.Err())
		}

		delay := r.policy.Backoff(attempt, ce.RetryAfter)
		r.logger.Warn("upstream_retry",
			"provider", r.inner.Name(),
			"attempt", attempt+1,
			"max_retries", r.policy.MaxRetries,
			"kind", string(ce.Kind),
			"status", ce.Status,
			"delay", delay,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return Response{}, Classify(r.inner.Name(), err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
