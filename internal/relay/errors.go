// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayseljafar/Longevity-check/internal/model"
)

// TransportFailureText is shown when the relay could not be reached at all.
const TransportFailureText = "Failed to communicate with the backend"

// Error is a non-200 answer from the relay.
type Error struct {
	Status  int
	Type    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same turn later may succeed.
func (e *Error) Temporary() bool {
	return e.Status == 429 || e.Status >= 500
}

// TransportError means no HTTP response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "relay unreachable: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Banner renders err as the inline message the user sees.
func Banner(err error) string {
	if err == nil {
		return ""
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return fmt.Sprintf("Error: %d - %s", rerr.Status, rerr.Message)
	}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		if errors.Is(verr, model.ErrEmptyContent) {
			return "Please enter a message."
		}
		return "Invalid message: " + verr.Err.Error()
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled"
	}
	return TransportFailureText
}
