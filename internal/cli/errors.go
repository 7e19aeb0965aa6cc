// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ayseljafar/Longevity-check/internal/config"
	"github.com/ayseljafar/Longevity-check/internal/relay"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitAuthError    = 4
	ExitNetworkError = 5
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a failed command step with context.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

func commandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// UsageError is a bad flag or argument.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// ExitCode picks the process exit status for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var verrs config.ValidateErrors
	var rerr *relay.Error
	var terr *relay.TransportError

	switch {
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.As(err, &verrs):
		return ExitConfigError
	case errors.As(err, &rerr):
		if rerr.Status == http.StatusUnauthorized || rerr.Status == http.StatusForbidden {
			return ExitAuthError
		}
		if rerr.Status == http.StatusGatewayTimeout {
			return ExitTimeoutError
		}
		return ExitNetworkError
	case errors.As(err, &terr):
		return ExitNetworkError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	}
	return ExitGeneralError
}
