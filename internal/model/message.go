// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleSystem is only used when building upstream prompts. It is never
	// accepted from or returned to clients.
	RoleSystem Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Longevity Agent"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// IsConversational reports whether the role may appear in a client conversation.
func (r Role) IsConversational() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

var (
	// ErrEmptyContent indicates a message with no non-whitespace content.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrInvalidRole indicates a role outside user/assistant.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrEmptyConversation indicates a conversation with no messages.
	ErrEmptyConversation = errors.New("conversation has no messages")

	// ErrTooManyMessages indicates a conversation longer than MaxMessages.
	ErrTooManyMessages = errors.New("too many messages")

	// ErrMessageTooLong indicates content longer than MaxContentLength bytes.
	ErrMessageTooLong = errors.New("message too long")
)

// ValidationError reports which message failed validation.
type ValidationError struct {
	Index int
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("message %d: %v", e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// MaxContentLength is the maximum size of a single message in bytes.
const MaxContentLength = 100000

// ChatMessage is a single turn in a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a system message for upstream prompts.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// NormalizeContent prepares raw user input: Unicode NFC, then trimmed.
func NormalizeContent(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}

// Validate checks the message as received from a client.
func (m ChatMessage) Validate() error {
	if !m.Role.IsConversational() {
		return fmt.Errorf("%w %q: must be one of user, assistant", ErrInvalidRole, m.Role)
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	if len(m.Content) > MaxContentLength {
		return fmt.Errorf("%w: exceeds %d bytes", ErrMessageTooLong, MaxContentLength)
	}
	return nil
}
