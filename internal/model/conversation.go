// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "fmt"

// MaxMessages is the maximum number of messages accepted in one conversation.
const MaxMessages = 100

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is an ordered list of chat turns, oldest first.
type Conversation []ChatMessage

// Append returns a new conversation with msg added at the end.
// The receiver's backing array is never written to.
func (c Conversation) Append(msgs ...ChatMessage) Conversation {
	out := make(Conversation, len(c), len(c)+len(msgs))
	copy(out, c)
	return append(out, msgs...)
}

// Clone returns a copy of the conversation.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// Len returns the number of messages.
func (c Conversation) Len() int {
	return len(c)
}

// Last returns the most recent message and false if the conversation is empty.
func (c Conversation) Last() (ChatMessage, bool) {
	if len(c) == 0 {
		return ChatMessage{}, false
	}
	return c[len(c)-1], true
}

// Window returns the last n user or assistant messages, in order.
// A non-positive n returns all of them.
func (c Conversation) Window(n int) Conversation {
	out := make(Conversation, 0, len(c))
	for _, msg := range c {
		if msg.Role.IsConversational() {
			out = append(out, msg)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Validate checks a conversation received from a client: it must be
// non-empty, within MaxMessages, contain only valid messages, and end with a
// user turn awaiting a reply.
func (c Conversation) Validate() error {
	if len(c) == 0 {
		return &ValidationError{Index: -1, Err: ErrEmptyConversation}
	}
	if len(c) > MaxMessages {
		return &ValidationError{Index: -1, Err: fmt.Errorf("%w: maximum is %d", ErrTooManyMessages, MaxMessages)}
	}
	for i, msg := range c {
		if err := msg.Validate(); err != nil {
			return &ValidationError{Index: i, Err: err}
		}
	}
	if last := c[len(c)-1]; last.Role != RoleUser {
		return &ValidationError{Index: len(c) - 1, Err: fmt.Errorf("%w: last message must be from the user", ErrInvalidRole)}
	}
	return nil
}
