// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// These are the wire types shared by the relay, the web frontend and the
// terminal client. A Conversation is an ordered, append-only list of
// ChatMessage values; appending returns a new Conversation and never touches
// the receiver, so a history handed to another goroutine or to a request body
// stays exactly as it was.
//
// # Key Types
//
//   - Role: Message role enumeration (user, assistant, system)
//   - ChatMessage: Single {role, content} turn
//   - Conversation: Chronological list of turns
//
// # Usage
//
//	conv := model.Conversation{}
//	conv = conv.Append(model.NewUserMessage("What supplements help sleep?"))
//	if err := conv.Validate(); err != nil {
//		return err
//	}
package model
