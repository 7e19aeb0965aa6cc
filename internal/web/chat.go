// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package web

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ayseljafar/Longevity-check/internal/model"
	"github.com/ayseljafar/Longevity-check/internal/relay"
	"github.com/ayseljafar/Longevity-check/internal/session"
)

// Chatter sends a conversation to the relay. *relay.Client implements it.
type Chatter interface {
	Chat(ctx context.Context, conv model.Conversation) (*relay.ChatResponse, error)
}

// Chat is one browser session's conversation.
type Chat struct {
	id     string
	store  *session.Store
	client Chatter
	logger *slog.Logger
}

// NewChat binds session id in store to client. The session must exist.
func NewChat(id string, store *session.Store, client Chatter, logger *slog.Logger) *Chat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chat{id: id, store: store, client: client, logger: logger}
}

// ID returns the session ID.
func (c *Chat) ID() string { return c.id }

// Conversation returns a copy of the stored history.
func (c *Chat) Conversation() model.Conversation {
	sess, ok := c.store.Get(c.id)
	if !ok {
		return nil
	}
	return sess.Conversation
}

// Recommendations returns what the latest reply in this session
// recommended.
func (c *Chat) Recommendations() []session.Recommendation {
	sess, ok := c.store.Get(c.id)
	if !ok {
		return nil
	}
	return sess.Latest
}

// Submit sends one user message and returns the conversation with the reply
// appended. On any error the stored conversation is left as it was. If
// another Submit on the same session stored its reply first, the error wraps
// session.ErrConflict.
func (c *Chat) Submit(ctx context.Context, text string) (model.Conversation, error) {
	sess, ok := c.store.Get(c.id)
	if !ok {
		return nil, fmt.Errorf("submit: %w", session.ErrNotFound)
	}
	conv := sess.Conversation

	msg := model.NewUserMessage(model.NormalizeContent(text))
	if err := msg.Validate(); err != nil {
		return conv, &model.ValidationError{Index: len(conv), Err: err}
	}

	sent := conv.Append(msg)
	if len(sent) > model.MaxMessages {
		sent = sent[len(sent)-model.MaxMessages:]
	}

	resp, err := c.client.Chat(ctx, sent)
	if err != nil {
		c.logger.Warn("chat_submit_failed", "session", shortID(c.id), "error", err)
		return conv, err
	}

	next := sent.Append(resp.Reply)
	var (
		goals []string
		recs  []session.Recommendation
	)
	if r := resp.Recommendations; r != nil {
		goals = r.Goals
		for _, sup := range r.Supplements {
			recs = append(recs, session.Recommendation{Name: sup.Name, Dosage: sup.Dosage, ReferralLink: sup.ReferralLink})
		}
	}
	err = c.store.UpdateAt(c.id, sess.Version, func(s *session.Session) {
		s.Record(next, goals, recs)
	})
	if err != nil {
		c.logger.Info("chat_submit_discarded", "session", shortID(c.id), "error", err)
		return c.Conversation(), fmt.Errorf("submit: %w", err)
	}

	c.logger.Debug("chat_submit", "session", shortID(c.id), "messages", len(next))
	return next, nil
}

// Reset clears the conversation but keeps the session.
func (c *Chat) Reset() error {
	return c.store.Update(c.id, func(s *session.Session) { s.Reset() })
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
