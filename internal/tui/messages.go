// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ayseljafar/Longevity-check/internal/model"
	"github.com/ayseljafar/Longevity-check/internal/relay"
)

// Client sends a conversation to the relay. *relay.Client implements it.
type Client interface {
	Chat(ctx context.Context, conv model.Conversation) (*relay.ChatResponse, error)
}

// replyMsg carries a successful turn back to Update.
type replyMsg struct {
	conv model.Conversation
	recs *relay.Recommendations
}

// failedMsg carries a failed turn; draft is restored into the input.
type failedMsg struct {
	err   error
	draft string
}

// sendCmd posts sent to the relay off the UI goroutine.
func sendCmd(client Client, sent model.Conversation, draft string, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		resp, err := client.Chat(ctx, sent)
		if err != nil {
			return failedMsg{err: err, draft: draft}
		}
		return replyMsg{conv: sent.Append(resp.Reply), recs: resp.Recommendations}
	}
}
