// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ayseljafar/Longevity-check/internal/relay"
	"github.com/ayseljafar/Longevity-check/internal/tui"
)

func newChatCommand(a *app) *cobra.Command {
	var (
		plain    bool
		noColor  bool
		relayURL string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent in the terminal",
		Long: `Chat through a running relay. Opens a full-screen view on a terminal,
a line editor with --plain, and reads one message per line when stdin is
piped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if relayURL != "" {
				cfg.Web.RelayURL = relayURL
			}

			interactive := isTerminal(a.in)
			fullScreen := interactive && !plain

			// Log lines would corrupt the full-screen view.
			logger := a.setupLogging(cfg, fullScreen)
			defer a.close()

			client, err := relay.NewFromConfig(cfg.Web, logger)
			if err != nil {
				return &UsageError{Msg: err.Error()}
			}
			configureColor(a.out, noColor)

			timeout := cfg.Web.RelayTimeout()
			switch {
			case !interactive:
				return runPlain(cmd.Context(), client, a, tui.NewScannerReader(a.in), timeout)
			case plain:
				return runPlain(cmd.Context(), client, a, tui.NewLinerReader(), timeout)
			}

			if noColor {
				tui.DisableColor()
			}
			return tui.Run(client, tui.Options{
				Timeout:  timeout,
				NoColor:  noColor,
				RelayURL: client.BaseURL(),
			}, tea.WithContext(cmd.Context()))
		},
	}

	f := cmd.Flags()
	f.BoolVar(&plain, "plain", false, "line mode instead of the full-screen view")
	f.BoolVar(&noColor, "no-color", false, "disable colors")
	f.StringVar(&relayURL, "relay-url", "", "relay base URL (default from config)")
	return cmd
}

func runPlain(ctx context.Context, client tui.Client, a *app, in tui.LineReader, timeout time.Duration) error {
	return tui.NewPlain(client, a.out, timeout).Run(ctx, in)
}
