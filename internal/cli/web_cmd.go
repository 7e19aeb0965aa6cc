// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ayseljafar/Longevity-check/internal/config"
	"github.com/ayseljafar/Longevity-check/internal/relay"
	"github.com/ayseljafar/Longevity-check/internal/web"
)

func newWebCommand(a *app) *cobra.Command {
	var (
		host     string
		port     int
		relayURL string
	)

	cmd := &cobra.Command{
		Use:   "web",
		Short: "Run the browser frontend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Web.Host = host
			}
			if port != 0 {
				cfg.Web.Port = port
			}
			if relayURL != "" {
				cfg.Web.RelayURL = relayURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := a.setupLogging(cfg, false)
			defer a.close()
			return runWeb(cmd.Context(), cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&host, "host", "", "listen host (default from config)")
	f.IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	f.StringVar(&relayURL, "relay-url", "", "relay base URL (default from config)")
	return cmd
}

// buildWeb wires the frontend from cfg without starting it.
func buildWeb(cfg *config.Config, logger *slog.Logger) (*web.Server, error) {
	client, err := relay.NewFromConfig(cfg.Web, logger)
	if err != nil {
		return nil, err
	}
	return web.NewServer(cfg.Web, client).WithLogger(logger), nil
}

func runWeb(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srv, err := buildWeb(cfg, logger)
	if err != nil {
		return commandError("web", "start", err)
	}
	go srv.Sessions().Run(ctx)
	return serve(ctx, logger, srv.Start, srv.Shutdown)
}
