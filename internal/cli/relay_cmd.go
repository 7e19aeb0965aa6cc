// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ayseljafar/Longevity-check/internal/assistant"
	"github.com/ayseljafar/Longevity-check/internal/completion"
	"github.com/ayseljafar/Longevity-check/internal/config"
	"github.com/ayseljafar/Longevity-check/internal/knowledge"
	"github.com/ayseljafar/Longevity-check/internal/logging"
	"github.com/ayseljafar/Longevity-check/internal/server"
)

type relayFlags struct {
	host      string
	port      int
	provider  string
	model     string
	knowledge string
}

func (f relayFlags) apply(cfg *config.Config) error {
	if f.host != "" {
		cfg.Relay.Host = f.host
	}
	if f.port != 0 {
		cfg.Relay.Port = f.port
	}
	if f.provider != "" {
		cfg.Completion.Provider = f.provider
	}
	if f.model != "" {
		cfg.Completion.Model = f.model
	}
	if f.knowledge != "" {
		cfg.Knowledge.Path = f.knowledge
	}
	return cfg.Validate()
}

func newRelayCommand(a *app) *cobra.Command {
	var flags relayFlags

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the chat relay backend",
		Long: `Run the HTTP relay. POST /chat takes {"messages":[...]} and returns one
assistant reply. The completion provider and its API key come from the
config file or LONGEVITY_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}
			logger := a.setupLogging(cfg, false)
			defer a.close()
			return runRelay(cmd.Context(), cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.host, "host", "", "listen host (default from config)")
	f.IntVarP(&flags.port, "port", "p", 0, "listen port (default from config)")
	f.StringVar(&flags.provider, "provider", "", "completion provider: openai, google, openrouter, static")
	f.StringVar(&flags.model, "model", "", "completion model")
	f.StringVar(&flags.knowledge, "knowledge", "", "supplement catalog file (.json, .yaml, .db)")
	return cmd
}

// buildRelay wires the relay from cfg without starting it.
func buildRelay(cfg *config.Config, logger *slog.Logger) (*server.Server, *knowledge.Base, error) {
	kb, err := knowledge.Load(cfg.Knowledge.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("load knowledge base: %w", err)
	}

	provider, err := completion.NewFromConfig(cfg.Completion, logger)
	if err != nil {
		return nil, nil, err
	}

	asst := assistant.New(provider, kb, assistant.OptionsFromConfig(cfg.Completion)).
		WithLogger(logging.Logr(logger))

	srv := server.New(asst, cfg.Relay).
		WithLogger(logger).
		WithVersion(Version)
	return srv, kb, nil
}

func runRelay(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srv, kb, err := buildRelay(cfg, logger)
	if err != nil {
		return commandError("relay", "start", err)
	}

	if cfg.Completion.Provider != "static" && cfg.Completion.APIKey == "" {
		logger.Warn("completion_not_configured",
			"provider", cfg.Completion.Provider,
			"hint", "set completion.api_key or LONGEVITY_API_KEY; /chat will return 503",
		)
	}

	go srv.Sessions().Run(ctx)
	if cfg.Knowledge.Watch {
		go func() {
			if err := kb.Watch(ctx); err != nil {
				logger.Warn("knowledge_watch_failed", "error", err)
			}
		}()
	}

	return serve(ctx, logger, srv.Start, srv.Shutdown)
}
