// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayseljafar/Longevity-check/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit configuration",
		Long: `Show and edit the config file. Credentials are redacted in output.

Keys use dot notation, for example completion.model or relay.port.
Environment variables (LONGEVITY_API_KEY, LONGEVITY_PROVIDER, ...) take
precedence over the file at runtime but are never written back.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := a.loadConfig()
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printJSON("config show", redacted(cfg), nil)
				}
				fmt.Fprintln(a.out, cfg.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := a.configFile()
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one configuration value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := a.loadConfig()
				if err != nil {
					return err
				}
				key := args[0]
				val, err := cfg.Get(key)
				if err != nil {
					return &UsageError{Msg: fmt.Sprintf("unknown key %q", key)}
				}
				if config.IsSecretKey(key) && val != "" {
					val = "[REDACTED]"
				}
				if a.jsonOut {
					return a.printJSON("config get", map[string]any{"key": key, "value": val}, nil)
				}
				fmt.Fprintln(a.out, formatValue(val))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set one value and save the config file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := a.configFile()
				if err != nil {
					return err
				}
				cfg, err := readFileOnly(path)
				if err != nil {
					return err
				}
				if err := cfg.Set(args[0], args[1]); err != nil {
					return &UsageError{Msg: fmt.Sprintf("set %s: %v", args[0], err)}
				}
				cfg.SetDefaults()
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := saveConfig(cfg, path); err != nil {
					return commandError("config", "save", err)
				}
				fmt.Fprintf(a.out, "%s %s\n", successStyle.Render("Set"), args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the configuration for errors",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := a.loadConfig()
				if a.jsonOut {
					_ = a.printJSON("config validate", map[string]bool{"valid": err == nil}, err)
					return err
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, successStyle.Render("Configuration is valid"))
				return nil
			},
		},
		newConfigInitCommand(a),
		&cobra.Command{
			Use:   "keys",
			Short: "List settable keys",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				for _, k := range config.GetAllKeys() {
					fmt.Fprintln(a.out, k)
				}
			},
		},
	)
	return cmd
}

func newConfigInitCommand(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.configFile()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return &UsageError{Msg: fmt.Sprintf("%s already exists (use --force to overwrite)", path)}
			}
			cfg := config.Default()
			cfg.SetDefaults()
			if err := saveConfig(cfg, path); err != nil {
				return commandError("config", "init", err)
			}
			fmt.Fprintf(a.out, "%s %s\n", successStyle.Render("Wrote"), path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

// configFile returns --config or the default TOML location.
func (a *app) configFile() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	return config.ConfigPathTOML()
}

// readFileOnly decodes path over the defaults without environment
// overrides, so secrets from the environment are not persisted.
func readFileOnly(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	load := config.LoadTOML
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		load = config.LoadJSON
	}
	if err := load(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func saveConfig(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

func redacted(cfg *config.Config) *config.Config {
	safe := cfg.Clone()
	for _, key := range config.GetAllKeys() {
		if !config.IsSecretKey(key) {
			continue
		}
		if v, _ := safe.Get(key); v != "" {
			_ = safe.Set(key, "[REDACTED]")
		}
	}
	return safe
}

func formatValue(v any) string {
	switch val := v.(type) {
	case []string:
		return strings.Join(val, ",")
	default:
		return fmt.Sprint(val)
	}
}
