// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayseljafar/Longevity-check/internal/config"
	"github.com/ayseljafar/Longevity-check/internal/logging"
)

// Version information, set at build time.
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// shutdownTimeout bounds graceful server shutdown.
const shutdownTimeout = 10 * time.Second

// app carries global flags and I/O for one invocation.
type app struct {
	configPath string
	logLevel   string
	jsonOut    bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	logCloser io.Closer
}

// loadConfig reads --config or the default location, then applies
// --log-level.
func (a *app) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setupLogging configures slog. Logs go to stderr unless quiet is set, in
// which case only the rotated file (if any) receives them.
func (a *app) setupLogging(cfg *config.Config, quiet bool) *slog.Logger {
	stderr := a.errOut
	if quiet {
		stderr = io.Discard
	}
	logger, closer, err := logging.Setup(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintf(a.errOut, "Warning: log file disabled: %v\n", err)
	}
	a.logCloser = closer
	return logger
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
}

// JSONResponse is the --json envelope.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

func (a *app) printJSON(command string, data any, err error) error {
	resp := JSONResponse{
		Success:   err == nil,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
	if err != nil {
		msg := err.Error()
		resp.Error = &msg
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// NewRootCommand builds the command tree reading from in and writing to out
// and errOut.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "longevity",
		Short: "Longevity health agent: chat relay, web and terminal frontends",
		Long: `Longevity Check is a conversational health assistant focused on longevity.

The relay forwards each conversation to a completion API together with
relevant entries from a supplement catalog and returns one assistant reply.
The web and terminal frontends keep the conversation and talk to the relay.

Quick Start:
  longevity relay                     # start the backend on 127.0.0.1:8000
  longevity web                       # start the browser UI on 127.0.0.1:8501
  longevity chat                      # chat in the terminal
  longevity supplements --goal sleep  # look up the catalog`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Msg: fmt.Sprintf("%v (see %s --help)", err, cmd.CommandPath())}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ~/.longevity/config.toml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&a.jsonOut, "json", false, "machine-readable output where supported")

	root.AddCommand(
		newRelayCommand(a),
		newWebCommand(a),
		newChatCommand(a),
		newSupplementsCommand(a),
		newConfigCommand(a),
		newVersionCommand(a),
	)
	return root
}

// Execute runs the CLI with os.Args and returns the exit code.
func Execute() int {
	return ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the CLI with args and returns the exit code. SIGINT and
// SIGTERM cancel the command's context.
func ExecuteArgs(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, context.Canceled) {
		return ExitSuccess
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("Error:"), err)
	return ExitCode(err)
}

// serve runs start until it fails or ctx is cancelled, then shuts down.
func serve(ctx context.Context, logger *slog.Logger, start func() error, shutdown func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown_signal")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version":    Version,
				"commit":     GitCommit,
				"build_date": BuildDate,
			}
			if a.jsonOut {
				return a.printJSON("version", info, nil)
			}
			fmt.Fprintf(a.out, "longevity %s\n", Version)
			fmt.Fprintf(a.out, "%s %s\n", labelStyle.Render("Commit:"), GitCommit)
			fmt.Fprintf(a.out, "%s %s\n", labelStyle.Render("Built:"), BuildDate)
			return nil
		},
	}
}
