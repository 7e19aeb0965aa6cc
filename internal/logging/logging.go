// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the process-wide slog logger.
//
// Logs always go to stderr. When a log file is configured they are also
// written to a size-rotated file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ayseljafar/Longevity-check/internal/config"
	"github.com/ayseljafar/Longevity-check/internal/util"
)

// previewRunes bounds message previews written at debug level.
const previewRunes = 80

// Setup builds a logger from cfg, installs it as the slog default and
// returns it together with a closer for the rotated file (if any).
func Setup(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var closer io.Closer = nopCloser{}
	out := stderr
	if out == nil {
		out = os.Stderr
	}

	var setupErr error
	if path := strings.TrimSpace(cfg.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			setupErr = err
		} else {
			rotated := &lumberjack.Logger{
				Filename:   path,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
			}
			out = io.MultiWriter(out, rotated)
			closer = rotated
		}
	}

	logger := slog.New(newHandler(cfg.Format, out, opts))
	slog.SetDefault(logger)
	return logger, closer, setupErr
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return slog.NewJSONHandler(out, opts)
	default:
		return slog.NewTextHandler(out, opts)
	}
}

// Logr bridges a slog logger to logr for components that take a logr.Logger.
func Logr(logger *slog.Logger) logr.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logr.FromSlogHandler(logger.Handler())
}

// Preview shortens user content for debug logs.
func Preview(s string) string {
	return util.TruncateRunes(strings.Join(strings.Fields(s), " "), previewRunes)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
