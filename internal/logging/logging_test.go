// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayseljafar/Longevity-check/internal/config"
)

func TestSetupWritesToFileAndStderr(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	logPath := filepath.Join(t.TempDir(), "logs", "relay.log")
	cfg := config.Default().Log
	cfg.File = logPath
	cfg.Format = "json"

	var stderr bytes.Buffer
	logger, closer, err := Setup(cfg, &stderr)
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	defer closer.Close()

	logger.Info("relay_start", slog.String("addr", "127.0.0.1:8000"))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !strings.Contains(string(data), "relay_start") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(stderr.String(), `"addr":"127.0.0.1:8000"`) {
		t.Errorf("stderr missing JSON attr, got: %s", stderr.String())
	}
}

func TestSetupRespectsLevel(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	cfg := config.Default().Log
	cfg.Level = "warn"

	var stderr bytes.Buffer
	logger, _, err := Setup(cfg, &stderr)
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(stderr.String(), "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(stderr.String(), "shown") {
		t.Error("warn message missing")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("word ", 50)
	got := Preview(long)
	if len([]rune(got)) != previewRunes {
		t.Errorf("Preview() length = %d, want %d", len([]rune(got)), previewRunes)
	}
	if got := Preview("What   supplements\nhelp sleep?"); got != "What supplements help sleep?" {
		t.Errorf("Preview() = %q", got)
	}
}

func TestLogrBridge(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	Logr(logger).Info("goal_detection", "goals", 2)
	if !strings.Contains(buf.String(), "goal_detection") {
		t.Errorf("logr bridge did not reach slog handler: %s", buf.String())
	}
}
