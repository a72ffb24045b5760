package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		" debug ": slog.LevelDebug,
	}
	for in, want := range cases {
		got, err := parseLogLevel(in)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("parseLogLevel(%q)=%v want %v", in, got, want)
		}
	}
	if _, err := parseLogLevel("chatty"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("warn", &buf)
	if err != nil {
		t.Fatalf("newLogger() error: %v", err)
	}
	logger.Info("quiet")
	logger.Warn("loud", "k", 1)
	out := buf.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "msg=loud") || !strings.Contains(out, "k=1") {
		t.Fatalf("out=%q", out)
	}
}

func TestSetup_OverridesAndTeesLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: error\n  buffer_lines: 10\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	var stderr bytes.Buffer
	cfg, logger, logs, err := setup(&globalOptions{configPath: path, logLevel: "debug"}, &stderr)
	if err != nil {
		t.Fatalf("setup() error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("level=%q want debug", cfg.Log.Level)
	}
	logger.Debug("hello")
	lines, _ := logs.Snapshot(10)
	if len(lines) != 1 || !strings.Contains(lines[0], "msg=hello") {
		t.Fatalf("buffer=%v", lines)
	}
	if !strings.Contains(stderr.String(), "msg=hello") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(&globalOptions{configPath: filepath.Join(t.TempDir(), "nope.yaml")})
	if err == nil || !strings.Contains(err.Error(), "config load failed") {
		t.Fatalf("err=%v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "hapticscan ") {
		t.Fatalf("out=%q", out.String())
	}
}

func TestRootCommand_RejectsBadLogLevel(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"scan", "--simulate", "--log-level", "chatty"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid log level") {
		t.Fatalf("err=%v", err)
	}
}
