package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/codeindex/internal/config"
)

func TestBuildQuestion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"checkout"}, "checkout"},
		{"multiple words", []string{"where", "is", "checkout"}, "where is checkout"},
		{"quoted phrase", []string{"where is checkout"}, "where is checkout"},
		{"surrounding space", []string{"  checkout  "}, "checkout"},
		{"empty", []string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuestion(tt.args); got != tt.expected {
				t.Errorf("buildQuestion(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestResolveK(t *testing.T) {
	cfg := config.RetrievalConfig{DefaultK: 3, MaxK: 50}
	tests := []struct {
		in, want int
	}{
		{0, 3},
		{-2, 3},
		{7, 7},
		{80, 50},
	}
	for _, tt := range tests {
		if got := resolveK(tt.in, cfg); got != tt.want {
			t.Errorf("resolveK(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestOptionalArg(t *testing.T) {
	if got := optionalArg(nil); got != "" {
		t.Errorf("optionalArg(nil) = %q", got)
	}
	if got := optionalArg([]string{"/tmp/x.idx"}); got != "/tmp/x.idx" {
		t.Errorf("optionalArg = %q", got)
	}
}

func TestRootCmd_HasCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "scan", "rebuild", "persist", "load", "query", "ask", "status", "sample", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == nil || cmd.Name() != name {
			t.Errorf("command %q not registered (err=%v)", name, err)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "codeindex version "+version) {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestQueryCmd_RejectsUnknownFormat(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"query", "--format", "xml", "checkout"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("expected format error, got %v", err)
	}
}

func TestLoadConfig_UsesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "test.db") {
		t.Errorf("database path not resolved against config dir: %s", cfg.Storage.DatabasePath)
	}
}

func TestLoadConfig_MissingExplicitPathUsesDefaults(t *testing.T) {
	cfg, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retrieval.DefaultK != 3 {
		t.Errorf("DefaultK = %d, want 3", cfg.Retrieval.DefaultK)
	}
}
