package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gramforge/internal/fault"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRunConfig(t *testing.T) {
	path := writeConfig(t, `
grammar: grammars/asm.yaml
top: body
count: 12
seed: 77
workers: 3
max_attempts: 50
max_depth: 20
node_info: true
store: sqlite
db_path: runs.db
artifacts_dir: out
`)
	cfg, err := loadRunConfig(path)
	if err != nil {
		t.Fatalf("load run config: %v", err)
	}
	req := cfg.generateRequest()
	if req.GrammarPath != "grammars/asm.yaml" || req.Top != "body" || req.Count != 12 || req.Seed != 77 || req.Workers != 3 {
		t.Fatalf("unexpected base fields: %+v", req)
	}
	if req.MaxAttempts != 50 || req.MaxDepth != 20 || !req.NodeInfo {
		t.Fatalf("unexpected limits: %+v", req)
	}
	if cfg.Store != "sqlite" || cfg.DBPath != "runs.db" || cfg.ArtifactsDir != "out" {
		t.Fatalf("unexpected store fields: %+v", cfg)
	}
}

func TestLoadRunConfigRejectsUnknownAndNegative(t *testing.T) {
	for name, body := range map[string]string{
		"unknown":  "grammar: a.yaml\npopulation: 4\n",
		"negative": "count: -2\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := loadRunConfig(writeConfig(t, body)); !errors.Is(err, fault.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLoadRunConfigEmptyFile(t *testing.T) {
	cfg, err := loadRunConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load empty config: %v", err)
	}
	if cfg != (runConfig{}) {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestPick(t *testing.T) {
	if got := pick(false, 4, 9); got != 9 {
		t.Fatalf("config value should win over a default flag, got %d", got)
	}
	if got := pick(true, 4, 9); got != 4 {
		t.Fatalf("explicit flag should win, got %d", got)
	}
	if got := pick(false, "flag", ""); got != "flag" {
		t.Fatalf("flag default should fill an unset config value, got %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"text", "json", "JSON", ""} {
		if _, err := newLogger(os.Stderr, format, "debug"); err != nil {
			t.Fatalf("format %q: %v", format, err)
		}
	}
	if _, err := newLogger(os.Stderr, "xml", "info"); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected configuration error for format, got %v", err)
	}
	if _, err := newLogger(os.Stderr, "text", "loud"); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected configuration error for level, got %v", err)
	}
}
