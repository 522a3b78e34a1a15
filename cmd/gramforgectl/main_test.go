package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"gramforge/pkg/gramforge"
)

var (
	jumpsGrammar   = filepath.Join("testdata", "jumps.yaml")
	endlessGrammar = filepath.Join("testdata", "endless.yaml")
	runIDPattern   = regexp.MustCompile(`run_id=(\S+)`)
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out, io.Discard)
	return out.String(), err
}

func TestGenerateShowRunsExport(t *testing.T) {
	dir := t.TempDir()
	artifacts := filepath.Join(dir, "runs")

	out, err := runCLI(t, "generate", "--artifacts-dir", artifacts, "--grammar", jumpsGrammar, "--count", "2", "--seed", "3")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	m := runIDPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no run id in output:\n%s", out)
	}
	runID := m[1]
	if strings.Count(out, "--- individual ") != 2 || !strings.Contains(out, "ld ") {
		t.Fatalf("unexpected generate output:\n%s", out)
	}

	shown, err := runCLI(t, "show", "--artifacts-dir", artifacts, "--latest")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, shown) {
		t.Fatalf("show output is not part of the generate output:\n%s\n---\n%s", shown, out)
	}

	one, err := runCLI(t, "show", "--artifacts-dir", artifacts, "--run-id", runID, "--index", "1", "--json")
	if err != nil {
		t.Fatalf("show json: %v", err)
	}
	var items []gramforge.IndividualItem
	if err := json.Unmarshal([]byte(one), &items); err != nil {
		t.Fatalf("decode show json: %v", err)
	}
	if len(items) != 1 || items[0].Index != 1 {
		t.Fatalf("unexpected items: %+v", items)
	}

	list, err := runCLI(t, "runs", "--artifacts-dir", artifacts)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.HasPrefix(list, runID+" ") {
		t.Fatalf("expected %s first in runs list:\n%s", runID, list)
	}

	exportDir := filepath.Join(dir, "exports")
	exported, err := runCLI(t, "export", "--artifacts-dir", artifacts, "--latest", "--out", exportDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(exported, runID) {
		t.Fatalf("unexpected export output: %s", exported)
	}
	if _, err := os.Stat(filepath.Join(exportDir, runID, "individuals.csv")); err != nil {
		t.Fatalf("expected exported csv: %v", err)
	}
}

func TestGenerateUsesConfigAndFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "run.yaml")
	body := "grammar: " + jumpsGrammar + "\ncount: 3\nseed: 9\nartifacts_dir: " + filepath.Join(dir, "runs") + "\n"
	if err := os.WriteFile(cfg, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCLI(t, "generate", "--config", cfg, "--json")
	if err != nil {
		t.Fatalf("generate from config: %v", err)
	}
	var summary gramforge.GenerateSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(summary.Individuals) != 3 || summary.Individuals[0].Seed == 0 {
		t.Fatalf("config not applied: %+v", summary)
	}
	if !strings.HasPrefix(summary.ArtifactsDir, filepath.Join(dir, "runs")) {
		t.Fatalf("artifacts dir from config ignored: %s", summary.ArtifactsDir)
	}

	out, err = runCLI(t, "generate", "--config", cfg, "--count", "1", "--json")
	if err != nil {
		t.Fatalf("generate with override: %v", err)
	}
	var overridden gramforge.GenerateSummary
	if err := json.Unmarshal([]byte(out), &overridden); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(overridden.Individuals) != 1 {
		t.Fatalf("count flag did not override config: %d individuals", len(overridden.Individuals))
	}
	if overridden.Individuals[0].Text != summary.Individuals[0].Text {
		t.Fatal("same seed from config should give the same first individual")
	}
}

func TestCheck(t *testing.T) {
	artifacts := filepath.Join(t.TempDir(), "runs")
	out, err := runCLI(t, "check", "--artifacts-dir", artifacts, "--grammar", jumpsGrammar, "--samples", "4")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "types=line,listing generated=4/4") {
		t.Fatalf("unexpected check output: %s", out)
	}

	_, err = runCLI(t, "check", "--artifacts-dir", artifacts, "--grammar", endlessGrammar,
		"--samples", "10", "--max-attempts", "3", "--max-depth", "6")
	if !errors.Is(err, errDegenerateGrammar) {
		t.Fatalf("expected degenerate grammar error, got %v", err)
	}
}

func TestMutate(t *testing.T) {
	artifacts := filepath.Join(t.TempDir(), "runs")
	out, err := runCLI(t, "mutate", "--artifacts-dir", artifacts, "--grammar", jumpsGrammar,
		"--seed", "2", "--rounds", "3", "--operator", "single_parameter_mutation")
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if strings.Count(out, "single_parameter_mutation accepted") != 3 {
		t.Fatalf("unexpected mutate output:\n%s", out)
	}
	if !strings.Contains(out, "--- parent\n") || !strings.Contains(out, "--- child\n") {
		t.Fatalf("missing parent or child text:\n%s", out)
	}
}

func TestCommandErrors(t *testing.T) {
	artifacts := filepath.Join(t.TempDir(), "runs")
	if _, err := runCLI(t, "nope"); err == nil {
		t.Fatal("expected unknown command error")
	}
	if _, err := runCLI(t, "runs", "--artifacts-dir", artifacts, "--limit", "0"); err == nil {
		t.Fatal("expected limit error")
	}
	if _, err := runCLI(t, "generate", "--artifacts-dir", artifacts, "--log-format", "xml", "--grammar", jumpsGrammar); err == nil {
		t.Fatal("expected log format error")
	}
	if _, err := runCLI(t, "show", "--artifacts-dir", artifacts, "--latest"); err == nil {
		t.Fatal("expected no runs error")
	}
	out, err := runCLI(t, "runs", "--artifacts-dir", artifacts)
	if err != nil || !strings.Contains(out, "no runs found") {
		t.Fatalf("unexpected empty runs output %q (%v)", out, err)
	}
}
