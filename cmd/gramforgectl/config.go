package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"gramforge/internal/fault"
	"gramforge/pkg/gramforge"
)

// runConfig is the YAML run file given with --config. Command line flags
// override every value it sets.
type runConfig struct {
	Grammar      string `yaml:"grammar"`
	Top          string `yaml:"top"`
	Count        int    `yaml:"count"`
	Seed         int64  `yaml:"seed"`
	Workers      int    `yaml:"workers"`
	MaxAttempts  int    `yaml:"max_attempts"`
	MaxDepth     int    `yaml:"max_depth"`
	NodeInfo     bool   `yaml:"node_info"`
	Store        string `yaml:"store"`
	DBPath       string `yaml:"db_path"`
	ArtifactsDir string `yaml:"artifacts_dir"`
	ExportsDir   string `yaml:"exports_dir"`
}

func loadRunConfig(path string) (runConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runConfig{}, err
	}
	var cfg runConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return runConfig{}, nil
		}
		return runConfig{}, fmt.Errorf("%w: run config %s: %v", fault.ErrConfiguration, path, err)
	}
	if cfg.Count < 0 || cfg.Workers < 0 || cfg.MaxAttempts < 0 || cfg.MaxDepth < 0 {
		return runConfig{}, fmt.Errorf("%w: run config %s: negative count, workers or limits", fault.ErrConfiguration, path)
	}
	return cfg, nil
}

func (c runConfig) generateRequest() gramforge.GenerateRequest {
	return gramforge.GenerateRequest{
		GrammarPath: c.Grammar,
		Top:         c.Top,
		Count:       c.Count,
		Seed:        c.Seed,
		Workers:     c.Workers,
		MaxAttempts: c.MaxAttempts,
		MaxDepth:    c.MaxDepth,
		NodeInfo:    c.NodeInfo,
	}
}

// pick prefers an explicitly set flag, then a value from the config file,
// then the flag default.
func pick[T comparable](changed bool, flagValue, cfgValue T) T {
	var zero T
	if changed || cfgValue == zero {
		return flagValue
	}
	return cfgValue
}
