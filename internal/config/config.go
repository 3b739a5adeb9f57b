// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the ambient project configuration: output root,
// worker pool sizes, timeouts, and tool version. The rule set itself
// (query/template/output_path bindings) lives in a separate TOML file
// handled by internal/rules.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/proofc/proofc/internal/errors"
)

const (
	DefaultConfigDir  = ".proofc"
	DefaultConfigFile = "project.yaml"
	configVersion     = "1"

	// ToolVersion is recorded in every receipt's tool_version field.
	ToolVersion = "0.1.0"
)

// Config is the parsed contents of .proofc/project.yaml.
type Config struct {
	Version string `yaml:"version"`

	// OutputRoot is the workspace-relative directory every rule's
	// output_path must resolve inside.
	OutputRoot string `yaml:"output_root"`

	// RuleSetPath points at the TOML rule-set file.
	RuleSetPath string `yaml:"rule_set"`

	// OntologyPath points at the Turtle ontology file.
	OntologyPath string `yaml:"ontology"`

	// ManifestPath is where the persistent artifact manifest is stored.
	ManifestPath string `yaml:"manifest_path"`

	// ArtifactsRoot is the workspace-relative directory holding the
	// reports/receipts/diffs layout the orchestrator writes on every run.
	// It is distinct from OutputRoot, which holds only generated source.
	ArtifactsRoot string `yaml:"artifacts_root"`

	Guard    GuardConfig    `yaml:"guard"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Validate ValidateConfig `yaml:"validate"`
}

// GuardConfig controls the guard kernel's bounds and sampling policy.
type GuardConfig struct {
	// FailFast aborts on the first guard failure; when false, all seven
	// guards run and every failure is reported before aborting.
	FailFast bool `yaml:"fail_fast"`

	MaxOutputBytes int64 `yaml:"max_output_bytes"`
	MaxOutputFiles int   `yaml:"max_output_files"`

	// G6Sample is "one" (default, deterministic lexical pick) or "all".
	G6Sample string `yaml:"g6_sample"`

	RowCap     int           `yaml:"row_cap"`
	QueryBudget time.Duration `yaml:"query_budget"`
}

// PipelineConfig holds worker pool sizing and timeout settings. Only
// RenderWorkers is read by the pipeline; SubprocessTimeout and
// PipelineTimeout are parsed but not applied anywhere.
type PipelineConfig struct {
	RenderWorkers     int           `yaml:"render_workers"`
	SubprocessTimeout time.Duration `yaml:"subprocess_timeout"`
	PipelineTimeout   time.Duration `yaml:"pipeline_timeout"`
}

// ValidateConfig controls the validator's strictness.
type ValidateConfig struct {
	// Strict is parsed from the "strict" key. No validator reads it:
	// no formatter or compilation smoke test is run, whatever its value.
	Strict bool `yaml:"strict"`
}

// Default returns a config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		Version:      configVersion,
		OutputRoot:   "src/generated",
		RuleSetPath:  "rules.toml",
		OntologyPath: "ontology.ttl",
		ManifestPath: ".proofc/manifest.json",
		ArtifactsRoot: ".proofc/artifacts",
		Guard: GuardConfig{
			FailFast:       true,
			MaxOutputBytes: 50 * 1024 * 1024,
			MaxOutputFiles: 10000,
			G6Sample:       "one",
			RowCap:         100000,
			QueryBudget:    30 * time.Second,
		},
		Pipeline: PipelineConfig{
			RenderWorkers:     0, // 0 means runtime.NumCPU()
			SubprocessTimeout: 60 * time.Second,
			PipelineTimeout:   10 * time.Minute,
		},
		Validate: ValidateConfig{Strict: false},
	}
}

// Load reads and parses the project config at path. If path is empty,
// it searches the current directory and its ancestors for
// .proofc/project.yaml.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = find()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path from user config or discovery
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("failed to read %s", path),
			"check file permissions and ensure the file exists",
			err,
		)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration format",
			"YAML parsing failed - the config file contains syntax errors",
			fmt.Sprintf("edit %s to fix syntax errors, or run 'proofc init --force' to recreate", path),
			err,
		)
	}

	if cfg.Version != configVersion {
		return nil, errors.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("config version %q is not supported (expected %q)", cfg.Version, configVersion),
			"run 'proofc init --force' to regenerate the configuration file",
			nil,
		)
	}

	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewInternalError(
			"Cannot encode configuration",
			"YAML marshaling failed unexpectedly",
			"this is a bug; please report it",
			err,
		)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.NewConfigError(
			"Cannot create configuration directory",
			fmt.Sprintf("permission denied creating %s", dir),
			"check directory permissions",
			err,
		)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.NewConfigError(
			"Cannot write configuration file",
			fmt.Sprintf("permission denied writing to %s", path),
			"check file permissions and available disk space",
			err,
		)
	}
	return nil
}

// Path returns the canonical config path under dir.
func Path(dir string) string {
	return filepath.Join(dir, DefaultConfigDir, DefaultConfigFile)
}

// Locate resolves the project config file path without reading it: an
// explicit path (e.g. from a --config flag) wins, then
// PROOFC_CONFIG_PATH, then an upward search from the current working
// directory for .proofc/project.yaml. Callers that also need the
// workspace root (every relative path in Config resolves against it)
// derive it as filepath.Dir(filepath.Dir(path)) when the returned path
// ends in DefaultConfigDir/DefaultConfigFile.
func Locate(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return find()
}

func find() (string, error) {
	if envPath := os.Getenv("PROOFC_CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", errors.NewConfigError(
			"Configuration file not found",
			fmt.Sprintf("PROOFC_CONFIG_PATH is set to %q but the file does not exist", envPath),
			"fix PROOFC_CONFIG_PATH or run 'proofc init'",
			nil,
		)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot access working directory",
			"failed to determine current directory path",
			"check system permissions and try again",
			err,
		)
	}

	for {
		candidate := Path(dir)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.NewConfigError(
		"Configuration not found",
		"no .proofc/project.yaml found in the current directory or any parent directory",
		"run 'proofc init' to create a new configuration",
		nil,
	)
}

// ResolveOutputRoot applies the OUTPUT_ROOT environment override when it
// is set and safe (relative, no ".." segments).
func (c *Config) ResolveOutputRoot() string {
	if env := os.Getenv("OUTPUT_ROOT"); env != "" && filepath.IsLocal(env) {
		return env
	}
	return c.OutputRoot
}

// SourceDateEpoch returns the pinned build timestamp from
// SOURCE_DATE_EPOCH, or the zero time.Time if unset/unparsable, letting
// the caller fall back to time.Now().
func SourceDateEpoch() (time.Time, bool) {
	v := os.Getenv("SOURCE_DATE_EPOCH")
	if v == "" {
		return time.Time{}, false
	}
	var sec int64
	if _, err := fmt.Sscanf(v, "%d", &sec); err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0).UTC(), true
}
