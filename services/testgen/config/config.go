// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the run configuration of testgen.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianTestGen/services/testgen/triage"
)

//go:embed default_config.yaml
var defaultConfigYAML []byte

// DefaultFileName is picked up from the working directory when no
// explicit config path is given.
const DefaultFileName = ".testgen.yaml"

// MaxConfigFileSize bounds user configuration files.
const MaxConfigFileSize = 1 << 20

// Config is the full run configuration.
type Config struct {
	Generation GenerationConfig `yaml:"generation" validate:"required"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Triage     triage.Policy    `yaml:"triage"`
	LLM        LLMConfig        `yaml:"llm" validate:"required"`
	Cache      CacheConfig      `yaml:"cache"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Watch      WatchConfig      `yaml:"watch"`
}

// GenerationConfig controls prompts and output files.
type GenerationConfig struct {
	Framework       string `yaml:"framework" validate:"required,oneof=jest mocha vitest"`
	Style           string `yaml:"style" validate:"required,oneof=unit integration both"`
	Coverage        int    `yaml:"coverage" validate:"gte=0,lte=100"`
	IncludeSnapshot bool   `yaml:"include_snapshot"`
	OutputDir       string `yaml:"output_dir" validate:"required"`
}

// AnalysisConfig controls discovery and extraction.
type AnalysisConfig struct {
	Include              []string `yaml:"include"`
	Exclude              []string `yaml:"exclude"`
	TolerateSyntaxErrors bool     `yaml:"tolerate_syntax_errors"`
	MaxFileSize          int64    `yaml:"max_file_size" validate:"gte=0"`
}

// LLMConfig configures the generation client.
type LLMConfig struct {
	Model        string        `yaml:"model"`
	Transport    string        `yaml:"transport" validate:"required,oneof=rest sdk"`
	BaseURL      string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
	MaxRetries   int           `yaml:"max_retries" validate:"gte=0,lte=20"`
	StrictQuota  bool          `yaml:"strict_quota"`
	Offline      bool          `yaml:"offline"`
	RequestDelay time.Duration `yaml:"request_delay" validate:"gte=0"`
	Interactive  bool          `yaml:"interactive"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir" validate:"required_if=Enabled true"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
}

// TelemetryConfig selects exporters.
type TelemetryConfig struct {
	TraceExporter string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	TraceFile     string `yaml:"trace_file"`
	OTLPEndpoint  string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	MetricsFile   string `yaml:"metrics_file"`
	MetricsStdout bool   `yaml:"metrics_stdout"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the embedded defaults.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return &cfg, nil
}

// Load returns the defaults overlaid with the user file at path.
//
// Description:
//
//	An empty path falls back to DefaultFileName in the working directory
//	when that file exists. Keys absent from the user file keep their
//	default values. The merged configuration is validated.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Non-nil if a file cannot be read or parsed, or validation fails.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) > MaxConfigFileSize {
			return nil, fmt.Errorf("config %s exceeds maximum size (%d > %d)", path, len(data), MaxConfigFileSize)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		slog.Debug("loaded config file", slog.String("path", path))
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("could not load env file", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
}
