// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads interopscan configuration.
//
// Values are layered: the embedded default.yaml, then an optional config
// file, then INTEROPSCAN_* environment variables (a .env file is read into
// the environment first when present). The result is validated once.
//
// Thread Safety:
//
//	A loaded Config is read-only and safe for concurrent use.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxYAMLFileSize is the largest config file accepted.
const MaxYAMLFileSize = 1024 * 1024

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INTEROPSCAN_"

//go:embed default.yaml
var defaultYAML []byte

var (
	// ErrInvalidConfig wraps validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigTooLarge is returned for files over MaxYAMLFileSize.
	ErrConfigTooLarge = errors.New("configuration file too large")
)

// Config is the root configuration document.
type Config struct {
	SpecialCases SpecialCases    `yaml:"special_cases"`
	Cache        CacheConfig     `yaml:"cache"`
	Logging      LoggingConfig   `yaml:"logging"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
}

// SpecialCases holds the hard-coded names the passes rely on. Every name is
// a canonical signature that must resolve in the analyzed universe.
type SpecialCases struct {
	ImportOverrides         map[string]string `yaml:"import_overrides" validate:"dive,keys,required,endkeys,required"`
	RefcountedRoots         []string          `yaml:"refcounted_roots" validate:"dive,required"`
	SingletonHolders        []string          `yaml:"singleton_holders" validate:"dive,required"`
	TemplateTemplateAllowed []string          `yaml:"template_template_allowed" validate:"dive,required"`
	SafeTypes               []string          `yaml:"safe_types" validate:"dive,required"`
	ContainerFamilies       []FamilyConfig    `yaml:"container_families" validate:"dive"`
	PublicHeaders           []string          `yaml:"public_headers" validate:"dive,required"`
	LenientNames            bool              `yaml:"lenient_names"`
}

// FamilyConfig names a container template and its element argument indices.
type FamilyConfig struct {
	Template string `yaml:"template" validate:"required"`
	Elements []int  `yaml:"elements" validate:"required,min=1,dive,min=0"`
}

// CacheConfig selects the pass result cache.
type CacheConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file badger none"`
	Dir     string `yaml:"dir" validate:"required_unless=Backend none"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig selects trace and metric exporters.
type TelemetryConfig struct {
	Traces       string `yaml:"traces" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Traces otlp"`
	Metrics      string `yaml:"metrics" validate:"oneof=none stdout prometheus"`
	MetricsFile  string `yaml:"metrics_file"`
}

// Default returns the embedded defaults.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return &cfg, nil
}

// Load layers the embedded defaults, the file at path (skipped when path is
// empty), the .env file at envFile (skipped when empty or missing) and the
// process environment, then validates the result.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - I/O and YAML errors, ErrConfigTooLarge, or ErrInvalidConfig.
func Load(path, envFile string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := readLimited(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readLimited(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrConfigTooLarge, path, info.Size())
	}
	return os.ReadFile(path)
}

// applyEnv copies INTEROPSCAN_* variables over the loaded values.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LOG_LEVEL":     &c.Logging.Level,
		"LOG_DIR":       &c.Logging.Dir,
		"CACHE_BACKEND": &c.Cache.Backend,
		"CACHE_DIR":     &c.Cache.Dir,
		"TRACES":        &c.Telemetry.Traces,
		"OTLP_ENDPOINT": &c.Telemetry.OTLPEndpoint,
		"METRICS":       &c.Telemetry.Metrics,
		"METRICS_FILE":  &c.Telemetry.MetricsFile,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	bools := map[string]*bool{
		"LOG_JSON":      &c.Logging.JSON,
		"LENIENT_NAMES": &c.SpecialCases.LenientNames,
	}
	for name, dst := range bools {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q: %w", ErrInvalidConfig, EnvPrefix, name, v, err)
		}
		*dst = b
	}
	return nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// SpecialCasesYAML renders the special cases canonically. It feeds the
// cache fingerprint, so changing a special case invalidates cached results.
func (c *Config) SpecialCasesYAML() ([]byte, error) {
	return yaml.Marshal(c.SpecialCases)
}
