// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the pipeline configuration file.
//
// Configuration is YAML; missing optional fields take documented defaults
// so a minimal file needs only the site directory and the stage list.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is the shared validator instance for configuration structs.
var validate = validator.New()

// StageConfig declares one pipeline stage. Stages run in declaration
// order.
type StageConfig struct {
	// Name is the unique stage name.
	Name string `yaml:"name" validate:"required"`

	// Command is the program to run, argv form.
	Command []string `yaml:"command" validate:"required,min=1"`

	// TimeoutSeconds bounds one invocation. Zero means unbounded (the
	// run's wall-clock budget still applies).
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=0"`

	// WorkDir is the program's working directory.
	WorkDir string `yaml:"work_dir"`
}

// ServerConfig configures the HTTP trigger and report service.
type ServerConfig struct {
	// Port is the listen port for the HTTP service.
	Port int `yaml:"port" validate:"min=0,max=65535"`

	// OTelEndpoint is the OTLP trace receiver. Empty disables tracing.
	OTelEndpoint string `yaml:"otel_endpoint"`
}

// DaemonConfig configures the interval scheduler.
type DaemonConfig struct {
	// IntervalHours is the pause between automatic runs.
	IntervalHours int `yaml:"interval_hours" validate:"min=0"`

	// StateFile persists the last-run timestamp across restarts.
	StateFile string `yaml:"state_file"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir enables an additional JSON log file in this directory.
	Dir string `yaml:"dir"`

	// JSON switches the console handler to JSON output.
	JSON bool `yaml:"json"`
}

// Config is the full pipeline configuration.
type Config struct {
	// SiteDir is the published content tree the pipeline maintains.
	SiteDir string `yaml:"site_dir" validate:"required"`

	// SnapshotDir holds pre-run recovery snapshots.
	SnapshotDir string `yaml:"snapshot_dir"`

	// QuarantineDir receives soft-deleted files.
	QuarantineDir string `yaml:"quarantine_dir"`

	// HistoryDir holds the run report database.
	HistoryDir string `yaml:"history_dir"`

	// LockPath is the cross-process run lock file.
	LockPath string `yaml:"lock_path"`

	// MaxConsecutiveFailures aborts the run when the streak reaches it.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures" validate:"min=0"`

	// MaxRuntimeSeconds is the wall-clock budget for one run.
	MaxRuntimeSeconds int `yaml:"max_runtime_seconds" validate:"min=0"`

	// SnapshotRetentionDays bounds snapshot age before pruning.
	SnapshotRetentionDays int `yaml:"snapshot_retention_days" validate:"min=0"`

	// Stages are the pipeline stages, in execution order.
	Stages []StageConfig `yaml:"stages" validate:"dive"`

	Server  ServerConfig  `yaml:"server"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the configuration defaults, rooted at dataDir.
func Default(dataDir string) Config {
	return Config{
		SiteDir:                filepath.Join(dataDir, "site"),
		SnapshotDir:            filepath.Join(dataDir, "snapshots"),
		QuarantineDir:          filepath.Join(dataDir, "quarantine"),
		HistoryDir:             filepath.Join(dataDir, "history"),
		LockPath:               filepath.Join(dataDir, "pipeline.lock"),
		MaxConsecutiveFailures: 3,
		MaxRuntimeSeconds:      600,
		SnapshotRetentionDays:  30,
		Server: ServerConfig{
			Port: 8643,
		},
		Daemon: DaemonConfig{
			IntervalHours: 24,
			StateFile:     filepath.Join(dataDir, "daemon_state.json"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads, defaults, and validates the configuration at path.
//
// # Description
//
//	Fields the file omits keep the defaults derived from the file's
//	directory, so a minimal config needs only site_dir and stages.
//
// # Outputs
//
//   - *Config: the validated configuration.
//   - error: non-nil on read, parse, or validation failure.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default(filepath.Dir(path))
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults(filepath.Dir(path))

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := cfg.checkStages(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// applyDefaults fills zero values that yaml may have overwritten with
// explicit empties or that depend on other fields.
func (c *Config) applyDefaults(dataDir string) {
	def := Default(dataDir)
	if c.SnapshotDir == "" {
		c.SnapshotDir = def.SnapshotDir
	}
	if c.QuarantineDir == "" {
		c.QuarantineDir = def.QuarantineDir
	}
	if c.HistoryDir == "" {
		c.HistoryDir = def.HistoryDir
	}
	if c.LockPath == "" {
		c.LockPath = def.LockPath
	}
	if c.MaxConsecutiveFailures == 0 {
		c.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if c.MaxRuntimeSeconds == 0 {
		c.MaxRuntimeSeconds = def.MaxRuntimeSeconds
	}
	if c.SnapshotRetentionDays == 0 {
		c.SnapshotRetentionDays = def.SnapshotRetentionDays
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Daemon.IntervalHours == 0 {
		c.Daemon.IntervalHours = def.Daemon.IntervalHours
	}
	if c.Daemon.StateFile == "" {
		c.Daemon.StateFile = def.Daemon.StateFile
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}

// checkStages rejects duplicate stage names up front, before the registry
// would.
func (c *Config) checkStages() error {
	seen := make(map[string]struct{}, len(c.Stages))
	for _, s := range c.Stages {
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// MaxRuntime returns the wall-clock budget as a duration.
func (c *Config) MaxRuntime() time.Duration {
	return time.Duration(c.MaxRuntimeSeconds) * time.Second
}

// SnapshotRetention returns the snapshot retention window as a duration.
func (c *Config) SnapshotRetention() time.Duration {
	return time.Duration(c.SnapshotRetentionDays) * 24 * time.Hour
}

// DaemonInterval returns the pause between automatic daemon runs.
func (c *Config) DaemonInterval() time.Duration {
	return time.Duration(c.Daemon.IntervalHours) * time.Hour
}
