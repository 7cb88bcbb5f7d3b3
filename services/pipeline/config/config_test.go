// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig drops a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trendloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoadMinimal verifies a minimal file gets full defaults.
func TestLoadMinimal(t *testing.T) {
	path := writeConfig(t, `
site_dir: /srv/trendloop/site
stages:
  - name: fetch
    command: ["python3", "fetch.py"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/trendloop/site", cfg.SiteDir)
	assert.Equal(t, 3, cfg.MaxConsecutiveFailures)
	assert.Equal(t, 600*time.Second, cfg.MaxRuntime())
	assert.Equal(t, 30*24*time.Hour, cfg.SnapshotRetention())
	assert.Equal(t, 24*time.Hour, cfg.DaemonInterval())
	assert.Equal(t, "info", cfg.Logging.Level)

	dir := filepath.Dir(path)
	assert.Equal(t, filepath.Join(dir, "snapshots"), cfg.SnapshotDir)
	assert.Equal(t, filepath.Join(dir, "quarantine"), cfg.QuarantineDir)
	assert.Equal(t, filepath.Join(dir, "pipeline.lock"), cfg.LockPath)

	require.Len(t, cfg.Stages, 1)
	assert.Equal(t, []string{"python3", "fetch.py"}, cfg.Stages[0].Command)
}

// TestLoadFull verifies explicit values are kept.
func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
site_dir: /srv/site
snapshot_dir: /srv/snapshots
max_consecutive_failures: 5
max_runtime_seconds: 300
snapshot_retention_days: 7
stages:
  - name: fetch
    command: ["fetch"]
    timeout_seconds: 120
  - name: render
    command: ["render", "--all"]
server:
  port: 9000
  otel_endpoint: collector:4317
daemon:
  interval_hours: 6
logging:
  level: debug
  json: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/snapshots", cfg.SnapshotDir)
	assert.Equal(t, 5, cfg.MaxConsecutiveFailures)
	assert.Equal(t, 300*time.Second, cfg.MaxRuntime())
	assert.Equal(t, 7*24*time.Hour, cfg.SnapshotRetention())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "collector:4317", cfg.Server.OTelEndpoint)
	assert.Equal(t, 6*time.Hour, cfg.DaemonInterval())
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, 120, cfg.Stages[0].TimeoutSeconds)
}

// TestLoadRejectsMissingSiteDir verifies site_dir is required.
func TestLoadRejectsMissingSiteDir(t *testing.T) {
	path := writeConfig(t, `
stages:
  - name: fetch
    command: ["fetch"]
`)
	_, err := Load(path)
	assert.Error(t, err)
}

// TestLoadRejectsDuplicateStageNames verifies dup names fail fast at load
// time.
func TestLoadRejectsDuplicateStageNames(t *testing.T) {
	path := writeConfig(t, `
site_dir: /srv/site
stages:
  - name: fetch
    command: ["a"]
  - name: fetch
    command: ["b"]
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate stage name")
}

// TestLoadRejectsEmptyCommand verifies stage commands are required.
func TestLoadRejectsEmptyCommand(t *testing.T) {
	path := writeConfig(t, `
site_dir: /srv/site
stages:
  - name: fetch
    command: []
`)
	_, err := Load(path)
	assert.Error(t, err)
}

// TestLoadRejectsBadLevel verifies the logging level whitelist.
func TestLoadRejectsBadLevel(t *testing.T) {
	path := writeConfig(t, `
site_dir: /srv/site
logging:
  level: loud
`)
	_, err := Load(path)
	assert.Error(t, err)
}

// TestLoadMissingFile verifies the error path for a missing config.
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// TestLoadUnparseable verifies the error path for invalid YAML.
func TestLoadUnparseable(t *testing.T) {
	path := writeConfig(t, "site_dir: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}
