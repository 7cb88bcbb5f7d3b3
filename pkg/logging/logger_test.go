// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLevelString verifies level names, including out-of-range values.
func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
	assert.Equal(t, "UNKNOWN", Level(-1).String())
}

// TestParseLevel verifies config strings map to levels, with Info as the
// fallback for anything unrecognized.
func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

// TestToSlogLevel verifies the bridge to the standard library levels.
func TestToSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, LevelInfo.toSlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
}

// TestFileLogging verifies the log file is created with the expected name,
// contains JSON entries, and carries the service attribute.
func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "pipeline",
		Quiet:   true,
	})
	defer logger.Close()

	logger.Info("run finished", "run_id", "run-1", "verdict", "completed")

	expected := filepath.Join(dir,
		"pipeline_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(expected)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "run finished", entry["msg"])
	assert.Equal(t, "pipeline", entry["service"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "completed", entry["verdict"])
}

// TestLevelFiltering verifies messages below the minimum level are dropped.
func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "pipeline",
		Quiet:   true,
	})
	defer logger.Close()

	logger.Debug("debug msg")
	logger.Info("info msg")
	logger.Warn("warn msg")
	logger.Error("error msg")

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)

	content := string(data)
	assert.NotContains(t, content, "debug msg")
	assert.NotContains(t, content, "info msg")
	assert.Contains(t, content, "warn msg")
	assert.Contains(t, content, "error msg")
}

// TestWithAttributes verifies child loggers carry their attributes into
// every entry they write.
func TestWithAttributes(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "pipeline",
		Quiet:   true,
	})
	defer logger.Close()

	child := logger.With("run_id", "run-9")
	child.Info("stage finished", "stage", "render")

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "run-9", entry["run_id"])
	assert.Equal(t, "render", entry["stage"])
}

// TestCloseIdempotent verifies Close is safe to call multiple times.
func TestCloseIdempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
}

// TestDefaultLogger verifies the default logger works without file output.
func TestDefaultLogger(t *testing.T) {
	logger := Default()
	defer logger.Close()
	require.NotNil(t, logger.Slog())
	logger.Info("hello")
}

// TestDefaultServiceFilename verifies the fallback service name is used
// for the log file when Service is empty.
func TestDefaultServiceFilename(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Quiet: true})
	defer logger.Close()
	logger.Info("entry")

	expected := filepath.Join(dir,
		"trendloop_"+time.Now().Format("2006-01-02")+".log")
	_, err := os.Stat(expected)
	require.NoError(t, err)
}

// TestExpandPath verifies ~ expansion leaves absolute paths untouched.
func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".trendloop", "logs"), expandPath("~/.trendloop/logs"))
	assert.Equal(t, "/var/log/trendloop", expandPath("/var/log/trendloop"))
}
