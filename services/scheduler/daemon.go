// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/trendloop/trendloop/services/pipeline"
	"github.com/trendloop/trendloop/services/pipeline/lock"
)

// daemonState is the JSON document persisted between daemon restarts.
type daemonState struct {
	LastRunAt   time.Time `json:"last_run_at"`
	LastRunID   string    `json:"last_run_id"`
	LastVerdict string    `json:"last_verdict"`
}

// Daemon triggers pipeline runs on a fixed interval.
//
// # Description
//
// The daemon persists its last-run timestamp to a state file after every
// run, so a restarted daemon resumes the schedule instead of running
// immediately. A run already in progress (for example one triggered over
// HTTP) is skipped, not queued; the next tick tries again.
type Daemon struct {
	orchestrator *pipeline.Orchestrator
	interval     time.Duration
	stateFile    string
	logger       *slog.Logger
	now          func() time.Time
}

// NewDaemon creates an interval daemon.
func NewDaemon(orch *pipeline.Orchestrator, interval time.Duration, stateFile string, logger *slog.Logger) (*Daemon, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("daemon interval must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		orchestrator: orch,
		interval:     interval,
		stateFile:    stateFile,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Run loops until the context is cancelled.
//
// The first run happens once the remainder of the interval since the
// persisted last run has elapsed; with no saved state it happens
// immediately.
func (d *Daemon) Run(ctx context.Context) error {
	state := d.loadState()
	wait := d.nextWait(state)

	d.logger.Info("daemon started",
		slog.Duration("interval", d.interval),
		slog.Duration("first_run_in", wait))

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping", slog.String("reason", ctx.Err().Error()))
			return ctx.Err()
		case <-timer.C:
		}

		d.runOnce(ctx)
		timer.Reset(d.interval)
	}
}

// runOnce triggers a single run and persists the resulting state.
func (d *Daemon) runOnce(ctx context.Context) {
	report, err := d.orchestrator.Run(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrRunActive) {
			d.logger.Warn("scheduled run skipped, another run is active")
			return
		}
		d.logger.Error("scheduled run failed to start", slog.String("error", err.Error()))
	}
	if report == nil {
		return
	}

	state := daemonState{
		LastRunAt:   d.now().UTC(),
		LastRunID:   report.RunID,
		LastVerdict: string(report.Verdict),
	}
	if err := d.saveState(state); err != nil {
		d.logger.Warn("persisting daemon state", slog.String("error", err.Error()))
	}
}

// nextWait computes how long to wait before the first run.
func (d *Daemon) nextWait(state daemonState) time.Duration {
	if state.LastRunAt.IsZero() {
		return 0
	}
	elapsed := d.now().UTC().Sub(state.LastRunAt)
	if elapsed >= d.interval {
		return 0
	}
	return d.interval - elapsed
}

// loadState reads the persisted state; missing or corrupt files yield a
// zero state and an immediate first run.
func (d *Daemon) loadState() daemonState {
	var state daemonState
	if d.stateFile == "" {
		return state
	}
	data, err := os.ReadFile(d.stateFile)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		d.logger.Warn("corrupt daemon state file, starting fresh",
			slog.String("path", d.stateFile))
		return daemonState{}
	}
	return state
}

// saveState writes the state file atomically via rename.
func (d *Daemon) saveState(state daemonState) error {
	if d.stateFile == "" {
		return nil
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(d.stateFile), 0o755); err != nil {
		return err
	}
	tmp := d.stateFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, d.stateFile)
}
