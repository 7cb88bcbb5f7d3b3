// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/trendloop/trendloop/services/pipeline"
	"github.com/trendloop/trendloop/services/pipeline/config"
	"github.com/trendloop/trendloop/services/pipeline/history"
	"github.com/trendloop/trendloop/services/pipeline/lock"
	"github.com/trendloop/trendloop/services/pipeline/snapshot"
	"github.com/trendloop/trendloop/services/pipeline/stages"
	"github.com/trendloop/trendloop/services/pipeline/telemetry"
)

// app bundles the assembled pipeline collaborators for one command.
type app struct {
	orchestrator *pipeline.Orchestrator
	snapshots    *snapshot.Manager
	history      *history.Store
}

// close releases resources the app holds open.
func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			logger.Warn("closing history store", "error", err.Error())
		}
	}
}

// buildApp assembles the orchestrator and its collaborators from the
// loaded configuration.
func buildApp(cfg *config.Config) (*app, error) {
	specs := make([]stages.Spec, 0, len(cfg.Stages))
	for _, sc := range cfg.Stages {
		specs = append(specs, stages.Spec{
			Name:    sc.Name,
			Command: sc.Command,
			Timeout: time.Duration(sc.TimeoutSeconds) * time.Second,
			WorkDir: sc.WorkDir,
		})
	}
	registry, err := stages.Build(specs)
	if err != nil {
		return nil, fmt.Errorf("building stage registry: %w", err)
	}

	snapshots, err := snapshot.NewManager(snapshot.Config{
		SnapshotDir:   cfg.SnapshotDir,
		QuarantineDir: cfg.QuarantineDir,
	})
	if err != nil {
		return nil, fmt.Errorf("creating snapshot manager: %w", err)
	}

	store, err := history.Open(history.DefaultConfig(cfg.HistoryDir))
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	runLock, err := lock.NewRunLock(cfg.LockPath, logger.Slog())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating run lock: %w", err)
	}

	metrics, err := telemetry.NewMetrics(otel.Meter("pipeline"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	orch, err := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Registry:  registry,
		Snapshots: snapshots,
		SiteDir:   cfg.SiteDir,
		RunLock:   runLock,
		Guard: pipeline.GuardConfig{
			MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
			MaxRuntime:             cfg.MaxRuntime(),
		},
		Sinks: []pipeline.Sink{
			&pipeline.LogSink{Logger: logger.Slog()},
			store,
		},
		Metrics: metrics,
		Logger:  logger.Slog(),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return &app{
		orchestrator: orch,
		snapshots:    snapshots,
		history:      store,
	}, nil
}

// exitCodeFor maps a run verdict to the process exit code, so cron and
// monitoring can distinguish abort causes without parsing output.
func exitCodeFor(verdict pipeline.Verdict) int {
	switch verdict {
	case pipeline.VerdictCompleted:
		return 0
	case pipeline.VerdictAbortedSafety:
		return 2
	case pipeline.VerdictAbortedTimeout:
		return 3
	case pipeline.VerdictAbortedSnapshot:
		return 4
	default:
		return 1
	}
}
