// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the pipeline service.
//
// All metrics use the "pipeline_" prefix for consistent naming.
//
// Thread Safety: safe for concurrent use after creation.
type Metrics struct {
	// RunsTotal counts pipeline runs by verdict.
	RunsTotal metric.Int64Counter

	// RunDuration records full run duration in seconds.
	RunDuration metric.Float64Histogram

	// StageOutcomesTotal counts stage executions by stage and status.
	StageOutcomesTotal metric.Int64Counter

	// StageDuration records per-stage duration in seconds.
	StageDuration metric.Float64Histogram

	// SafetyAbortsTotal counts safety aborts by reason.
	SafetyAbortsTotal metric.Int64Counter

	// SnapshotFilesTotal counts files copied into recovery snapshots.
	SnapshotFilesTotal metric.Int64Counter
}

// NewMetrics registers all pipeline metrics with the provided meter.
//
// # Outputs
//
//   - *Metrics: the metrics instance with all instruments initialized.
//   - error: non-nil if any registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RunsTotal, err = meter.Int64Counter(
		"pipeline_runs_total",
		metric.WithDescription("Total pipeline runs by verdict"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs_total: %w", err)
	}

	m.RunDuration, err = meter.Float64Histogram(
		"pipeline_run_duration_seconds",
		metric.WithDescription("Full pipeline run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1200),
	)
	if err != nil {
		return nil, fmt.Errorf("create run_duration: %w", err)
	}

	m.StageOutcomesTotal, err = meter.Int64Counter(
		"pipeline_stage_outcomes_total",
		metric.WithDescription("Total stage executions by stage and status"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage_outcomes_total: %w", err)
	}

	m.StageDuration, err = meter.Float64Histogram(
		"pipeline_stage_duration_seconds",
		metric.WithDescription("Per-stage execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 15, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage_duration: %w", err)
	}

	m.SafetyAbortsTotal, err = meter.Int64Counter(
		"pipeline_safety_aborts_total",
		metric.WithDescription("Total safety aborts by reason"),
		metric.WithUnit("{abort}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create safety_aborts_total: %w", err)
	}

	m.SnapshotFilesTotal, err = meter.Int64Counter(
		"pipeline_snapshot_files_total",
		metric.WithDescription("Total files copied into recovery snapshots"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create snapshot_files_total: %w", err)
	}

	return m, nil
}
