// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/trendloop/trendloop/services/pipeline/lock"
	"github.com/trendloop/trendloop/services/pipeline/snapshot"
	"github.com/trendloop/trendloop/services/pipeline/telemetry"
)

// OrchestratorConfig wires an Orchestrator's collaborators.
type OrchestratorConfig struct {
	// Registry holds the stages to run, in ordinal order. Required.
	Registry *Registry

	// Snapshots takes the pre-run recovery snapshot. Required.
	Snapshots *snapshot.Manager

	// SiteDir is the published tree the snapshot protects. Required.
	SiteDir string

	// RunLock serializes runs across processes. Required.
	RunLock *lock.RunLock

	// Guard is the safety policy; zero values use defaults.
	Guard GuardConfig

	// Sinks receive every finalized report. Optional.
	Sinks []Sink

	// Metrics records run and stage instrumentation. Optional.
	Metrics *telemetry.Metrics

	// Logger receives run progress. Nil means slog.Default().
	Logger *slog.Logger
}

// Orchestrator drives one pipeline run at a time through its stages.
//
// # Description
//
// A run moves through a fixed sequence: acquire the run lock, take a
// recovery snapshot, then execute each registered stage in ordinal order.
// Before every stage the wall-clock deadline is checked; after every stage
// the outcome feeds the consecutive-failure guard. Either trigger aborts
// the run, and every stage not yet reached is recorded as Skipped so the
// report always carries one entry per registered stage. The deadline takes
// precedence when both triggers would fire.
//
// Exactly one verdict is recorded per run. Stage panics are contained and
// recorded as Failure outcomes so a misbehaving stage can never take down
// the scheduler.
//
// # Thread Safety
//
// Safe for concurrent use; concurrent Run calls past the first are
// rejected by the run lock, never queued.
type Orchestrator struct {
	registry  *Registry
	snapshots *snapshot.Manager
	siteDir   string
	runLock   *lock.RunLock
	guardCfg  GuardConfig
	sinks     []Sink
	metrics   *telemetry.Metrics
	tracer    oteltrace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator from its configuration.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("snapshot manager is required")
	}
	if cfg.SiteDir == "" {
		return nil, fmt.Errorf("site directory is required")
	}
	if cfg.RunLock == nil {
		return nil, fmt.Errorf("run lock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Guard.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		registry:  cfg.Registry,
		snapshots: cfg.Snapshots,
		siteDir:   cfg.SiteDir,
		runLock:   cfg.RunLock,
		guardCfg:  cfg.Guard,
		sinks:     cfg.Sinks,
		metrics:   cfg.Metrics,
		tracer:    otel.Tracer("pipeline"),
		logger:    logger,
		now:       now,
	}, nil
}

// Run executes one full pipeline run and returns its report.
//
// # Outputs
//
//   - *Report: the finalized report. Nil only when the run lock was held,
//     in which case no run happened at all.
//   - error: non-nil when the lock was held (errors.Is lock.ErrRunActive)
//     or the recovery snapshot failed; stage failures are reported through
//     the report's verdict, not through this error.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()

	if err := o.runLock.Acquire(runID); err != nil {
		o.logger.Warn("run rejected, another run is active",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
		return nil, err
	}
	defer func() {
		if err := o.runLock.Release(); err != nil {
			o.logger.Warn("releasing run lock", slog.String("error", err.Error()))
		}
	}()

	ctx, runSpan := o.tracer.Start(ctx, "pipeline.run",
		oteltrace.WithAttributes(attribute.String("run.id", runID)))
	defer runSpan.End()

	report := NewReport(runID)
	o.logger.Info("pipeline run starting",
		slog.String("run_id", runID),
		slog.Int("stages", o.registry.Len()))

	handle, err := o.snapshots.Create(o.siteDir)
	if err != nil {
		o.logger.Error("recovery snapshot failed, refusing to run",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
		o.finish(ctx, report, VerdictAbortedSnapshot)
		return report, fmt.Errorf("recovery snapshot: %w", err)
	}
	report.SnapshotPath = handle.Path
	if o.metrics != nil {
		o.metrics.SnapshotFilesTotal.Add(ctx, int64(handle.FileCount))
	}
	o.logger.Info("recovery snapshot taken",
		slog.String("run_id", runID),
		slog.String("path", handle.Path),
		slog.Int("files", handle.FileCount))

	guard := NewSafetyGuard(o.guardCfg)
	rc := NewRunContext(runID)
	rc.Set("snapshot_path", handle.Path)
	rc.Set("site_dir", o.siteDir)

	stages := o.registry.OrderedStages()
	verdict := VerdictCompleted

	for i, stage := range stages {
		if guard.CheckDeadline() == AbortTimeout {
			status := guard.Status()
			o.logger.Error("wall-clock budget exhausted, aborting run",
				slog.String("run_id", runID),
				slog.String("next_stage", stage.Name()),
				slog.Duration("elapsed", status.Elapsed))
			o.recordAbort(report, stages[i:], "deadline exceeded")
			verdict = VerdictAbortedTimeout
			break
		}

		entry := o.invoke(ctx, stage, rc)
		if err := report.Append(entry); err != nil {
			// Finalize-once makes this unreachable inside a run.
			o.logger.Error("appending report entry",
				slog.String("run_id", runID),
				slog.String("error", err.Error()))
		}
		if o.metrics != nil {
			o.metrics.StageOutcomesTotal.Add(ctx, 1,
				metric.WithAttributes(
					attribute.String("stage", stage.Name()),
					attribute.String("status", entry.Outcome.Status.String())))
			o.metrics.StageDuration.Record(ctx, entry.Duration.Seconds(),
				metric.WithAttributes(attribute.String("stage", stage.Name())))
		}

		if guard.RecordOutcome(entry.Outcome) == AbortConsecutiveFailures {
			status := guard.Status()
			o.logger.Error("consecutive failure limit reached, aborting run",
				slog.String("run_id", runID),
				slog.String("stage", stage.Name()),
				slog.Int("consecutive_failures", status.ConsecutiveFailures))
			o.recordAbort(report, stages[i+1:], "aborted after consecutive failures")
			verdict = VerdictAbortedSafety
			break
		}
	}

	o.finish(ctx, report, verdict)
	return report, nil
}

// invoke runs one stage, containing panics as Failure outcomes.
func (o *Orchestrator) invoke(ctx context.Context, stage Stage, rc *RunContext) Entry {
	ctx, span := o.tracer.Start(ctx, "pipeline.stage",
		oteltrace.WithAttributes(
			attribute.String("stage.name", stage.Name()),
			attribute.Int("stage.ordinal", stage.Ordinal())))
	defer span.End()

	startedAt := o.now().UTC()
	outcome := o.execute(ctx, stage, rc)
	duration := o.now().UTC().Sub(startedAt)

	span.SetAttributes(attribute.String("stage.status", outcome.Status.String()))
	o.logger.Info("stage finished",
		slog.String("run_id", rc.RunID()),
		slog.String("stage", stage.Name()),
		slog.String("status", outcome.Status.String()),
		slog.Duration("duration", duration))

	return Entry{
		Stage:     stage.Name(),
		Ordinal:   stage.Ordinal(),
		Outcome:   outcome,
		StartedAt: startedAt,
		Duration:  duration,
	}
}

// execute calls the stage with panic containment.
func (o *Orchestrator) execute(ctx context.Context, stage Stage, rc *RunContext) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("stage panicked",
				slog.String("stage", stage.Name()),
				slog.Any("panic", r))
			outcome = Failuref(FailureUnknown, "stage %s panicked: %v", stage.Name(), r)
		}
	}()
	return stage.Execute(ctx, rc)
}

// recordAbort appends synthesized Skipped entries for every stage the run
// never reached, so the report stays one entry per registered stage.
func (o *Orchestrator) recordAbort(report *Report, remaining []Stage, reason string) {
	now := o.now().UTC()
	for _, stage := range remaining {
		entry := Entry{
			Stage:     stage.Name(),
			Ordinal:   stage.Ordinal(),
			Outcome:   Skip(reason),
			StartedAt: now,
		}
		if err := report.Append(entry); err != nil {
			o.logger.Error("appending skip entry",
				slog.String("stage", stage.Name()),
				slog.String("error", err.Error()))
		}
	}
}

// finish finalizes the report, records run metrics, and dispatches sinks.
func (o *Orchestrator) finish(ctx context.Context, report *Report, verdict Verdict) {
	if err := report.Finalize(verdict); err != nil {
		o.logger.Error("finalizing report",
			slog.String("run_id", report.RunID),
			slog.String("error", err.Error()))
	}

	summary := report.Summarize()
	o.logger.Info("pipeline run finished",
		slog.String("run_id", report.RunID),
		slog.String("verdict", string(verdict)),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Duration("duration", summary.Duration))

	if o.metrics != nil {
		o.metrics.RunsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("verdict", string(verdict))))
		o.metrics.RunDuration.Record(ctx, summary.Duration.Seconds(),
			metric.WithAttributes(attribute.String("verdict", string(verdict))))
		switch verdict {
		case VerdictAbortedSafety:
			o.metrics.SafetyAbortsTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("reason", "consecutive_failures")))
		case VerdictAbortedTimeout:
			o.metrics.SafetyAbortsTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("reason", "timeout")))
		}
	}

	for _, sink := range o.sinks {
		if err := sink.Consume(ctx, report); err != nil {
			o.logger.Error("report sink failed",
				slog.String("run_id", report.RunID),
				slog.String("error", err.Error()))
		}
	}
}
