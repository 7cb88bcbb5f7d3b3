// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Verdict is the overall result of one run. Exactly one verdict is produced
// per run.
type Verdict string

const (
	// VerdictCompleted means every stage ran to an outcome. Isolated,
	// non-consecutive failures still complete: downstream stages can
	// proceed meaningfully even when one upstream stage failed.
	VerdictCompleted Verdict = "completed"

	// VerdictAbortedSafety means the consecutive-failure streak reached
	// the limit and the remaining stages were skipped. A deliberate
	// protective stop, not an application error.
	VerdictAbortedSafety Verdict = "aborted_safety"

	// VerdictAbortedTimeout means the wall-clock budget ran out before
	// the next stage could start.
	VerdictAbortedTimeout Verdict = "aborted_timeout"

	// VerdictAbortedSnapshot means the pre-run snapshot could not be
	// taken and no stage executed. A startup failure, not a pipeline
	// failure.
	VerdictAbortedSnapshot Verdict = "aborted_snapshot"
)

// Entry records the outcome of one stage position in the run.
type Entry struct {
	// Stage is the stage name.
	Stage string `json:"stage"`

	// Ordinal is the stage's position.
	Ordinal int `json:"ordinal"`

	// Outcome is what the stage reported, or a synthesized Skipped when
	// the run aborted before reaching the stage.
	Outcome Outcome `json:"outcome"`

	// StartedAt is when the stage was invoked (or when the abort was
	// recorded, for synthesized skips).
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the invocation took.
	Duration time.Duration `json:"-"`

	// DurationMS mirrors Duration for serialization.
	DurationMS int64 `json:"duration_ms"`
}

// Summary aggregates a finalized report for logging and alerting.
type Summary struct {
	RunID      string        `json:"run_id"`
	Verdict    Verdict       `json:"verdict"`
	Attempted  int           `json:"attempted"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// Report is the structured record of one run.
//
// # Description
//
// Entries are appended in stage execution order and never reordered or
// removed. The report is created at run start, finalized exactly once at run
// end, then handed to report sinks (logging, alerting, history persistence)
// and never mutated again.
//
// # Thread Safety
//
// Safe for concurrent use; external collaborators may read a report while
// the run is still appending to it.
type Report struct {
	// RunID is the unique identifier of the run.
	RunID string `json:"run_id"`

	// StartedAt is the run start time.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is set by Finalize.
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// Verdict is set by Finalize.
	Verdict Verdict `json:"verdict,omitempty"`

	// SnapshotPath is the recovery snapshot taken before the run, empty
	// when snapshot creation itself failed.
	SnapshotPath string `json:"snapshot_path,omitempty"`

	// Entries are the per-stage records, in execution order.
	Entries []Entry `json:"entries"`

	mu        sync.RWMutex
	finalized bool
}

// NewReport creates an empty report for a run starting now.
func NewReport(runID string) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}
}

// Append records one stage entry. Fails once the report is finalized.
func (r *Report) Append(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return ErrReportFinalized
	}
	e.DurationMS = e.Duration.Milliseconds()
	r.Entries = append(r.Entries, e)
	return nil
}

// Finalize seals the report with the run's verdict. A report is finalized
// exactly once; a second call fails with ErrReportFinalized.
func (r *Report) Finalize(v Verdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return ErrReportFinalized
	}
	r.finalized = true
	r.Verdict = v
	r.FinishedAt = time.Now().UTC()
	return nil
}

// Finalized reports whether Finalize has been called.
func (r *Report) Finalized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finalized
}

// Len returns the number of entries recorded so far.
func (r *Report) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Entries)
}

// Summarize aggregates the report into per-status counts.
func (r *Report) Summarize() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Summary{
		RunID:     r.RunID,
		Verdict:   r.Verdict,
		Attempted: len(r.Entries),
	}
	for _, e := range r.Entries {
		switch e.Outcome.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusFailure:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	if !r.FinishedAt.IsZero() {
		s.Duration = r.FinishedAt.Sub(r.StartedAt)
		s.DurationMS = s.Duration.Milliseconds()
	}
	return s
}

// =============================================================================
// Report Sinks
// =============================================================================

// Sink receives finalized run reports. Implementations persist them, page an
// operator, or log a summary; sink failures never alter the run's verdict.
type Sink interface {
	// Consume handles one finalized report.
	Consume(ctx context.Context, r *Report) error
}

// LogSink writes a structured run summary to a logger. It stands in for the
// operator-alerting collaborator in deployments without one.
type LogSink struct {
	Logger *slog.Logger
}

// Consume logs the report summary and each non-success entry.
func (s *LogSink) Consume(ctx context.Context, r *Report) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sum := r.Summarize()
	logger.InfoContext(ctx, "run finished",
		"run_id", sum.RunID,
		"verdict", string(sum.Verdict),
		"attempted", sum.Attempted,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"duration_ms", sum.DurationMS,
	)

	for _, e := range r.Entries {
		if e.Outcome.Status == StatusSuccess {
			continue
		}
		logger.WarnContext(ctx, "stage did not succeed",
			"run_id", r.RunID,
			"stage", e.Stage,
			"status", e.Outcome.Status.String(),
			"message", e.Outcome.Message,
		)
	}
	return nil
}

// MultiSink fans a report out to several sinks, returning the first error
// after all sinks have been given the report.
type MultiSink []Sink

// Consume delivers the report to every sink.
func (m MultiSink) Consume(ctx context.Context, r *Report) error {
	var firstErr error
	for _, s := range m {
		if err := s.Consume(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
