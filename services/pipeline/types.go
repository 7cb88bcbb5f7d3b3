// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline implements the orchestration and safety-control core of the
// TrendLoop content system.
//
// A pipeline run executes a fixed, ordered sequence of content-production
// stages (trend analysis, writing, image generation, link injection, site
// rebuild, distribution, translation). The core does not know what a stage
// does; it only sequences stages, classifies their outcomes, halts the run
// after too many consecutive failures, enforces a wall-clock budget, and
// guarantees every run starts from a restorable snapshot of the published
// site.
//
// # Components
//
//   - Registry: the ordered, immutable list of stages (registry.go)
//   - SafetyGuard: failure-streak and deadline state machine (guard.go)
//   - RunContext: the shared artifact bag passed through the stages (context.go)
//   - Report: the append-only record of one run (report.go)
//   - Orchestrator: the run state machine tying it together (orchestrator.go)
//
// Snapshots, the exclusive run lock, report history, stage adapters, and
// telemetry live in the subpackages snapshot, lock, history, stages, and
// telemetry.
//
// # Thread Safety
//
// A single run executes stages strictly sequentially. All core types are
// nevertheless safe for concurrent use, because stages may use internal
// concurrency and external collaborators may inspect state mid-run.
package pipeline

import (
	"context"
	"fmt"
)

// Status classifies the outcome of a single stage invocation.
type Status int

const (
	// StatusSuccess means the stage completed its work.
	StatusSuccess Status = iota

	// StatusFailure means the stage failed. Failures count toward the
	// consecutive-failure streak but do not by themselves end the run.
	StatusFailure

	// StatusSkipped means the stage did not run, either because the stage
	// itself judged its preconditions unmet or because the run aborted
	// before reaching it. Skips never affect the failure streak.
	StatusSkipped
)

// String returns the wire/report name of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status as its string name.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a status from its string name.
func (s *Status) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"success"`:
		*s = StatusSuccess
	case `"failure"`:
		*s = StatusFailure
	case `"skipped"`:
		*s = StatusSkipped
	default:
		return fmt.Errorf("unknown stage status %s", data)
	}
	return nil
}

// FailureClass is an informational classification attached to failures by the
// stage that produced them. The safety guard does not discriminate by class;
// every failure counts identically toward the streak. Stages that judge a
// condition non-fatal should report Skipped instead of a transient Failure.
type FailureClass string

const (
	// FailureTransient marks failures the stage expects to clear on a
	// later run (rate limits, flaky upstreams).
	FailureTransient FailureClass = "transient"

	// FailurePermanent marks failures that will not clear without
	// operator intervention (bad credentials, malformed templates).
	FailurePermanent FailureClass = "permanent"

	// FailureUnknown is the default when the stage did not classify.
	FailureUnknown FailureClass = "unknown"
)

// Outcome is the result of exactly one stage invocation.
//
// An Outcome is produced by Stage.Execute, consumed immediately by the
// SafetyGuard, and recorded into the run report. The core never retries a
// stage; whatever Outcome comes back is final for this run.
type Outcome struct {
	// Status is the outcome classification.
	Status Status `json:"status"`

	// Class refines Failure outcomes. Empty for Success and Skipped.
	Class FailureClass `json:"class,omitempty"`

	// Message is the failure message or skip reason. Empty for Success.
	Message string `json:"message,omitempty"`

	// Metadata carries optional stage-reported details for the report
	// (counts, produced paths). Opaque to the core.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Success returns a successful outcome with optional metadata.
func Success(metadata map[string]any) Outcome {
	return Outcome{Status: StatusSuccess, Metadata: metadata}
}

// Failuref returns a failure outcome with a formatted message.
func Failuref(class FailureClass, format string, args ...any) Outcome {
	if class == "" {
		class = FailureUnknown
	}
	return Outcome{
		Status:  StatusFailure,
		Class:   class,
		Message: fmt.Sprintf(format, args...),
	}
}

// Skip returns a skipped outcome with the given reason.
func Skip(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Message: reason}
}

// Stage is a single named step in the pipeline.
//
// # Description
//
// Stages are registered once at startup and are immutable for the process
// lifetime. The orchestrator invokes them strictly in ordinal order, one at a
// time, passing the shared RunContext by reference.
//
// # Contract
//
// Execute must return exactly one Outcome and must not let any internal
// fault escape: errors, timeouts, and panics inside the stage are to be
// converted into a Failure outcome with a human-readable message. A stage may
// read and add RunContext keys but must never remove keys written by earlier
// stages.
type Stage interface {
	// Name returns the unique stage name.
	Name() string

	// Ordinal returns the stage's position in the pipeline. Ordinals are
	// unique and strictly increasing across the registry.
	Ordinal() int

	// Execute runs the stage against the shared run context.
	Execute(ctx context.Context, rc *RunContext) Outcome
}
