// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"sync"
	"time"
)

// Decision is the safety guard's verdict after evaluating a stage outcome or
// the wall clock.
type Decision int

const (
	// Continue means the run may proceed to the next stage.
	Continue Decision = iota

	// AbortConsecutiveFailures means the failure streak reached the
	// configured limit and the run must stop.
	AbortConsecutiveFailures

	// AbortTimeout means the wall-clock budget is exhausted and no
	// further stage may start.
	AbortTimeout
)

// String returns the decision name for logging.
func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case AbortConsecutiveFailures:
		return "abort_consecutive_failures"
	case AbortTimeout:
		return "abort_timeout"
	default:
		return "unknown"
	}
}

// GuardConfig configures a SafetyGuard.
type GuardConfig struct {
	// MaxConsecutiveFailures is the failure streak that aborts the run
	// (default: 3).
	MaxConsecutiveFailures int

	// MaxRuntime is the wall-clock budget for the whole run
	// (default: 600s).
	MaxRuntime time.Duration

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// DefaultGuardConfig returns the production policy defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxConsecutiveFailures: 3,
		MaxRuntime:             600 * time.Second,
	}
}

// SafetyGuard tracks consecutive stage failures and the run deadline.
//
// Description:
//
//	SafetyGuard is a pure counter/clock state machine with two independent
//	abort triggers. The failure streak is reset by any Success, incremented
//	by any Failure, and untouched by Skipped. The deadline is measured from
//	the guard's creation and checked before every stage, not only after
//	failures, so a hung stage that never reports a Failure is still
//	bounded. When both triggers would fire, the deadline wins: callers
//	consult CheckDeadline first.
//
//	The guard makes no distinction between failure classes. A stage that
//	considers a condition non-fatal should return Skipped, which leaves the
//	streak alone.
//
//	One guard serves exactly one run; the start time and limits are fixed
//	for its lifetime.
//
// Thread Safety: Safe for concurrent use via mutex.
type SafetyGuard struct {
	mu                  sync.Mutex
	maxConsecutive      int
	maxRuntime          time.Duration
	runStart            time.Time
	consecutiveFailures int
	now                 func() time.Time
}

// GuardStatus is a point-in-time snapshot of the guard, for logging.
type GuardStatus struct {
	// ConsecutiveFailures is the current failure streak.
	ConsecutiveFailures int

	// MaxConsecutiveFailures is the configured streak limit.
	MaxConsecutiveFailures int

	// Elapsed is the wall-clock time since the run started.
	Elapsed time.Duration

	// Remaining is the wall-clock budget left (never negative).
	Remaining time.Duration
}

// NewSafetyGuard creates a guard for a run starting now.
//
// Invalid config values fall back to the defaults, mirroring how the rest of
// the configuration surface behaves.
func NewSafetyGuard(cfg GuardConfig) *SafetyGuard {
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if cfg.MaxRuntime <= 0 {
		cfg.MaxRuntime = 600 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &SafetyGuard{
		maxConsecutive: cfg.MaxConsecutiveFailures,
		maxRuntime:     cfg.MaxRuntime,
		runStart:       now(),
		now:            now,
	}
}

// RecordOutcome feeds one stage outcome into the guard.
//
// Outputs:
//
//	Decision - Continue, or AbortConsecutiveFailures when the streak just
//	           reached the limit.
//
// Thread Safety: Safe for concurrent use.
func (g *SafetyGuard) RecordOutcome(o Outcome) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch o.Status {
	case StatusSuccess:
		g.consecutiveFailures = 0
	case StatusFailure:
		g.consecutiveFailures++
		if g.consecutiveFailures >= g.maxConsecutive {
			return AbortConsecutiveFailures
		}
	case StatusSkipped:
		// Neutral: neither resets nor extends the streak.
	}
	return Continue
}

// CheckDeadline reports whether the wall-clock budget is exhausted.
//
// Called before each stage invocation. The deadline only gates whether the
// next stage starts; a stage already executing is not interrupted.
//
// Thread Safety: Safe for concurrent use.
func (g *SafetyGuard) CheckDeadline() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.now().Sub(g.runStart) > g.maxRuntime {
		return AbortTimeout
	}
	return Continue
}

// Status returns a snapshot of the guard state for logging.
//
// Thread Safety: Safe for concurrent use.
func (g *SafetyGuard) Status() GuardStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	elapsed := g.now().Sub(g.runStart)
	remaining := g.maxRuntime - elapsed
	if remaining < 0 {
		remaining = 0
	}

	return GuardStatus{
		ConsecutiveFailures:    g.consecutiveFailures,
		MaxConsecutiveFailures: g.maxConsecutive,
		Elapsed:                elapsed,
		Remaining:              remaining,
	}
}
