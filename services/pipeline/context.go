// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "sync"

// RunContext is the mutable artifact bag shared by the stages of one run.
//
// # Description
//
// Earlier stages produce artifacts (an article path, a selected keyword) that
// later stages consume. Keys are stage-defined strings; values are opaque to
// the orchestrator. The context is owned by the orchestrator for the duration
// of a single run and discarded at run end; it is never persisted.
//
// The API is deliberately append-only: there is no delete operation, so a
// stage cannot remove keys written by the stages before it.
//
// # Thread Safety
//
// Safe for concurrent use. Stages run sequentially, but a stage may fan out
// internally and write artifacts from its own goroutines.
type RunContext struct {
	runID string

	mu     sync.RWMutex
	values map[string]any
	order  []string
}

// NewRunContext creates an empty context for the given run.
func NewRunContext(runID string) *RunContext {
	return &RunContext{
		runID:  runID,
		values: make(map[string]any),
	}
}

// RunID returns the identifier of the run this context belongs to.
func (rc *RunContext) RunID() string {
	return rc.runID
}

// Set stores an artifact under the given key. Setting an existing key
// replaces its value but keeps its original position in Keys().
func (rc *RunContext) Set(key string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if _, ok := rc.values[key]; !ok {
		rc.order = append(rc.order, key)
	}
	rc.values[key] = value
}

// Get returns the artifact stored under key, if any.
func (rc *RunContext) Get(key string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	v, ok := rc.values[key]
	return v, ok
}

// GetString returns a string artifact. The second return is false when the
// key is absent or the value is not a string.
func (rc *RunContext) GetString(key string) (string, bool) {
	v, ok := rc.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Keys returns all artifact keys in insertion order.
func (rc *RunContext) Keys() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	out := make([]string, len(rc.order))
	copy(out, rc.order)
	return out
}

// Len returns the number of stored artifacts.
func (rc *RunContext) Len() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.values)
}

// Snapshot returns a copy of all artifacts, for handing to external stage
// processes. Mutating the returned map does not affect the context.
func (rc *RunContext) Snapshot() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	out := make(map[string]any, len(rc.values))
	for k, v := range rc.values {
		out[k] = v
	}
	return out
}
