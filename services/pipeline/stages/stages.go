// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stages provides concrete pipeline stage implementations.
//
// Two kinds are offered: Func wraps an in-process Go function, and
// ExecStage runs an external generator program with a JSON protocol over
// stdin/stdout. Production pipelines are assembled from configuration via
// Build; Func exists mainly for embedding and tests.
package stages

import (
	"context"

	"github.com/trendloop/trendloop/services/pipeline"
)

// Func adapts a plain function to the pipeline.Stage interface.
type Func struct {
	name    string
	ordinal int
	fn      func(ctx context.Context, rc *pipeline.RunContext) pipeline.Outcome
}

// NewFunc creates a function-backed stage.
func NewFunc(name string, ordinal int, fn func(ctx context.Context, rc *pipeline.RunContext) pipeline.Outcome) *Func {
	return &Func{name: name, ordinal: ordinal, fn: fn}
}

// Name returns the stage name.
func (f *Func) Name() string { return f.name }

// Ordinal returns the stage's position.
func (f *Func) Ordinal() int { return f.ordinal }

// Execute invokes the wrapped function.
func (f *Func) Execute(ctx context.Context, rc *pipeline.RunContext) pipeline.Outcome {
	return f.fn(ctx, rc)
}
