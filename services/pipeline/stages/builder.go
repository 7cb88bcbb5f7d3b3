// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"time"

	"github.com/trendloop/trendloop/services/pipeline"
)

// Spec describes one configured stage, in declaration order.
type Spec struct {
	// Name is the unique stage name.
	Name string

	// Command is the program to run, argv form.
	Command []string

	// Timeout bounds one invocation. Zero means no per-stage bound.
	Timeout time.Duration

	// WorkDir is the program's working directory. Empty inherits ours.
	WorkDir string
}

// Build assembles a registry of ExecStages from specs, assigning ordinals
// in declaration order. Duplicate names surface as the registry's
// *pipeline.ConfigurationError.
func Build(specs []Spec) (*pipeline.Registry, error) {
	registry := pipeline.NewRegistry()
	for i, spec := range specs {
		stage, err := NewExecStage(spec.Name, i, spec.Command, spec.Timeout)
		if err != nil {
			return nil, err
		}
		if spec.WorkDir != "" {
			stage = stage.WithWorkDir(spec.WorkDir)
		}
		if err := registry.Register(stage); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
