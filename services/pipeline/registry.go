// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"sort"
	"sync"
)

// Registry holds the ordered set of pipeline stages.
//
// Description:
//
//	Stages are registered at process initialization and never during a run.
//	Registration fails with a ConfigurationError when two stages share a
//	name or an ordinal; that is a fatal setup error, not something to
//	recover from at run time. OrderedStages returns a fresh slice sorted by
//	ordinal and can be iterated once per run, as many runs as needed.
//
// Thread Safety: Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]Stage
	byOrdinal map[int]Stage
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]Stage),
		byOrdinal: make(map[int]Stage),
	}
}

// Register adds a stage to the registry.
//
// Description:
//
//	Validates the stage and records it. Call only during process
//	initialization, before the first run starts.
//
// Inputs:
//
//	s - The stage to register. Must have a non-empty unique name and a
//	    non-negative unique ordinal.
//
// Outputs:
//
//	error - A *ConfigurationError describing the violation, or nil.
func (r *Registry) Register(s Stage) error {
	if s == nil {
		return &ConfigurationError{Reason: "stage is nil"}
	}
	name := s.Name()
	if name == "" {
		return &ConfigurationError{Reason: "stage has an empty name"}
	}
	if s.Ordinal() < 0 {
		return &ConfigurationError{Stage: name, Reason: "ordinal is negative"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return &ConfigurationError{Stage: name, Reason: "duplicate stage name"}
	}
	if prev, ok := r.byOrdinal[s.Ordinal()]; ok {
		return &ConfigurationError{
			Stage:  name,
			Reason: "ordinal already used by stage " + prev.Name(),
		}
	}

	r.byName[name] = s
	r.byOrdinal[s.Ordinal()] = s
	return nil
}

// MustRegister registers a stage and panics on a configuration error.
// Use only in init paths where the stage set is hard-coded.
func (r *Registry) MustRegister(s Stage) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// OrderedStages returns all stages sorted by ordinal.
//
// The returned slice is a copy; mutating it does not affect the registry.
func (r *Registry) OrderedStages() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Stage, 0, len(r.byOrdinal))
	for _, s := range r.byOrdinal {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ordinal() < out[j].Ordinal()
	})
	return out
}

// Get returns the stage registered under the given name.
func (r *Registry) Get(name string) (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byName[name]
	return s, ok
}

// Len returns the number of registered stages.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
