// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"errors"
	"fmt"
)

// ErrReportFinalized is returned when a finalized report is appended to or
// finalized a second time. Reports are finalized exactly once at run end and
// never mutated afterwards.
var ErrReportFinalized = errors.New("run report is finalized")

// ConfigurationError reports an invalid stage registration: a duplicate name,
// a duplicate ordinal, or a malformed stage. It is fatal at process startup
// and never occurs at run time.
type ConfigurationError struct {
	// Stage is the name of the offending stage, when known.
	Stage string

	// Reason describes what was wrong with the registration.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("stage configuration: %s", e.Reason)
	}
	return fmt.Sprintf("stage configuration: %s: %s", e.Stage, e.Reason)
}
