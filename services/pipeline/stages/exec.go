// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/trendloop/trendloop/services/pipeline"
)

// execRequest is the JSON document written to a stage program's stdin.
type execRequest struct {
	RunID  string         `json:"run_id"`
	Stage  string         `json:"stage"`
	Values map[string]any `json:"values"`
}

// execResponse is the JSON document a stage program writes to stdout.
//
// Status must be "success", "failure", or "skipped". Artifacts are merged
// into the run context for downstream stages.
type execResponse struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Class     string         `json:"class"`
	Artifacts map[string]any `json:"artifacts"`
}

// ExecStage runs an external program as a pipeline stage.
//
// # Description
//
// The program receives the run context as JSON on stdin and reports its
// outcome as JSON on stdout. Every way the program can go wrong -- failure
// to start, non-zero exit, timeout, unparseable output -- is converted to
// a Failure outcome rather than an error, so the safety guard sees it as
// an ordinary stage failure. Stderr is captured and included in failure
// messages for diagnosis.
type ExecStage struct {
	name    string
	ordinal int
	command []string
	timeout time.Duration
	workDir string
}

// NewExecStage creates a stage that runs command (argv form). A zero
// timeout means the stage inherits only the run's deadline.
func NewExecStage(name string, ordinal int, command []string, timeout time.Duration) (*ExecStage, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("stage %s: command must not be empty", name)
	}
	return &ExecStage{
		name:    name,
		ordinal: ordinal,
		command: command,
		timeout: timeout,
	}, nil
}

// WithWorkDir sets the working directory for the stage program.
func (s *ExecStage) WithWorkDir(dir string) *ExecStage {
	s.workDir = dir
	return s
}

// Name returns the stage name.
func (s *ExecStage) Name() string { return s.name }

// Ordinal returns the stage's position.
func (s *ExecStage) Ordinal() int { return s.ordinal }

// Execute runs the program and converts its result to an Outcome.
func (s *ExecStage) Execute(ctx context.Context, rc *pipeline.RunContext) pipeline.Outcome {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	stdin, err := json.Marshal(execRequest{
		RunID:  rc.RunID(),
		Stage:  s.name,
		Values: rc.Snapshot(),
	})
	if err != nil {
		return pipeline.Failuref(pipeline.FailurePermanent,
			"stage %s: encoding context: %v", s.name, err)
	}

	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	cmd.Dir = s.workDir
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return pipeline.Failuref(pipeline.FailureTransient,
				"stage %s: timed out after %s", s.name, s.timeout)
		}
		return pipeline.Failuref(pipeline.FailureUnknown,
			"stage %s: %v: %s", s.name, err, truncate(stderr.String(), 512))
	}

	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return pipeline.Failuref(pipeline.FailurePermanent,
			"stage %s: unparseable output: %v: %s", s.name, err, truncate(stdout.String(), 512))
	}

	// Artifacts only flow downstream from outcomes the program stands
	// behind; a failing program's partial artifacts stay out of the
	// run context.
	switch resp.Status {
	case "success":
		for k, v := range resp.Artifacts {
			rc.Set(k, v)
		}
		return pipeline.Success(resp.Artifacts)
	case "skipped":
		for k, v := range resp.Artifacts {
			rc.Set(k, v)
		}
		return pipeline.Skip(resp.Message)
	case "failure":
		class := pipeline.FailureClass(resp.Class)
		switch class {
		case pipeline.FailureTransient, pipeline.FailurePermanent:
		default:
			class = pipeline.FailureUnknown
		}
		return pipeline.Failuref(class, "stage %s: %s", s.name, resp.Message)
	default:
		return pipeline.Failuref(pipeline.FailurePermanent,
			"stage %s: unknown status %q", s.name, resp.Status)
	}
}

// truncate limits captured process output in failure messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
