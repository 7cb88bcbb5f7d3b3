// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendloop/trendloop/services/pipeline"
)

// sh builds an ExecStage running a shell snippet. Skips on Windows.
func sh(t *testing.T, name string, script string, timeout time.Duration) *ExecStage {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based stage tests need a POSIX shell")
	}
	stage, err := NewExecStage(name, 0, []string{"sh", "-c", script}, timeout)
	require.NoError(t, err)
	return stage
}

// TestExecStageSuccess verifies the JSON protocol end to end, including
// artifact propagation into the run context.
func TestExecStageSuccess(t *testing.T) {
	stage := sh(t, "fetch",
		`echo '{"status":"success","artifacts":{"articles":"12"}}'`, 0)

	rc := pipeline.NewRunContext("run-1")
	outcome := stage.Execute(context.Background(), rc)

	assert.Equal(t, pipeline.StatusSuccess, outcome.Status)
	v, ok := rc.GetString("articles")
	require.True(t, ok)
	assert.Equal(t, "12", v)
}

// TestExecStageReceivesContext verifies the run context arrives on stdin.
func TestExecStageReceivesContext(t *testing.T) {
	// The program echoes the stdin run_id back as an artifact.
	stage := sh(t, "echo-context",
		`input=$(cat); rid=$(printf '%s' "$input" | sed -n 's/.*"run_id":"\([^"]*\)".*/\1/p'); echo "{\"status\":\"success\",\"artifacts\":{\"seen_run_id\":\"$rid\"}}"`, 0)

	rc := pipeline.NewRunContext("run-42")
	outcome := stage.Execute(context.Background(), rc)

	require.Equal(t, pipeline.StatusSuccess, outcome.Status)
	v, _ := rc.GetString("seen_run_id")
	assert.Equal(t, "run-42", v)
}

// TestExecStageReportedFailure verifies a failure response carries its
// class and message.
func TestExecStageReportedFailure(t *testing.T) {
	stage := sh(t, "fetch",
		`echo '{"status":"failure","class":"transient","message":"feed unreachable"}'`, 0)

	outcome := stage.Execute(context.Background(), pipeline.NewRunContext("run-1"))
	assert.Equal(t, pipeline.StatusFailure, outcome.Status)
	assert.Equal(t, pipeline.FailureTransient, outcome.Class)
	assert.Contains(t, outcome.Message, "feed unreachable")
}

// TestExecStageFailureWithholdsArtifacts verifies a failing program's
// partial artifacts never reach the run context.
func TestExecStageFailureWithholdsArtifacts(t *testing.T) {
	stage := sh(t, "fetch",
		`echo '{"status":"failure","class":"transient","message":"half done","artifacts":{"article_path":"/tmp/partial.html"}}'`, 0)

	rc := pipeline.NewRunContext("run-1")
	outcome := stage.Execute(context.Background(), rc)

	assert.Equal(t, pipeline.StatusFailure, outcome.Status)
	_, ok := rc.Get("article_path")
	assert.False(t, ok)
	assert.Equal(t, 0, rc.Len())
}

// TestExecStageSkipped verifies the skipped status passes through.
func TestExecStageSkipped(t *testing.T) {
	stage := sh(t, "fetch",
		`echo '{"status":"skipped","message":"nothing new"}'`, 0)

	outcome := stage.Execute(context.Background(), pipeline.NewRunContext("run-1"))
	assert.Equal(t, pipeline.StatusSkipped, outcome.Status)
}

// TestExecStageNonZeroExit verifies process failure becomes a Failure
// outcome with stderr attached.
func TestExecStageNonZeroExit(t *testing.T) {
	stage := sh(t, "fetch", `echo "disk full" >&2; exit 3`, 0)

	outcome := stage.Execute(context.Background(), pipeline.NewRunContext("run-1"))
	assert.Equal(t, pipeline.StatusFailure, outcome.Status)
	assert.Contains(t, outcome.Message, "disk full")
}

// TestExecStageGarbageOutput verifies unparseable stdout is a permanent
// failure, not a crash.
func TestExecStageGarbageOutput(t *testing.T) {
	stage := sh(t, "fetch", `echo "not json"`, 0)

	outcome := stage.Execute(context.Background(), pipeline.NewRunContext("run-1"))
	assert.Equal(t, pipeline.StatusFailure, outcome.Status)
	assert.Equal(t, pipeline.FailurePermanent, outcome.Class)
}

// TestExecStageUnknownStatus verifies unknown status strings are rejected.
func TestExecStageUnknownStatus(t *testing.T) {
	stage := sh(t, "fetch", `echo '{"status":"maybe"}'`, 0)

	outcome := stage.Execute(context.Background(), pipeline.NewRunContext("run-1"))
	assert.Equal(t, pipeline.StatusFailure, outcome.Status)
	assert.Contains(t, outcome.Message, "unknown status")
}

// TestExecStageTimeout verifies a hung program is killed and reported as
// a transient failure.
func TestExecStageTimeout(t *testing.T) {
	stage := sh(t, "fetch", `sleep 5`, 100*time.Millisecond)

	start := time.Now()
	outcome := stage.Execute(context.Background(), pipeline.NewRunContext("run-1"))

	assert.Equal(t, pipeline.StatusFailure, outcome.Status)
	assert.Equal(t, pipeline.FailureTransient, outcome.Class)
	assert.Less(t, time.Since(start), 3*time.Second)
}

// TestExecStageMissingProgram verifies an unstartable command is a
// Failure outcome.
func TestExecStageMissingProgram(t *testing.T) {
	stage, err := NewExecStage("fetch", 0, []string{"/no/such/program"}, 0)
	require.NoError(t, err)

	outcome := stage.Execute(context.Background(), pipeline.NewRunContext("run-1"))
	assert.Equal(t, pipeline.StatusFailure, outcome.Status)
}

// TestNewExecStageValidation verifies an empty command is rejected.
func TestNewExecStageValidation(t *testing.T) {
	_, err := NewExecStage("fetch", 0, nil, 0)
	assert.Error(t, err)
}

// TestBuild verifies specs become an ordinal-ordered registry.
func TestBuild(t *testing.T) {
	registry, err := Build([]Spec{
		{Name: "fetch", Command: []string{"fetch"}},
		{Name: "render", Command: []string{"render"}},
		{Name: "publish", Command: []string{"publish"}},
	})
	require.NoError(t, err)

	ordered := registry.OrderedStages()
	require.Len(t, ordered, 3)
	assert.Equal(t, "fetch", ordered[0].Name())
	assert.Equal(t, 2, ordered[2].Ordinal())
}

// TestFuncStage verifies the in-process adapter.
func TestFuncStage(t *testing.T) {
	stage := NewFunc("inline", 4, func(ctx context.Context, rc *pipeline.RunContext) pipeline.Outcome {
		rc.Set("ran", true)
		return pipeline.Success(nil)
	})
	assert.Equal(t, "inline", stage.Name())
	assert.Equal(t, 4, stage.Ordinal())

	rc := pipeline.NewRunContext("run-1")
	outcome := stage.Execute(context.Background(), rc)
	assert.Equal(t, pipeline.StatusSuccess, outcome.Status)
	_, ok := rc.Get("ran")
	assert.True(t, ok)
}

// TestBuildDuplicateName verifies duplicates surface the registry's
// configuration error.
func TestBuildDuplicateName(t *testing.T) {
	_, err := Build([]Spec{
		{Name: "fetch", Command: []string{"a"}},
		{Name: "fetch", Command: []string{"b"}},
	})
	require.Error(t, err)

	var cfgErr *pipeline.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
