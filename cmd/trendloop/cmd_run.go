// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trendloop/trendloop/services/pipeline/lock"
	"github.com/trendloop/trendloop/services/pipeline/telemetry"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Executes one pipeline run and reports its verdict",
	Long: `Takes a recovery snapshot of the published site, then runs every
configured stage in order under the safety controls. The exit code
reflects the verdict: 0 completed, 2 safety abort, 3 timeout abort,
4 snapshot failure, 5 another run was active.`,
	Run: runRunCommand,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run report as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRunCommand(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetryConfig())
	if err != nil {
		logger.Error("initializing telemetry", "error", err.Error())
		os.Exit(1)
	}
	exit := func(code int) {
		_ = shutdown(context.Background())
		_ = logger.Close()
		os.Exit(code)
	}

	app, err := buildApp(cfg)
	if err != nil {
		logger.Error("assembling pipeline", "error", err.Error())
		exit(1)
	}

	// os.Exit skips deferred cleanup, so release everything explicitly
	// before choosing the exit code.
	report, runErr := app.orchestrator.Run(ctx)
	app.close()

	if runErr != nil && errors.Is(runErr, lock.ErrRunActive) {
		logger.Error("another pipeline run is already active")
		exit(5)
	}
	if report == nil {
		logger.Error("run produced no report", "error", runErr.Error())
		exit(1)
	}

	if runJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			logger.Error("encoding report", "error", err.Error())
			exit(1)
		}
		fmt.Println(string(data))
	} else {
		summary := report.Summarize()
		fmt.Printf("run %s: %s (%d succeeded, %d failed, %d skipped in %s)\n",
			report.RunID, report.Verdict,
			summary.Succeeded, summary.Failed, summary.Skipped, summary.Duration)
	}

	exit(exitCodeFor(report.Verdict))
}

// telemetryConfig derives the telemetry setup from the loaded config.
func telemetryConfig() telemetry.Config {
	tc := telemetry.DefaultConfig()
	if cfg.Server.OTelEndpoint != "" {
		tc.OTLPEndpoint = cfg.Server.OTelEndpoint
	}
	return tc
}
