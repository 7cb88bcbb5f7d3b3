// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trendloop/trendloop/services/pipeline/telemetry"
	"github.com/trendloop/trendloop/services/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Runs the pipeline on the configured interval until stopped",
	Long: `Triggers a pipeline run every interval, persisting the last-run time
so restarts resume the schedule instead of running again immediately.
Stops cleanly on SIGINT or SIGTERM.`,
	Run: runDaemonCommand,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonCommand(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetryConfig())
	if err != nil {
		logger.Error("initializing telemetry", "error", err.Error())
		os.Exit(1)
	}
	defer shutdown(context.Background())

	app, err := buildApp(cfg)
	if err != nil {
		logger.Error("assembling pipeline", "error", err.Error())
		os.Exit(1)
	}
	defer app.close()

	daemon, err := scheduler.NewDaemon(app.orchestrator, cfg.DaemonInterval(),
		cfg.Daemon.StateFile, logger.Slog())
	if err != nil {
		logger.Error("creating daemon", "error", err.Error())
		os.Exit(1)
	}

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon stopped", "error", err.Error())
		os.Exit(1)
	}
}
