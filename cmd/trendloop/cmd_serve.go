// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/trendloop/trendloop/services/pipeline/telemetry"
	"github.com/trendloop/trendloop/services/scheduler"
)

var serveWithDaemon bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the HTTP trigger and report API",
	Long: `Starts the HTTP service: POST /v1/runs triggers a pipeline run,
GET /v1/runs serves run history, and /metrics exposes Prometheus
metrics. With --daemon the interval scheduler runs alongside it.`,
	Run: runServeCommand,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithDaemon, "daemon", false,
		"also run the interval scheduler in this process")
	rootCmd.AddCommand(serveCmd)
}

func runServeCommand(cmd *cobra.Command, args []string) {
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

	service := scheduler.NewService(app.orchestrator, app.history, logger.Slog(), cfg.Server.Port)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(ctx) })

	if serveWithDaemon {
		daemon, err := scheduler.NewDaemon(app.orchestrator, cfg.DaemonInterval(),
			cfg.Daemon.StateFile, logger.Slog())
		if err != nil {
			logger.Error("creating daemon", "error", err.Error())
			os.Exit(1)
		}
		group.Go(func() error { return daemon.Run(ctx) })
	}

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("service stopped", "error", err.Error())
		os.Exit(1)
	}
}
