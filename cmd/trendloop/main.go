// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trendloop/trendloop/pkg/logging"
	"github.com/trendloop/trendloop/services/pipeline/config"
)

var (
	cfgPath string
	cfg     *config.Config
	logger  *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "trendloop",
		Short: "A CLI to run and manage the TrendLoop content pipeline",
		Long: `TrendLoop maintains a daily-published content site. This tool runs the
generation pipeline with its safety controls, serves the HTTP trigger
surface, and manages recovery snapshots.`,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "trendloop.yaml",
		"path to the pipeline configuration file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logger = logging.New(logging.Config{
			Level:   logging.ParseLevel(cfg.Logging.Level),
			LogDir:  cfg.Logging.Dir,
			Service: "pipeline",
			JSON:    cfg.Logging.JSON,
		})
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	}
}
