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
	"time"

	"github.com/spf13/cobra"

	"github.com/trendloop/trendloop/services/pipeline/snapshot"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manages recovery snapshots of the published site",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists snapshots, newest first",
	Run:   runSnapshotsList,
}

var snapshotsRestoreCmd = &cobra.Command{
	Use:   "restore [snapshot-path]",
	Short: "Restores the published site from a snapshot",
	Long: `Moves the current site into quarantine and copies the snapshot back
into place. With no argument the newest snapshot is used.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runSnapshotsRestore,
}

var snapshotsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Removes snapshots older than the retention window",
	Run:   runSnapshotsPrune,
}

func init() {
	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsRestoreCmd, snapshotsPruneCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

func snapshotManager() *snapshot.Manager {
	manager, err := snapshot.NewManager(snapshot.Config{
		SnapshotDir:   cfg.SnapshotDir,
		QuarantineDir: cfg.QuarantineDir,
	})
	if err != nil {
		logger.Error("creating snapshot manager", "error", err.Error())
		os.Exit(1)
	}
	return manager
}

func runSnapshotsList(cmd *cobra.Command, args []string) {
	handles, err := snapshotManager().List()
	if err != nil {
		logger.Error("listing snapshots", "error", err.Error())
		os.Exit(1)
	}
	if len(handles) == 0 {
		fmt.Println("no snapshots")
		return
	}
	for _, h := range handles {
		fmt.Printf("%s  %s\n", h.CreatedAt.Format(time.RFC3339), h.Path)
	}
}

func runSnapshotsRestore(cmd *cobra.Command, args []string) {
	manager := snapshotManager()

	var target *snapshot.Handle
	if len(args) == 1 {
		target = &snapshot.Handle{Path: args[0], SourceDir: cfg.SiteDir}
	} else {
		handles, err := manager.List()
		if err != nil {
			logger.Error("listing snapshots", "error", err.Error())
			os.Exit(1)
		}
		if len(handles) == 0 {
			logger.Error("no snapshots to restore from")
			os.Exit(1)
		}
		target = &handles[0]
		target.SourceDir = cfg.SiteDir
	}

	if err := manager.Restore(target); err != nil {
		logger.Error("restoring snapshot", "path", target.Path, "error", err.Error())
		os.Exit(1)
	}
	fmt.Printf("restored %s from %s\n", cfg.SiteDir, target.Path)
}

func runSnapshotsPrune(cmd *cobra.Command, args []string) {
	removed, err := snapshotManager().Prune(cfg.SnapshotRetention())
	if err != nil {
		logger.Error("pruning snapshots", "error", err.Error())
		os.Exit(1)
	}
	fmt.Printf("pruned %d snapshot(s) older than %d days\n", removed, cfg.SnapshotRetentionDays)
}
