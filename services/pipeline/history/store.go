// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history persists finalized run reports in an embedded BadgerDB.
//
// Reports are keyed by start time so the natural iteration order is
// chronological; a secondary key by run ID supports direct lookup. The
// store doubles as a report sink, so the orchestrator can persist every
// finalized report without knowing about the database.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/trendloop/trendloop/services/pipeline"
)

// ErrNotFound is returned when no report matches the requested run.
var ErrNotFound = errors.New("report not found")

// Key layout:
//
//	report:<started-at>:<run-id> -> report JSON (chronological scan order)
//	byid:<run-id>                -> primary key (direct lookup)
const (
	reportPrefix = "report:"
	byIDPrefix   = "byid:"

	// keyTimeFormat sorts lexicographically in chronological order.
	keyTimeFormat = "20060102T150405.000000000"
)

// Config holds configuration for a history store.
type Config struct {
	// Path is the directory for database files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger is the logger for database operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable synchronous writes
// at the given path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a BadgerDB-backed archive of finalized run reports.
//
// Thread Safety: safe for concurrent use; BadgerDB serializes writes.
type Store struct {
	db *badger.DB
}

// Open creates and opens a history store with the given configuration.
//
// # Outputs
//
//   - *Store: the opened store. Caller must call Close() when done.
//   - error: non-nil if the path is invalid or the database cannot open.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent history store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database. Pending writes are flushed first.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put persists a finalized report. Writing the same run twice overwrites
// the earlier record.
func (s *Store) Put(ctx context.Context, report *pipeline.Report) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if report == nil {
		return errors.New("report must not be nil")
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.RunID, err)
	}

	primary := []byte(reportPrefix + report.StartedAt.UTC().Format(keyTimeFormat) + ":" + report.RunID)
	secondary := []byte(byIDPrefix + report.RunID)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, data); err != nil {
			return err
		}
		return txn.Set(secondary, primary)
	})
}

// Get returns the report for a run ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, runID string) (*pipeline.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var report *pipeline.Report
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(byIDPrefix + runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var primary []byte
		if err := item.Value(func(val []byte) error {
			primary = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}

		item, err = txn.Get(primary)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			report = new(pipeline.Report)
			return json.Unmarshal(val, report)
		})
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Latest returns the most recently started run's report, or ErrNotFound
// when the store is empty.
func (s *Store) Latest(ctx context.Context) (*pipeline.Report, error) {
	reports, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, ErrNotFound
	}
	return reports[0], nil
}

// List returns up to limit reports, newest first. A non-positive limit
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]*pipeline.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var reports []*pipeline.Report
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(reportPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past every report key.
		seek := []byte(reportPrefix + "\xff")
		for it.Seek(seek); it.Valid(); it.Next() {
			if limit > 0 && len(reports) >= limit {
				break
			}
			var report pipeline.Report
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &report)
			}); err != nil {
				return err
			}
			reports = append(reports, &report)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// Consume implements pipeline.Sink, persisting the finalized report.
func (s *Store) Consume(ctx context.Context, report *pipeline.Report) error {
	return s.Put(ctx, report)
}
