// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens and manages the BadgerDB instance backing the
// persistent operation-result cache.
//
// Graph state itself is never written here; only serialized operation
// results keyed by cache key, each with a native BadgerDB TTL.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrPathRequired is returned when a persistent database has no path.
var ErrPathRequired = errors.New("path is required for persistent database")

// Config holds configuration for the cache database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Used by tests and the "memory"
	// flavour of the badger backend.
	InMemory bool

	// SyncWrites fsyncs every commit. Cached results can always be
	// recomputed, so the default is false.
	SyncWrites bool

	// Logger receives BadgerDB's internal log lines. Nil silences them.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs. Zero disables it.
	// Default: 10 minutes
	GCInterval time.Duration

	// GCDiscardRatio is the garbage ratio that triggers a rewrite.
	// Default: 0.5
	GCDiscardRatio float64
}

// DefaultConfig returns the configuration used by `kgraph serve` when the
// badger cache backend is selected. Path must still be set.
func DefaultConfig() Config {
	return Config{
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration with no disk I/O and GC disabled.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// slogAdapter routes BadgerDB's printf-style logger to slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (a slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (a slogAdapter) Infof(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

// DB is an open BadgerDB with an optional background GC loop.
//
// Thread Safety: Safe for concurrent use.
type DB struct {
	*badger.DB

	path      string
	inMemory  bool
	gc        *gcLoop
	closeOnce sync.Once
	closeErr  error
}

// Open opens the database described by cfg.
//
// # Description
//
// Creates the directory for persistent databases and starts value log GC
// when GCInterval is positive. In-memory databases never run GC.
//
// # Inputs
//
//   - cfg: Database configuration. Path is required unless InMemory.
//
// # Outputs
//
//   - *DB: The open database. Call Close when done.
//   - error: ErrPathRequired, or a wrapped open failure.
func Open(cfg Config) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, ErrPathRequired
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(slogAdapter{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	db := &DB{DB: bdb, path: cfg.Path, inMemory: cfg.InMemory}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		db.gc = startGC(bdb, cfg.GCInterval, ratio, cfg.Logger)
	}
	return db, nil
}

// OpenInMemory opens an in-memory database.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

// Path returns the database directory, or "" when in memory.
func (d *DB) Path() string { return d.path }

// InMemory reports whether the database lives only in RAM.
func (d *DB) InMemory() bool { return d.inMemory }

// Close stops GC and closes the database. Repeated calls return the
// first result.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		if d.gc != nil {
			d.gc.stop()
		}
		d.closeErr = d.DB.Close()
	})
	return d.closeErr
}

// gcLoop periodically runs value log GC until stopped.
type gcLoop struct {
	db     *badger.DB
	ratio  float64
	logger *slog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

func startGC(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcLoop {
	l := &gcLoop{
		db:     db,
		ratio:  ratio,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go l.run(interval)
	return l
}

func (l *gcLoop) run(interval time.Duration) {
	defer close(l.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.collect()
		}
	}
}

// collect rewrites value log files until BadgerDB reports nothing left
// to reclaim.
func (l *gcLoop) collect() {
	for {
		err := l.db.RunValueLogGC(l.ratio)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && l.logger != nil {
			l.logger.Warn("badger value log GC failed", slog.String("error", err.Error()))
		}
		return
	}
}

func (l *gcLoop) stop() {
	close(l.stopCh)
	<-l.doneCh
}
