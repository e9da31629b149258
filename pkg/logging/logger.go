// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging builds the process slog logger for kgraph commands.
//
// # Destinations
//
//	┌──────────────────────────────────────────┐
//	│                 Logger                   │
//	│  ┌──────────────┐   ┌─────────────────┐  │
//	│  │    stderr    │   │    log file     │  │
//	│  │ text or json │   │  json, optional │  │
//	│  └──────────────┘   └─────────────────┘  │
//	└──────────────────────────────────────────┘
//
// The console handler follows Config.JSON. When Dir is set, every record is
// also appended as JSON to {service}_{date}.log in that directory.
//
// # Basic Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:   slog.LevelInfo,
//	    Dir:     "~/.kgraph/logs",
//	    Service: "kgraph",
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
//
// # Thread Safety
//
// Logger is safe for concurrent use.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config configures New.
type Config struct {
	// Level is the minimum level written to every destination.
	Level slog.Level

	// JSON selects the JSON console handler instead of text.
	JSON bool

	// Dir enables file logging. "~" expands to the home directory.
	Dir string

	// Service is attached to every record and names the log file.
	// Default: "kgraph"
	Service string

	// Console receives console output. Default: os.Stderr.
	Console io.Writer

	// now names the log file; tests replace it.
	now func() time.Time
}

// Logger wraps a slog.Logger and the log file it may own.
type Logger struct {
	slog *slog.Logger
	path string

	mu   sync.Mutex
	file *os.File
}

// New creates a Logger.
//
// Outputs:
//
//	*Logger - Must be closed when file logging is enabled.
//	error - The log directory or file could not be created.
func New(cfg Config) (*Logger, error) {
	if cfg.Service == "" {
		cfg.Service = "kgraph"
	}
	if cfg.Console == nil {
		cfg.Console = os.Stderr
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var console slog.Handler
	if cfg.JSON {
		console = slog.NewJSONHandler(cfg.Console, opts)
	} else {
		console = slog.NewTextHandler(cfg.Console, opts)
	}

	l := &Logger{}
	handler := console

	if cfg.Dir != "" {
		dir := expandPath(cfg.Dir)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
		l.path = filepath.Join(dir, fmt.Sprintf("%s_%s.log", cfg.Service, cfg.now().Format("2006-01-02")))
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		handler = &multiHandler{handlers: []slog.Handler{console, slog.NewJSONHandler(f, opts)}}
	}

	l.slog = slog.New(handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)}))
	return l, nil
}

// Slog returns the underlying logger.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Path returns the log file path, or "" without file logging.
func (l *Logger) Path() string { return l.path }

// Close syncs and closes the log file. Safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Sync()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}

// multiHandler fans records out to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
