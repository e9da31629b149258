// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package loader

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 200 * time.Millisecond

// Watcher re-applies definition files when they change.
//
// # Description
//
// Watches the loader directory (not recursively). Create, write and rename
// events on definition files are collected; once no event has arrived for
// the debounce window, each distinct path that still exists is re-applied.
// Removing a file leaves its graph in place.
//
// # Thread Safety
//
// Start and Stop are safe for concurrent use. Files are applied from a
// single goroutine.
type Watcher struct {
	loader   *Loader
	debounce time.Duration
	fsw      *fsnotify.Watcher

	paths    chan string
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
}

// NewWatcher creates a watcher for l's directory. debounce <= 0 uses
// DefaultDebounce.
func NewWatcher(l *Loader, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		loader:   l,
		debounce: debounce,
		fsw:      fsw,
		paths:    make(chan string, 256),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once the directory is registered.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.fsw.Add(w.loader.Dir()); err != nil {
		return err
	}
	w.started = true

	w.wg.Add(2)
	go w.readEvents(ctx)
	go w.applyLoop(ctx)
	return nil
}

// Stop halts watching and waits for in-flight applies to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
		w.wg.Wait()
	})
}

func (w *Watcher) readEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !IsDefinitionFile(ev.Name) || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			select {
			case w.paths <- ev.Name:
			default:
				w.loader.logger.Warn("Graph watcher queue full, dropping event", slog.String("path", ev.Name))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.loader.logger.Warn("Graph watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) applyLoop(ctx context.Context) {
	defer w.wg.Done()

	pending := make(map[string]struct{})
	var order []string
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	flush := func() {
		for _, p := range order {
			if _, err := os.Stat(p); err != nil {
				continue
			}
			_ = w.loader.LoadPath(ctx, p)
		}
		clear(pending)
		order = order[:0]
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-w.done:
			timer.Stop()
			return
		case p := <-w.paths:
			if _, seen := pending[p]; !seen {
				pending[p] = struct{}{}
				order = append(order, p)
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			flush()
		}
	}
}
