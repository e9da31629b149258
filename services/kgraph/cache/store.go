// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache stores serialized operation results keyed by the
// dispatcher's cache key.
//
// Two backends are provided: an in-memory LRU with per-entry TTL and a byte
// budget, and a BadgerDB store using native key expiry. Both satisfy Store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kvstore "github.com/AleutianAI/AleutianKG/services/kgraph/storage/badger"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendNone   = "none"
)

var (
	// ErrUnknownBackend is returned by New for unrecognized backend names.
	ErrUnknownBackend = errors.New("unknown cache backend")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("cache closed")
)

// Store is the cache collaborator consumed by the operation dispatcher.
//
// Get returns ok=false on a miss or an expired entry. Set stores payload
// for ttl; size is the caller's cost estimate for the payload and is
// used by backends with a byte budget.
type Store interface {
	Get(ctx context.Context, key string) (payload string, ok bool, err error)
	Set(ctx context.Context, key, payload string, size int, ttl time.Duration) error
	Close() error
}

// Config selects and sizes a backend.
type Config struct {
	// Backend is "memory", "badger" or "none". Default: "memory"
	Backend string

	// Path is the badger directory. Empty with the badger backend opens an
	// in-memory BadgerDB.
	Path string

	// MaxEntries bounds the memory backend. Default: 1024
	MaxEntries int

	// MaxBytes bounds the summed entry size of the memory backend.
	// Zero means unbounded.
	MaxBytes int64

	// Logger receives BadgerDB logs. Optional.
	Logger *slog.Logger
}

// New opens the backend named by cfg.Backend.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(cfg.MaxEntries, cfg.MaxBytes), nil
	case BackendBadger:
		kvcfg := kvstore.DefaultConfig()
		kvcfg.Path = cfg.Path
		kvcfg.InMemory = cfg.Path == ""
		kvcfg.Logger = cfg.Logger
		db, err := kvstore.Open(kvcfg)
		if err != nil {
			return nil, fmt.Errorf("open badger cache: %w", err)
		}
		return NewBadgerStore(db), nil
	case BackendNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Nop is a Store that never hits and discards writes.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (Nop) Set(context.Context, string, string, int, time.Duration) error { return nil }

func (Nop) Close() error { return nil }
