// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxEntries is the memory backend capacity when none is given.
const DefaultMaxEntries = 1024

// MemoryStore is an LRU cache with per-entry expiry and an optional byte
// budget.
//
// Description:
//
//	Entries live in a container/list ordered by recency (front = most
//	recent). Expired entries are removed lazily on Get. When either the
//	entry count or the byte budget would be exceeded, least recently used
//	entries are evicted until the new entry fits.
//
// Thread Safety: All methods are safe for concurrent use.
type MemoryStore struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64
	bytes      int64
	items      map[string]*list.Element
	order      *list.List
	closed     bool
	now        func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type memoryEntry struct {
	key       string
	payload   string
	size      int64
	expiresAt time.Time
}

// MemoryStats is a snapshot of MemoryStore counters.
type MemoryStats struct {
	Entries   int
	Bytes     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// NewMemoryStore creates a memory store. maxEntries <= 0 uses
// DefaultMaxEntries; maxBytes <= 0 disables the byte budget.
func NewMemoryStore(maxEntries int, maxBytes int64) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxBytes < 0 {
		maxBytes = 0
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the payload for key if present and unexpired.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", false, ErrClosed
	}

	elem, ok := m.items[key]
	if ok {
		entry := elem.Value.(*memoryEntry)
		if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
			m.removeLocked(elem)
			ok = false
		} else {
			m.order.MoveToFront(elem)
			payload := entry.payload
			m.mu.Unlock()
			m.hits.Add(1)
			recordGet(ctx, BackendMemory, time.Since(start), true)
			return payload, true, nil
		}
	}
	m.mu.Unlock()

	m.misses.Add(1)
	recordGet(ctx, BackendMemory, time.Since(start), false)
	return "", false, nil
}

// Set stores payload under key for ttl. ttl <= 0 means no expiry. size is
// charged against the byte budget; a non-positive size is replaced with
// len(payload). Entries larger than the whole budget are not stored and
// remove any existing entry for key.
func (m *MemoryStore) Set(ctx context.Context, key, payload string, size int, ttl time.Duration) error {
	cost := int64(size)
	if cost <= 0 {
		cost = int64(len(payload))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.maxBytes > 0 && cost > m.maxBytes {
		if elem, ok := m.items[key]; ok {
			m.removeLocked(elem)
		}
		return nil
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	if elem, ok := m.items[key]; ok {
		entry := elem.Value.(*memoryEntry)
		m.bytes += cost - entry.size
		entry.payload, entry.size, entry.expiresAt = payload, cost, expiresAt
		m.order.MoveToFront(elem)
		m.evictLocked(ctx, elem)
		return nil
	}

	elem := m.order.PushFront(&memoryEntry{key: key, payload: payload, size: cost, expiresAt: expiresAt})
	m.items[key] = elem
	m.bytes += cost
	m.evictLocked(ctx, elem)
	return nil
}

// evictLocked drops least recently used entries, never keep, until the
// store is within its limits.
func (m *MemoryStore) evictLocked(ctx context.Context, keep *list.Element) {
	for m.order.Len() > m.maxEntries || (m.maxBytes > 0 && m.bytes > m.maxBytes) {
		oldest := m.order.Back()
		if oldest == nil || oldest == keep {
			return
		}
		m.removeLocked(oldest)
		m.evictions.Add(1)
		recordEviction(ctx, BackendMemory)
	}
}

func (m *MemoryStore) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	m.order.Remove(elem)
	delete(m.items, entry.key)
	m.bytes -= entry.size
}

// Stats returns current counters.
func (m *MemoryStore) Stats() MemoryStats {
	m.mu.Lock()
	entries, bytes := m.order.Len(), m.bytes
	m.mu.Unlock()
	return MemoryStats{
		Entries:   entries,
		Bytes:     bytes,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
	}
}

// Close drops all entries. Later calls return ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.order.Init()
	m.bytes = 0
	m.closed = true
	return nil
}
