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
	"context"
	"errors"
	"fmt"
	"time"

	kvstore "github.com/AleutianAI/AleutianKG/services/kgraph/storage/badger"
	"github.com/dgraph-io/badger/v4"
)

// badgerKeyPrefix namespaces cache keys inside the database.
const badgerKeyPrefix = "kgcache:"

// BadgerStore keeps payloads in BadgerDB with native TTL expiry.
//
// The size argument of Set is ignored; BadgerDB manages its own space and
// expired keys are reclaimed by value log GC.
type BadgerStore struct {
	db *kvstore.DB
}

// NewBadgerStore wraps an open database. The store owns db and closes it
// in Close.
func NewBadgerStore(db *kvstore.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Get reads key. A missing or expired key is a miss, not an error.
func (s *BadgerStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	start := time.Now()

	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		recordGet(ctx, BackendBadger, time.Since(start), false)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("badger get %s: %w", key, err)
	}
	recordGet(ctx, BackendBadger, time.Since(start), true)
	return string(payload), true, nil
}

// Set writes payload under key. ttl <= 0 stores without expiry.
func (s *BadgerStore) Set(ctx context.Context, key, payload string, _ int, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := badger.NewEntry([]byte(badgerKeyPrefix+key), []byte(payload))
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	}); err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
