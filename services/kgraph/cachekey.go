// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kgraph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/AleutianAI/AleutianKG/services/kgraph/graph"
)

// cacheKeyPrefix namespaces dispatcher keys in shared cache backends.
const cacheKeyPrefix = "kg:"

// keyFields are the request fields that identify a cached result.
type keyFields struct {
	Operation string         `json:"operation"`
	GraphID   string         `json:"graphId"`
	Pattern   *graph.Pattern `json:"pattern"`
	SourceID  string         `json:"sourceId"`
	TargetID  string         `json:"targetId"`
	Algorithm string         `json:"algorithm"`
}

// CacheKey returns the deterministic cache key for req.
//
// Only operation, graphId, pattern, sourceId, targetId and algorithm are
// hashed. Two requests that differ elsewhere (entities, layout, format,
// thresholds) produce the same key.
func CacheKey(req *Request) string {
	return cacheKeyPrefix + hashJSON(keyFields{
		Operation: req.Operation,
		GraphID:   req.GraphID,
		Pattern:   req.Pattern,
		SourceID:  req.SourceID,
		TargetID:  req.TargetID,
		Algorithm: req.Algorithm,
	})
}

// requestFingerprint hashes the whole request. It keys in-flight
// deduplication, which must never merge requests that the cache key would
// conflate.
func requestFingerprint(req *Request) string {
	return hashJSON(req)
}

// hashJSON hashes the JSON encoding of v. Map keys, including property
// maps, are encoded in sorted order.
func hashJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Every field is a plain value or a graph.Value, which always
		// marshals; fall back to an unshareable key just in case.
		b = []byte(err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
