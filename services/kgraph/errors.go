// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kgraph dispatches knowledge-graph operations.
//
// # Description
//
// Service.Execute is the single entry point. It validates a Request,
// consults the result cache, runs exactly one engine operation against
// the graph store, caches the serialized result and records metrics. The
// gin handlers in this package expose Execute and a read-only view of the
// graph registry over HTTP.
//
// # Operations
//
//	build-graph         build (or rebuild) a graph from entities and relations
//	query               pattern match
//	find-paths          shortest / all / widest paths between two nodes
//	detect-communities  louvain / label-propagation / modularity
//	infer-relations     confidence-scored missing edges
//	visualize           layout coordinates
//	export-graph        json / graphml / dot / csv / cytoscape
//	merge-graphs        union / intersection / override into a new graph
//
// # Caching
//
// The cache key covers only operation, graphId, pattern, sourceId,
// targetId and algorithm. Requests that differ only in other fields
// (layout, format, thresholds, limits) share a key and therefore share a
// cached result. Clients that need those fields honoured should send
// useCache=false.
//
// # Thread Safety
//
// Execute is safe for concurrent use. build-graph and merge-graphs hold
// an exclusive lock; all other operations hold a shared lock.
package kgraph

import "errors"

var (
	// ErrUnknownOperation is returned for an operation name outside the
	// supported set.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrMissingField is returned when an operation's required field is
	// absent.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidRequest is returned when struct validation fails.
	ErrInvalidRequest = errors.New("invalid request")
)
