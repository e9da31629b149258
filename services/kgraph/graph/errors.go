// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the in-memory knowledge graph store and the
// analytics that run over it.
//
// A knowledge graph is a directed multigraph of typed entities (nodes) and
// typed relations (edges). Nodes and edges carry free-form properties modelled
// as a closed JSON value type (see Value).
//
// # Storage Model
//
// Nodes and edges live in arenas (slices) and refer to each other by integer
// index. Node IDs are resolved to indices through a map built once at build
// time. There are no pointer cycles between nodes and edges.
//
// # Lifecycle
//
// A Graph is immutable once built. Graphs are only created by Store.Build
// (directly or through Merge); a change to a graph materializes a new Graph
// under a possibly reused ID.
//
// # Thread Safety
//
// A built Graph is safe for concurrent reads. The Store registry is guarded
// by its own lock, but callers must still serialize builds and merges against
// other operations on the same graph ID.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrGraphNotFound is returned when a graph ID is not in the store.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrNodeNotFound is returned when a node ID is not in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidNode is returned when an entity has an empty ID.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidPattern is returned when a query pattern is empty or has
	// edges referring to slots that do not exist.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrUnknownAlgorithm is returned for unrecognized path or community
	// algorithm names.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// ErrUnknownStrategy is returned for unrecognized merge strategies.
	ErrUnknownStrategy = errors.New("unknown merge strategy")

	// ErrTooFewGraphs is returned when a merge is requested with fewer
	// than two input graphs.
	ErrTooFewGraphs = errors.New("merge requires at least two graphs")

	// ErrInvalidOptions is returned when algorithm options are out of range.
	ErrInvalidOptions = errors.New("invalid options")

	// ErrInvalidValue is returned when a property cannot be represented
	// as a JSON value.
	ErrInvalidValue = errors.New("invalid property value")
)
