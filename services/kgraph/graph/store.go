// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BuildInput is the raw material for a graph.
type BuildInput struct {
	// GraphID names the graph. Generated when empty.
	GraphID string `json:"graphId,omitempty" yaml:"graphId,omitempty"`

	// Entities become nodes. A later entity with a repeated ID replaces the
	// type and properties of the earlier one but keeps its position.
	Entities []Node `json:"entities" yaml:"entities"`

	// Relations become edges. Relations with an unknown endpoint are dropped.
	Relations []Edge `json:"relations" yaml:"relations"`
}

// Summary describes a stored graph for registry listings.
type Summary struct {
	GraphID   string    `json:"graphId"`
	NodeCount int       `json:"nodeCount"`
	EdgeCount int       `json:"edgeCount"`
	BuiltAt   time.Time `json:"builtAt"`
}

// Store is a registry of named graphs.
//
// Description:
//
//	Store owns every graph built in a session. It replaces a process-wide
//	registry: callers create a Store and pass it to whatever needs graphs.
//	Graphs live for the lifetime of the Store only.
//
// Thread Safety:
//
//	The registry map is guarded by a RWMutex, so Get/Put/List are safe
//	for concurrent use. Graphs themselves are immutable.
type Store struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		graphs: make(map[string]*Graph),
		now:    time.Now,
	}
}

// Get returns the graph with the given ID.
//
// Outputs:
//
//	*Graph - The graph.
//	error - ErrGraphNotFound if no graph has that ID.
func (s *Store) Get(id string) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, id)
	}
	return g, nil
}

// Len returns the number of stored graphs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.graphs)
}

// List returns summaries of all stored graphs sorted by ID.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.graphs))
	for _, g := range s.graphs {
		out = append(out, Summary{
			GraphID:   g.id,
			NodeCount: len(g.nodes),
			EdgeCount: len(g.edges),
			BuiltAt:   g.builtAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GraphID < out[j].GraphID })
	return out
}

// Build materializes a graph from entities and relations and registers it,
// replacing any graph with the same ID.
//
// Description:
//
//	Nodes are added in input order. Each relation is validated against the
//	entity set; relations whose endpoints are missing are silently dropped
//	and counted in Stats.DroppedEdges. Adjacency (out/in edge lists) is
//	built in the same pass.
//
// Inputs:
//
//	ctx - Context for tracing.
//	in - Entities, relations and optional graph ID.
//
// Outputs:
//
//	*Graph - The registered graph.
//	error - ErrInvalidNode if an entity has an empty ID.
//
// Complexity: O(N + E).
func (s *Store) Build(ctx context.Context, in BuildInput) (*Graph, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Store.Build")
	defer span.End()

	g, err := s.newGraph(in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordBuildMetrics(ctx, time.Since(start), 0, false)
		return nil, err
	}

	s.mu.Lock()
	s.graphs[g.id] = g
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("graph.id", g.id),
		attribute.Int("graph.node_count", len(g.nodes)),
		attribute.Int("graph.edge_count", len(g.edges)),
		attribute.Int("graph.dropped_edges", g.droppedEdges),
	)
	recordBuildMetrics(ctx, time.Since(start), g.droppedEdges, true)

	slog.Debug("Graph built",
		slog.String("graph_id", g.id),
		slog.Int("nodes", len(g.nodes)),
		slog.Int("edges", len(g.edges)),
		slog.Int("dropped_edges", g.droppedEdges),
	)
	return g, nil
}

func (s *Store) newGraph(in BuildInput) (*Graph, error) {
	id := in.GraphID
	if id == "" {
		id = NewGraphID(s.now())
	}

	g := &Graph{
		id:      id,
		builtAt: s.now(),
		nodes:   make([]Node, 0, len(in.Entities)),
		edges:   make([]Edge, 0, len(in.Relations)),
		index:   make(map[string]int, len(in.Entities)),
	}

	for i, ent := range in.Entities {
		if ent.ID == "" {
			return nil, fmt.Errorf("%w: entity %d has empty id", ErrInvalidNode, i)
		}
		node := Node{ID: ent.ID, Type: ent.Type, Properties: ent.Properties.Clone()}
		if idx, ok := g.index[ent.ID]; ok {
			g.nodes[idx] = node
			continue
		}
		g.index[ent.ID] = len(g.nodes)
		g.nodes = append(g.nodes, node)
	}

	g.out = make([][]int, len(g.nodes))
	g.in = make([][]int, len(g.nodes))
	g.edgeFrom = make([]int, 0, len(in.Relations))
	g.edgeTo = make([]int, 0, len(in.Relations))

	for _, rel := range in.Relations {
		from, okFrom := g.index[rel.From]
		to, okTo := g.index[rel.To]
		if !okFrom || !okTo {
			g.droppedEdges++
			continue
		}
		e := len(g.edges)
		g.edges = append(g.edges, Edge{
			From:       rel.From,
			To:         rel.To,
			Type:       rel.Type,
			Properties: rel.Properties.Clone(),
		})
		g.edgeFrom = append(g.edgeFrom, from)
		g.edgeTo = append(g.edgeTo, to)
		g.out[from] = append(g.out[from], e)
		g.in[to] = append(g.in[to], e)
	}

	return g, nil
}

// NewGraphID generates a graph ID from a timestamp and a random token.
//
// Example output: "graph_1718000000000_3f2a9c1d".
func NewGraphID(now time.Time) string {
	token := uuid.NewString()[:8]
	return fmt.Sprintf("graph_%d_%s", now.UnixMilli(), token)
}
