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
	"testing"

	"github.com/stretchr/testify/require"
)

// testGraph is a fluent builder for test graphs.
type testGraph struct {
	id string
	in BuildInput
}

func newTestGraph(id string) *testGraph {
	return &testGraph{id: id, in: BuildInput{GraphID: id}}
}

func (b *testGraph) node(id, typ string) *testGraph {
	b.in.Entities = append(b.in.Entities, Node{ID: id, Type: typ})
	return b
}

func (b *testGraph) nodeWith(id, typ string, props Properties) *testGraph {
	b.in.Entities = append(b.in.Entities, Node{ID: id, Type: typ, Properties: props})
	return b
}

func (b *testGraph) edge(from, to, typ string) *testGraph {
	b.in.Relations = append(b.in.Relations, Edge{From: from, To: to, Type: typ})
	return b
}

func (b *testGraph) buildIn(t *testing.T, s *Store) *Graph {
	t.Helper()
	g, err := s.Build(context.Background(), b.in)
	require.NoError(t, err)
	return g
}

func (b *testGraph) build(t *testing.T) *Graph {
	t.Helper()
	return b.buildIn(t, NewStore())
}

// chain builds A->B->C->D.
func chain(t *testing.T) *Graph {
	return newTestGraph("chain").
		node("A", "Step").node("B", "Step").node("C", "Step").node("D", "Step").
		edge("A", "B", "next").edge("B", "C", "next").edge("C", "D", "next").
		build(t)
}

// twoTriangles builds two disjoint directed 3-cycles.
func twoTriangles(t *testing.T) *Graph {
	return newTestGraph("triangles").
		node("a1", "T").node("a2", "T").node("a3", "T").
		node("b1", "T").node("b2", "T").node("b3", "T").
		edge("a1", "a2", "knows").edge("a2", "a3", "knows").edge("a3", "a1", "knows").
		edge("b1", "b2", "knows").edge("b2", "b3", "knows").edge("b3", "b1", "knows").
		build(t)
}
