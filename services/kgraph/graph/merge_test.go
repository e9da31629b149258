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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_DisjointSingletons(t *testing.T) {
	s := NewStore()
	newTestGraph("gx").node("x", "T").buildIn(t, s)
	newTestGraph("gy").node("y", "T").buildIn(t, s)

	_, union, err := Merge(context.Background(), s, []string{"gx", "gy"}, MergeUnion, "u")
	require.NoError(t, err)
	assert.Equal(t, 2, union.Stats.NodeCount)

	_, inter, err := Merge(context.Background(), s, []string{"gx", "gy"}, MergeIntersection, "i")
	require.NoError(t, err)
	assert.Equal(t, 0, inter.Stats.NodeCount)
}

func overlapping(t *testing.T) *Store {
	s := NewStore()
	newTestGraph("g1").
		nodeWith("a", "Person", Properties{"v": Number(1)}).node("b", "Person").node("c", "Person").
		edge("a", "b", "knows").edge("b", "c", "knows").
		buildIn(t, s)
	newTestGraph("g2").
		nodeWith("a", "Employee", Properties{"v": Number(2)}).node("b", "Person").node("d", "Person").
		edge("a", "b", "knows").edge("a", "b", "knows").edge("b", "d", "manages").
		buildIn(t, s)
	return s
}

func TestMerge_Union(t *testing.T) {
	s := overlapping(t)

	g, res, err := Merge(context.Background(), s, []string{"g1", "g2"}, "", "merged")
	require.NoError(t, err)
	assert.Equal(t, MergeUnion, res.Strategy)
	assert.Equal(t, "merged", g.ID())

	assert.Equal(t, 4, g.NodeCount())
	a := g.nodes[g.index["a"]]
	assert.Equal(t, "Person", a.Type, "first occurrence wins")
	// a->b knows (deduplicated), b->c knows, b->d manages
	assert.Equal(t, 3, g.EdgeCount())

	stored, err := s.Get("merged")
	require.NoError(t, err)
	assert.Same(t, g, stored)
}

func TestMerge_Intersection(t *testing.T) {
	s := overlapping(t)

	g, _, err := Merge(context.Background(), s, []string{"g1", "g2"}, MergeIntersection, "")
	require.NoError(t, err)

	assert.Equal(t, 2, g.NodeCount())
	_, hasC := g.index["c"]
	assert.False(t, hasC)
	require.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, Edge{From: "a", To: "b", Type: "knows"}, g.edges[0])
}

func TestMerge_OverrideKeepsOnlyLastGraphEdges(t *testing.T) {
	s := overlapping(t)

	g, _, err := Merge(context.Background(), s, []string{"g1", "g2"}, MergeOverride, "")
	require.NoError(t, err)

	assert.Equal(t, 4, g.NodeCount())
	a := g.nodes[g.index["a"]]
	assert.Equal(t, "Employee", a.Type, "later graph overwrites")
	assert.True(t, a.Properties["v"].Equal(Number(2)))

	// g2's edges only, duplicates kept: a->b, a->b, b->d
	assert.Equal(t, 3, g.EdgeCount())
	for _, e := range g.Edges() {
		assert.NotEqual(t, "c", e.To)
	}
}

func TestMerge_Errors(t *testing.T) {
	s := overlapping(t)

	_, _, err := Merge(context.Background(), s, []string{"g1"}, MergeUnion, "")
	assert.ErrorIs(t, err, ErrTooFewGraphs)

	_, _, err = Merge(context.Background(), s, []string{"g1", "nope"}, MergeUnion, "")
	assert.ErrorIs(t, err, ErrGraphNotFound)

	_, _, err = Merge(context.Background(), s, []string{"g1", "g2"}, "xor", "")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
