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

func TestFindPaths_ShortestWithinMaxHops(t *testing.T) {
	g := chain(t)

	res, err := FindPaths(context.Background(), g, "A", "D", PathOptions{Algorithm: PathShortest, MaxHops: 3})
	require.NoError(t, err)
	require.Len(t, res.Paths, 1)

	p := res.Paths[0]
	assert.Equal(t, []string{"A", "B", "C", "D"}, p.Nodes)
	assert.Equal(t, 3, p.Length)
	assert.Equal(t, 3.0, p.Cost)
	require.Len(t, p.Edges, 3)
	assert.Equal(t, PathEdge{From: "B", To: "C", Type: "next"}, p.Edges[1])
}

func TestFindPaths_ShortestDiscardedBeyondMaxHops(t *testing.T) {
	g := chain(t)

	res, err := FindPaths(context.Background(), g, "A", "D", PathOptions{Algorithm: PathShortest, MaxHops: 2})
	require.NoError(t, err)
	assert.NotNil(t, res.Paths)
	assert.Empty(t, res.Paths)
}

func TestFindPaths_ShortestPrefersFewerHops(t *testing.T) {
	g := newTestGraph("diamond").
		node("s", "T").node("x", "T").node("y", "T").node("t", "T").
		edge("s", "x", "a").edge("x", "y", "a").edge("y", "t", "a").
		edge("s", "t", "shortcut").
		build(t)

	res, err := FindPaths(context.Background(), g, "s", "t", PathOptions{})
	require.NoError(t, err)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, []string{"s", "t"}, res.Paths[0].Nodes)
	assert.Equal(t, "shortcut", res.Paths[0].Edges[0].Type)
}

func TestFindPaths_Directed(t *testing.T) {
	g := chain(t)

	res, err := FindPaths(context.Background(), g, "D", "A", PathOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Paths)
}

func TestFindPaths_All(t *testing.T) {
	g := newTestGraph("multi").
		node("s", "T").node("x", "T").node("y", "T").node("t", "T").
		edge("s", "x", "a").edge("x", "t", "b").
		edge("s", "y", "a").edge("y", "t", "b").
		edge("s", "t", "c").
		edge("t", "s", "back").
		build(t)

	tests := []struct {
		name    string
		maxHops int
		want    [][]string
	}{
		{"one hop", 1, [][]string{{"s", "t"}}},
		{"two hops", 2, [][]string{{"s", "x", "t"}, {"s", "y", "t"}, {"s", "t"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := FindPaths(context.Background(), g, "s", "t", PathOptions{Algorithm: PathAll, MaxHops: tt.maxHops})
			require.NoError(t, err)
			got := make([][]string, len(res.Paths))
			for i, p := range res.Paths {
				got[i] = p.Nodes
				assert.Equal(t, float64(p.Length), p.Cost)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindPaths_AllRespectsMaxPaths(t *testing.T) {
	g := newTestGraph("multi").
		node("s", "T").node("x", "T").node("y", "T").node("t", "T").
		edge("s", "x", "a").edge("x", "t", "b").
		edge("s", "y", "a").edge("y", "t", "b").
		build(t)

	res, err := FindPaths(context.Background(), g, "s", "t", PathOptions{Algorithm: PathAll, MaxPaths: 1})
	require.NoError(t, err)
	assert.Len(t, res.Paths, 1)
}

func TestFindPaths_WidestIsReachability(t *testing.T) {
	g := chain(t)

	res, err := FindPaths(context.Background(), g, "A", "D", PathOptions{Algorithm: PathWidest, MaxHops: 3})
	require.NoError(t, err)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, []string{"A", "B", "C", "D"}, res.Paths[0].Nodes)
	assert.Equal(t, 1.0, res.Paths[0].Cost)

	res, err = FindPaths(context.Background(), g, "A", "D", PathOptions{Algorithm: PathWidest, MaxHops: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Paths)
}

func TestFindPaths_SameNode(t *testing.T) {
	g := chain(t)

	res, err := FindPaths(context.Background(), g, "B", "B", PathOptions{})
	require.NoError(t, err)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, []string{"B"}, res.Paths[0].Nodes)
	assert.Equal(t, 0, res.Paths[0].Length)
}

func TestFindPaths_Errors(t *testing.T) {
	g := chain(t)

	_, err := FindPaths(context.Background(), g, "A", "Z", PathOptions{})
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = FindPaths(context.Background(), g, "Z", "A", PathOptions{})
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = FindPaths(context.Background(), g, "A", "D", PathOptions{Algorithm: "astar"})
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestCountSimplePaths(t *testing.T) {
	g := newTestGraph("multi").
		node("s", "T").node("x", "T").node("y", "T").node("t", "T").
		edge("s", "x", "a").edge("x", "t", "b").
		edge("s", "y", "a").edge("y", "t", "b").
		edge("x", "y", "c").
		build(t)

	s, tt := g.index["s"], g.index["t"]
	// s-x-t, s-y-t, s-x-y-t
	assert.Equal(t, 3, g.CountSimplePaths(s, tt, 3))
	assert.Equal(t, 2, g.CountSimplePaths(s, tt, 2))
	assert.Equal(t, 0, g.CountSimplePaths(s, s, 3))
}
