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
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCommunities_TwoTriangles(t *testing.T) {
	for _, algo := range []string{CommunityLouvain, CommunityModularity} {
		t.Run(algo, func(t *testing.T) {
			g := twoTriangles(t)

			res, err := DetectCommunities(context.Background(), g, CommunityOptions{Algorithm: algo, MinCommunitySize: 2})
			require.NoError(t, err)
			require.Len(t, res.Communities, 2)

			var groups [][]string
			for _, c := range res.Communities {
				assert.Equal(t, 3, c.Size)
				assert.Equal(t, 1.0, c.Density)
				members := append([]string(nil), c.Members...)
				sort.Strings(members)
				groups = append(groups, members)
			}
			sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
			assert.Equal(t, [][]string{{"a1", "a2", "a3"}, {"b1", "b2", "b3"}}, groups)
			assert.True(t, res.Converged)
		})
	}
}

func TestDetectCommunities_ModularityOnEveryRecord(t *testing.T) {
	g := twoTriangles(t)

	res, err := DetectCommunities(context.Background(), g, DefaultCommunityOptions())
	require.NoError(t, err)

	// m = 6, each community has internal A-sum 6 and degree sum 6:
	// Q = (12 - 2*36/12) / 12 = 0.5
	assert.InDelta(t, 0.5, res.Modularity, 1e-12)
	for _, c := range res.Communities {
		assert.Equal(t, res.Modularity, c.Modularity)
	}
}

func TestDetectCommunities_MinSizeDropsSingletons(t *testing.T) {
	g := newTestGraph("g").
		node("a", "T").node("b", "T").node("lonely", "T").
		edge("a", "b", "x").
		build(t)

	res, err := DetectCommunities(context.Background(), g, DefaultCommunityOptions())
	require.NoError(t, err)
	require.Len(t, res.Communities, 1)
	assert.Equal(t, []string{"a", "b"}, res.Communities[0].Members)

	res, err = DetectCommunities(context.Background(), g, CommunityOptions{MinCommunitySize: 1})
	require.NoError(t, err)
	assert.Len(t, res.Communities, 2)
	assert.Equal(t, 0.0, res.Communities[1].Density)

	res, err = DetectCommunities(context.Background(), g, CommunityOptions{MinCommunitySize: 0})
	require.NoError(t, err)
	assert.Len(t, res.Communities, 2)
}

func TestDetectCommunities_LabelPropagationDeterministicWithSeed(t *testing.T) {
	b := newTestGraph("ring")
	ids := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7"}
	for _, id := range ids {
		b.node(id, "T")
	}
	for i := range ids {
		b.edge(ids[i], ids[(i+1)%len(ids)], "x")
	}
	b.edge("n0", "n4", "x")
	g := b.build(t)

	opts := CommunityOptions{Algorithm: CommunityLabelPropagation, Seed: 7}
	first, err := DetectCommunities(context.Background(), g, opts)
	require.NoError(t, err)
	second, err := DetectCommunities(context.Background(), g, opts)
	require.NoError(t, err)

	assert.Equal(t, first.Communities, second.Communities)
}

func TestDetectCommunities_LabelPropagationStaysWithinComponents(t *testing.T) {
	for _, seed := range []uint64{1, 7, 42} {
		g := twoTriangles(t)

		res, err := DetectCommunities(context.Background(), g, CommunityOptions{
			Algorithm:        CommunityLabelPropagation,
			MinCommunitySize: 1,
			Seed:             seed,
		})
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Passes, DefaultCommunityOptions().MaxPasses)

		total := 0
		for _, c := range res.Communities {
			total += c.Size
			for _, m := range c.Members {
				assert.Equal(t, c.Members[0][0], m[0], "community %v spans both triangles", c.Members)
			}
		}
		assert.Equal(t, 6, total)
	}
}

func TestPropagatedLabel(t *testing.T) {
	tests := []struct {
		name   string
		nbrs   []int
		labels []int
		node   int
		want   int
		moved  bool
	}{
		{
			name:   "tie with own label goes to first encountered",
			nbrs:   []int{2, 1},
			labels: []int{0, 0, 2},
			node:   0,
			want:   2,
			moved:  true,
		},
		{
			name:   "own label first encountered in tie is kept",
			nbrs:   []int{1, 2},
			labels: []int{0, 0, 2},
			node:   0,
			want:   0,
			moved:  false,
		},
		{
			name:   "majority beats earlier single label",
			nbrs:   []int{1, 2, 3},
			labels: []int{0, 5, 7, 7},
			node:   0,
			want:   7,
			moved:  true,
		},
		{
			name:   "first inserted wins equal counts",
			nbrs:   []int{1, 2, 3, 4},
			labels: []int{0, 5, 7, 7, 5},
			node:   0,
			want:   5,
			moved:  true,
		},
		{
			name:   "isolated node keeps its label",
			nbrs:   nil,
			labels: []int{3},
			node:   0,
			want:   3,
			moved:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, moved := propagatedLabel(tt.nbrs, tt.labels, tt.node)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.moved, moved)
		})
	}
}

func TestDetectCommunities_Errors(t *testing.T) {
	g := twoTriangles(t)

	_, err := DetectCommunities(context.Background(), g, CommunityOptions{Algorithm: "girvan-newman"})
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = DetectCommunities(ctx, g, CommunityOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectCommunities_EmptyGraph(t *testing.T) {
	g := newTestGraph("empty").build(t)

	res, err := DetectCommunities(context.Background(), g, CommunityOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Communities)
	assert.Equal(t, 0.0, res.Modularity)
}
