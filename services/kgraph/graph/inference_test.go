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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidence_MonotoneInCommonNeighbors(t *testing.T) {
	for pc := 0; pc <= 7; pc++ {
		prev := Confidence(0, pc)
		for cn := 1; cn <= 15; cn++ {
			cur := Confidence(cn, pc)
			assert.GreaterOrEqual(t, cur, prev, "cn=%d pc=%d", cn, pc)
			prev = cur
		}
	}
}

func TestConfidence_Saturates(t *testing.T) {
	assert.InDelta(t, 1.0, Confidence(10, 5), 1e-12)
	assert.InDelta(t, 1.0, Confidence(50, 50), 1e-12)
	assert.InDelta(t, 0.0, Confidence(0, 0), 1e-12)
	assert.InDelta(t, 0.6*0.5+0.4*0.4, Confidence(5, 2), 1e-12)
}

// hubGraph links a and b through k shared neighbors: a -> c_i -> b.
func hubGraph(t *testing.T, k int) *Graph {
	b := newTestGraph("hub").node("a", "Person").node("b", "Person")
	for i := 0; i < k; i++ {
		id := fmt.Sprintf("c%d", i)
		b.nodeWith(id, "Topic", Properties{"name": String(fmt.Sprintf("Topic %d", i))})
		b.edge("a", id, "likes")
		b.edge(id, "b", "liked_by")
	}
	return b.build(t)
}

func TestInferRelations_SharedNeighborhood(t *testing.T) {
	g := hubGraph(t, 8)

	res, err := InferRelations(context.Background(), g, DefaultInferenceOptions())
	require.NoError(t, err)
	require.NotEmpty(t, res.Inferences)

	top := res.Inferences[0]
	assert.Equal(t, "a", top.From)
	assert.Equal(t, "b", top.To)
	assert.Equal(t, 8, top.CommonNeighbors)
	assert.Equal(t, 8, top.PathCount)
	assert.InDelta(t, 0.6*0.8+0.4, top.Confidence, 1e-12)
	assert.Equal(t, []string{"Topic 0", "Topic 1", "Topic 2", "Topic 3", "Topic 4"}, top.Evidence)
	// 8 "likes" and 8 "liked_by" votes: first seen wins.
	assert.Equal(t, "likes", top.Type)

	for i := 1; i < len(res.Inferences); i++ {
		assert.GreaterOrEqual(t, res.Inferences[i-1].Confidence, res.Inferences[i].Confidence)
	}
}

func TestInferRelations_ExistingForwardEdgeBlocks(t *testing.T) {
	b := newTestGraph("blocked").node("a", "Person").node("b", "Person")
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("c%d", i)
		b.node(id, "Topic").edge("a", id, "likes").edge(id, "b", "likes")
	}
	b.edge("a", "b", "knows")
	g := b.build(t)

	res, err := InferRelations(context.Background(), g, DefaultInferenceOptions())
	require.NoError(t, err)
	for _, inf := range res.Inferences {
		assert.False(t, inf.From == "a" && inf.To == "b", "a->b already exists")
	}
}

func TestInferRelations_ReverseEdgeDoesNotBlock(t *testing.T) {
	b := newTestGraph("reverse").node("a", "Person").node("b", "Person")
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("c%d", i)
		b.node(id, "Topic").edge("a", id, "likes").edge(id, "b", "likes")
	}
	b.edge("b", "a", "knows")
	g := b.build(t)

	res, err := InferRelations(context.Background(), g, DefaultInferenceOptions())
	require.NoError(t, err)
	require.NotEmpty(t, res.Inferences)
	assert.Equal(t, "a", res.Inferences[0].From)
	assert.Equal(t, "b", res.Inferences[0].To)
}

func TestInferRelations_ThresholdAndCap(t *testing.T) {
	g := hubGraph(t, 3)

	res, err := InferRelations(context.Background(), g, InferenceOptions{ConfidenceThreshold: 0.99})
	require.NoError(t, err)
	assert.Empty(t, res.Inferences)

	g = hubGraph(t, 10)
	res, err = InferRelations(context.Background(), g, InferenceOptions{ConfidenceThreshold: 0.1, MaxInferences: 2})
	require.NoError(t, err)
	assert.Len(t, res.Inferences, 2)
	assert.Greater(t, res.Accepted, 2)
}

func TestInferRelations_ZeroThresholdAcceptsEveryPair(t *testing.T) {
	g := hubGraph(t, 1)

	res, err := InferRelations(context.Background(), g, DefaultInferenceOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Inferences)

	res, err = InferRelations(context.Background(), g, InferenceOptions{ConfidenceThreshold: 0})
	require.NoError(t, err)
	// a->c0 already exists, so a-b and b-c0 are the only candidates.
	assert.Equal(t, 2, res.PairsExamined)
	assert.Equal(t, 2, res.Accepted)
	require.Len(t, res.Inferences, 2)
	assert.Equal(t, "a", res.Inferences[0].From)
	assert.Equal(t, "b", res.Inferences[0].To)
}

func TestInferRelations_DefaultTypeWithoutCommonNeighbors(t *testing.T) {
	g := newTestGraph("paths").
		node("a", "T").node("x", "T").node("y", "T").node("b", "T").
		edge("a", "x", "e").edge("x", "y", "e").edge("y", "b", "e").
		build(t)

	assert.Equal(t, DefaultRelationType, g.majorityRouteType(0, 3, nil))
}

func TestInferRelations_InvalidThreshold(t *testing.T) {
	g := hubGraph(t, 1)
	_, err := InferRelations(context.Background(), g, InferenceOptions{ConfidenceThreshold: 1.5})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}
