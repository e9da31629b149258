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

func companyGraph(t *testing.T) *Graph {
	return newTestGraph("co").
		nodeWith("alice", "Person", Properties{"role": String("engineer")}).
		nodeWith("bob", "Person", Properties{"role": String("manager")}).
		nodeWith("acme", "Company", Properties{"public": Bool(true)}).
		node("initech", "Company").
		edge("alice", "acme", "works_at").
		edge("bob", "acme", "works_at").
		edge("bob", "initech", "advises").
		edge("alice", "bob", "reports_to").
		build(t)
}

func TestQuery_TypeAndEdgeFilter(t *testing.T) {
	g := companyGraph(t)
	p := &Pattern{
		Nodes: []PatternNode{{Type: "Person"}, {Type: "Company"}},
		Edges: []PatternEdge{{From: 0, To: 1, Type: "works_at"}},
	}

	res, err := Query(context.Background(), g, p, DefaultQueryOptions())
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)

	assert.Equal(t, "alice", res.Matches[0].Nodes[0].ID)
	assert.Equal(t, "acme", res.Matches[0].Nodes[1].ID)
	assert.Equal(t, "bob", res.Matches[1].Nodes[0].ID)
	assert.Equal(t, 3.0, res.Matches[0].Score)
	assert.Equal(t, 4, res.CombinationsExamined)
	assert.False(t, res.Truncated)
}

func TestQuery_PropertyFilterAndScore(t *testing.T) {
	g := companyGraph(t)
	p := &Pattern{
		Nodes: []PatternNode{
			{Type: "Person", Properties: Properties{"role": String("manager")}},
			{Type: "Company"},
		},
		Edges: []PatternEdge{{From: 0, To: 1}},
	}

	res, err := Query(context.Background(), g, p, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)
	for _, m := range res.Matches {
		assert.Equal(t, "bob", m.Nodes[0].ID)
		assert.Equal(t, 2+1+0.5, m.Score)
	}
}

func TestQuery_ExactID(t *testing.T) {
	g := companyGraph(t)
	p := &Pattern{Nodes: []PatternNode{{ID: "initech"}}}

	res, err := Query(context.Background(), g, p, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "initech", res.Matches[0].Nodes[0].ID)
	assert.Empty(t, res.Matches[0].Edges)
}

func TestQuery_NoCandidates(t *testing.T) {
	g := companyGraph(t)
	p := &Pattern{Nodes: []PatternNode{{Type: "Robot"}}}

	res, err := Query(context.Background(), g, p, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Equal(t, 0, res.CombinationsExamined)
}

func TestQuery_CombinationCapTruncates(t *testing.T) {
	b := newTestGraph("many")
	for i := 0; i < 20; i++ {
		b.node(fmt.Sprintf("n%02d", i), "T")
	}
	g := b.build(t)

	p := &Pattern{Nodes: []PatternNode{{Type: "T"}, {Type: "T"}, {Type: "T"}}}
	res, err := Query(context.Background(), g, p, DefaultQueryOptions())
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Equal(t, DefaultMaxCombinations, res.CombinationsExamined)
	assert.Len(t, res.Matches, DefaultMaxCombinations)
	// Only the first ten candidates per slot are ever bound.
	for _, m := range res.Matches {
		for _, n := range m.Nodes {
			assert.Less(t, n.ID, "n10")
		}
	}
}

func TestQuery_InvalidPattern(t *testing.T) {
	g := companyGraph(t)
	tests := []struct {
		name string
		p    *Pattern
	}{
		{"nil", nil},
		{"no nodes", &Pattern{}},
		{"edge out of range", &Pattern{Nodes: []PatternNode{{}}, Edges: []PatternEdge{{From: 0, To: 3}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Query(context.Background(), g, tt.p, QueryOptions{})
			assert.ErrorIs(t, err, ErrInvalidPattern)
		})
	}
}

func TestQuery_CancelledContext(t *testing.T) {
	g := companyGraph(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Query(ctx, g, &Pattern{Nodes: []PatternNode{{}}}, QueryOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
