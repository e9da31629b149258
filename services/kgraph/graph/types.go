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
	"sort"
	"time"
)

// DefaultRelationType is the type given to inferred relations when no
// majority type can be derived from surrounding edges.
const DefaultRelationType = "related"

// Node is an entity in a knowledge graph.
type Node struct {
	// ID is unique within a graph.
	ID string `json:"id" yaml:"id"`

	// Type is the entity type, e.g. "Person" or "Company".
	Type string `json:"type" yaml:"type"`

	// Properties holds arbitrary JSON attributes.
	Properties Properties `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Edge is a directed, typed relation between two nodes.
//
// Multiple edges between the same pair, even of the same type, are allowed.
type Edge struct {
	From       string     `json:"from" yaml:"from"`
	To         string     `json:"to" yaml:"to"`
	Type       string     `json:"type" yaml:"type"`
	Properties Properties `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Graph is an immutable, arena-indexed directed multigraph.
//
// Description:
//
//	Nodes and edges are stored in slices in input order. All adjacency is
//	expressed as indices into those slices:
//	  - index maps node ID to node index
//	  - edgeFrom/edgeTo give the endpoint node indices of each edge
//	  - out/in list edge indices leaving and entering each node
//
// Thread Safety: Safe for concurrent reads. Never mutated after Build.
type Graph struct {
	id      string
	builtAt time.Time

	nodes []Node
	edges []Edge
	index map[string]int

	edgeFrom []int
	edgeTo   []int
	out      [][]int
	in       [][]int

	droppedEdges int
}

// ID returns the graph identifier.
func (g *Graph) ID() string { return g.id }

// BuiltAt returns when the graph was materialized.
func (g *Graph) BuiltAt() time.Time { return g.builtAt }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges that survived endpoint validation.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Nodes returns the node arena. Callers must not modify it.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns the edge arena. Callers must not modify it.
func (g *Graph) Edges() []Edge { return g.edges }

// Successors returns the distinct targets of edges leaving node i,
// in order of first appearance.
func (g *Graph) Successors(i int) []int {
	return g.distinct(g.out[i], g.edgeTo)
}

// Neighbors returns the union of successors and predecessors of node i,
// successors first, excluding i itself.
func (g *Graph) Neighbors(i int) []int {
	seen := make(map[int]struct{}, len(g.out[i])+len(g.in[i]))
	result := make([]int, 0, len(g.out[i])+len(g.in[i]))
	add := func(n int) {
		if n == i {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	for _, e := range g.out[i] {
		add(g.edgeTo[e])
	}
	for _, e := range g.in[i] {
		add(g.edgeFrom[e])
	}
	return result
}

// FindEdge returns the index of the first edge from -> to whose type
// matches edgeType. An empty edgeType matches any type.
func (g *Graph) FindEdge(from, to int, edgeType string) (int, bool) {
	for _, e := range g.out[from] {
		if g.edgeTo[e] != to {
			continue
		}
		if edgeType == "" || g.edges[e].Type == edgeType {
			return e, true
		}
	}
	return -1, false
}

// HasEdge reports whether any edge from -> to exists.
func (g *Graph) HasEdge(from, to int) bool {
	_, ok := g.FindEdge(from, to, "")
	return ok
}

// Connected reports whether an edge exists in either direction.
func (g *Graph) Connected(a, b int) bool {
	return g.HasEdge(a, b) || g.HasEdge(b, a)
}

func (g *Graph) distinct(edges []int, endpoint []int) []int {
	seen := make(map[int]struct{}, len(edges))
	result := make([]int, 0, len(edges))
	for _, e := range edges {
		n := endpoint[e]
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	return result
}

// Stats summarizes a built graph.
type Stats struct {
	GraphID      string   `json:"graphId"`
	NodeCount    int      `json:"nodeCount"`
	EdgeCount    int      `json:"edgeCount"`
	Types        []string `json:"types"`
	EdgeTypes    []string `json:"edgeTypes"`
	Density      float64  `json:"density"`
	AvgDegree    float64  `json:"avgDegree"`
	DroppedEdges int      `json:"droppedEdges"`
}

// Stats computes the summary statistics of g.
//
// Description:
//
//	density = 2E / (N(N-1)), or 0 when N <= 1.
//	avgDegree = 2E / N, or 0 when N == 0.
//	Types and EdgeTypes are the distinct node and edge types, sorted.
func (g *Graph) Stats() Stats {
	n := float64(len(g.nodes))
	e := float64(len(g.edges))

	s := Stats{
		GraphID:      g.id,
		NodeCount:    len(g.nodes),
		EdgeCount:    len(g.edges),
		Types:        distinctTypes(len(g.nodes), func(i int) string { return g.nodes[i].Type }),
		EdgeTypes:    distinctTypes(len(g.edges), func(i int) string { return g.edges[i].Type }),
		DroppedEdges: g.droppedEdges,
	}
	if len(g.nodes) > 1 {
		s.Density = 2 * e / (n * (n - 1))
	}
	if len(g.nodes) > 0 {
		s.AvgDegree = 2 * e / n
	}
	return s
}

func distinctTypes(n int, typeAt func(int) string) []string {
	seen := make(map[string]struct{})
	types := make([]string, 0)
	for i := 0; i < n; i++ {
		t := typeAt(i)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
