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
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultMaxCandidatesPerSlot bounds how many graph nodes are considered
	// for each pattern node.
	DefaultMaxCandidatesPerSlot = 10

	// DefaultMaxCombinations bounds how many slot assignments are tested.
	DefaultMaxCombinations = 100

	// propertyMatchWeight is the score bonus per matched pattern property.
	propertyMatchWeight = 0.5
)

// PatternNode constrains one slot of a pattern. Empty fields are wildcards.
type PatternNode struct {
	ID         string     `json:"id,omitempty" yaml:"id,omitempty"`
	Type       string     `json:"type,omitempty" yaml:"type,omitempty"`
	Properties Properties `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// PatternEdge requires an edge between two slots, referenced by index
// into Pattern.Nodes. An empty Type matches any edge type.
type PatternEdge struct {
	From int    `json:"from" yaml:"from"`
	To   int    `json:"to" yaml:"to"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Pattern is a small subgraph to search for.
type Pattern struct {
	Nodes []PatternNode `json:"nodes" yaml:"nodes"`
	Edges []PatternEdge `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// validate checks slot references.
func (p *Pattern) validate() error {
	if p == nil || len(p.Nodes) == 0 {
		return fmt.Errorf("%w: pattern has no nodes", ErrInvalidPattern)
	}
	for i, e := range p.Edges {
		if e.From < 0 || e.From >= len(p.Nodes) || e.To < 0 || e.To >= len(p.Nodes) {
			return fmt.Errorf("%w: edge %d references slot outside [0,%d)", ErrInvalidPattern, i, len(p.Nodes))
		}
	}
	return nil
}

// QueryOptions bounds pattern enumeration.
//
// Limitations:
//
//	Enumeration is first-found, not exhaustive. At most
//	MaxCandidatesPerSlot nodes (in graph order) are considered per slot and
//	at most MaxCombinations assignments are tested. Matches that would
//	need a later candidate or a later combination are not returned;
//	QueryResult.Truncated reports when either cap was hit.
type QueryOptions struct {
	MaxCandidatesPerSlot int `json:"maxCandidatesPerSlot" yaml:"max_candidates_per_slot"`
	MaxCombinations      int `json:"maxCombinations" yaml:"max_combinations"`
}

// DefaultQueryOptions returns the standard enumeration caps.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		MaxCandidatesPerSlot: DefaultMaxCandidatesPerSlot,
		MaxCombinations:      DefaultMaxCombinations,
	}
}

// Validate fills zero values with defaults and rejects negative caps.
func (o *QueryOptions) Validate() error {
	if o.MaxCandidatesPerSlot < 0 || o.MaxCombinations < 0 {
		return fmt.Errorf("%w: query caps must be non-negative", ErrInvalidOptions)
	}
	if o.MaxCandidatesPerSlot == 0 {
		o.MaxCandidatesPerSlot = DefaultMaxCandidatesPerSlot
	}
	if o.MaxCombinations == 0 {
		o.MaxCombinations = DefaultMaxCombinations
	}
	return nil
}

// Match is one assignment of graph nodes to pattern slots.
type Match struct {
	// Nodes holds the bound node for each pattern slot, in slot order.
	Nodes []Node `json:"nodes"`

	// Edges holds the graph edge that satisfied each pattern edge.
	Edges []Edge `json:"edges"`

	// Score = len(Nodes) + len(Edges) + 0.5 * matched property count.
	Score float64 `json:"score"`
}

// QueryResult holds pattern matches sorted by score descending.
type QueryResult struct {
	Matches              []Match `json:"matches"`
	CombinationsExamined int     `json:"combinationsExamined"`
	Truncated            bool    `json:"truncated"`
}

// Query finds assignments of graph nodes to the pattern's slots such that
// every pattern edge is realized by a graph edge.
//
// Description:
//
//	For each slot, candidates are collected in graph order: an exact ID
//	lookup when the slot names an ID, otherwise a scan filtered by type and
//	by equality of every listed property. The cartesian product of the
//	candidate lists is then walked in odometer order and each assignment is
//	checked against the pattern edges. A slot may bind the same graph node
//	as another slot.
//
// Inputs:
//
//	ctx - Context for tracing and cancellation.
//	g - The graph to search.
//	p - The pattern. Must have at least one node.
//	opts - Enumeration caps. Zero values use defaults.
//
// Outputs:
//
//	*QueryResult - Matches sorted by score descending (stable).
//	error - ErrInvalidPattern, ErrInvalidOptions, or ctx.Err().
//
// Limitations: see QueryOptions.
func Query(ctx context.Context, g *Graph, p *Pattern, opts QueryOptions) (*QueryResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := startAlgorithmSpan(ctx, "Query", g)
	defer span.End()

	result := &QueryResult{Matches: make([]Match, 0)}

	candidates := make([][]int, len(p.Nodes))
	for slot, pn := range p.Nodes {
		cands, capped := g.candidates(pn, opts.MaxCandidatesPerSlot)
		if capped {
			result.Truncated = true
		}
		if len(cands) == 0 {
			span.SetAttributes(attribute.Int("query.empty_slot", slot))
			return result, nil
		}
		candidates[slot] = cands
	}

	// Odometer over candidate lists; the last slot varies fastest.
	cursor := make([]int, len(candidates))
	assignment := make([]int, len(candidates))
	for {
		if result.CombinationsExamined >= opts.MaxCombinations {
			result.Truncated = true
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for slot := range candidates {
			assignment[slot] = candidates[slot][cursor[slot]]
		}
		result.CombinationsExamined++

		if m, ok := g.verify(p, assignment); ok {
			result.Matches = append(result.Matches, m)
		}

		if !advance(cursor, candidates) {
			break
		}
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Score > result.Matches[j].Score
	})

	span.SetAttributes(
		attribute.Int("query.combinations", result.CombinationsExamined),
		attribute.Int("query.matches", len(result.Matches)),
		attribute.Bool("query.truncated", result.Truncated),
	)
	recordAlgorithmMetrics(ctx, "query", time.Since(start))
	slog.Debug("Pattern query completed",
		slog.String("graph_id", g.id),
		slog.Int("matches", len(result.Matches)),
		slog.Int("combinations", result.CombinationsExamined),
	)
	return result, nil
}

// candidates returns up to limit node indices satisfying pn, and whether
// more matching nodes existed beyond the limit.
func (g *Graph) candidates(pn PatternNode, limit int) ([]int, bool) {
	if pn.ID != "" {
		i, ok := g.index[pn.ID]
		if !ok || !slotAccepts(pn, g.nodes[i]) {
			return nil, false
		}
		return []int{i}, false
	}

	out := make([]int, 0, limit)
	for i, n := range g.nodes {
		if !slotAccepts(pn, n) {
			continue
		}
		if len(out) == limit {
			return out, true
		}
		out = append(out, i)
	}
	return out, false
}

func slotAccepts(pn PatternNode, n Node) bool {
	if pn.Type != "" && pn.Type != n.Type {
		return false
	}
	return n.Properties.Matches(pn.Properties)
}

// verify checks every pattern edge against the assignment and builds the
// scored match.
func (g *Graph) verify(p *Pattern, assignment []int) (Match, bool) {
	edges := make([]Edge, 0, len(p.Edges))
	for _, pe := range p.Edges {
		e, ok := g.FindEdge(assignment[pe.From], assignment[pe.To], pe.Type)
		if !ok {
			return Match{}, false
		}
		edges = append(edges, g.edges[e])
	}

	nodes := make([]Node, len(assignment))
	propertyMatches := 0
	for slot, idx := range assignment {
		nodes[slot] = g.nodes[idx]
		propertyMatches += len(p.Nodes[slot].Properties)
	}

	return Match{
		Nodes: nodes,
		Edges: edges,
		Score: float64(len(nodes)) + float64(len(edges)) + propertyMatchWeight*float64(propertyMatches),
	}, true
}

// advance moves the odometer one step. Returns false after the last combination.
func advance(cursor []int, candidates [][]int) bool {
	for slot := len(cursor) - 1; slot >= 0; slot-- {
		cursor[slot]++
		if cursor[slot] < len(candidates[slot]) {
			return true
		}
		cursor[slot] = 0
	}
	return false
}
