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
)

// Merge strategies.
const (
	MergeUnion        = "union"
	MergeIntersection = "intersection"
	MergeOverride     = "override"
)

// edgeKey identifies an edge for deduplication and intersection.
type edgeKey struct {
	from, to, typ string
}

func keyOf(e Edge) edgeKey { return edgeKey{from: e.From, to: e.To, typ: e.Type} }

// MergeResult describes a merged graph.
type MergeResult struct {
	Strategy     string   `json:"strategy"`
	SourceGraphs []string `json:"sourceGraphs"`
	Stats        Stats    `json:"stats"`
}

// Merge combines stored graphs into a new graph registered in the store.
//
// Description:
//
//	union        - every node, first occurrence of an ID wins; edges
//	               deduplicated by (from, to, type) across all inputs.
//	intersection - nodes whose ID is in every input (taken from the first);
//	               edges whose (from, to, type) is in every input, once each.
//	override     - nodes merged in order, later inputs replacing earlier
//	               nodes with the same ID; edges are taken only from the
//	               last input, earlier inputs' edges are discarded.
//
//	The merged entities and relations go through Store.Build, so relations
//	whose endpoints did not survive are dropped there.
//
// Inputs:
//
//	ctx - Context for tracing.
//	s - The store holding the inputs and receiving the result.
//	graphIDs - At least two stored graph IDs.
//	strategy - "union", "intersection" or "override". Empty means union.
//	outputID - ID of the merged graph. Generated when empty.
//
// Outputs:
//
//	*Graph - The merged graph.
//	*MergeResult - Strategy, inputs and stats of the merged graph.
//	error - ErrTooFewGraphs, ErrGraphNotFound, ErrUnknownStrategy.
func Merge(ctx context.Context, s *Store, graphIDs []string, strategy, outputID string) (*Graph, *MergeResult, error) {
	if len(graphIDs) < 2 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrTooFewGraphs, len(graphIDs))
	}
	if strategy == "" {
		strategy = MergeUnion
	}

	inputs := make([]*Graph, len(graphIDs))
	for i, id := range graphIDs {
		g, err := s.Get(id)
		if err != nil {
			return nil, nil, err
		}
		inputs[i] = g
	}

	var in BuildInput
	switch strategy {
	case MergeUnion:
		in = mergeUnion(inputs)
	case MergeIntersection:
		in = mergeIntersection(inputs)
	case MergeOverride:
		in = mergeOverride(inputs)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	in.GraphID = outputID

	merged, err := s.Build(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("build merged graph: %w", err)
	}

	slog.Debug("Graphs merged",
		slog.String("strategy", strategy),
		slog.Int("inputs", len(inputs)),
		slog.String("graph_id", merged.ID()),
	)
	return merged, &MergeResult{
		Strategy:     strategy,
		SourceGraphs: append([]string(nil), graphIDs...),
		Stats:        merged.Stats(),
	}, nil
}

func mergeUnion(inputs []*Graph) BuildInput {
	var in BuildInput
	seenNodes := make(map[string]struct{})
	seenEdges := make(map[edgeKey]struct{})
	for _, g := range inputs {
		for _, n := range g.nodes {
			if _, ok := seenNodes[n.ID]; ok {
				continue
			}
			seenNodes[n.ID] = struct{}{}
			in.Entities = append(in.Entities, n)
		}
		for _, e := range g.edges {
			k := keyOf(e)
			if _, ok := seenEdges[k]; ok {
				continue
			}
			seenEdges[k] = struct{}{}
			in.Relations = append(in.Relations, e)
		}
	}
	return in
}

func mergeIntersection(inputs []*Graph) BuildInput {
	var in BuildInput
	first := inputs[0]

	for _, n := range first.nodes {
		inAll := true
		for _, g := range inputs[1:] {
			if _, ok := g.index[n.ID]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			in.Entities = append(in.Entities, n)
		}
	}

	edgeSets := make([]map[edgeKey]struct{}, len(inputs)-1)
	for i, g := range inputs[1:] {
		set := make(map[edgeKey]struct{}, len(g.edges))
		for _, e := range g.edges {
			set[keyOf(e)] = struct{}{}
		}
		edgeSets[i] = set
	}
	emitted := make(map[edgeKey]struct{})
	for _, e := range first.edges {
		k := keyOf(e)
		if _, ok := emitted[k]; ok {
			continue
		}
		inAll := true
		for _, set := range edgeSets {
			if _, ok := set[k]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			emitted[k] = struct{}{}
			in.Relations = append(in.Relations, e)
		}
	}
	return in
}

func mergeOverride(inputs []*Graph) BuildInput {
	var in BuildInput
	position := make(map[string]int)
	for _, g := range inputs {
		for _, n := range g.nodes {
			if i, ok := position[n.ID]; ok {
				in.Entities[i] = n
				continue
			}
			position[n.ID] = len(in.Entities)
			in.Entities = append(in.Entities, n)
		}
	}
	last := inputs[len(inputs)-1]
	in.Relations = append(in.Relations, last.edges...)
	return in
}
