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
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultConfidenceThreshold is the minimum confidence to report.
	DefaultConfidenceThreshold = 0.5

	// DefaultMaxInferences caps the number of reported inferences.
	DefaultMaxInferences = 100

	// inferencePathHops bounds the simple paths counted as evidence.
	inferencePathHops = 3

	// maxEvidence bounds the common neighbors listed per inference.
	maxEvidence = 5

	commonNeighborWeight     = 0.6
	commonNeighborSaturation = 10.0
	pathCountWeight          = 0.4
	pathCountSaturation      = 5.0
)

// InferenceOptions configures InferRelations.
type InferenceOptions struct {
	// ConfidenceThreshold in [0,1]. Default 0.5.
	ConfidenceThreshold float64 `json:"confidenceThreshold"`

	// MaxInferences caps the output. Default 100.
	MaxInferences int `json:"maxInferences"`
}

// DefaultInferenceOptions returns the standard threshold and cap.
func DefaultInferenceOptions() InferenceOptions {
	return InferenceOptions{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		MaxInferences:       DefaultMaxInferences,
	}
}

// Validate rejects out-of-range values and fills a zero MaxInferences.
// A zero ConfidenceThreshold is kept and accepts every pair; start from
// DefaultInferenceOptions for the standard threshold.
func (o *InferenceOptions) Validate() error {
	if o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold %v outside [0,1]", ErrInvalidOptions, o.ConfidenceThreshold)
	}
	if o.MaxInferences < 0 {
		return fmt.Errorf("%w: maxInferences must be non-negative", ErrInvalidOptions)
	}
	if o.MaxInferences == 0 {
		o.MaxInferences = DefaultMaxInferences
	}
	return nil
}

// InferredRelation is a predicted missing edge.
type InferredRelation struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Type       string   `json:"type"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`

	CommonNeighbors int `json:"commonNeighbors"`
	PathCount       int `json:"pathCount"`
}

// InferenceResult holds inferred relations sorted by confidence descending.
type InferenceResult struct {
	Inferences    []InferredRelation `json:"inferences"`
	PairsExamined int                `json:"pairsExamined"`

	// Accepted is the number of pairs above the threshold before the cap.
	Accepted int `json:"accepted"`
}

// Confidence combines common-neighbor and path evidence:
//
//	0.6*min(commonNeighbors/10, 1) + 0.4*min(pathCount/5, 1)
//
// It is non-decreasing in both arguments.
func Confidence(commonNeighbors, pathCount int) float64 {
	cn := math.Min(float64(commonNeighbors)/commonNeighborSaturation, 1)
	pc := math.Min(float64(pathCount)/pathCountSaturation, 1)
	return commonNeighborWeight*cn + pathCountWeight*pc
}

// InferRelations predicts missing edges from shared neighborhoods.
//
// Description:
//
//	Every pair (A, B) with A before B in graph order is a candidate unless
//	an edge A->B already exists. Only that direction is checked: an
//	existing B->A edge does not block inferring A->B.
//
//	For each candidate:
//	  - common neighbors: nodes adjacent (either direction) to both A and B
//	  - path count: directed simple paths A->B of at most 3 hops
//	  - confidence: see Confidence
//	  - evidence: up to 5 common neighbor names (the "name" property when
//	    it is a string, otherwise the node ID)
//	  - type: majority edge type on the two-hop routes A-C-B through common
//	    neighbors C, first seen winning ties, "related" when there is none
//
//	Pairs at or above ConfidenceThreshold are kept, sorted by confidence
//	descending (stable in pair order) and truncated to MaxInferences.
//
// Inputs:
//
//	ctx - Context for tracing and cancellation (checked per source node).
//	g - The graph.
//	opts - Threshold and cap. Zero values use defaults.
//
// Outputs:
//
//	*InferenceResult - The accepted inferences.
//	error - ErrInvalidOptions or ctx.Err().
//
// Limitations:
//
//	O(N^2) candidate pairs, each with a bounded path enumeration. Intended
//	for graphs of a few thousand nodes at most.
func InferRelations(ctx context.Context, g *Graph, opts InferenceOptions) (*InferenceResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := startAlgorithmSpan(ctx, "InferRelations", g)
	defer span.End()

	n := len(g.nodes)
	neighborSets := make([]map[int]struct{}, n)
	neighborLists := make([][]int, n)
	for i := 0; i < n; i++ {
		neighborLists[i] = g.Neighbors(i)
		set := make(map[int]struct{}, len(neighborLists[i]))
		for _, nb := range neighborLists[i] {
			set[nb] = struct{}{}
		}
		neighborSets[i] = set
	}

	result := &InferenceResult{Inferences: make([]InferredRelation, 0)}
	for a := 0; a < n; a++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for b := a + 1; b < n; b++ {
			if g.HasEdge(a, b) {
				continue
			}
			result.PairsExamined++

			common := make([]int, 0)
			for _, c := range neighborLists[a] {
				if c == b {
					continue
				}
				if _, ok := neighborSets[b][c]; ok {
					common = append(common, c)
				}
			}
			paths := g.CountSimplePaths(a, b, inferencePathHops)

			conf := Confidence(len(common), paths)
			if conf < opts.ConfidenceThreshold {
				continue
			}
			result.Inferences = append(result.Inferences, InferredRelation{
				From:            g.nodes[a].ID,
				To:              g.nodes[b].ID,
				Type:            g.majorityRouteType(a, b, common),
				Confidence:      conf,
				Evidence:        g.evidence(common),
				CommonNeighbors: len(common),
				PathCount:       paths,
			})
		}
	}

	result.Accepted = len(result.Inferences)
	sort.SliceStable(result.Inferences, func(i, j int) bool {
		return result.Inferences[i].Confidence > result.Inferences[j].Confidence
	})
	if len(result.Inferences) > opts.MaxInferences {
		result.Inferences = result.Inferences[:opts.MaxInferences]
	}

	span.SetAttributes(
		attribute.Int("inference.pairs", result.PairsExamined),
		attribute.Int("inference.accepted", result.Accepted),
	)
	recordAlgorithmMetrics(ctx, "inference", time.Since(start))
	slog.Debug("Relation inference completed",
		slog.String("graph_id", g.id),
		slog.Int("pairs", result.PairsExamined),
		slog.Int("accepted", result.Accepted),
		slog.Int("returned", len(result.Inferences)),
	)
	return result, nil
}

// majorityRouteType votes over the types of edges joining a to each common
// neighbor and each common neighbor to b, in either direction.
func (g *Graph) majorityRouteType(a, b int, common []int) string {
	counts := make(map[string]int)
	best, bestCount := DefaultRelationType, 0
	vote := func(t string) {
		counts[t]++
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	for _, c := range common {
		for _, t := range g.typesBetween(a, c) {
			vote(t)
		}
		for _, t := range g.typesBetween(c, b) {
			vote(t)
		}
	}
	return best
}

// typesBetween lists the types of edges x->y then y->x.
func (g *Graph) typesBetween(x, y int) []string {
	var types []string
	for _, e := range g.out[x] {
		if g.edgeTo[e] == y {
			types = append(types, g.edges[e].Type)
		}
	}
	for _, e := range g.out[y] {
		if g.edgeTo[e] == x {
			types = append(types, g.edges[e].Type)
		}
	}
	return types
}

func (g *Graph) evidence(common []int) []string {
	limit := len(common)
	if limit > maxEvidence {
		limit = maxEvidence
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = DisplayName(g.nodes[common[i]])
	}
	return out
}

// DisplayName returns the node's "name" property when it is a string,
// otherwise its ID.
func DisplayName(n Node) string {
	if name, ok := n.Properties.StringValue("name"); ok && name != "" {
		return name
	}
	return n.ID
}
