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

// =============================================================================
// PageRank
// =============================================================================

// PageRank configuration constants.
const (
	// DefaultDampingFactor is the probability of following a link.
	DefaultDampingFactor = 0.85

	// DefaultMaxIterations is the maximum number of power iterations.
	DefaultMaxIterations = 100

	// DefaultConvergence stops iteration once the summed absolute change
	// of all scores drops below it.
	DefaultConvergence = 1e-4
)

// PageRankOptions configures PageRank.
type PageRankOptions struct {
	// DampingFactor must be in [0, 1]. Default: 0.85
	DampingFactor float64

	// MaxIterations must be > 0. Default: 100
	MaxIterations int

	// Convergence must be > 0. Default: 1e-4
	Convergence float64
}

// DefaultPageRankOptions returns the standard configuration.
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{
		DampingFactor: DefaultDampingFactor,
		MaxIterations: DefaultMaxIterations,
		Convergence:   DefaultConvergence,
	}
}

// Validate fills zero values with defaults and rejects out-of-range values.
func (o *PageRankOptions) Validate() error {
	if o.DampingFactor < 0 || o.DampingFactor > 1 {
		return fmt.Errorf("%w: damping factor %v outside [0,1]", ErrInvalidOptions, o.DampingFactor)
	}
	if o.MaxIterations < 0 || o.Convergence < 0 {
		return fmt.Errorf("%w: iterations and convergence must be non-negative", ErrInvalidOptions)
	}
	if o.DampingFactor == 0 {
		o.DampingFactor = DefaultDampingFactor
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Convergence == 0 {
		o.Convergence = DefaultConvergence
	}
	return nil
}

// RankedNode is a node with its PageRank score and 1-based rank.
type RankedNode struct {
	NodeID string  `json:"nodeId"`
	Rank   int     `json:"rank"`
	Score  float64 `json:"score"`
}

// PageRankResult is the output of PageRank.
type PageRankResult struct {
	// Ranking is sorted by score descending; ties keep graph order.
	Ranking []RankedNode `json:"ranking"`

	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
	Delta      float64 `json:"delta"`
}

// PageRank ranks nodes by power iteration.
//
// Description:
//
//	Scores start at 1/n. Each iteration computes, for every node v,
//
//	    new(v) = (1-d)/n + d * sum over edges u->v of score(u)/outDegree(u)
//
//	Parallel edges count once per edge in both the sum and outDegree.
//	Nodes without outgoing edges pass nothing on and their mass is not
//	redistributed, so scores may sum to less than 1 when such nodes exist.
//	Iteration stops when the total absolute change is below Convergence.
//
// Inputs:
//
//	ctx - Context for tracing and cancellation (checked per iteration).
//	g - The graph.
//	opts - Configuration. Zero values use defaults.
//
// Outputs:
//
//	*PageRankResult - Ranking for every node. Empty for an empty graph.
//	error - ErrInvalidOptions or ctx.Err().
//
// Complexity: O(iterations * (N + E)).
func PageRank(ctx context.Context, g *Graph, opts PageRankOptions) (*PageRankResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := startAlgorithmSpan(ctx, "PageRank", g)
	defer span.End()

	n := len(g.nodes)
	result := &PageRankResult{Ranking: make([]RankedNode, 0, n)}
	if n == 0 {
		return result, nil
	}

	d := opts.DampingFactor
	base := (1 - d) / float64(n)
	scores := make([]float64, n)
	next := make([]float64, n)
	for i := range scores {
		scores[i] = 1 / float64(n)
	}

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for v := 0; v < n; v++ {
			sum := 0.0
			for _, e := range g.in[v] {
				u := g.edgeFrom[e]
				sum += scores[u] / float64(len(g.out[u]))
			}
			next[v] = base + d*sum
		}

		delta := 0.0
		for i := range scores {
			delta += math.Abs(next[i] - scores[i])
		}
		scores, next = next, scores

		result.Iterations = iter
		result.Delta = delta
		if delta < opts.Convergence {
			result.Converged = true
			break
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	for rank, idx := range order {
		result.Ranking = append(result.Ranking, RankedNode{
			NodeID: g.nodes[idx].ID,
			Rank:   rank + 1,
			Score:  scores[idx],
		})
	}

	span.SetAttributes(
		attribute.Int("pagerank.iterations", result.Iterations),
		attribute.Bool("pagerank.converged", result.Converged),
		attribute.Float64("pagerank.delta", result.Delta),
	)
	recordAlgorithmMetrics(ctx, "pagerank", time.Since(start))
	slog.Debug("PageRank completed",
		slog.String("graph_id", g.id),
		slog.Int("iterations", result.Iterations),
		slog.Bool("converged", result.Converged),
		slog.Float64("delta", result.Delta),
	)
	return result, nil
}

// TopRanked returns the IDs of the k highest-ranked nodes.
func (r *PageRankResult) TopRanked(k int) []string {
	if k > len(r.Ranking) {
		k = len(r.Ranking)
	}
	ids := make([]string, k)
	for i := 0; i < k; i++ {
		ids[i] = r.Ranking[i].NodeID
	}
	return ids
}
