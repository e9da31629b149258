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
	"math/rand/v2"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Community algorithm names.
const (
	CommunityLouvain          = "louvain"
	CommunityLabelPropagation = "label-propagation"

	// CommunityModularity is an alias of CommunityLouvain.
	CommunityModularity = "modularity"
)

const (
	// DefaultMinCommunitySize drops singleton communities.
	DefaultMinCommunitySize = 2

	// DefaultMaxPasses bounds the number of refinement passes.
	DefaultMaxPasses = 10

	// DefaultCommunitySeed seeds label propagation's node shuffle.
	DefaultCommunitySeed = 42
)

// CommunityOptions configures DetectCommunities.
type CommunityOptions struct {
	// Algorithm is "louvain", "label-propagation" or "modularity".
	// Default "louvain".
	Algorithm string `json:"algorithm"`

	// MinCommunitySize drops smaller communities from the output.
	// Default 2.
	MinCommunitySize int `json:"minCommunitySize"`

	// MaxPasses bounds refinement passes. Default 10.
	MaxPasses int `json:"maxPasses"`

	// Seed fixes label propagation's per-pass node order. Default 42.
	Seed uint64 `json:"seed"`
}

// DefaultCommunityOptions returns louvain with the standard bounds.
func DefaultCommunityOptions() CommunityOptions {
	return CommunityOptions{
		Algorithm:        CommunityLouvain,
		MinCommunitySize: DefaultMinCommunitySize,
		MaxPasses:        DefaultMaxPasses,
		Seed:             DefaultCommunitySeed,
	}
}

// Validate fills zero values with defaults and rejects unknown algorithms.
// MinCommunitySize is the exception: zero keeps every community. Start
// from DefaultCommunityOptions for the standard minimum of 2.
func (o *CommunityOptions) Validate() error {
	if o.Algorithm == "" {
		o.Algorithm = CommunityLouvain
	}
	switch o.Algorithm {
	case CommunityLouvain, CommunityModularity, CommunityLabelPropagation:
	default:
		return fmt.Errorf("%w: community algorithm %q", ErrUnknownAlgorithm, o.Algorithm)
	}
	if o.MinCommunitySize < 0 || o.MaxPasses < 0 {
		return fmt.Errorf("%w: minCommunitySize and maxPasses must be non-negative", ErrInvalidOptions)
	}
	if o.MaxPasses == 0 {
		o.MaxPasses = DefaultMaxPasses
	}
	if o.Seed == 0 {
		o.Seed = DefaultCommunitySeed
	}
	return nil
}

// Community is one group of the detected partition.
type Community struct {
	// ID is the position of the community in the result, starting at 0.
	ID int `json:"id"`

	// Members are node IDs in graph order.
	Members []string `json:"members"`

	Size int `json:"size"`

	// Density is the fraction of member pairs joined by an edge in
	// either direction.
	Density float64 `json:"density"`

	// Modularity is Q of the whole partition, identical on every record.
	Modularity float64 `json:"modularity"`
}

// CommunityResult holds the detected communities.
type CommunityResult struct {
	Algorithm   string      `json:"algorithm"`
	Communities []Community `json:"communities"`

	// Modularity is Q over the entire partition, including communities
	// dropped by MinCommunitySize.
	Modularity float64 `json:"modularity"`

	Passes    int  `json:"passes"`
	Converged bool `json:"converged"`
}

// DetectCommunities partitions the graph into communities.
//
// Description:
//
//	Edges are treated as undirected for neighborhood purposes.
//
//	louvain (and its alias modularity) is a simplified single-level
//	variant with no hierarchical contraction. Every node starts in its own
//	community. In each pass, nodes are visited in graph order and each
//	moves to the community most common among its neighbors, but only when
//	that community is strictly more common than its current one. Ties go
//	to the community encountered first. It does not compute modularity
//	gain.
//
//	label-propagation starts with one label per node. Each pass shuffles
//	the node order with a PRNG seeded from opts.Seed; each node adopts the
//	most frequent neighbor label, ties going to the label encountered
//	first. A node whose current label is among the most frequent keeps it.
//
//	Both stop after a pass with no changes or after MaxPasses passes.
//
// Inputs:
//
//	ctx - Context for tracing and cancellation (checked between passes).
//	g - The graph.
//	opts - Algorithm and bounds.
//
// Outputs:
//
//	*CommunityResult - Communities of at least MinCommunitySize members,
//	    ordered by size descending then by first member.
//	error - ErrUnknownAlgorithm, ErrInvalidOptions or ctx.Err().
//
// Complexity: O(passes * E) for assignment; O(sum of size^2) for density
// and modularity.
func DetectCommunities(ctx context.Context, g *Graph, opts CommunityOptions) (*CommunityResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := startAlgorithmSpan(ctx, "DetectCommunities", g)
	defer span.End()
	span.SetAttributes(attribute.String("community.algorithm", opts.Algorithm))

	neighbors := make([][]int, len(g.nodes))
	for i := range g.nodes {
		neighbors[i] = g.Neighbors(i)
	}

	var (
		labels    []int
		passes    int
		converged bool
		err       error
	)
	switch opts.Algorithm {
	case CommunityLabelPropagation:
		labels, passes, converged, err = labelPropagation(ctx, neighbors, opts)
	default:
		labels, passes, converged, err = greedyLouvain(ctx, neighbors, opts.MaxPasses)
	}
	if err != nil {
		return nil, err
	}

	q := g.modularity(labels)
	groups := groupByLabel(labels)

	communities := make([]Community, 0, len(groups))
	for _, members := range groups {
		if len(members) < opts.MinCommunitySize {
			continue
		}
		ids := make([]string, len(members))
		for i, m := range members {
			ids[i] = g.nodes[m].ID
		}
		communities = append(communities, Community{
			Members:    ids,
			Size:       len(members),
			Density:    g.internalDensity(members),
			Modularity: q,
		})
	}
	sort.SliceStable(communities, func(i, j int) bool {
		return communities[i].Size > communities[j].Size
	})
	for i := range communities {
		communities[i].ID = i
	}

	span.SetAttributes(
		attribute.Int("community.count", len(communities)),
		attribute.Int("community.passes", passes),
		attribute.Float64("community.modularity", q),
	)
	recordAlgorithmMetrics(ctx, "community_"+opts.Algorithm, time.Since(start))
	slog.Debug("Community detection completed",
		slog.String("graph_id", g.id),
		slog.String("algorithm", opts.Algorithm),
		slog.Int("communities", len(communities)),
		slog.Int("passes", passes),
		slog.Bool("converged", converged),
		slog.Float64("modularity", q),
	)

	return &CommunityResult{
		Algorithm:   opts.Algorithm,
		Communities: communities,
		Modularity:  q,
		Passes:      passes,
		Converged:   converged,
	}, nil
}

// greedyLouvain is the simplified local-majority louvain.
func greedyLouvain(ctx context.Context, neighbors [][]int, maxPasses int) ([]int, int, bool, error) {
	labels := make([]int, len(neighbors))
	for i := range labels {
		labels[i] = i
	}

	for pass := 1; pass <= maxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, false, err
		}
		moved := 0
		for node := range neighbors {
			best, bestCount, counts := dominantLabel(neighbors[node], labels)
			if bestCount == 0 || best == labels[node] {
				continue
			}
			if bestCount > counts[labels[node]] {
				labels[node] = best
				moved++
			}
		}
		if moved == 0 {
			return labels, pass, true, nil
		}
	}
	return labels, maxPasses, false, nil
}

// labelPropagation runs seeded asynchronous label propagation.
func labelPropagation(ctx context.Context, neighbors [][]int, opts CommunityOptions) ([]int, int, bool, error) {
	labels := make([]int, len(neighbors))
	order := make([]int, len(neighbors))
	for i := range labels {
		labels[i] = i
		order[i] = i
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	for pass := 1; pass <= opts.MaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, false, err
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		changed := 0
		for _, node := range order {
			if next, ok := propagatedLabel(neighbors[node], labels, node); ok {
				labels[node] = next
				changed++
			}
		}
		if changed == 0 {
			return labels, pass, true, nil
		}
	}
	return labels, opts.MaxPasses, false, nil
}

// propagatedLabel returns the label node adopts in a label-propagation
// step: the most frequent neighbour label, ties going to the label
// encountered first, even when the node's own label is among the tied.
// ok is false when the node has no neighbours or keeps its label.
func propagatedLabel(nbrs []int, labels []int, node int) (int, bool) {
	best, bestCount, _ := dominantLabel(nbrs, labels)
	if bestCount == 0 || best == labels[node] {
		return labels[node], false
	}
	return best, true
}

// dominantLabel returns the most frequent label among nbrs with its count
// and the full tally. Ties go to the label encountered first in nbrs.
func dominantLabel(nbrs []int, labels []int) (int, int, map[int]int) {
	counts := make(map[int]int, len(nbrs))
	seen := make([]int, 0, len(nbrs))
	for _, n := range nbrs {
		l := labels[n]
		if counts[l] == 0 {
			seen = append(seen, l)
		}
		counts[l]++
	}
	best, bestCount := -1, 0
	for _, l := range seen {
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best, bestCount, counts
}

// groupByLabel returns member lists in order of each label's first node.
func groupByLabel(labels []int) [][]int {
	slot := make(map[int]int)
	var groups [][]int
	for node, l := range labels {
		i, ok := slot[l]
		if !ok {
			i = len(groups)
			slot[l] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], node)
	}
	return groups
}

// internalDensity is the fraction of member pairs connected in either direction.
func (g *Graph) internalDensity(members []int) float64 {
	if len(members) < 2 {
		return 0
	}
	connected := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if g.Connected(members[i], members[j]) {
				connected++
			}
		}
	}
	possible := len(members) * (len(members) - 1) / 2
	return float64(connected) / float64(possible)
}

// modularity computes Q = (1/2m) * sum over same-community ordered pairs
// (i, j) of (A_ij - k_i*k_j/2m), with A the symmetrized edge-count matrix,
// k the total degree and m the edge count.
func (g *Graph) modularity(labels []int) float64 {
	m := float64(len(g.edges))
	if m == 0 {
		return 0
	}
	twoM := 2 * m

	// Sum of A_ij over same-community pairs: each edge inside a community
	// contributes A_ij and A_ji.
	var internal float64
	for e := range g.edges {
		if labels[g.edgeFrom[e]] == labels[g.edgeTo[e]] {
			internal += 2
		}
	}

	// Sum of k_i*k_j over same-community pairs = sum over communities of
	// (total degree)^2.
	degreeSum := make(map[int]float64)
	for i := range g.nodes {
		degreeSum[labels[i]] += float64(len(g.out[i]) + len(g.in[i]))
	}
	var expected float64
	for _, d := range degreeSum {
		expected += d * d / twoM
	}

	return (internal - expected) / twoM
}
