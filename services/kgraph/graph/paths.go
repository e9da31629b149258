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
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Path algorithm names.
const (
	PathShortest = "shortest"
	PathAll      = "all"
	PathWidest   = "widest"
)

const (
	// DefaultMaxHops bounds path length when the caller gives none.
	DefaultMaxHops = 5

	// DefaultMaxPaths bounds how many paths "all" enumerates.
	DefaultMaxPaths = 100

	// unitCapacity is the capacity of every edge for widest-path search.
	// Edges carry no capacity attribute.
	unitCapacity = 1.0
)

// PathOptions configures FindPaths.
type PathOptions struct {
	// Algorithm is one of "shortest", "all", "widest". Default "shortest".
	Algorithm string `json:"algorithm"`

	// MaxHops bounds the number of edges in a returned path. Default 5.
	MaxHops int `json:"maxHops"`

	// MaxPaths bounds the number of paths "all" returns. Default 100.
	MaxPaths int `json:"maxPaths"`
}

// DefaultPathOptions returns shortest-path search bounded by DefaultMaxHops.
func DefaultPathOptions() PathOptions {
	return PathOptions{
		Algorithm: PathShortest,
		MaxHops:   DefaultMaxHops,
		MaxPaths:  DefaultMaxPaths,
	}
}

// Validate fills zero values with defaults and rejects unknown algorithms.
func (o *PathOptions) Validate() error {
	if o.Algorithm == "" {
		o.Algorithm = PathShortest
	}
	switch o.Algorithm {
	case PathShortest, PathAll, PathWidest:
	default:
		return fmt.Errorf("%w: path algorithm %q", ErrUnknownAlgorithm, o.Algorithm)
	}
	if o.MaxHops < 0 || o.MaxPaths < 0 {
		return fmt.Errorf("%w: maxHops and maxPaths must be non-negative", ErrInvalidOptions)
	}
	if o.MaxHops == 0 {
		o.MaxHops = DefaultMaxHops
	}
	if o.MaxPaths == 0 {
		o.MaxPaths = DefaultMaxPaths
	}
	return nil
}

// PathEdge is a resolved edge along a path.
type PathEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// Path is an ordered walk from source to target.
type Path struct {
	Nodes  []string   `json:"nodes"`
	Edges  []PathEdge `json:"edges"`
	Length int        `json:"length"`
	Cost   float64    `json:"cost"`
}

// PathResult holds the paths found between two nodes.
type PathResult struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Algorithm string `json:"algorithm"`
	Paths     []Path `json:"paths"`
}

// FindPaths searches for directed paths from source to target.
//
// Description:
//
//	shortest - unit-weight Dijkstra. The single shortest path is returned
//	           only if its hop count is within MaxHops; a longer path is
//	           found and then discarded.
//	all      - depth-first enumeration of simple paths of at most MaxHops
//	           edges, in discovery order, capped at MaxPaths. Cost = length.
//	widest   - bottleneck Dijkstra. Every edge has capacity 1, so this
//	           reduces to "is target reachable within MaxHops"; the path
//	           returned is the fewest-hop one and Cost is the bottleneck.
//
// Inputs:
//
//	ctx - Context for tracing and cancellation.
//	g - The graph.
//	source, target - Node IDs. Both must exist.
//	opts - Algorithm and bounds.
//
// Outputs:
//
//	*PathResult - Paths; empty (not nil) when none qualify.
//	error - ErrNodeNotFound, ErrUnknownAlgorithm, ErrInvalidOptions, ctx.Err().
func FindPaths(ctx context.Context, g *Graph, source, target string, opts PathOptions) (*PathResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	src, ok := g.index[source]
	if !ok {
		return nil, fmt.Errorf("%w: source %s", ErrNodeNotFound, source)
	}
	dst, ok := g.index[target]
	if !ok {
		return nil, fmt.Errorf("%w: target %s", ErrNodeNotFound, target)
	}

	start := time.Now()
	ctx, span := startAlgorithmSpan(ctx, "FindPaths", g)
	defer span.End()
	span.SetAttributes(
		attribute.String("path.algorithm", opts.Algorithm),
		attribute.Int("path.max_hops", opts.MaxHops),
	)

	result := &PathResult{
		Source:    source,
		Target:    target,
		Algorithm: opts.Algorithm,
		Paths:     make([]Path, 0),
	}

	switch opts.Algorithm {
	case PathShortest:
		if p, ok := g.shortestPath(src, dst); ok && p.Length <= opts.MaxHops {
			result.Paths = append(result.Paths, p)
		}
	case PathAll:
		paths, err := g.allPaths(ctx, src, dst, opts.MaxHops, opts.MaxPaths)
		if err != nil {
			return nil, err
		}
		result.Paths = paths
	case PathWidest:
		if p, ok := g.widestPath(src, dst, opts.MaxHops); ok {
			result.Paths = append(result.Paths, p)
		}
	}

	span.SetAttributes(attribute.Int("path.count", len(result.Paths)))
	recordAlgorithmMetrics(ctx, "paths_"+opts.Algorithm, time.Since(start))
	slog.Debug("Path search completed",
		slog.String("graph_id", g.id),
		slog.String("algorithm", opts.Algorithm),
		slog.Int("paths", len(result.Paths)),
	)
	return result, nil
}

// pqItem is a heap entry. For shortest search priority is the distance
// (smaller first); for widest search it is the width (larger first).
type pqItem struct {
	node     int
	priority float64
	hops     int
}

type priorityQueue struct {
	items []pqItem
	less  func(a, b pqItem) bool
}

func (q *priorityQueue) Len() int           { return len(q.items) }
func (q *priorityQueue) Less(i, j int) bool { return q.less(q.items[i], q.items[j]) }
func (q *priorityQueue) Swap(i, j int)      { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *priorityQueue) Push(x any)         { q.items = append(q.items, x.(pqItem)) }
func (q *priorityQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// shortestPath runs unit-weight Dijkstra with lazy decrease-key.
func (g *Graph) shortestPath(src, dst int) (Path, bool) {
	n := len(g.nodes)
	dist := make([]float64, n)
	prevEdge := make([]int, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prevEdge[i] = -1
	}
	dist[src] = 0

	pq := &priorityQueue{less: func(a, b pqItem) bool { return a.priority < b.priority }}
	heap.Push(pq, pqItem{node: src})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if cur.priority > dist[cur.node] {
			continue
		}
		if cur.node == dst {
			break
		}
		for _, e := range g.out[cur.node] {
			next := g.edgeTo[e]
			alt := dist[cur.node] + 1
			if alt < dist[next] {
				dist[next] = alt
				prevEdge[next] = e
				heap.Push(pq, pqItem{node: next, priority: alt})
			}
		}
	}

	if math.IsInf(dist[dst], 1) {
		return Path{}, false
	}
	p := g.tracePath(src, dst, prevEdge)
	p.Cost = dist[dst]
	return p, true
}

// widestPath runs maximum-bottleneck Dijkstra. Ties on width prefer fewer
// hops, and a node is only relaxed while within maxHops.
func (g *Graph) widestPath(src, dst, maxHops int) (Path, bool) {
	n := len(g.nodes)
	width := make([]float64, n)
	hops := make([]int, n)
	prevEdge := make([]int, n)
	for i := range width {
		width[i] = math.Inf(-1)
		prevEdge[i] = -1
	}
	width[src] = math.Inf(1)

	pq := &priorityQueue{less: func(a, b pqItem) bool {
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.hops < b.hops
	}}
	heap.Push(pq, pqItem{node: src, priority: width[src]})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if cur.priority < width[cur.node] || (cur.priority == width[cur.node] && cur.hops > hops[cur.node]) {
			continue
		}
		if cur.node == dst {
			break
		}
		if cur.hops >= maxHops {
			continue
		}
		for _, e := range g.out[cur.node] {
			next := g.edgeTo[e]
			w := math.Min(cur.priority, unitCapacity)
			h := cur.hops + 1
			if w > width[next] || (w == width[next] && h < hops[next]) {
				width[next] = w
				hops[next] = h
				prevEdge[next] = e
				heap.Push(pq, pqItem{node: next, priority: w, hops: h})
			}
		}
	}

	if math.IsInf(width[dst], -1) {
		return Path{}, false
	}
	p := g.tracePath(src, dst, prevEdge)
	if src == dst {
		p.Cost = 0
	} else {
		p.Cost = width[dst]
	}
	return p, true
}

// tracePath rebuilds a path from the predecessor-edge chain.
func (g *Graph) tracePath(src, dst int, prevEdge []int) Path {
	var edgeChain []int
	for cur := dst; cur != src; {
		e := prevEdge[cur]
		edgeChain = append(edgeChain, e)
		cur = g.edgeFrom[e]
	}

	p := Path{
		Nodes: make([]string, 0, len(edgeChain)+1),
		Edges: make([]PathEdge, 0, len(edgeChain)),
	}
	p.Nodes = append(p.Nodes, g.nodes[src].ID)
	for i := len(edgeChain) - 1; i >= 0; i-- {
		e := g.edges[edgeChain[i]]
		p.Edges = append(p.Edges, PathEdge{From: e.From, To: e.To, Type: e.Type})
		p.Nodes = append(p.Nodes, e.To)
	}
	p.Length = len(p.Edges)
	return p
}

// allPaths enumerates simple paths with visited-set backtracking. Parallel
// edges between the same pair yield one path; the first edge's type is used.
func (g *Graph) allPaths(ctx context.Context, src, dst, maxHops, maxPaths int) ([]Path, error) {
	paths := make([]Path, 0)
	visited := make([]bool, len(g.nodes))
	stack := []int{src}
	visited[src] = true

	var walk func(cur int) error
	walk = func(cur int) error {
		if len(paths) >= maxPaths {
			return nil
		}
		if cur == dst {
			paths = append(paths, g.pathFromNodes(stack))
			return nil
		}
		if len(stack)-1 >= maxHops {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, next := range g.Successors(cur) {
			if visited[next] {
				continue
			}
			visited[next] = true
			stack = append(stack, next)
			if err := walk(next); err != nil {
				return err
			}
			stack = stack[:len(stack)-1]
			visited[next] = false
		}
		return nil
	}

	if err := walk(src); err != nil {
		return nil, err
	}
	return paths, nil
}

// CountSimplePaths counts directed simple paths from src to dst with at
// most maxHops edges. src == dst counts as no path.
func (g *Graph) CountSimplePaths(src, dst, maxHops int) int {
	if src == dst {
		return 0
	}
	visited := make([]bool, len(g.nodes))
	visited[src] = true

	var count func(cur, depth int) int
	count = func(cur, depth int) int {
		if cur == dst {
			return 1
		}
		if depth >= maxHops {
			return 0
		}
		total := 0
		for _, next := range g.Successors(cur) {
			if visited[next] {
				continue
			}
			visited[next] = true
			total += count(next, depth+1)
			visited[next] = false
		}
		return total
	}
	return count(src, 0)
}

func (g *Graph) pathFromNodes(nodes []int) Path {
	p := Path{
		Nodes: make([]string, len(nodes)),
		Edges: make([]PathEdge, 0, len(nodes)-1),
	}
	for i, n := range nodes {
		p.Nodes[i] = g.nodes[n].ID
		if i == 0 {
			continue
		}
		e, _ := g.FindEdge(nodes[i-1], n, "")
		edge := g.edges[e]
		p.Edges = append(p.Edges, PathEdge{From: edge.From, To: edge.To, Type: edge.Type})
	}
	p.Length = len(p.Edges)
	p.Cost = float64(p.Length)
	return p
}
