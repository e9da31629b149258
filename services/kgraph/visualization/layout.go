// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package visualization computes node coordinates for knowledge graphs and
// serializes graphs to interchange formats.
//
// Layouts produce coordinate data only; rendering is left to the client.
package visualization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/AleutianAI/AleutianKG/services/kgraph/graph"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("kgraph.visualization")

// Layout names.
const (
	LayoutForce        = "force"
	LayoutHierarchical = "hierarchical"
	LayoutCircular     = "circular"
	LayoutRadial       = "radial"
)

const (
	// DefaultMaxNodes is the node count above which graphs are sampled
	// down to their top PageRank nodes.
	DefaultMaxNodes = 100

	DefaultWidth  = 800.0
	DefaultHeight = 600.0

	// ringMargin is subtracted from the half-extent for circular and
	// radial radii.
	ringMargin = 50.0
)

var (
	// ErrUnknownLayout is returned for unrecognized layout names.
	ErrUnknownLayout = errors.New("unknown layout")

	// ErrUnknownFormat is returned for unrecognized export formats.
	ErrUnknownFormat = errors.New("unknown export format")

	// ErrInvalidOptions is returned for negative sizes or limits.
	ErrInvalidOptions = errors.New("invalid layout options")
)

// LayoutOptions configures Compute.
type LayoutOptions struct {
	// Layout is "force", "hierarchical", "circular" or "radial".
	// Default: "force"
	Layout string

	// MaxNodes bounds the laid-out node count. Default: 100
	MaxNodes int

	// Width and Height of the canvas. Default: 800 x 600
	Width  float64
	Height float64
}

// DefaultLayoutOptions returns a force layout on an 800x600 canvas.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		Layout:   LayoutForce,
		MaxNodes: DefaultMaxNodes,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
	}
}

// Validate fills zero values with defaults and rejects unknown layouts.
func (o *LayoutOptions) Validate() error {
	if o.Layout == "" {
		o.Layout = LayoutForce
	}
	switch o.Layout {
	case LayoutForce, LayoutHierarchical, LayoutCircular, LayoutRadial:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLayout, o.Layout)
	}
	if o.MaxNodes < 0 || o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("%w: sizes must be non-negative", ErrInvalidOptions)
	}
	if o.MaxNodes == 0 {
		o.MaxNodes = DefaultMaxNodes
	}
	if o.Width == 0 {
		o.Width = DefaultWidth
	}
	if o.Height == 0 {
		o.Height = DefaultHeight
	}
	return nil
}

// PositionedNode is a node with coordinates.
type PositionedNode struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Type  string  `json:"type"`
	Label string  `json:"label,omitempty"`
}

// LayoutResult is the coordinate data for a graph.
type LayoutResult struct {
	Layout string           `json:"layout"`
	Width  float64          `json:"width"`
	Height float64          `json:"height"`
	Nodes  []PositionedNode `json:"nodes"`
	Edges  []graph.Edge     `json:"edges"`

	// Sampled is true when the graph exceeded MaxNodes and only the top
	// PageRank nodes were kept.
	Sampled    bool `json:"sampled"`
	TotalNodes int  `json:"totalNodes"`
}

// view is the subset of a graph being laid out, with local indices.
type view struct {
	nodes []graph.Node
	local map[string]int
	edges []graph.Edge
	from  []int
	to    []int
}

// Compute assigns coordinates to the nodes of g.
//
// # Description
//
// When g has more than MaxNodes nodes it is sampled down to the MaxNodes
// highest PageRank nodes and only edges between retained nodes are kept.
//
//   - force: spring/charge simulation (link distance 50, charge -100,
//     centered) run for exactly 100 ticks.
//   - hierarchical: BFS levels from nodes with no incoming edges; nodes
//     spread evenly along x within a level, levels evenly along y.
//   - circular: one ring, radius min(w,h)/2 - 50, nodes evenly by angle.
//   - radial: BFS levels as rings, radius proportional to level/maxLevel,
//     nodes evenly by angle within a ring.
//
// # Inputs
//
//   - ctx: Context for tracing.
//   - g: The graph.
//   - opts: Layout options. Zero values use defaults.
//
// # Outputs
//
//   - *LayoutResult: Coordinates and retained edges.
//   - error: ErrUnknownLayout or ErrInvalidOptions.
func Compute(ctx context.Context, g *graph.Graph, opts LayoutOptions) (*LayoutResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "Compute")
	defer span.End()

	v, sampled, err := sample(ctx, g, opts.MaxNodes)
	if err != nil {
		return nil, err
	}

	var xs, ys []float64
	switch opts.Layout {
	case LayoutForce:
		xs, ys = forceLayout(v, opts.Width, opts.Height)
	case LayoutHierarchical:
		xs, ys = hierarchicalLayout(v, opts.Width, opts.Height)
	case LayoutCircular:
		xs, ys = circularLayout(v, opts.Width, opts.Height)
	case LayoutRadial:
		xs, ys = radialLayout(v, opts.Width, opts.Height)
	}

	result := &LayoutResult{
		Layout:     opts.Layout,
		Width:      opts.Width,
		Height:     opts.Height,
		Nodes:      make([]PositionedNode, len(v.nodes)),
		Edges:      v.edges,
		Sampled:    sampled,
		TotalNodes: g.NodeCount(),
	}
	for i, n := range v.nodes {
		result.Nodes[i] = PositionedNode{
			ID:    n.ID,
			X:     xs[i],
			Y:     ys[i],
			Type:  n.Type,
			Label: label(n),
		}
	}

	span.SetAttributes(
		attribute.String("layout.name", opts.Layout),
		attribute.Int("layout.nodes", len(v.nodes)),
		attribute.Bool("layout.sampled", sampled),
	)
	slog.Debug("Layout computed",
		slog.String("graph_id", g.ID()),
		slog.String("layout", opts.Layout),
		slog.Int("nodes", len(v.nodes)),
		slog.Bool("sampled", sampled),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// sample builds the view, keeping the top maxNodes nodes by PageRank when
// the graph is larger. Retained nodes keep graph order.
func sample(ctx context.Context, g *graph.Graph, maxNodes int) (*view, bool, error) {
	keep := make(map[string]bool, g.NodeCount())
	sampled := g.NodeCount() > maxNodes
	if sampled {
		pr, err := graph.PageRank(ctx, g, graph.DefaultPageRankOptions())
		if err != nil {
			return nil, false, fmt.Errorf("rank nodes for sampling: %w", err)
		}
		for _, id := range pr.TopRanked(maxNodes) {
			keep[id] = true
		}
	}

	v := &view{local: make(map[string]int)}
	for _, n := range g.Nodes() {
		if sampled && !keep[n.ID] {
			continue
		}
		v.local[n.ID] = len(v.nodes)
		v.nodes = append(v.nodes, n)
	}
	v.edges = make([]graph.Edge, 0)
	for _, e := range g.Edges() {
		from, okFrom := v.local[e.From]
		to, okTo := v.local[e.To]
		if !okFrom || !okTo {
			continue
		}
		v.edges = append(v.edges, e)
		v.from = append(v.from, from)
		v.to = append(v.to, to)
	}
	return v, sampled, nil
}

func label(n graph.Node) string {
	if l, ok := n.Properties.StringValue("label"); ok {
		return l
	}
	if l, ok := n.Properties.StringValue("name"); ok {
		return l
	}
	return ""
}

func circularLayout(v *view, w, h float64) ([]float64, []float64) {
	n := len(v.nodes)
	xs, ys := make([]float64, n), make([]float64, n)
	r := math.Min(w, h)/2 - ringMargin
	cx, cy := w/2, h/2
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		xs[i] = cx + r*math.Cos(angle)
		ys[i] = cy + r*math.Sin(angle)
	}
	return xs, ys
}

func hierarchicalLayout(v *view, w, h float64) ([]float64, []float64) {
	levels, maxLevel := bfsLevels(v)
	byLevel := groupLevels(levels, maxLevel)

	xs, ys := make([]float64, len(v.nodes)), make([]float64, len(v.nodes))
	levelCount := float64(maxLevel + 1)
	for lvl, members := range byLevel {
		y := h * float64(lvl+1) / (levelCount + 1)
		for pos, node := range members {
			xs[node] = w * float64(pos+1) / float64(len(members)+1)
			ys[node] = y
		}
	}
	return xs, ys
}

func radialLayout(v *view, w, h float64) ([]float64, []float64) {
	levels, maxLevel := bfsLevels(v)
	byLevel := groupLevels(levels, maxLevel)

	xs, ys := make([]float64, len(v.nodes)), make([]float64, len(v.nodes))
	maxRadius := math.Min(w, h)/2 - ringMargin
	cx, cy := w/2, h/2
	for lvl, members := range byLevel {
		r := 0.0
		if maxLevel > 0 {
			r = maxRadius * float64(lvl) / float64(maxLevel)
		}
		for pos, node := range members {
			angle := 2 * math.Pi * float64(pos) / float64(len(members))
			xs[node] = cx + r*math.Cos(angle)
			ys[node] = cy + r*math.Sin(angle)
		}
	}
	return xs, ys
}

// bfsLevels assigns each node its BFS depth from the roots (nodes with no
// incoming edges). Nodes unreachable from any root, as in a pure cycle,
// seed a further BFS at level 0 in graph order.
func bfsLevels(v *view) ([]int, int) {
	n := len(v.nodes)
	succ := make([][]int, n)
	indeg := make([]int, n)
	for e := range v.edges {
		succ[v.from[e]] = append(succ[v.from[e]], v.to[e])
		indeg[v.to[e]]++
	}

	levels := make([]int, n)
	for i := range levels {
		levels[i] = -1
	}
	maxLevel := 0

	run := func(roots []int) {
		queue := make([]int, 0, len(roots))
		for _, r := range roots {
			if levels[r] == -1 {
				levels[r] = 0
				queue = append(queue, r)
			}
		}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range succ[cur] {
				if levels[next] != -1 {
					continue
				}
				levels[next] = levels[cur] + 1
				if levels[next] > maxLevel {
					maxLevel = levels[next]
				}
				queue = append(queue, next)
			}
		}
	}

	var roots []int
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			roots = append(roots, i)
		}
	}
	run(roots)
	for i := 0; i < n; i++ {
		if levels[i] == -1 {
			run([]int{i})
		}
	}
	return levels, maxLevel
}

func groupLevels(levels []int, maxLevel int) [][]int {
	byLevel := make([][]int, maxLevel+1)
	for node, lvl := range levels {
		byLevel[lvl] = append(byLevel[lvl], node)
	}
	return byLevel
}
