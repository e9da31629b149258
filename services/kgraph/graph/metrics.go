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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("kgraph.graph")
	meter  = otel.Meter("kgraph.graph")
)

var (
	buildLatency     metric.Float64Histogram
	buildTotal       metric.Int64Counter
	edgesDropped     metric.Int64Counter
	algorithmLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"kgraph_build_duration_seconds",
			metric.WithDescription("Duration of graph build operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"kgraph_build_total",
			metric.WithDescription("Total number of graph builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesDropped, err = meter.Int64Counter(
			"kgraph_edges_dropped_total",
			metric.WithDescription("Relations dropped because an endpoint was unknown"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		algorithmLatency, err = meter.Float64Histogram(
			"kgraph_algorithm_duration_seconds",
			metric.WithDescription("Duration of graph algorithm runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a build.
func recordBuildMetrics(ctx context.Context, duration time.Duration, dropped int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)
	if dropped > 0 {
		edgesDropped.Add(ctx, int64(dropped))
	}
}

// recordAlgorithmMetrics records the duration of an algorithm run.
func recordAlgorithmMetrics(ctx context.Context, algorithm string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}

	algorithmLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("algorithm", algorithm)),
	)
}

// startAlgorithmSpan creates a span for an algorithm run over g.
func startAlgorithmSpan(ctx context.Context, name string, g *Graph) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Graph."+name,
		trace.WithAttributes(
			attribute.String("graph.id", g.id),
			attribute.Int("graph.node_count", len(g.nodes)),
			attribute.Int("graph.edge_count", len(g.edges)),
		),
	)
}
