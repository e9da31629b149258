// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OperationMetrics describes one dispatched operation.
type OperationMetrics struct {
	Operation   string
	GraphID     string
	Duration    time.Duration
	Success     bool
	CacheHit    bool
	TokensSaved int
}

// Recorder receives operation metrics. Implementations must not block the
// caller for long and must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, m OperationMetrics)
}

// NopRecorder discards everything.
type NopRecorder struct{}

// Record does nothing.
func (NopRecorder) Record(context.Context, OperationMetrics) {}

// MultiRecorder fans out to every recorder in order.
type MultiRecorder []Recorder

// Record forwards m to each recorder.
func (mr MultiRecorder) Record(ctx context.Context, m OperationMetrics) {
	for _, r := range mr {
		r.Record(ctx, m)
	}
}

// OTelRecorder records operation metrics with OpenTelemetry instruments.
type OTelRecorder struct {
	operations  metric.Int64Counter
	duration    metric.Float64Histogram
	cacheHits   metric.Int64Counter
	tokensSaved metric.Int64Counter
}

// NewOTelRecorder creates the instruments on meter. A nil meter uses the
// global "kgraph.dispatcher" meter.
//
// Metrics:
//
//	kgraph_operations_total{operation,success}
//	kgraph_operation_duration_seconds{operation,cache_hit}
//	kgraph_operation_cache_hits_total{operation}
//	kgraph_tokens_saved_total{operation}
func NewOTelRecorder(meter metric.Meter) (*OTelRecorder, error) {
	if meter == nil {
		meter = otel.Meter("kgraph.dispatcher")
	}

	r := &OTelRecorder{}
	var err error

	if r.operations, err = meter.Int64Counter(
		"kgraph_operations_total",
		metric.WithDescription("Dispatched knowledge-graph operations"),
	); err != nil {
		return nil, fmt.Errorf("create operations counter: %w", err)
	}

	if r.duration, err = meter.Float64Histogram(
		"kgraph_operation_duration_seconds",
		metric.WithDescription("Operation duration including cache lookup"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10),
	); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	if r.cacheHits, err = meter.Int64Counter(
		"kgraph_operation_cache_hits_total",
		metric.WithDescription("Operations served from the result cache"),
	); err != nil {
		return nil, fmt.Errorf("create cache hit counter: %w", err)
	}

	if r.tokensSaved, err = meter.Int64Counter(
		"kgraph_tokens_saved_total",
		metric.WithDescription("Estimated tokens served from cache"),
	); err != nil {
		return nil, fmt.Errorf("create tokens counter: %w", err)
	}

	return r, nil
}

// Record implements Recorder.
func (r *OTelRecorder) Record(ctx context.Context, m OperationMetrics) {
	op := attribute.String("operation", m.Operation)
	r.operations.Add(ctx, 1, metric.WithAttributes(op, attribute.Bool("success", m.Success)))
	r.duration.Record(ctx, m.Duration.Seconds(), metric.WithAttributes(op, attribute.Bool("cache_hit", m.CacheHit)))
	if m.CacheHit {
		r.cacheHits.Add(ctx, 1, metric.WithAttributes(op))
	}
	if m.TokensSaved > 0 {
		r.tokensSaved.Add(ctx, int64(m.TokensSaved), metric.WithAttributes(op))
	}
}
