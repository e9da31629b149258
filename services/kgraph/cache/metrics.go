// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("kgraph.cache")

var (
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	cacheEvictions  metric.Int64Counter
	cacheGetLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		if cacheHits, err = meter.Int64Counter(
			"kgraph_cache_hits_total",
			metric.WithDescription("Operation result cache hits"),
		); err != nil {
			metricsErr = err
			return
		}

		if cacheMisses, err = meter.Int64Counter(
			"kgraph_cache_misses_total",
			metric.WithDescription("Operation result cache misses"),
		); err != nil {
			metricsErr = err
			return
		}

		if cacheEvictions, err = meter.Int64Counter(
			"kgraph_cache_evictions_total",
			metric.WithDescription("Entries evicted from the memory cache"),
		); err != nil {
			metricsErr = err
			return
		}

		cacheGetLatency, metricsErr = meter.Float64Histogram(
			"kgraph_cache_get_duration_seconds",
			metric.WithDescription("Duration of cache lookups"),
			metric.WithUnit("s"),
		)
	})
	return metricsErr
}

func recordGet(ctx context.Context, backend string, d time.Duration, hit bool) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("backend", backend))
	if hit {
		cacheHits.Add(ctx, 1, attrs)
	} else {
		cacheMisses.Add(ctx, 1, attrs)
	}
	cacheGetLatency.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("backend", backend), attribute.Bool("hit", hit)))
}

func recordEviction(ctx context.Context, backend string) {
	if initMetrics() != nil {
		return
	}
	cacheEvictions.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}
