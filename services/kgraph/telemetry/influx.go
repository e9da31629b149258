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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// DefaultMeasurement is the InfluxDB measurement for operation points.
const DefaultMeasurement = "kgraph_operation"

// InfluxConfig configures the InfluxDB recorder. Enabled with an empty URL
// is a configuration error.
type InfluxConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	URL         string        `yaml:"url" json:"url"`
	Token       string        `yaml:"token" json:"-"`
	Org         string        `yaml:"org" json:"org"`
	Bucket      string        `yaml:"bucket" json:"bucket"`
	Measurement string        `yaml:"measurement" json:"measurement"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`

	// BatchSize is the number of points buffered before a write.
	BatchSize uint `yaml:"batch_size" json:"batchSize"`

	// FlushInterval bounds how long a partial batch waits.
	FlushInterval time.Duration `yaml:"flush_interval" json:"flushInterval"`
}

// DefaultInfluxConfig reads INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG and
// INFLUXDB_BUCKET. The recorder stays disabled unless configured.
func DefaultInfluxConfig() InfluxConfig {
	return InfluxConfig{
		URL:           getEnvOr("INFLUXDB_URL", ""),
		Token:         getEnvOr("INFLUXDB_TOKEN", ""),
		Org:           getEnvOr("INFLUXDB_ORG", "aleutian"),
		Bucket:        getEnvOr("INFLUXDB_BUCKET", "kgraph"),
		Measurement:   DefaultMeasurement,
		Timeout:       2 * time.Second,
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// ErrInfluxURLRequired is returned when the recorder is enabled without a URL.
var ErrInfluxURLRequired = errors.New("influx url is required")

// InfluxRecorder writes one point per operation to InfluxDB.
//
// Record only enqueues the point; the client batches and writes in the
// background. Write failures are logged and never surfaced to the
// dispatcher. Close flushes pending points.
type InfluxRecorder struct {
	client      influxdb2.Client
	writer      api.WriteAPI
	measurement string
	logger      *slog.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewInfluxRecorder starts a batching write API for cfg.Org/cfg.Bucket.
func NewInfluxRecorder(cfg InfluxConfig, logger *slog.Logger) (*InfluxRecorder, error) {
	if cfg.URL == "" {
		return nil, ErrInfluxURLRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Measurement == "" {
		cfg.Measurement = DefaultMeasurement
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	opts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(uint(math.Ceil(cfg.Timeout.Seconds()))).
		SetBatchSize(cfg.BatchSize).
		SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	r := &InfluxRecorder{
		client:      client,
		writer:      client.WriteAPI(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go r.logErrors(r.writer.Errors())
	return r, nil
}

// point converts m to a point tagged by operation and graph id.
func (r *InfluxRecorder) point(m OperationMetrics, at time.Time) *write.Point {
	tags := map[string]string{"operation": m.Operation}
	if m.GraphID != "" {
		tags["graph_id"] = m.GraphID
	}
	return influxdb2.NewPoint(
		r.measurement,
		tags,
		map[string]interface{}{
			"duration_ms":  float64(m.Duration.Microseconds()) / 1000,
			"success":      m.Success,
			"cache_hit":    m.CacheHit,
			"tokens_saved": int64(m.TokensSaved),
		},
		at,
	)
}

// Record implements Recorder. It does not wait for the write.
func (r *InfluxRecorder) Record(_ context.Context, m OperationMetrics) {
	r.writer.WritePoint(r.point(m, time.Now()))
}

// Flush writes buffered points.
func (r *InfluxRecorder) Flush() {
	r.writer.Flush()
}

// logErrors drains the write API error channel until Close.
func (r *InfluxRecorder) logErrors(errs <-chan error) {
	defer close(r.done)
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			r.warn(err)
		case <-r.stop:
			for {
				select {
				case err, ok := <-errs:
					if !ok {
						return
					}
					r.warn(err)
				default:
					return
				}
			}
		}
	}
}

func (r *InfluxRecorder) warn(err error) {
	r.logger.Warn("Failed to record operations in InfluxDB",
		slog.String("error", fmt.Errorf("write influx batch: %w", err).Error()),
	)
}

// Close flushes pending points and releases the client. Safe to call more
// than once.
func (r *InfluxRecorder) Close() {
	r.closeOnce.Do(func() {
		r.client.Close()
		close(r.stop)
		<-r.done
	})
}
