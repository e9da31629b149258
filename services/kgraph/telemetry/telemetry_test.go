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
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	cfg := DefaultConfig()

	assert.Equal(t, "kgraph", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterPrometheus, cfg.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.False(t, cfg.Influx.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	cfg := DefaultConfig()
	assert.Equal(t, ExporterStdout, cfg.TraceExporter)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"unknown trace exporter", func(c *Config) { c.TraceExporter = "zipkin" }, ErrUnknownExporter},
		{"unknown metric exporter", func(c *Config) { c.MetricExporter = "statsd" }, ErrUnknownExporter},
		{"influx without url", func(c *Config) { c.Influx = InfluxConfig{Enabled: true} }, ErrInfluxURLRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestInit_NilContext(t *testing.T) {
	_, err := Init(nil, Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_NoExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_StdoutTraces(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{
		ServiceName:    "kgraph-test",
		TraceExporter:  ExporterStdout,
		MetricExporter: ExporterNone,
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestOTelRecorder_Record(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(ctx)

	r, err := NewOTelRecorder(mp.Meter("test"))
	require.NoError(t, err)

	r.Record(ctx, OperationMetrics{Operation: "query", Duration: time.Millisecond, Success: true})
	r.Record(ctx, OperationMetrics{Operation: "query", Duration: time.Millisecond, Success: true, CacheHit: true, TokensSaved: 40})
	r.Record(ctx, OperationMetrics{Operation: "find-paths", Duration: time.Millisecond})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(3), sumOf(t, rm, "kgraph_operations_total"))
	assert.Equal(t, int64(1), sumOf(t, rm, "kgraph_operation_cache_hits_total"))
	assert.Equal(t, int64(40), sumOf(t, rm, "kgraph_tokens_saved_total"))
}

type captureRecorder struct {
	mu  sync.Mutex
	got []OperationMetrics
}

func (c *captureRecorder) Record(_ context.Context, m OperationMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, m)
}

func TestMultiRecorder(t *testing.T) {
	a, b := &captureRecorder{}, &captureRecorder{}
	MultiRecorder{a, NopRecorder{}, b}.Record(context.Background(), OperationMetrics{Operation: "visualize"})
	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
	assert.Equal(t, "visualize", b.got[0].Operation)
}

func TestInfluxRecorder_WritesLineProtocol(t *testing.T) {
	var (
		mu    sync.Mutex
		path  string
		query map[string]string
		body  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		query = map[string]string{"org": r.URL.Query().Get("org"), "bucket": r.URL.Query().Get("bucket")}
		body = string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec, err := NewInfluxRecorder(InfluxConfig{URL: srv.URL, Token: "t", Org: "acme", Bucket: "kg"}, nil)
	require.NoError(t, err)
	defer rec.Close()

	rec.Record(context.Background(), OperationMetrics{
		Operation:   "find-paths",
		GraphID:     "g1",
		Duration:    1500 * time.Microsecond,
		Success:     true,
		TokensSaved: 12,
	})
	// Close waits for the final batch to be written.
	rec.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/api/v2/write", path)
	assert.Equal(t, "acme", query["org"])
	assert.Equal(t, "kg", query["bucket"])
	assert.Contains(t, body, "kgraph_operation,graph_id=g1,operation=find-paths ")
	assert.Contains(t, body, "success=true")
	assert.Contains(t, body, "cache_hit=false")
	assert.Contains(t, body, "tokens_saved=12i")
	assert.Contains(t, body, "duration_ms=1.5")
}

func TestInfluxRecorder_RecordDoesNotWaitForServer(t *testing.T) {
	release := make(chan struct{})
	var writes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		writes.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec, err := NewInfluxRecorder(InfluxConfig{
		URL:           srv.URL,
		Org:           "o",
		Bucket:        "b",
		BatchSize:     1,
		FlushInterval: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		rec.Record(context.Background(), OperationMetrics{Operation: "query"})
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int32(0), writes.Load())

	close(release)
	rec.Close()
	assert.Positive(t, writes.Load())
}

func TestInfluxRecorder_WriteFailureIsLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid","message":"bad point"}`))
	}))
	defer srv.Close()

	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec, err := NewInfluxRecorder(InfluxConfig{URL: srv.URL, Org: "o", Bucket: "b"}, logger)
	require.NoError(t, err)

	rec.Record(context.Background(), OperationMetrics{Operation: "query"})
	rec.Close()
	rec.Close()

	assert.Contains(t, buf.String(), "Failed to record operations in InfluxDB")
	assert.Contains(t, buf.String(), "bad point")
}

// syncBuffer is a bytes.Buffer safe for the recorder's log goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewInfluxRecorder_RequiresURL(t *testing.T) {
	_, err := NewInfluxRecorder(InfluxConfig{}, nil)
	assert.ErrorIs(t, err, ErrInfluxURLRequired)
}
