// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kgraph

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/AleutianKG/services/kgraph/graph"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	svc, err := NewService(graph.NewStore(), Options{})
	require.NoError(t, err)

	router := gin.New()
	RegisterRoutes(router.Group("/v1"), NewHandlers(svc))
	return router, svc
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleExecute_BuildThenQuery(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/v1/kgraph/execute", map[string]any{
		"operation": "build-graph",
		"graphId":   "people",
		"entities": []map[string]any{
			{"id": "alice", "type": "Person", "properties": map[string]any{"name": "Alice"}},
			{"id": "acme", "type": "Company"},
		},
		"relations": []map[string]any{
			{"from": "alice", "to": "acme", "type": "works_at"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "people", resp.GraphID)

	w = doJSON(router, http.MethodPost, "/v1/kgraph/execute", map[string]any{
		"operation": "export-graph",
		"graphId":   "people",
		"format":    "csv",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	var export struct {
		Data string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &export))
	assert.Equal(t, "type,from,to,edge_type\nnode,alice,Person,\nnode,acme,Company,\nedge,alice,acme,works_at\n", export.Data)
}

func TestHandleExecute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{name: "malformed body", body: "{", wantCode: http.StatusBadRequest, wantErr: "INVALID_REQUEST"},
		{name: "missing operation", body: map[string]any{"graphId": "g"}, wantCode: http.StatusBadRequest, wantErr: "INVALID_REQUEST"},
		{name: "unknown operation", body: map[string]any{"operation": "drop-graph", "graphId": "g"}, wantCode: http.StatusBadRequest, wantErr: "UNKNOWN_OPERATION"},
		{name: "unknown graph", body: map[string]any{"operation": "visualize", "graphId": "nope"}, wantCode: http.StatusNotFound, wantErr: "GRAPH_NOT_FOUND"},
		{name: "missing pattern", body: map[string]any{"operation": "query", "graphId": "g"}, wantCode: http.StatusBadRequest, wantErr: "MISSING_FIELD"},
		{name: "too few graphs", body: map[string]any{"operation": "merge-graphs", "graphIds": []string{"g"}}, wantCode: http.StatusBadRequest, wantErr: "TOO_FEW_GRAPHS"},
		{name: "unknown node", body: map[string]any{"operation": "find-paths", "graphId": "g", "sourceId": "a", "targetId": "zz"}, wantCode: http.StatusNotFound, wantErr: "NODE_NOT_FOUND"},
		{name: "unknown algorithm", body: map[string]any{"operation": "find-paths", "graphId": "g", "sourceId": "a", "targetId": "b", "algorithm": "dfs"}, wantCode: http.StatusBadRequest, wantErr: "UNKNOWN_ALGORITHM"},
		{name: "unknown layout", body: map[string]any{"operation": "visualize", "graphId": "g", "layout": "spiral"}, wantCode: http.StatusBadRequest, wantErr: "UNKNOWN_LAYOUT"},
		{name: "unknown format", body: map[string]any{"operation": "export-graph", "graphId": "g", "format": "pdf"}, wantCode: http.StatusBadRequest, wantErr: "UNKNOWN_FORMAT"},
		{name: "unknown strategy", body: map[string]any{"operation": "merge-graphs", "graphIds": []string{"g", "g"}, "mergeStrategy": "zip"}, wantCode: http.StatusBadRequest, wantErr: "UNKNOWN_STRATEGY"},
		{name: "empty pattern", body: map[string]any{"operation": "query", "graphId": "g", "pattern": map[string]any{"nodes": []any{}}}, wantCode: http.StatusBadRequest, wantErr: "INVALID_PATTERN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, svc := newTestRouter(t)
			_, err := svc.Store().Build(t.Context(), graph.BuildInput{
				GraphID:   "g",
				Entities:  []graph.Node{{ID: "a", Type: "T"}, {ID: "b", Type: "T"}},
				Relations: []graph.Edge{{From: "a", To: "b", Type: "r"}},
			})
			require.NoError(t, err)

			w := doJSON(router, http.MethodPost, "/v1/kgraph/execute", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
			assert.Equal(t, tt.wantErr, errResp.Code)
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestHandleExecute_RequestID(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/kgraph/execute", bytes.NewBufferString(`{"operation":"build-graph","graphId":"g"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = doJSON(router, http.MethodGet, "/v1/kgraph/graphs", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandleListAndGetGraphs(t *testing.T) {
	router, svc := newTestRouter(t)
	for _, id := range []string{"beta", "alpha"} {
		_, err := svc.Store().Build(t.Context(), graph.BuildInput{
			GraphID:  id,
			Entities: []graph.Node{{ID: "n", Type: "T"}},
		})
		require.NoError(t, err)
	}

	w := doJSON(router, http.MethodGet, "/v1/kgraph/graphs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list GraphListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "alpha", list.Graphs[0].GraphID)
	assert.Equal(t, "beta", list.Graphs[1].GraphID)

	w = doJSON(router, http.MethodGet, "/v1/kgraph/graphs/alpha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats graph.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "alpha", stats.GraphID)
	assert.Equal(t, 1, stats.NodeCount)

	w = doJSON(router, http.MethodGet, "/v1/kgraph/graphs/gamma", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/v1/kgraph/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Zero(t, health.Graphs)
}

func TestRateLimit(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(1, 1))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := doJSON(router, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimit_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(0, 0))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 5; i++ {
		w := doJSON(router, http.MethodGet, "/ping", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}
