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
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianKG/services/kgraph/graph"
	"github.com/AleutianAI/AleutianKG/services/kgraph/visualization"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers contains the HTTP handlers for the knowledge-graph service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleExecute handles POST /v1/kgraph/execute.
//
// Description:
//
//	Runs one operation from the request envelope. The operation field
//	selects build-graph, query, find-paths, detect-communities,
//	infer-relations, visualize, export-graph or merge-graphs.
//
// Request Body:
//
//	Request
//
// Response:
//
//	200 OK: Response
//	400 Bad Request: Validation error, unknown operation/algorithm/layout/format
//	404 Not Found: Unknown graph or node
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleExecute(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExecute")

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger = logger.With("operation", req.Operation, "graph_id", req.GraphID)

	resp, err := h.svc.Execute(c.Request.Context(), &req)
	if err != nil {
		statusCode, errCode := classify(err)
		if statusCode >= http.StatusInternalServerError {
			logger.Error("Operation failed", "error", err)
		} else {
			logger.Info("Operation rejected", "error", err, "code", errCode)
		}
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Debug("Operation complete",
		"cache_hit", resp.CacheHit,
		"tokens_saved", resp.TokensSaved,
		"duration_ms", resp.DurationMs)

	c.JSON(http.StatusOK, resp)
}

// HandleListGraphs handles GET /v1/kgraph/graphs.
//
// Response:
//
//	200 OK: GraphListResponse
func (h *Handlers) HandleListGraphs(c *gin.Context) {
	getOrCreateRequestID(c)

	graphs := h.svc.ListGraphs()
	c.JSON(http.StatusOK, GraphListResponse{
		Graphs: graphs,
		Count:  len(graphs),
	})
}

// HandleGetGraph handles GET /v1/kgraph/graphs/:id.
//
// Response:
//
//	200 OK: graph.Stats
//	404 Not Found: Unknown graph
func (h *Handlers) HandleGetGraph(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	id := c.Param("id")

	stats, err := h.svc.GraphStats(id)
	if err != nil {
		statusCode, errCode := classify(err)
		slog.Debug("Graph lookup failed", "request_id", requestID, "graph_id", id, "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleHealth handles GET /v1/kgraph/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
		Graphs: h.svc.Store().Len(),
	})
}

// classify maps an Execute error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, graph.ErrGraphNotFound):
		return http.StatusNotFound, "GRAPH_NOT_FOUND"
	case errors.Is(err, graph.ErrNodeNotFound):
		return http.StatusNotFound, "NODE_NOT_FOUND"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, ErrUnknownOperation):
		return http.StatusBadRequest, "UNKNOWN_OPERATION"
	case errors.Is(err, ErrMissingField):
		return http.StatusBadRequest, "MISSING_FIELD"
	case errors.Is(err, graph.ErrUnknownAlgorithm):
		return http.StatusBadRequest, "UNKNOWN_ALGORITHM"
	case errors.Is(err, graph.ErrUnknownStrategy):
		return http.StatusBadRequest, "UNKNOWN_STRATEGY"
	case errors.Is(err, visualization.ErrUnknownLayout):
		return http.StatusBadRequest, "UNKNOWN_LAYOUT"
	case errors.Is(err, visualization.ErrUnknownFormat):
		return http.StatusBadRequest, "UNKNOWN_FORMAT"
	case errors.Is(err, graph.ErrTooFewGraphs):
		return http.StatusBadRequest, "TOO_FEW_GRAPHS"
	case errors.Is(err, graph.ErrInvalidPattern):
		return http.StatusBadRequest, "INVALID_PATTERN"
	case errors.Is(err, graph.ErrInvalidNode), errors.Is(err, graph.ErrInvalidValue):
		return http.StatusBadRequest, "INVALID_GRAPH"
	case errors.Is(err, graph.ErrInvalidOptions), errors.Is(err, visualization.ErrInvalidOptions):
		return http.StatusBadRequest, "INVALID_OPTIONS"
	default:
		return http.StatusInternalServerError, "OPERATION_FAILED"
	}
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
