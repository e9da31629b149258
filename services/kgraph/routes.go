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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all knowledge-graph routes with the router.
//
// Description:
//
//	Registers all /v1/kgraph/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/kgraph/execute - Run one operation
//	GET  /v1/kgraph/graphs - List stored graphs
//	GET  /v1/kgraph/graphs/:id - Stats of one graph
//	GET  /v1/kgraph/health - Health check
//
// Example:
//
//	svc, _ := kgraph.NewService(graph.NewStore(), kgraph.Options{})
//	handlers := kgraph.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	kgraph.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	kg := rg.Group("/kgraph")
	{
		// Operations
		kg.POST("/execute", handlers.HandleExecute)

		// Registry
		kg.GET("/graphs", handlers.HandleListGraphs)
		kg.GET("/graphs/:id", handlers.HandleGetGraph)

		// Health checks
		kg.GET("/health", handlers.HandleHealth)
	}
}
