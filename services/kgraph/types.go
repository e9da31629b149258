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
	"encoding/json"

	"github.com/AleutianAI/AleutianKG/services/kgraph/graph"
	"github.com/go-openapi/strfmt"
)

// Operation names.
const (
	OpBuildGraph        = "build-graph"
	OpQuery             = "query"
	OpFindPaths         = "find-paths"
	OpDetectCommunities = "detect-communities"
	OpInferRelations    = "infer-relations"
	OpVisualize         = "visualize"
	OpExportGraph       = "export-graph"
	OpMergeGraphs       = "merge-graphs"
)

// Operations lists every supported operation in dispatch order.
var Operations = []string{
	OpBuildGraph, OpQuery, OpFindPaths, OpDetectCommunities,
	OpInferRelations, OpVisualize, OpExportGraph, OpMergeGraphs,
}

// mutates reports whether op replaces graphs in the store.
func mutates(op string) bool {
	return op == OpBuildGraph || op == OpMergeGraphs
}

// Request is the operation envelope.
//
// Only the fields relevant to Operation are read. Zero numeric fields
// mean "use the default".
type Request struct {
	// Operation selects the engine operation. Required.
	Operation string `json:"operation" validate:"required"`

	// GraphID names the target graph. Required by every operation except
	// merge-graphs; optional for build-graph (generated when empty).
	GraphID string `json:"graphId,omitempty" validate:"omitempty,max=256"`

	// build-graph
	Entities  []graph.Node `json:"entities,omitempty" validate:"omitempty,dive"`
	Relations []graph.Edge `json:"relations,omitempty" validate:"omitempty,dive"`

	// query
	Pattern *graph.Pattern `json:"pattern,omitempty"`

	// find-paths
	SourceID  string `json:"sourceId,omitempty"`
	TargetID  string `json:"targetId,omitempty"`
	Algorithm string `json:"algorithm,omitempty"`
	MaxHops   int    `json:"maxHops,omitempty" validate:"gte=0"`
	MaxPaths  int    `json:"maxPaths,omitempty" validate:"gte=0"`

	// detect-communities (also reads Algorithm)
	// MinCommunitySize drops smaller communities. Absent means 2; 0 keeps all.
	MinCommunitySize *int   `json:"minCommunitySize,omitempty" validate:"omitempty,gte=0"`
	Seed             uint64 `json:"seed,omitempty"`

	// infer-relations
	// ConfidenceThreshold absent means 0.5; 0 accepts every scored pair.
	ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxInferences       int      `json:"maxInferences,omitempty" validate:"gte=0"`

	// visualize
	Layout   string  `json:"layout,omitempty"`
	MaxNodes int     `json:"maxNodes,omitempty" validate:"gte=0"`
	Width    float64 `json:"width,omitempty" validate:"gte=0"`
	Height   float64 `json:"height,omitempty" validate:"gte=0"`

	// export-graph
	Format string `json:"format,omitempty"`

	// merge-graphs
	GraphIDs      []string `json:"graphIds,omitempty" validate:"omitempty,dive,required"`
	MergeStrategy string   `json:"mergeStrategy,omitempty"`
	OutputGraphID string   `json:"outputGraphId,omitempty" validate:"omitempty,max=256"`

	// UseCache enables cache reads and writes. Default true.
	UseCache *bool `json:"useCache,omitempty"`

	// CacheTTLSeconds overrides the configured cache TTL.
	CacheTTLSeconds int `json:"cacheTtlSeconds,omitempty" validate:"gte=0"`
}

// cacheEnabled returns UseCache, defaulting to true.
func (r *Request) cacheEnabled() bool {
	return r.UseCache == nil || *r.UseCache
}

// Response is the result envelope of a successful operation.
type Response struct {
	Operation string `json:"operation"`
	Success   bool   `json:"success"`

	// GraphID is the graph the operation read or produced.
	GraphID string `json:"graphId,omitempty"`

	// Result is the JSON-serialized operation result.
	Result json.RawMessage `json:"result"`

	CacheHit bool `json:"cacheHit"`

	// TokensSaved is the token estimate of the cached payload on a hit,
	// zero on a miss.
	TokensSaved int `json:"tokensSaved"`

	DurationMs int64 `json:"durationMs"`
}

// ErrorResponse is the HTTP error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// GraphSummary is one entry of GET /v1/kgraph/graphs.
type GraphSummary struct {
	GraphID   string          `json:"graphId"`
	NodeCount int             `json:"nodeCount"`
	EdgeCount int             `json:"edgeCount"`
	BuiltAt   strfmt.DateTime `json:"builtAt"`
}

// GraphListResponse is the body of GET /v1/kgraph/graphs.
type GraphListResponse struct {
	Graphs []GraphSummary `json:"graphs"`
	Count  int            `json:"count"`
}

// HealthResponse is the body of GET /v1/kgraph/health.
type HealthResponse struct {
	Status string `json:"status"`
	Graphs int    `json:"graphs"`
}
