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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianKG/services/kgraph/cache"
	"github.com/AleutianAI/AleutianKG/services/kgraph/graph"
	"github.com/AleutianAI/AleutianKG/services/kgraph/telemetry"
	"github.com/AleutianAI/AleutianKG/services/kgraph/tokens"
	"github.com/AleutianAI/AleutianKG/services/kgraph/visualization"
	"github.com/go-openapi/strfmt"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("kgraph.dispatcher")

// DefaultCacheTTL is used when neither the request nor Options set a TTL.
const DefaultCacheTTL = time.Hour

// Options configures a Service. Zero fields take defaults.
type Options struct {
	// Cache stores serialized results. Default: cache.Nop.
	Cache cache.Store

	// Tokens estimates the size of cached payloads. Default: tokens.NewEstimator().
	Tokens tokens.Counter

	// Recorder receives one OperationMetrics per Execute. Default: NopRecorder.
	Recorder telemetry.Recorder

	// QueryOptions caps pattern matching. Default: graph.DefaultQueryOptions().
	QueryOptions graph.QueryOptions

	// CommunitySeed seeds label propagation when the request sets none.
	CommunitySeed uint64

	// CacheTTL is the default lifetime of cached results.
	CacheTTL time.Duration

	Logger *slog.Logger
}

// Service is the cache-aware operation dispatcher.
//
// Description:
//
//	Service owns nothing but coordination: graphs live in the Store, results
//	in the Cache. Each Execute call runs at most one engine operation.
//
// Thread Safety:
//
//	Safe for concurrent use. Identical concurrent read requests are
//	collapsed into one computation.
type Service struct {
	store    *graph.Store
	cache    cache.Store
	tokens   tokens.Counter
	recorder telemetry.Recorder
	validate *validator.Validate
	logger   *slog.Logger

	queryOpts     graph.QueryOptions
	communitySeed uint64
	cacheTTL      time.Duration

	// mu serializes build-graph and merge-graphs against everything else.
	mu     sync.RWMutex
	flight singleflight.Group
}

// NewService creates a dispatcher over store.
//
// Inputs:
//
//	store - The graph registry. Must not be nil.
//	opts - Collaborators and defaults.
//
// Outputs:
//
//	*Service - Ready to Execute.
//	error - graph.ErrInvalidOptions if the query caps are negative.
func NewService(store *graph.Store, opts Options) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidRequest)
	}
	if err := opts.QueryOptions.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		store:         store,
		cache:         opts.Cache,
		tokens:        opts.Tokens,
		recorder:      opts.Recorder,
		validate:      validator.New(),
		logger:        opts.Logger,
		queryOpts:     opts.QueryOptions,
		communitySeed: opts.CommunitySeed,
		cacheTTL:      opts.CacheTTL,
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.tokens == nil {
		s.tokens = tokens.NewEstimator()
	}
	if s.recorder == nil {
		s.recorder = telemetry.NopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.communitySeed == 0 {
		s.communitySeed = graph.DefaultCommunitySeed
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	return s, nil
}

// Store returns the graph registry the service dispatches against.
func (s *Service) Store() *graph.Store { return s.store }

// Execute runs one operation.
//
// Description:
//
//	1. Validate the envelope and the operation's required fields.
//	2. Read operations resolve graphId (unknown id fails here, before
//	   the cache is consulted) and, with useCache, look the result up.
//	   A hit returns the cached payload with tokensSaved set to the token
//	   count of that payload.
//	3. On a miss, run the operation. build-graph and merge-graphs are
//	   never served from the cache because a hit would skip materializing
//	   the graph.
//	4. Serialize the full result and write it through to the cache.
//	   A cache write failure is logged and does not fail the request.
//
//	Nothing is written to the cache when the operation fails. Metrics are
//	recorded on every path.
//
// Inputs:
//
//	ctx - Cancels long-running algorithms.
//	req - The operation envelope.
//
// Outputs:
//
//	*Response - The serialized result.
//	error - ErrInvalidRequest, ErrUnknownOperation, ErrMissingField, or
//	        the engine's sentinel, wrapped with the operation name.
func (s *Service) Execute(ctx context.Context, req *Request) (resp *Response, err error) {
	start := time.Now()
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}

	ctx, span := tracer.Start(ctx, "Service.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("kgraph.operation", req.Operation),
		attribute.String("kgraph.graph_id", req.GraphID),
	)

	defer func() {
		m := telemetry.OperationMetrics{
			Operation: req.Operation,
			GraphID:   req.GraphID,
			Duration:  time.Since(start),
			Success:   err == nil,
		}
		if resp != nil {
			m.GraphID = resp.GraphID
			m.CacheHit = resp.CacheHit
			m.TokensSaved = resp.TokensSaved
			resp.DurationMs = m.Duration.Milliseconds()
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Bool("kgraph.cache_hit", m.CacheHit))
		}
		s.recorder.Record(ctx, m)
	}()

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	if mutates(req.Operation) {
		return s.executeMutation(ctx, req)
	}
	return s.executeRead(ctx, req)
}

// checkRequest validates struct tags, the operation name and required fields.
func (s *Service) checkRequest(req *Request) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	switch req.Operation {
	case OpBuildGraph, OpMergeGraphs:
	case OpQuery, OpFindPaths, OpDetectCommunities, OpInferRelations, OpVisualize, OpExportGraph:
		if req.GraphID == "" {
			return fmt.Errorf("%s: %w: graphId", req.Operation, ErrMissingField)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, req.Operation)
	}

	switch req.Operation {
	case OpQuery:
		if req.Pattern == nil {
			return fmt.Errorf("%s: %w: pattern", req.Operation, ErrMissingField)
		}
	case OpFindPaths:
		if req.SourceID == "" {
			return fmt.Errorf("%s: %w: sourceId", req.Operation, ErrMissingField)
		}
		if req.TargetID == "" {
			return fmt.Errorf("%s: %w: targetId", req.Operation, ErrMissingField)
		}
	case OpMergeGraphs:
		if len(req.GraphIDs) < 2 {
			return fmt.Errorf("%s: %w: got %d", req.Operation, graph.ErrTooFewGraphs, len(req.GraphIDs))
		}
	}
	return nil
}

// executeMutation runs build-graph or merge-graphs under the exclusive lock.
func (s *Service) executeMutation(ctx context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		g      *graph.Graph
		result any
		err    error
	)
	switch req.Operation {
	case OpBuildGraph:
		g, err = s.store.Build(ctx, graph.BuildInput{
			GraphID:   req.GraphID,
			Entities:  req.Entities,
			Relations: req.Relations,
		})
		if err == nil {
			result = g.Stats()
		}
	case OpMergeGraphs:
		var mr *graph.MergeResult
		g, mr, err = graph.Merge(ctx, s.store, req.GraphIDs, req.MergeStrategy, req.OutputGraphID)
		result = mr
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Operation, err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%s: serialize result: %w", req.Operation, err)
	}
	if req.cacheEnabled() {
		s.writeThrough(ctx, req, CacheKey(req), payload)
	}

	s.logger.Info("Graph materialized",
		slog.String("operation", req.Operation),
		slog.String("graph_id", g.ID()),
		slog.Int("nodes", g.NodeCount()),
		slog.Int("edges", g.EdgeCount()),
	)
	return &Response{
		Operation: req.Operation,
		Success:   true,
		GraphID:   g.ID(),
		Result:    payload,
	}, nil
}

// executeRead runs a read operation under the shared lock.
func (s *Service) executeRead(ctx context.Context, req *Request) (*Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.store.Get(req.GraphID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Operation, err)
	}

	// Results are keyed to the graph build they were computed from, so a
	// rebuilt graph never serves results of its predecessor.
	key := versionedKey(CacheKey(req), g)

	if req.cacheEnabled() {
		if resp, ok := s.lookup(ctx, req, key); ok {
			return resp, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Operation, err)
	}

	// The flight outlives the caller that started it: callers that joined
	// must not see the leader's cancellation. Graphs are immutable once
	// built, so g stays valid after the shared lock is released.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(versionedKey(requestFingerprint(req), g), func() (any, error) {
		result, err := s.run(flightCtx, req, g)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		// Exactly one write per flight, however many callers joined it.
		if req.cacheEnabled() {
			s.writeThrough(flightCtx, req, key, payload)
		}
		return payload, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", req.Operation, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, fmt.Errorf("%s: %w", req.Operation, res.Err)
	}
	payload := res.Val.([]byte)

	return &Response{
		Operation: req.Operation,
		Success:   true,
		GraphID:   g.ID(),
		Result:    payload,
	}, nil
}

// lookup returns the cached response for key. Cache errors and corrupt
// payloads count as misses.
func (s *Service) lookup(ctx context.Context, req *Request, key string) (*Response, bool) {
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Cache read failed",
			slog.String("operation", req.Operation),
			slog.String("graph_id", req.GraphID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if !json.Valid([]byte(payload)) {
		s.logger.Warn("Discarding corrupt cache entry",
			slog.String("operation", req.Operation),
			slog.String("graph_id", req.GraphID),
		)
		return nil, false
	}
	return &Response{
		Operation:   req.Operation,
		Success:     true,
		GraphID:     req.GraphID,
		Result:      json.RawMessage(payload),
		CacheHit:    true,
		TokensSaved: s.tokens.Count(payload),
	}, true
}

func (s *Service) writeThrough(ctx context.Context, req *Request, key string, payload []byte) {
	ttl := s.cacheTTL
	if req.CacheTTLSeconds > 0 {
		ttl = time.Duration(req.CacheTTLSeconds) * time.Second
	}
	if err := s.cache.Set(ctx, key, string(payload), len(payload), ttl); err != nil {
		s.logger.Warn("Cache write failed",
			slog.String("operation", req.Operation),
			slog.String("graph_id", req.GraphID),
			slog.String("error", err.Error()),
		)
	}
}

// run dispatches a read operation to the engine.
func (s *Service) run(ctx context.Context, req *Request, g *graph.Graph) (any, error) {
	switch req.Operation {
	case OpQuery:
		return graph.Query(ctx, g, req.Pattern, s.queryOpts)

	case OpFindPaths:
		return graph.FindPaths(ctx, g, req.SourceID, req.TargetID, graph.PathOptions{
			Algorithm: req.Algorithm,
			MaxHops:   req.MaxHops,
			MaxPaths:  req.MaxPaths,
		})

	case OpDetectCommunities:
		opts := graph.DefaultCommunityOptions()
		opts.Seed = s.communitySeed
		if req.Algorithm != "" {
			opts.Algorithm = req.Algorithm
		}
		if req.MinCommunitySize != nil {
			opts.MinCommunitySize = *req.MinCommunitySize
		}
		if req.Seed != 0 {
			opts.Seed = req.Seed
		}
		return graph.DetectCommunities(ctx, g, opts)

	case OpInferRelations:
		opts := graph.DefaultInferenceOptions()
		if req.ConfidenceThreshold != nil {
			opts.ConfidenceThreshold = *req.ConfidenceThreshold
		}
		if req.MaxInferences > 0 {
			opts.MaxInferences = req.MaxInferences
		}
		return graph.InferRelations(ctx, g, opts)

	case OpVisualize:
		return visualization.Compute(ctx, g, visualization.LayoutOptions{
			Layout:   req.Layout,
			MaxNodes: req.MaxNodes,
			Width:    req.Width,
			Height:   req.Height,
		})

	case OpExportGraph:
		return visualization.Export(ctx, g, visualization.ExportFormat(req.Format))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, req.Operation)
}

func versionedKey(key string, g *graph.Graph) string {
	return key + "@" + strconv.FormatInt(g.BuiltAt().UnixNano(), 36)
}

// ListGraphs returns summaries of every stored graph sorted by ID.
func (s *Service) ListGraphs() []GraphSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.store.List()
	out := make([]GraphSummary, len(list))
	for i, sum := range list {
		out[i] = GraphSummary{
			GraphID:   sum.GraphID,
			NodeCount: sum.NodeCount,
			EdgeCount: sum.EdgeCount,
			BuiltAt:   strfmt.DateTime(sum.BuiltAt),
		}
	}
	return out
}

// GraphStats returns the statistics of one stored graph.
func (s *Service) GraphStats(id string) (graph.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.store.Get(id)
	if err != nil {
		return graph.Stats{}, err
	}
	return g.Stats(), nil
}

// Apply builds a graph from a definition. It satisfies loader.ApplyFunc so
// definition files go through the same locking as build-graph.
func (s *Service) Apply(ctx context.Context, in graph.BuildInput) error {
	_, err := s.Execute(ctx, &Request{
		Operation: OpBuildGraph,
		GraphID:   in.GraphID,
		Entities:  in.Entities,
		Relations: in.Relations,
	})
	return err
}
