// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianKG/services/kgraph"
	"github.com/AleutianAI/AleutianKG/services/kgraph/cache"
	"github.com/AleutianAI/AleutianKG/services/kgraph/config"
	"github.com/AleutianAI/AleutianKG/services/kgraph/graph"
	"github.com/AleutianAI/AleutianKG/services/kgraph/telemetry"
	"github.com/AleutianAI/AleutianKG/services/kgraph/tokens"
)

// app holds the wired dispatcher and everything that must be closed with it.
type app struct {
	svc    *kgraph.Service
	cache  cache.Store
	influx *telemetry.InfluxRecorder
}

// newApp wires store, cache, token counter and recorders from cfg.
//
// Description:
//
//	The OTel recorder is always installed; it reports through whatever
//	meter provider telemetry.Init registered. The Influx recorder is added
//	when telemetry.influx.enabled is set.
func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := cache.New(cfg.Cache.Store(logger))
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a := &app{cache: store}

	otelRec, err := telemetry.NewOTelRecorder(nil)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create metrics recorder: %w", err)
	}
	recorders := telemetry.MultiRecorder{otelRec}

	if cfg.Telemetry.Influx.Enabled {
		a.influx, err = telemetry.NewInfluxRecorder(cfg.Telemetry.Influx, logger)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("create influx recorder: %w", err)
		}
		recorders = append(recorders, a.influx)
		logger.Info("InfluxDB recorder enabled",
			slog.String("url", cfg.Telemetry.Influx.URL),
			slog.String("bucket", cfg.Telemetry.Influx.Bucket))
	}

	a.svc, err = kgraph.NewService(graph.NewStore(), kgraph.Options{
		Cache:         store,
		Tokens:        tokens.NewEstimator(),
		Recorder:      recorders,
		QueryOptions:  cfg.Engine.QueryOptions(),
		CommunitySeed: cfg.Engine.CommunitySeed,
		CacheTTL:      cfg.Cache.TTL,
		Logger:        logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the cache and the Influx client.
func (a *app) Close() error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.influx != nil {
		a.influx.Close()
	}
	return errors.Join(errs...)
}
