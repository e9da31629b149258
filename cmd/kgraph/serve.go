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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianKG/services/kgraph"
	"github.com/AleutianAI/AleutianKG/services/kgraph/config"
	"github.com/AleutianAI/AleutianKG/services/kgraph/loader"
	"github.com/AleutianAI/AleutianKG/services/kgraph/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// runServe starts the HTTP API and blocks until SIGINT/SIGTERM.
func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := startLoader(ctx, cfg.Loader, a.svc, logger)
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	router := newRouter(cfg, a.svc)
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting kgraph server",
			slog.String("address", srv.Addr),
			slog.String("cache_backend", cfg.Cache.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down kgraph server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// newRouter builds the gin engine with tracing, rate limiting, /metrics
// and the /v1/kgraph routes.
func newRouter(cfg config.Config, svc *kgraph.Service) *gin.Engine {
	if cfg.Log.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(kgraph.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))

	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	v1 := router.Group("/v1")
	kgraph.RegisterRoutes(v1, kgraph.NewHandlers(svc))
	return router
}

// startLoader builds every definition in the configured directory and,
// with watch enabled, rebuilds changed files until ctx ends.
func startLoader(ctx context.Context, cfg config.LoaderConfig, svc *kgraph.Service, logger *slog.Logger) (*loader.Watcher, error) {
	if cfg.Dir == "" {
		return nil, nil
	}

	ld := loader.New(cfg.Dir, svc.Apply, logger)
	n, err := ld.LoadAll(ctx)
	if err != nil {
		// Broken files are reported but do not keep the server down.
		logger.Warn("Some graph definitions failed to load",
			slog.String("dir", cfg.Dir),
			slog.String("error", err.Error()))
	}
	logger.Info("Graph definitions loaded", slog.String("dir", cfg.Dir), slog.Int("graphs", n))

	if !cfg.Watch {
		return nil, nil
	}
	w, err := loader.NewWatcher(ld, cfg.Debounce)
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, fmt.Errorf("watch %s: %w", cfg.Dir, err)
	}
	return w, nil
}
