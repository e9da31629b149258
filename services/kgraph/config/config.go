// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the knowledge-graph service configuration.
//
// Priority is env > file > defaults. Files are YAML; JSON is accepted as a
// fallback since it parses as YAML anyway.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianKG/services/kgraph/cache"
	"github.com/AleutianAI/AleutianKG/services/kgraph/graph"
	"github.com/AleutianAI/AleutianKG/services/kgraph/telemetry"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Cache     CacheConfig      `yaml:"cache"`
	Engine    EngineConfig     `yaml:"engine"`
	Loader    LoaderConfig     `yaml:"loader"`
	Log       LogConfig        `yaml:"log"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// RateLimit is the sustained request rate per second. Zero disables
	// limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// CacheConfig configures the operation result cache.
type CacheConfig struct {
	// Backend is "memory", "badger" or "none".
	Backend    string        `yaml:"backend"`
	Path       string        `yaml:"path"`
	MaxEntries int           `yaml:"max_entries"`
	MaxBytes   int64         `yaml:"max_bytes"`
	TTL        time.Duration `yaml:"ttl"`
}

// Store converts the section into cache.Config.
func (c CacheConfig) Store(logger *slog.Logger) cache.Config {
	return cache.Config{
		Backend:    c.Backend,
		Path:       c.Path,
		MaxEntries: c.MaxEntries,
		MaxBytes:   c.MaxBytes,
		Logger:     logger,
	}
}

// EngineConfig holds algorithm limits that are not per-request.
type EngineConfig struct {
	MaxCandidatesPerSlot int    `yaml:"max_candidates_per_slot"`
	MaxCombinations      int    `yaml:"max_combinations"`
	CommunitySeed        uint64 `yaml:"community_seed"`
}

// QueryOptions returns the pattern matcher limits.
func (e EngineConfig) QueryOptions() graph.QueryOptions {
	return graph.QueryOptions{
		MaxCandidatesPerSlot: e.MaxCandidatesPerSlot,
		MaxCombinations:      e.MaxCombinations,
	}
}

// LoaderConfig configures graph definition loading.
type LoaderConfig struct {
	// Dir holds *.yaml, *.yml and *.json graph definitions. Empty disables
	// loading.
	Dir      string        `yaml:"dir"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// LogConfig configures slog.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// Dir, when set, also writes JSON logs to {service}_{date}.log there.
	Dir string `yaml:"dir"`
}

// SlogLevel parses Level; unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            12240,
			RateLimit:       50,
			RateBurst:       100,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Backend:    cache.BackendMemory,
			MaxEntries: cache.DefaultMaxEntries,
			MaxBytes:   64 << 20,
			TTL:        time.Hour,
		},
		Engine: EngineConfig{
			MaxCandidatesPerSlot: graph.DefaultMaxCandidatesPerSlot,
			MaxCombinations:      graph.DefaultMaxCombinations,
			CommunitySeed:        graph.DefaultCommunitySeed,
		},
		Loader: LoaderConfig{
			Debounce: 200 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load builds the configuration with priority env > file > defaults.
//
// # Description
//
// A missing file is not an error; defaults apply. A file that exists but
// fails to parse is.
//
// # Inputs
//
//   - path: YAML file path. Empty skips the file.
//
// # Outputs
//
//   - Config: The merged configuration.
//   - error: Parse or validation failure.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Config file not found, using defaults", slog.String("path", path))
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("KGRAPH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("KGRAPH_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("KGRAPH_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("KGRAPH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("KGRAPH_GRAPH_DIR"); v != "" {
		cfg.Loader.Dir = v
	}
	if v := os.Getenv("KGRAPH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("KGRAPH_LOG_DIR"); v != "" {
		cfg.Log.Dir = v
	}
	if v := os.Getenv("OTEL_TRACES_EXPORTER"); v != "" {
		cfg.Telemetry.TraceExporter = v
	}
	if v := os.Getenv("OTEL_METRICS_EXPORTER"); v != "" {
		cfg.Telemetry.MetricExporter = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}

// Validate rejects out-of-range values.
func (c Config) Validate() error {
	var errs []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		errs = append(errs, "server.rate_limit and server.rate_burst must be non-negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst == 0 {
		errs = append(errs, "server.rate_burst must be positive when rate limiting")
	}
	switch c.Cache.Backend {
	case cache.BackendMemory, cache.BackendBadger, cache.BackendNone:
	default:
		errs = append(errs, fmt.Sprintf("cache.backend %q unknown", c.Cache.Backend))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, "cache.ttl must be non-negative")
	}
	if c.Engine.MaxCandidatesPerSlot < 1 || c.Engine.MaxCombinations < 1 {
		errs = append(errs, "engine limits must be positive")
	}
	if c.Loader.Watch && c.Loader.Dir == "" {
		errs = append(errs, "loader.watch requires loader.dir")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q unknown", c.Log.Format))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}
