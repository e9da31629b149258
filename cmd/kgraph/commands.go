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
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/AleutianAI/AleutianKG/pkg/logging"
	"github.com/AleutianAI/AleutianKG/services/kgraph/config"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	logFormat  string

	// run flags
	requestFile   string
	graphFiles    []string
	runOp         string
	runGraphID    string
	runSource     string
	runTarget     string
	runAlgorithm  string
	runFormat     string
	runLayout     string
	runMaxHops    int
	runGraphIDs   []string
	runStrategy   string
	outURI        string
	credentials   string
	forceJSONMode bool

	rootCmd = &cobra.Command{
		Use:           "kgraph",
		Short:         "Knowledge-graph analytics engine",
		Long:          `kgraph builds typed knowledge graphs and runs pattern queries, path finding, community detection, relation inference, layout and export over them.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe, // Defined in serve.go
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run one operation and print the response",
		Long: `Runs a single operation against graphs loaded from definition files.

The request comes from --request (a JSON or YAML envelope) or is assembled
from flags. export-graph output can be written to a directory or a
gs://bucket/prefix with --out.`,
		RunE: runOnce, // Defined in run.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json); overrides config")

	runCmd.Flags().StringVar(&requestFile, "request", "", "Request envelope file (JSON or YAML)")
	runCmd.Flags().StringSliceVar(&graphFiles, "graph-file", nil, "Graph definition file to build before running (repeatable)")
	runCmd.Flags().StringVar(&runOp, "op", "", "Operation name")
	runCmd.Flags().StringVar(&runGraphID, "graph", "", "Graph ID")
	runCmd.Flags().StringVar(&runSource, "source", "", "Source node ID (find-paths)")
	runCmd.Flags().StringVar(&runTarget, "target", "", "Target node ID (find-paths)")
	runCmd.Flags().StringVar(&runAlgorithm, "algorithm", "", "Path or community algorithm")
	runCmd.Flags().StringVar(&runFormat, "format", "", "Export format (json, graphml, dot, csv, cytoscape)")
	runCmd.Flags().StringVar(&runLayout, "layout", "", "Layout (force, hierarchical, circular, radial)")
	runCmd.Flags().IntVar(&runMaxHops, "max-hops", 0, "Maximum path length (find-paths)")
	runCmd.Flags().StringSliceVar(&runGraphIDs, "graphs", nil, "Input graph IDs (merge-graphs)")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "Merge strategy (union, intersection, override)")
	runCmd.Flags().StringVar(&outURI, "out", "", "Write export-graph output to a directory or gs://bucket/prefix")
	runCmd.Flags().StringVar(&credentials, "credentials", "", "GCS service account key file for --out gs://")
	runCmd.Flags().BoolVar(&forceJSONMode, "json", false, "Print the raw JSON response even on a terminal")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
}

// loadConfig loads the configuration and applies the logging flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, console io.Writer) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:   cfg.SlogLevel(),
		JSON:    strings.EqualFold(cfg.Format, "json"),
		Dir:     cfg.Dir,
		Service: "kgraph",
		Console: console,
	})
}

// setupLogging installs the default logger. The returned func closes the
// log file, if any.
func setupLogging(cfg config.Config) (*slog.Logger, func(), error) {
	l, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(l.Slog())
	return l.Slog(), func() { _ = l.Close() }, nil
}
