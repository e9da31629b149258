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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AleutianKG/services/kgraph"
	"github.com/AleutianAI/AleutianKG/services/kgraph/loader"
	"github.com/AleutianAI/AleutianKG/services/kgraph/sink"
	"github.com/AleutianAI/AleutianKG/services/kgraph/visualization"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// errNotExport is returned when --out is given for an operation other than
// export-graph.
var errNotExport = errors.New("--out requires operation export-graph")

// runOnce executes one request and prints the response.
func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	ctx := cmd.Context()

	req, err := buildRequest()
	if err != nil {
		return err
	}
	if outURI != "" && req.Operation != kgraph.OpExportGraph {
		return errNotExport
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	loaderCfg := cfg.Loader
	loaderCfg.Watch = false
	if _, err := startLoader(ctx, loaderCfg, a.svc, logger); err != nil {
		return err
	}
	for _, path := range graphFiles {
		def, err := loader.LoadFile(path)
		if err != nil {
			return err
		}
		if err := a.svc.Apply(ctx, def); err != nil {
			return fmt.Errorf("build %s: %w", path, err)
		}
	}

	resp, err := a.svc.Execute(ctx, req)
	if err != nil {
		return err
	}

	var location string
	if outURI != "" {
		location, err = writeExport(ctx, resp, outURI, sink.Options{CredentialsFile: credentials})
		if err != nil {
			return err
		}
		logger.Info("Export written", slog.String("location", location))
	}

	styled := !forceJSONMode && isTerminal(os.Stdout)
	return printResponse(cmd.OutOrStdout(), resp, location, styled)
}

// buildRequest reads --request when given and overlays the operation flags.
func buildRequest() (*kgraph.Request, error) {
	req := &kgraph.Request{}
	if requestFile != "" {
		var err error
		if req, err = readRequestFile(requestFile); err != nil {
			return nil, err
		}
	}

	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&req.Operation, runOp)
	overlay(&req.GraphID, runGraphID)
	overlay(&req.SourceID, runSource)
	overlay(&req.TargetID, runTarget)
	overlay(&req.Algorithm, runAlgorithm)
	overlay(&req.Format, runFormat)
	overlay(&req.Layout, runLayout)
	overlay(&req.MergeStrategy, runStrategy)
	if runMaxHops > 0 {
		req.MaxHops = runMaxHops
	}
	if len(runGraphIDs) > 0 {
		req.GraphIDs = runGraphIDs
	}

	if req.Operation == "" {
		return nil, fmt.Errorf("%w: set --op or operation in --request", kgraph.ErrMissingField)
	}
	return req, nil
}

// readRequestFile parses a JSON or YAML request envelope. YAML is
// converted to JSON first so both formats use the same camelCase keys.
func readRequestFile(path string) (*kgraph.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("convert %s: %w", path, err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var req kgraph.Request
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &req, nil
}

// writeExport stores an export-graph result in the sink at uri as
// <graphId>.<ext> and returns its location.
func writeExport(ctx context.Context, resp *kgraph.Response, uri string, opts sink.Options) (string, error) {
	if resp.Operation != kgraph.OpExportGraph {
		return "", errNotExport
	}
	var res visualization.ExportResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		return "", fmt.Errorf("decode export result: %w", err)
	}

	s, err := sink.Open(ctx, uri, opts)
	if err != nil {
		return "", err
	}
	defer s.Close()

	name := res.GraphID + "." + res.Format.Extension()
	return s.Write(ctx, name, res.ContentType, []byte(res.Data))
}
