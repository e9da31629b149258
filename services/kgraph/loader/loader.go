// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package loader reads graph definition files and feeds them to build-graph.
//
// A definition file holds a graphId, an entity list and a relation list,
// in YAML (.yaml, .yml) or JSON (.json):
//
//	graphId: org-chart
//	entities:
//	  - {id: alice, type: Person, properties: {name: Alice}}
//	  - {id: acme, type: Company}
//	relations:
//	  - {from: alice, to: acme, type: works_at}
//
// A file without graphId builds a graph named after the file stem.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianKG/services/kgraph/graph"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFile is returned for files that are not .yaml, .yml or .json.
var ErrUnsupportedFile = errors.New("unsupported graph definition file")

// ApplyFunc materializes one definition, normally by dispatching a
// build-graph operation.
type ApplyFunc func(ctx context.Context, def graph.BuildInput) error

// IsDefinitionFile reports whether path has a supported extension.
func IsDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadFile parses one definition file.
func LoadFile(path string) (graph.BuildInput, error) {
	var def graph.BuildInput
	if !IsDefinitionFile(path) {
		return def, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("read %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&def)
	} else {
		err = yaml.Unmarshal(data, &def)
	}
	if err != nil {
		return def, fmt.Errorf("parse %s: %w", path, err)
	}

	if def.GraphID == "" {
		base := filepath.Base(path)
		def.GraphID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return def, nil
}

// Loader applies every definition file in a directory.
type Loader struct {
	dir    string
	apply  ApplyFunc
	logger *slog.Logger
}

// New creates a loader for dir. A nil logger uses slog.Default().
func New(dir string, apply ApplyFunc, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dir: dir, apply: apply, logger: logger.With(slog.String("component", "loader"))}
}

// Dir returns the definition directory.
func (l *Loader) Dir() string { return l.dir }

// LoadAll applies each definition file in lexical order.
//
// # Description
//
// A bad file does not stop the others; every failure is logged and the
// joined error is returned along with the number of graphs applied.
func (l *Loader) LoadAll(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, fmt.Errorf("read graph directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsDefinitionFile(e.Name()) {
			paths = append(paths, filepath.Join(l.dir, e.Name()))
		}
	}
	sort.Strings(paths)

	applied := 0
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if err := l.LoadPath(ctx, p); err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

// LoadPath parses and applies a single file.
func (l *Loader) LoadPath(ctx context.Context, path string) error {
	def, err := LoadFile(path)
	if err != nil {
		l.logger.Warn("Skipping graph definition", slog.String("path", path), slog.String("error", err.Error()))
		return err
	}
	if err := l.apply(ctx, def); err != nil {
		l.logger.Warn("Failed to apply graph definition",
			slog.String("path", path),
			slog.String("graph_id", def.GraphID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("apply %s: %w", path, err)
	}
	l.logger.Info("Graph definition applied",
		slog.String("path", path),
		slog.String("graph_id", def.GraphID),
		slog.Int("entities", len(def.Entities)),
		slog.Int("relations", len(def.Relations)),
	)
	return nil
}
