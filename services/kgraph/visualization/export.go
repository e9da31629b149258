// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package visualization

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianKG/services/kgraph/graph"
	"go.opentelemetry.io/otel/attribute"
)

// ExportFormat specifies the serialization format.
type ExportFormat string

const (
	FormatJSON      ExportFormat = "json"
	FormatGraphML   ExportFormat = "graphml"
	FormatDOT       ExportFormat = "dot"
	FormatCSV       ExportFormat = "csv"
	FormatCytoscape ExportFormat = "cytoscape"
)

var contentTypes = map[ExportFormat]string{
	FormatJSON:      "application/json",
	FormatGraphML:   "application/graphml+xml",
	FormatDOT:       "text/vnd.graphviz",
	FormatCSV:       "text/csv",
	FormatCytoscape: "application/json",
}

// Extension returns the conventional file extension for the format.
func (f ExportFormat) Extension() string {
	switch f {
	case FormatCytoscape:
		return "cyjs"
	case FormatDOT:
		return "gv"
	}
	return string(f)
}

// ExportResult holds a serialized graph.
type ExportResult struct {
	GraphID     string       `json:"graphId"`
	Format      ExportFormat `json:"format"`
	ContentType string       `json:"contentType"`
	Data        string       `json:"data"`
	Size        int          `json:"size"`
}

// Export serializes g in the requested format.
//
// Formats:
//
//	json      {"nodes": [...], "edges": [...]}, two-space indented
//	graphml   GraphML document with a "type" data key on nodes and edges
//	dot       digraph G { "id" [label="id" type="type"]; "a" -> "b" [label="type"]; }
//	csv       header type,from,to,edge_type; rows node,<id>,<type>, and edge,<from>,<to>,<type>
//	cytoscape {"nodes":[{"data":{id,type,properties}}],"edges":[{"data":{id,source,target,type}}]}
//
// Empty format means json. An unknown format returns ErrUnknownFormat.
func Export(ctx context.Context, g *graph.Graph, format ExportFormat) (*ExportResult, error) {
	if format == "" {
		format = FormatJSON
	}

	_, span := tracer.Start(ctx, "Export")
	defer span.End()
	span.SetAttributes(attribute.String("export.format", string(format)))

	var (
		data string
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = exportJSON(g)
	case FormatGraphML:
		data = exportGraphML(g)
	case FormatDOT:
		data = exportDOT(g)
	case FormatCSV:
		data = exportCSV(g)
	case FormatCytoscape:
		data, err = exportCytoscape(g)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}

	span.SetAttributes(attribute.Int("export.bytes", len(data)))
	return &ExportResult{
		GraphID:     g.ID(),
		Format:      format,
		ContentType: contentTypes[format],
		Data:        data,
		Size:        len(data),
	}, nil
}

func exportJSON(g *graph.Graph) (string, error) {
	doc := struct {
		Nodes []graph.Node `json:"nodes"`
		Edges []graph.Edge `json:"edges"`
	}{
		Nodes: nonNilNodes(g.Nodes()),
		Edges: nonNilEdges(g.Edges()),
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

func exportGraphML(g *graph.Graph) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<graphml xmlns="http://graphml.graphdrawing.org/xmlns">` + "\n")
	sb.WriteString(`  <key id="type" for="all" attr.name="type" attr.type="string"/>` + "\n")
	sb.WriteString(`  <graph id="G" edgedefault="directed">` + "\n")
	for _, n := range g.Nodes() {
		fmt.Fprintf(&sb, "    <node id=\"%s\"><data key=\"type\">%s</data></node>\n",
			xmlEscaper.Replace(n.ID), xmlEscaper.Replace(n.Type))
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(&sb, "    <edge source=\"%s\" target=\"%s\"><data key=\"type\">%s</data></edge>\n",
			xmlEscaper.Replace(e.From), xmlEscaper.Replace(e.To), xmlEscaper.Replace(e.Type))
	}
	sb.WriteString("  </graph>\n")
	sb.WriteString("</graphml>\n")
	return sb.String()
}

func exportDOT(g *graph.Graph) string {
	var sb strings.Builder
	sb.WriteString("digraph G {\n")
	for _, n := range g.Nodes() {
		fmt.Fprintf(&sb, "  \"%s\" [label=\"%s\" type=\"%s\"];\n", n.ID, n.ID, n.Type)
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(&sb, "  \"%s\" -> \"%s\" [label=\"%s\"];\n", e.From, e.To, e.Type)
	}
	sb.WriteString("}")
	return sb.String()
}

func exportCSV(g *graph.Graph) string {
	var sb strings.Builder
	sb.WriteString("type,from,to,edge_type\n")
	for _, n := range g.Nodes() {
		sb.WriteString("node," + n.ID + "," + n.Type + ",\n")
	}
	for _, e := range g.Edges() {
		sb.WriteString("edge," + e.From + "," + e.To + "," + e.Type + "\n")
	}
	return sb.String()
}

type cyNodeData struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Properties graph.Properties `json:"properties"`
}

type cyEdgeData struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

type cyElement[T any] struct {
	Data T `json:"data"`
}

func exportCytoscape(g *graph.Graph) (string, error) {
	doc := struct {
		Nodes []cyElement[cyNodeData] `json:"nodes"`
		Edges []cyElement[cyEdgeData] `json:"edges"`
	}{
		Nodes: make([]cyElement[cyNodeData], 0, g.NodeCount()),
		Edges: make([]cyElement[cyEdgeData], 0, g.EdgeCount()),
	}
	for _, n := range g.Nodes() {
		props := n.Properties
		if props == nil {
			props = graph.Properties{}
		}
		doc.Nodes = append(doc.Nodes, cyElement[cyNodeData]{Data: cyNodeData{ID: n.ID, Type: n.Type, Properties: props}})
	}
	for i, e := range g.Edges() {
		doc.Edges = append(doc.Edges, cyElement[cyEdgeData]{Data: cyEdgeData{
			ID:     "e" + strconv.Itoa(i),
			Source: e.From,
			Target: e.To,
			Type:   e.Type,
		}})
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nonNilNodes(n []graph.Node) []graph.Node {
	if n == nil {
		return []graph.Node{}
	}
	return n
}

func nonNilEdges(e []graph.Edge) []graph.Edge {
	if e == nil {
		return []graph.Edge{}
	}
	return e
}
