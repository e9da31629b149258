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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AleutianAI/AleutianKG/services/kgraph"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Terminal palette.
var (
	colorTealBright = lipgloss.Color("#2CD7C7")
	colorTealDeep   = lipgloss.Color("#16858E")
	colorSlate      = lipgloss.Color("#2C4A54")
	colorWarning    = lipgloss.Color("#F4D03F")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTealBright)
	labelStyle = lipgloss.NewStyle().Foreground(colorSlate).Width(14)
	hitStyle   = lipgloss.NewStyle().Foreground(colorTealBright)
	missStyle  = lipgloss.NewStyle().Foreground(colorWarning)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorTealDeep).
			Padding(0, 1)
)

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// renderSummary draws the response metadata in a box.
func renderSummary(resp *kgraph.Response, location string) string {
	cacheState := missStyle.Render("miss")
	if resp.CacheHit {
		cacheState = hitStyle.Render("hit")
	}

	rows := [][2]string{
		{"Operation", resp.Operation},
		{"Graph", resp.GraphID},
		{"Cache", cacheState},
		{"Tokens saved", fmt.Sprintf("%d", resp.TokensSaved)},
		{"Duration", fmt.Sprintf("%dms", resp.DurationMs)},
	}
	if location != "" {
		rows = append(rows, [2]string{"Written to", location})
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("kgraph"))
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(r[0]))
		b.WriteString(r[1])
	}
	return boxStyle.Render(b.String())
}

// printResponse writes resp to w: the indented JSON envelope, or on a
// terminal a summary box followed by the indented result.
func printResponse(w io.Writer, resp *kgraph.Response, location string, styled bool) error {
	if !styled {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if _, err := fmt.Fprintln(w, renderSummary(resp, location)); err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Result, "", "  "); err != nil {
		return err
	}
	pretty.WriteByte('\n')
	_, err := pretty.WriteTo(w)
	return err
}
