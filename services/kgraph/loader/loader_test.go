// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianKG/services/kgraph/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orgChartYAML = `graphId: org-chart
entities:
  - id: alice
    type: Person
    properties:
      name: Alice
      age: 34
  - id: acme
    type: Company
relations:
  - from: alice
    to: acme
    type: works_at
`

const teamJSON = `{
  "entities": [{"id": "a", "type": "T"}, {"id": "b", "type": "T"}],
  "relations": [{"from": "a", "to": "b", "type": "knows"}]
}`

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

// recorder collects applied definitions.
type recorder struct {
	mu   sync.Mutex
	defs []graph.BuildInput
	fail string
}

func (r *recorder) apply(_ context.Context, def graph.BuildInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if def.GraphID == r.fail {
		return errors.New("boom")
	}
	r.defs = append(r.defs, def)
	return nil
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.defs))
	for i, d := range r.defs {
		out[i] = d.GraphID
	}
	return out
}

func TestLoadFile_YAML(t *testing.T) {
	p := write(t, t.TempDir(), "org.yaml", orgChartYAML)
	def, err := LoadFile(p)
	require.NoError(t, err)

	assert.Equal(t, "org-chart", def.GraphID)
	require.Len(t, def.Entities, 2)
	assert.True(t, def.Entities[0].Properties["age"].Equal(graph.Number(34)))
	name, ok := def.Entities[0].Properties.StringValue("name")
	assert.True(t, ok)
	assert.Equal(t, "Alice", name)
	require.Len(t, def.Relations, 1)
	assert.Equal(t, "works_at", def.Relations[0].Type)
}

func TestLoadFile_JSONDefaultsGraphIDToStem(t *testing.T) {
	p := write(t, t.TempDir(), "team.json", teamJSON)
	def, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "team", def.GraphID)
	assert.Len(t, def.Entities, 2)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(write(t, dir, "notes.txt", "hello"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = LoadFile(write(t, dir, "bad.json", `{"entities": [`))
	assert.Error(t, err)

	_, err = LoadFile(write(t, dir, "extra.json", `{"nodes": []}`))
	assert.Error(t, err, "unknown fields are rejected in JSON")
}

func TestLoader_LoadAll(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b.json", teamJSON)
	write(t, dir, "a.yaml", orgChartYAML)
	write(t, dir, "README.md", "ignored")
	write(t, dir, "c.yml", "entities: [")

	rec := &recorder{}
	n, err := New(dir, rec.apply, nil).LoadAll(context.Background())

	assert.Error(t, err, "broken c.yml is reported")
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"org-chart", "b"}, rec.ids())
}

func TestLoader_LoadAllApplyFailure(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", orgChartYAML)
	write(t, dir, "b.json", teamJSON)

	rec := &recorder{fail: "org-chart"}
	n, err := New(dir, rec.apply, nil).LoadAll(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"b"}, rec.ids())
}

func TestLoader_MissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), (&recorder{}).apply, nil).LoadAll(context.Background())
	assert.Error(t, err)
}

func TestWatcher_ReappliesChangedFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := NewWatcher(New(dir, rec.apply, nil), 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	write(t, dir, "team.json", teamJSON)
	write(t, dir, "ignored.txt", "x")

	require.Eventually(t, func() bool {
		ids := rec.ids()
		return len(ids) >= 1 && ids[0] == "team"
	}, 3*time.Second, 20*time.Millisecond)

	// Multiple writes to one file within the window collapse into one apply.
	before := len(rec.ids())
	p := filepath.Join(dir, "org.yaml")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(p, []byte(orgChartYAML), 0o600))
	}
	require.Eventually(t, func() bool {
		ids := rec.ids()
		return len(ids) > before && ids[len(ids)-1] == "org-chart"
	}, 3*time.Second, 20*time.Millisecond)
	for _, id := range rec.ids() {
		assert.NotEqual(t, "ignored", id)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(New(t.TempDir(), (&recorder{}).apply, nil), 0)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
