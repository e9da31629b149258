// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command kgraph serves and runs knowledge-graph analytics.
//
// Usage:
//
//	kgraph serve --config kgraph.yaml
//	kgraph run --graph-file people.yaml --op find-paths --graph people --source alice --target acme
//	kgraph run --request export.json --out gs://exports/kg
//
// Example requests:
//
//	# Health check
//	curl http://localhost:12240/v1/kgraph/health
//
//	# Build a graph
//	curl -X POST http://localhost:12240/v1/kgraph/execute \
//	  -H "Content-Type: application/json" \
//	  -d '{"operation": "build-graph", "graphId": "people",
//	       "entities": [{"id": "alice", "type": "Person"}, {"id": "acme", "type": "Company"}],
//	       "relations": [{"from": "alice", "to": "acme", "type": "works_at"}]}'
//
//	# Detect communities
//	curl -X POST http://localhost:12240/v1/kgraph/execute \
//	  -H "Content-Type: application/json" \
//	  -d '{"operation": "detect-communities", "graphId": "people", "algorithm": "louvain"}'
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
