// Package snapshot loads and exports graph snapshots as JSON lines, one
// record per line. Snapshots are how discovery output gets into the store and
// how operators export a graph for offline analysis.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"infragraph/internal/logger"
	"infragraph/internal/storage"
	"infragraph/pkg/models"
)

// record is one snapshot line, either a node or an edge.
type record struct {
	Kind string       `json:"kind"` // node or edge
	Node *models.Node `json:"node,omitempty"`
	Edge *models.Edge `json:"edge,omitempty"`
}

// Load reads a JSONL snapshot into the store. Malformed lines are skipped
// with a warning; the returned counts reflect what was actually applied.
func Load(path string, store storage.Store, actor models.Actor) (nodes, edges int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			logger.Warnf("Skipping malformed snapshot line %d: %v", line, err)
			continue
		}
		switch {
		case rec.Kind == "node" && rec.Node != nil:
			if err := store.UpsertNode(rec.Node, actor); err != nil {
				logger.Warnf("Skipping invalid node at line %d: %v", line, err)
				continue
			}
			nodes++
		case rec.Kind == "edge" && rec.Edge != nil:
			if err := store.UpsertEdge(rec.Edge, actor); err != nil {
				logger.Warnf("Skipping invalid edge at line %d: %v", line, err)
				continue
			}
			edges++
		default:
			logger.Warnf("Skipping snapshot line %d with unknown kind %q", line, rec.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nodes, edges, fmt.Errorf("read snapshot: %w", err)
	}

	logger.Infof("Snapshot loaded: %d nodes, %d edges from %s", nodes, edges, path)
	return nodes, edges, nil
}

// Export writes every node and edge visible through the store to a JSONL
// file. Run it through an access-wrapped store to export only what the
// principal may see.
func Export(path string, store storage.Store) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	nodes, err := store.QueryNodes(models.NodeFilter{})
	if err != nil {
		return fmt.Errorf("query nodes: %w", err)
	}
	for _, n := range nodes {
		if err := enc.Encode(record{Kind: "node", Node: n}); err != nil {
			return fmt.Errorf("encode node %s: %w", n.ID, err)
		}
	}

	edges, err := store.QueryEdges(models.EdgeFilter{})
	if err != nil {
		return fmt.Errorf("query edges: %w", err)
	}
	for _, e := range edges {
		if err := enc.Encode(record{Kind: "edge", Edge: e}); err != nil {
			return fmt.Errorf("encode edge %s: %w", e.ID, err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	logger.Infof("Snapshot exported: %d nodes, %d edges to %s", len(nodes), len(edges), path)
	return nil
}
