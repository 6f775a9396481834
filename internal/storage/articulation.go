package storage

import (
	"sort"

	"infragraph/internal/metrics"
	"infragraph/pkg/models"
)

// Resource kinds considered critical for single-point-of-failure analysis.
var criticalResourceKinds = map[string]bool{
	"database": true,
	"storage":  true,
	"queue":    true,
	"cache":    true,
	"cluster":  true,
	"compute":  true,
}

// tarjanFrame is one explicit stack frame of the iterative articulation-point
// walk. Production graphs are large enough that a recursive DFS would risk
// unbounded call-stack growth.
type tarjanFrame struct {
	node      string
	parent    string
	childIdx  int
	neighbors []string
}

// FindArticulationPoints detects nodes whose removal disconnects the graph,
// using discovery/low-link bookkeeping over the undirected projection. Only
// critical resource kinds participate; runs in O(nodes + edges).
func (s *MemoryStore) FindArticulationPoints() ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics.IncStorageOp("articulation_points")

	// Undirected adjacency over critical nodes only, sorted for determinism.
	adj := make(map[string][]string)
	for _, id := range s.sortedNodeIDsLocked() {
		if criticalResourceKinds[s.nodes[id].ResourceType] {
			adj[id] = nil
		}
	}
	for _, e := range s.edges {
		if _, ok := adj[e.SourceNodeID]; !ok {
			continue
		}
		if _, ok := adj[e.TargetNodeID]; !ok {
			continue
		}
		if e.SourceNodeID == e.TargetNodeID {
			continue
		}
		adj[e.SourceNodeID] = append(adj[e.SourceNodeID], e.TargetNodeID)
		adj[e.TargetNodeID] = append(adj[e.TargetNodeID], e.SourceNodeID)
	}
	// Parallel edges add no connectivity; collapse to a simple graph.
	for id := range adj {
		sort.Strings(adj[id])
		adj[id] = compactSorted(adj[id])
	}

	disc := make(map[string]int, len(adj))
	low := make(map[string]int, len(adj))
	isArticulation := make(map[string]bool)
	timer := 0

	roots := make([]string, 0, len(adj))
	for id := range adj {
		roots = append(roots, id)
	}
	sort.Strings(roots)

	for _, root := range roots {
		if _, seen := disc[root]; seen {
			continue
		}
		rootChildren := 0
		stack := []*tarjanFrame{{node: root, neighbors: adj[root]}}
		timer++
		disc[root] = timer
		low[root] = timer

		for len(stack) > 0 {
			frame := stack[len(stack)-1]
			if frame.childIdx < len(frame.neighbors) {
				next := frame.neighbors[frame.childIdx]
				frame.childIdx++
				if next == frame.parent {
					continue
				}
				if d, seen := disc[next]; seen {
					if d < low[frame.node] {
						low[frame.node] = d
					}
					continue
				}
				if frame.node == root {
					rootChildren++
				}
				timer++
				disc[next] = timer
				low[next] = timer
				stack = append(stack, &tarjanFrame{node: next, parent: frame.node, neighbors: adj[next]})
				continue
			}

			// Frame exhausted: propagate low-link to the parent and apply
			// the articulation condition there.
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				continue
			}
			parent := stack[len(stack)-1]
			if low[frame.node] < low[parent.node] {
				low[parent.node] = low[frame.node]
			}
			if parent.node != root && low[frame.node] >= disc[parent.node] {
				isArticulation[parent.node] = true
			}
		}

		if rootChildren > 1 {
			isArticulation[root] = true
		}
	}

	out := make([]*models.Node, 0, len(isArticulation))
	ids := make([]string, 0, len(isArticulation))
	for id := range isArticulation {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, s.nodes[id].Clone())
	}
	return out, nil
}

func compactSorted(list []string) []string {
	out := list[:0]
	for i, v := range list {
		if i == 0 || list[i-1] != v {
			out = append(out, v)
		}
	}
	return out
}
