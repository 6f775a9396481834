package storage

import (
	"sort"

	"infragraph/internal/metrics"
	"infragraph/pkg/models"
)

// Traversal cost bounds. These are part of the contract, not tuning knobs:
// depth and result size are always capped regardless of what the caller asks
// for.
const (
	MaxTraversalDepth   = 32
	MaxTraversalResults = 100000
)

type bfsItem struct {
	id    string
	depth int
}

type pathHop struct {
	prev   string
	edgeID string
}

// GetNeighbors returns all nodes and edges reachable from nodeID within depth
// hops. A visited set guarantees termination on cyclic graphs and that no
// node is returned twice; dangling edges are skipped.
func (s *MemoryStore) GetNeighbors(nodeID string, depth int, direction models.Direction) (*models.Subgraph, error) {
	if err := validateNodeID(nodeID); err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 1
	}
	if depth > MaxTraversalDepth {
		depth = MaxTraversalDepth
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics.IncStorageOp("get_neighbors")

	sub := &models.Subgraph{Nodes: []*models.Node{}, Edges: []*models.Edge{}}
	if _, ok := s.nodes[nodeID]; !ok {
		return sub, nil
	}

	visited := map[string]bool{nodeID: true}
	seenEdges := map[string]bool{}
	queue := []bfsItem{{id: nodeID, depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= depth {
			continue
		}
		for _, edgeID := range s.edgeIDsForNodeLocked(item.id, direction) {
			edge := s.edges[edgeID]
			next := edge.TargetNodeID
			if next == item.id {
				next = edge.SourceNodeID
			}
			// Skip dangling edges whose far endpoint was deleted.
			if _, ok := s.nodes[next]; !ok {
				continue
			}
			if !seenEdges[edgeID] {
				seenEdges[edgeID] = true
				sub.Edges = append(sub.Edges, edge.Clone())
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			sub.Nodes = append(sub.Nodes, s.nodes[next].Clone())
			if len(sub.Nodes) >= MaxTraversalResults {
				return sub, nil
			}
			queue = append(queue, bfsItem{id: next, depth: item.depth + 1})
		}
	}

	return sub, nil
}

// ShortestPath finds the unweighted breadth-first shortest path between two
// nodes, following edges in either direction. Ties between equal-length paths
// resolve by sorted adjacency order, so results are stable.
func (s *MemoryStore) ShortestPath(fromID, toID string) (*models.Path, error) {
	if err := validateNodeID(fromID); err != nil {
		return nil, err
	}
	if err := validateNodeID(toID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics.IncStorageOp("shortest_path")

	if _, ok := s.nodes[fromID]; !ok {
		return &models.Path{}, nil
	}
	if _, ok := s.nodes[toID]; !ok {
		return &models.Path{}, nil
	}
	if fromID == toID {
		return &models.Path{Found: true, Hops: 0, Nodes: []*models.Node{s.nodes[fromID].Clone()}, Edges: []*models.Edge{}}, nil
	}

	visited := map[string]pathHop{fromID: {}}
	queue := []string{fromID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, edgeID := range s.edgeIDsForNodeLocked(current, models.DirectionBoth) {
			edge := s.edges[edgeID]
			next := edge.TargetNodeID
			if next == current {
				next = edge.SourceNodeID
			}
			if _, ok := s.nodes[next]; !ok {
				continue
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = pathHop{prev: current, edgeID: edgeID}
			if next == toID {
				return s.buildPathLocked(fromID, toID, visited), nil
			}
			queue = append(queue, next)
		}
	}

	return &models.Path{}, nil
}

func (s *MemoryStore) buildPathLocked(fromID, toID string, visited map[string]pathHop) *models.Path {
	ids := []string{toID}
	edgeIDs := []string{}
	for current := toID; current != fromID; {
		h := visited[current]
		edgeIDs = append(edgeIDs, h.edgeID)
		current = h.prev
		ids = append(ids, current)
	}
	// Reverse into from→to order.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	for i, j := 0, len(edgeIDs)-1; i < j; i, j = i+1, j-1 {
		edgeIDs[i], edgeIDs[j] = edgeIDs[j], edgeIDs[i]
	}

	path := &models.Path{Found: true, Hops: len(edgeIDs)}
	for _, id := range ids {
		path.Nodes = append(path.Nodes, s.nodes[id].Clone())
	}
	for _, id := range edgeIDs {
		path.Edges = append(path.Edges, s.edges[id].Clone())
	}
	return path
}

// BlastRadius runs the neighbor traversal and aggregates monthly cost per hop
// distance from the origin.
func (s *MemoryStore) BlastRadius(nodeID string, maxDepth int) (*models.BlastRadius, error) {
	if err := validateNodeID(nodeID); err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if maxDepth > MaxTraversalDepth {
		maxDepth = MaxTraversalDepth
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics.IncStorageOp("blast_radius")

	result := &models.BlastRadius{
		OriginID:    nodeID,
		Nodes:       []*models.Node{},
		Edges:       []*models.Edge{},
		CostByDepth: make(map[int]float64),
	}
	if _, ok := s.nodes[nodeID]; !ok {
		return result, nil
	}

	visited := map[string]bool{nodeID: true}
	seenEdges := map[string]bool{}
	queue := []bfsItem{{id: nodeID, depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= maxDepth {
			continue
		}
		for _, edgeID := range s.edgeIDsForNodeLocked(item.id, models.DirectionDownstream) {
			edge := s.edges[edgeID]
			next := edge.TargetNodeID
			node, ok := s.nodes[next]
			if !ok {
				continue
			}
			if !seenEdges[edgeID] {
				seenEdges[edgeID] = true
				result.Edges = append(result.Edges, edge.Clone())
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			result.Nodes = append(result.Nodes, node.Clone())
			if node.CostMonthly != nil {
				result.CostByDepth[item.depth+1] += *node.CostMonthly
				result.TotalCost += *node.CostMonthly
			}
			if len(result.Nodes) >= MaxTraversalResults {
				return result, nil
			}
			queue = append(queue, bfsItem{id: next, depth: item.depth + 1})
		}
	}

	sortNodesByID(result.Nodes)
	return result, nil
}

func sortNodesByID(nodes []*models.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
