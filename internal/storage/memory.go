package storage

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"infragraph/internal/logger"
	"infragraph/internal/metrics"
	"infragraph/pkg/models"
)

// MemoryStore is the in-memory Store backend. All reads and writes copy at
// the boundary so callers never alias internal state.
type MemoryStore struct {
	mu          sync.RWMutex
	nodes       map[string]*models.Node
	edges       map[string]*models.Edge
	outEdges    map[string][]string // source node id -> edge ids
	inEdges     map[string][]string // target node id -> edge ids
	nativeIndex map[string]string   // provider|nativeID -> node id
	changes     []*models.Change
	sink        ChangeSink
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:       make(map[string]*models.Node),
		edges:       make(map[string]*models.Edge),
		outEdges:    make(map[string][]string),
		inEdges:     make(map[string][]string),
		nativeIndex: make(map[string]string),
		now:         time.Now,
	}
}

// SetChangeSink forwards every appended change record to sink. Sink failures
// are logged and never fail the originating write.
func (s *MemoryStore) SetChangeSink(sink ChangeSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func validateNodeID(id string) error {
	if strings.TrimSpace(id) == "" {
		return validationErrorf("id", "id must not be empty")
	}
	if id != strings.TrimSpace(id) {
		return validationErrorf("id", "id must not carry leading or trailing whitespace")
	}
	return nil
}

func validateNode(n *models.Node) error {
	if n == nil {
		return validationErrorf("node", "node must not be nil")
	}
	if err := validateNodeID(n.ID); err != nil {
		return err
	}
	if strings.TrimSpace(n.Provider) == "" {
		return validationErrorf("provider", "provider must not be empty")
	}
	if strings.TrimSpace(n.ResourceType) == "" {
		return validationErrorf("resource_type", "resource type must not be empty")
	}
	return nil
}

func validateEdge(e *models.Edge) error {
	if e == nil {
		return validationErrorf("edge", "edge must not be nil")
	}
	if err := validateNodeID(e.ID); err != nil {
		return err
	}
	if strings.TrimSpace(e.SourceNodeID) == "" || strings.TrimSpace(e.TargetNodeID) == "" {
		return validationErrorf("endpoints", "source and target node ids must not be empty")
	}
	if strings.TrimSpace(e.RelationshipType) == "" {
		return validationErrorf("relationship_type", "relationship type must not be empty")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return validationErrorf("confidence", "confidence must be within [0, 1], got %g", e.Confidence)
	}
	return nil
}

// UpsertNode inserts or updates one node by id.
func (s *MemoryStore) UpsertNode(node *models.Node, actor models.Actor) error {
	if err := validateNode(node); err != nil {
		return err
	}
	s.mu.Lock()
	change := s.upsertNodeLocked(node, actor)
	sink := s.sink
	s.mu.Unlock()
	metrics.IncStorageOp("upsert_node")
	emitChanges(sink, change)
	return nil
}

// UpsertNodes applies the batch in order; the first invalid item aborts the
// remainder without rolling back earlier items.
func (s *MemoryStore) UpsertNodes(nodes []*models.Node, actor models.Actor) error {
	s.mu.Lock()
	changes := make([]*models.Change, 0, len(nodes))
	for i, node := range nodes {
		if err := validateNode(node); err != nil {
			sink := s.sink
			s.mu.Unlock()
			emitChanges(sink, changes...)
			return validationErrorf("batch", "item %d: %v", i, err)
		}
		changes = append(changes, s.upsertNodeLocked(node, actor))
	}
	sink := s.sink
	s.mu.Unlock()
	metrics.IncStorageOp("upsert_nodes")
	emitChanges(sink, changes...)
	return nil
}

func (s *MemoryStore) upsertNodeLocked(node *models.Node, actor models.Actor) *models.Change {
	now := s.now().UTC()
	stored := node.Clone()
	if stored.Status == "" {
		stored.Status = models.StatusUnknown
	}

	kind := models.ChangeNodeCreated
	if existing, ok := s.nodes[node.ID]; ok {
		kind = models.ChangeNodeUpdated
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = existing.CreatedAt
		}
		if stored.DiscoveredAt.IsZero() {
			stored.DiscoveredAt = existing.DiscoveredAt
		}
		// UpdatedAt and LastSeenAt are monotonically non-decreasing.
		stored.UpdatedAt = laterOf(existing.UpdatedAt, now)
		stored.LastSeenAt = laterOf(existing.LastSeenAt, now)
	} else {
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		if stored.DiscoveredAt.IsZero() {
			stored.DiscoveredAt = now
		}
		stored.UpdatedAt = laterOf(stored.UpdatedAt, now)
		stored.LastSeenAt = laterOf(stored.LastSeenAt, now)
	}

	s.nodes[stored.ID] = stored
	if stored.NativeID != "" {
		s.nativeIndex[nativeKey(stored.Provider, stored.NativeID)] = stored.ID
	}
	return s.appendChangeLocked(kind, stored.ID, actor)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func nativeKey(provider, nativeID string) string {
	return strings.ToLower(provider) + "|" + strings.ToLower(nativeID)
}

// GetNode returns the node or (nil, nil) for an unknown id.
func (s *MemoryStore) GetNode(id string) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	return n.Clone(), nil
}

// GetNodeByNativeID returns the node registered under the provider-native id.
func (s *MemoryStore) GetNodeByNativeID(provider, nativeID string) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nativeIndex[nativeKey(provider, nativeID)]
	if !ok {
		return nil, nil
	}
	n, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	return n.Clone(), nil
}

// QueryNodes returns every node matching the filter, ordered by id.
func (s *MemoryStore) QueryNodes(filter models.NodeFilter) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics.IncStorageOp("query_nodes")
	out := make([]*models.Node, 0)
	for _, id := range s.sortedNodeIDsLocked() {
		n := s.nodes[id]
		if filter.Matches(n) {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

// QueryNodesPaginated returns one page of the filtered node set together with
// the total match count and an opaque cursor for the next page.
func (s *MemoryStore) QueryNodesPaginated(filter models.NodeFilter, cursor string, limit int) (*models.NodePage, error) {
	if limit <= 0 {
		limit = 100
	}
	offset := 0
	if cursor != "" {
		decoded, err := base64.StdEncoding.DecodeString(cursor)
		if err != nil {
			return nil, validationErrorf("cursor", "malformed cursor")
		}
		offset, err = strconv.Atoi(string(decoded))
		if err != nil || offset < 0 {
			return nil, validationErrorf("cursor", "malformed cursor")
		}
	}

	matched, err := s.QueryNodes(filter)
	if err != nil {
		return nil, err
	}

	page := &models.NodePage{TotalCount: len(matched)}
	if offset >= len(matched) {
		page.Items = []*models.Node{}
		return page, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Items = matched[offset:end]
	if end < len(matched) {
		page.NextCursor = base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(end)))
	}
	return page, nil
}

// DeleteNode removes the node. Edges referencing it stay behind as dangling
// edges; deleting an unknown id is a no-op.
func (s *MemoryStore) DeleteNode(id string, actor models.Actor) error {
	if err := validateNodeID(id); err != nil {
		return err
	}
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.nodes, id)
	if n.NativeID != "" {
		delete(s.nativeIndex, nativeKey(n.Provider, n.NativeID))
	}
	change := s.appendChangeLocked(models.ChangeNodeDeleted, id, actor)
	sink := s.sink
	s.mu.Unlock()
	metrics.IncStorageOp("delete_node")
	emitChanges(sink, change)
	return nil
}

// UpsertEdge inserts or updates one edge by id.
func (s *MemoryStore) UpsertEdge(edge *models.Edge, actor models.Actor) error {
	if err := validateEdge(edge); err != nil {
		return err
	}
	s.mu.Lock()
	change := s.upsertEdgeLocked(edge, actor)
	sink := s.sink
	s.mu.Unlock()
	metrics.IncStorageOp("upsert_edge")
	emitChanges(sink, change)
	return nil
}

// UpsertEdges applies the batch in order with the same semantics as
// UpsertNodes.
func (s *MemoryStore) UpsertEdges(edges []*models.Edge, actor models.Actor) error {
	s.mu.Lock()
	changes := make([]*models.Change, 0, len(edges))
	for i, edge := range edges {
		if err := validateEdge(edge); err != nil {
			sink := s.sink
			s.mu.Unlock()
			emitChanges(sink, changes...)
			return validationErrorf("batch", "item %d: %v", i, err)
		}
		changes = append(changes, s.upsertEdgeLocked(edge, actor))
	}
	sink := s.sink
	s.mu.Unlock()
	metrics.IncStorageOp("upsert_edges")
	emitChanges(sink, changes...)
	return nil
}

func (s *MemoryStore) upsertEdgeLocked(edge *models.Edge, actor models.Actor) *models.Change {
	stored := edge.Clone()
	kind := models.ChangeEdgeCreated
	if existing, ok := s.edges[edge.ID]; ok {
		kind = models.ChangeEdgeUpdated
		s.dropAdjacencyLocked(existing)
	}
	s.edges[stored.ID] = stored
	s.outEdges[stored.SourceNodeID] = insertSorted(s.outEdges[stored.SourceNodeID], stored.ID)
	s.inEdges[stored.TargetNodeID] = insertSorted(s.inEdges[stored.TargetNodeID], stored.ID)
	return s.appendChangeLocked(kind, stored.ID, actor)
}

// GetEdge returns the edge or (nil, nil) for an unknown id.
func (s *MemoryStore) GetEdge(id string) (*models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

// QueryEdges returns every edge matching the filter, ordered by id.
func (s *MemoryStore) QueryEdges(filter models.EdgeFilter) ([]*models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics.IncStorageOp("query_edges")
	ids := make([]string, 0, len(s.edges))
	for id := range s.edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*models.Edge, 0)
	for _, id := range ids {
		e := s.edges[id]
		if filter.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// DeleteEdge removes the edge; unknown ids are a no-op.
func (s *MemoryStore) DeleteEdge(id string, actor models.Actor) error {
	if err := validateNodeID(id); err != nil {
		return err
	}
	s.mu.Lock()
	e, ok := s.edges[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.edges, id)
	s.dropAdjacencyLocked(e)
	change := s.appendChangeLocked(models.ChangeEdgeDeleted, id, actor)
	sink := s.sink
	s.mu.Unlock()
	metrics.IncStorageOp("delete_edge")
	emitChanges(sink, change)
	return nil
}

func (s *MemoryStore) dropAdjacencyLocked(e *models.Edge) {
	s.outEdges[e.SourceNodeID] = removeString(s.outEdges[e.SourceNodeID], e.ID)
	s.inEdges[e.TargetNodeID] = removeString(s.inEdges[e.TargetNodeID], e.ID)
}

// GetEdgesForNode returns the edges touching the node in the given direction.
// Downstream follows outgoing edges, upstream incoming ones.
func (s *MemoryStore) GetEdgesForNode(nodeID string, direction models.Direction) ([]*models.Edge, error) {
	if err := validateNodeID(nodeID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Edge, 0)
	for _, id := range s.edgeIDsForNodeLocked(nodeID, direction) {
		out = append(out, s.edges[id].Clone())
	}
	return out, nil
}

// edgeIDsForNodeLocked returns sorted edge ids for a node and direction.
// Adjacency lists are kept sorted, so traversal order is deterministic.
func (s *MemoryStore) edgeIDsForNodeLocked(nodeID string, direction models.Direction) []string {
	switch direction {
	case models.DirectionDownstream:
		return s.outEdges[nodeID]
	case models.DirectionUpstream:
		return s.inEdges[nodeID]
	default:
		merged := make([]string, 0, len(s.outEdges[nodeID])+len(s.inEdges[nodeID]))
		merged = append(merged, s.outEdges[nodeID]...)
		merged = append(merged, s.inEdges[nodeID]...)
		sort.Strings(merged)
		return merged
	}
}

// GetChanges queries the append-only change log, oldest first.
func (s *MemoryStore) GetChanges(filter models.ChangeFilter) ([]*models.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics.IncStorageOp("get_changes")
	out := make([]*models.Change, 0)
	for _, c := range s.changes {
		if filter.Matches(c) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

// GetStats aggregates counts and monthly cost breakdowns.
func (s *MemoryStore) GetStats() (*models.GraphStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics.IncStorageOp("get_stats")
	stats := &models.GraphStats{
		NodeCount:       len(s.nodes),
		EdgeCount:       len(s.edges),
		NodesByProvider: make(map[string]int),
		NodesByType:     make(map[string]int),
		EdgesByType:     make(map[string]int),
		CostByProvider:  make(map[string]float64),
		CostByType:      make(map[string]float64),
	}
	for _, n := range s.nodes {
		stats.NodesByProvider[n.Provider]++
		stats.NodesByType[n.ResourceType]++
		if n.CostMonthly != nil {
			stats.TotalCost += *n.CostMonthly
			stats.CostByProvider[n.Provider] += *n.CostMonthly
			stats.CostByType[n.ResourceType] += *n.CostMonthly
		}
	}
	for _, e := range s.edges {
		stats.EdgesByType[e.RelationshipType]++
	}
	return stats, nil
}

func (s *MemoryStore) appendChangeLocked(kind, targetID string, actor models.Actor) *models.Change {
	if actor.ID == "" {
		actor = models.SystemActor
	}
	change := &models.Change{
		ID:            newChangeID(),
		Kind:          kind,
		TargetID:      targetID,
		InitiatorID:   actor.ID,
		InitiatorKind: actor.Kind,
		Timestamp:     s.now().UTC(),
	}
	s.changes = append(s.changes, change)
	return change
}

// emitChanges forwards change records to the sink after the store lock has
// been released, so a slow or reentrant sink cannot block the store. Sink
// failures are logged and never fail the write.
func emitChanges(sink ChangeSink, changes ...*models.Change) {
	if sink == nil {
		return
	}
	for _, c := range changes {
		if err := sink.WriteChange(c); err != nil {
			logger.Errorf("Change sink write failed for %s: %v", c.ID, err)
		}
	}
}

// newChangeID builds a collision-resistant change id. A random suffix keeps
// concurrent callers and independent runs from interfering.
func newChangeID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "chg-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return "chg-" + hex.EncodeToString(buf)
}

func (s *MemoryStore) sortedNodeIDsLocked() []string {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func insertSorted(list []string, v string) []string {
	i := sort.SearchStrings(list, v)
	if i < len(list) && list[i] == v {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}

func removeString(list []string, v string) []string {
	i := sort.SearchStrings(list, v)
	if i < len(list) && list[i] == v {
		return append(list[:i], list[i+1:]...)
	}
	return list
}
