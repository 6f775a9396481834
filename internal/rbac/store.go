package rbac

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"infragraph/internal/logger"
	"infragraph/internal/metrics"
	"infragraph/internal/storage"
	"infragraph/pkg/models"
)

// AccessStore wraps an inner store with a principal and a policy. It
// satisfies storage.Store, so callers and the query executor use it exactly
// like the raw store.
type AccessStore struct {
	inner     storage.Store
	principal models.Principal
	perms     map[models.Permission]bool
	audit     *AuditLog
	auditOn   bool
}

// Wrap resolves principalID against the policy and returns the scoped store.
// An unrecognized id resolves to an anonymous principal at the policy's
// default role with an empty scope, unless the policy sets DenyUnknown.
func Wrap(inner storage.Store, principalID string, policy models.Policy, audit *AuditLog) (*AccessStore, error) {
	principal, ok := policy.Lookup(principalID)
	if !ok {
		if policy.DenyUnknown {
			return nil, &AccessDeniedError{PrincipalID: principalID, Operation: "wrap", Reason: "unknown principal and policy denies unknown principals"}
		}
		role := policy.DefaultRole
		if role == "" {
			role = models.RoleViewer
		}
		logger.Warnf("Unknown principal %q resolved to anonymous %s with empty scope", principalID, role)
		principal = models.Principal{ID: principalID, Name: "anonymous", Role: role}
	}
	if policy.AuditLog && audit == nil {
		audit = NewAuditLog()
	}
	return &AccessStore{
		inner:     inner,
		principal: principal,
		perms:     EffectivePermissions(principal),
		audit:     audit,
		auditOn:   policy.AuditLog,
	}, nil
}

// Principal returns the resolved principal this store acts for.
func (a *AccessStore) Principal() models.Principal {
	return a.principal
}

// Audit returns the audit log, nil when auditing is disabled.
func (a *AccessStore) Audit() *AuditLog {
	if !a.auditOn {
		return nil
	}
	return a.audit
}

func (a *AccessStore) actor() models.Actor {
	return models.Actor{ID: a.principal.ID, Kind: "principal"}
}

func (a *AccessStore) bypassScope() bool {
	return a.perms[models.PermBypassScope]
}

// Authorize checks a capability outside the storage.Store surface, such as
// snapshot export, and records the decision in the audit log.
func (a *AccessStore) Authorize(op string, perm models.Permission) error {
	if err := a.check(op, perm); err != nil {
		return err
	}
	a.record(op, true, "", 0)
	return nil
}

func (a *AccessStore) check(op string, perm models.Permission) error {
	if a.perms[perm] {
		return nil
	}
	err := &AccessDeniedError{
		PrincipalID: a.principal.ID,
		Operation:   op,
		Reason:      fmt.Sprintf("role %s lacks permission %s", a.principal.Role, perm),
	}
	a.record(op, false, err.Reason, 0)
	metrics.IncAccessDenied(op)
	return err
}

func (a *AccessStore) record(op string, granted bool, reason string, filtered int) {
	if !a.auditOn {
		return
	}
	a.audit.append(AuditEntry{
		PrincipalID:   a.principal.ID,
		Operation:     op,
		Granted:       granted,
		Reason:        reason,
		FilteredCount: filtered,
	})
	metrics.AddScopeFiltered(filtered)
}

func (a *AccessStore) inScope(n *models.Node) bool {
	if a.bypassScope() {
		return true
	}
	return a.principal.Scope.Contains(n)
}

// edgeInScope requires both endpoints in scope. An endpoint that no longer
// exists cannot be verified; under a non-empty scope it is treated as out of
// scope rather than risking over-exposure.
func (a *AccessStore) edgeInScope(e *models.Edge) bool {
	if a.bypassScope() || a.principal.Scope.IsEmpty() {
		return true
	}
	src, err := a.inner.GetNode(e.SourceNodeID)
	if err != nil || src == nil || !a.principal.Scope.Contains(src) {
		return false
	}
	tgt, err := a.inner.GetNode(e.TargetNodeID)
	if err != nil || tgt == nil || !a.principal.Scope.Contains(tgt) {
		return false
	}
	return true
}

// checkNodeWrite requires the supplied node in scope and, when the id
// already exists, the stored node too. Checking only the supplied value
// would let a caller overwrite a hidden node by reusing its id with
// in-scope fields.
func (a *AccessStore) checkNodeWrite(op string, node *models.Node) error {
	if !a.inScope(node) {
		return a.denyOutOfScope(op, nodeID(node))
	}
	if a.bypassScope() || a.principal.Scope.IsEmpty() {
		return nil
	}
	existing, err := a.inner.GetNode(node.ID)
	if err != nil {
		return err
	}
	if existing != nil && !a.inScope(existing) {
		return a.denyOutOfScope(op, node.ID)
	}
	return nil
}

// checkEdgeWrite is the edge counterpart of checkNodeWrite: both endpoints
// of the supplied edge and of any stored edge under the same id must be in
// scope.
func (a *AccessStore) checkEdgeWrite(op string, edge *models.Edge) error {
	if edge == nil {
		return nil
	}
	if !a.edgeInScope(edge) {
		return a.denyOutOfScope(op, edge.ID)
	}
	if a.bypassScope() || a.principal.Scope.IsEmpty() {
		return nil
	}
	existing, err := a.inner.GetEdge(edge.ID)
	if err != nil {
		return err
	}
	if existing != nil && !a.edgeInScope(existing) {
		return a.denyOutOfScope(op, edge.ID)
	}
	return nil
}

func (a *AccessStore) denyOutOfScope(op, entityID string) error {
	err := &AccessDeniedError{
		PrincipalID: a.principal.ID,
		Operation:   op,
		Reason:      fmt.Sprintf("entity %s is outside the principal's scope", entityID),
	}
	a.record(op, false, err.Reason, 0)
	metrics.IncAccessDenied(op)
	return err
}

// scopedFilter pushes single-valued scope dimensions into the storage filter.
// This is an optimization only: multi-valued scopes cannot be expressed as
// one equality filter, so the post-filter pass is mandatory regardless.
func (a *AccessStore) scopedFilter(f models.NodeFilter) models.NodeFilter {
	if a.bypassScope() {
		return f
	}
	s := a.principal.Scope
	if len(s.Providers) == 1 && f.Provider == "" {
		f.Provider = s.Providers[0]
	}
	if len(s.Accounts) == 1 && f.Account == "" {
		f.Account = s.Accounts[0]
	}
	if len(s.Regions) == 1 && f.Region == "" {
		f.Region = s.Regions[0]
	}
	if len(s.ResourceTypes) == 1 && f.ResourceType == "" {
		f.ResourceType = s.ResourceTypes[0]
	}
	return f
}

func (a *AccessStore) postFilterNodes(nodes []*models.Node) ([]*models.Node, int) {
	if a.bypassScope() || a.principal.Scope.IsEmpty() {
		return nodes, 0
	}
	kept := nodes[:0:0]
	for _, n := range nodes {
		if a.principal.Scope.Contains(n) {
			kept = append(kept, n)
		}
	}
	return kept, len(nodes) - len(kept)
}

func (a *AccessStore) postFilterEdges(edges []*models.Edge) ([]*models.Edge, int) {
	if a.bypassScope() || a.principal.Scope.IsEmpty() {
		return edges, 0
	}
	kept := edges[:0:0]
	for _, e := range edges {
		if a.edgeInScope(e) {
			kept = append(kept, e)
		}
	}
	return kept, len(edges) - len(kept)
}

// redactCost strips cost from returned nodes when the principal lacks
// read-cost. Nodes are cloned first so inner state and other callers are
// never affected.
func (a *AccessStore) redactCost(nodes []*models.Node) []*models.Node {
	if a.perms[models.PermReadCost] {
		return nodes
	}
	out := make([]*models.Node, len(nodes))
	for i, n := range nodes {
		c := n.Clone()
		c.CostMonthly = nil
		out[i] = c
	}
	return out
}

func (a *AccessStore) redactNode(n *models.Node) *models.Node {
	if a.perms[models.PermReadCost] {
		return n
	}
	c := n.Clone()
	c.CostMonthly = nil
	return c
}

// --- writes ---

// UpsertNode requires write permission and an in-scope node. The caller's
// actor is replaced with the wrap principal so the change log attributes the
// mutation correctly.
func (a *AccessStore) UpsertNode(node *models.Node, _ models.Actor) error {
	if err := a.check("upsertNode", models.PermWrite); err != nil {
		return err
	}
	if err := a.checkNodeWrite("upsertNode", node); err != nil {
		return err
	}
	a.record("upsertNode", true, "", 0)
	return a.inner.UpsertNode(node, a.actor())
}

// UpsertNodes pre-checks scope for every item before any mutation: a single
// violation aborts the whole batch with no partial application.
func (a *AccessStore) UpsertNodes(nodes []*models.Node, _ models.Actor) error {
	if err := a.check("upsertNodes", models.PermWrite); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := a.checkNodeWrite("upsertNodes", n); err != nil {
			return err
		}
	}
	a.record("upsertNodes", true, "", 0)
	return a.inner.UpsertNodes(nodes, a.actor())
}

// DeleteNode requires the existing node to be in scope. An unknown id is a
// no-op; a hidden one is denied.
func (a *AccessStore) DeleteNode(id string, _ models.Actor) error {
	if err := a.check("deleteNode", models.PermWrite); err != nil {
		return err
	}
	existing, err := a.inner.GetNode(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if !a.inScope(existing) {
		return a.denyOutOfScope("deleteNode", id)
	}
	a.record("deleteNode", true, "", 0)
	return a.inner.DeleteNode(id, a.actor())
}

// UpsertEdge requires both endpoints in scope before the mutation.
func (a *AccessStore) UpsertEdge(edge *models.Edge, _ models.Actor) error {
	if err := a.check("upsertEdge", models.PermWrite); err != nil {
		return err
	}
	if err := a.checkEdgeWrite("upsertEdge", edge); err != nil {
		return err
	}
	a.record("upsertEdge", true, "", 0)
	return a.inner.UpsertEdge(edge, a.actor())
}

// UpsertEdges pre-checks every edge's endpoints; one violation aborts the
// batch.
func (a *AccessStore) UpsertEdges(edges []*models.Edge, _ models.Actor) error {
	if err := a.check("upsertEdges", models.PermWrite); err != nil {
		return err
	}
	for _, e := range edges {
		if err := a.checkEdgeWrite("upsertEdges", e); err != nil {
			return err
		}
	}
	a.record("upsertEdges", true, "", 0)
	return a.inner.UpsertEdges(edges, a.actor())
}

// DeleteEdge requires the existing edge's endpoints in scope.
func (a *AccessStore) DeleteEdge(id string, _ models.Actor) error {
	if err := a.check("deleteEdge", models.PermWrite); err != nil {
		return err
	}
	existing, err := a.inner.GetEdge(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if !a.edgeInScope(existing) {
		return a.denyOutOfScope("deleteEdge", id)
	}
	a.record("deleteEdge", true, "", 0)
	return a.inner.DeleteEdge(id, a.actor())
}

// --- reads ---

// GetNode returns (nil, nil) for an out-of-scope node, indistinguishable
// from "does not exist".
func (a *AccessStore) GetNode(id string) (*models.Node, error) {
	if err := a.check("getNode", models.PermRead); err != nil {
		return nil, err
	}
	n, err := a.inner.GetNode(id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		a.record("getNode", true, "", 0)
		return nil, nil
	}
	if !a.inScope(n) {
		a.record("getNode", true, "", 1)
		return nil, nil
	}
	a.record("getNode", true, "", 0)
	return a.redactNode(n), nil
}

// GetNodeByNativeID behaves like GetNode for scope misses.
func (a *AccessStore) GetNodeByNativeID(provider, nativeID string) (*models.Node, error) {
	if err := a.check("getNodeByNativeId", models.PermRead); err != nil {
		return nil, err
	}
	n, err := a.inner.GetNodeByNativeID(provider, nativeID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		a.record("getNodeByNativeId", true, "", 0)
		return nil, nil
	}
	if !a.inScope(n) {
		a.record("getNodeByNativeId", true, "", 1)
		return nil, nil
	}
	a.record("getNodeByNativeId", true, "", 0)
	return a.redactNode(n), nil
}

// QueryNodes pushes single-valued scope dimensions into the filter and
// post-filters the raw result regardless.
func (a *AccessStore) QueryNodes(filter models.NodeFilter) ([]*models.Node, error) {
	if err := a.check("queryNodes", models.PermRead); err != nil {
		return nil, err
	}
	nodes, err := a.inner.QueryNodes(a.scopedFilter(filter))
	if err != nil {
		return nil, err
	}
	kept, removed := a.postFilterNodes(nodes)
	a.record("queryNodes", true, "", removed)
	return a.redactCost(kept), nil
}

// QueryNodesPaginated paginates the scope-filtered result set locally so page
// counts and cursors reflect what the principal may actually see.
func (a *AccessStore) QueryNodesPaginated(filter models.NodeFilter, cursor string, limit int) (*models.NodePage, error) {
	if err := a.check("queryNodesPaginated", models.PermRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	offset := 0
	if cursor != "" {
		decoded, err := base64.StdEncoding.DecodeString(cursor)
		if err != nil {
			return nil, fmt.Errorf("malformed cursor")
		}
		offset, err = strconv.Atoi(string(decoded))
		if err != nil || offset < 0 {
			return nil, fmt.Errorf("malformed cursor")
		}
	}

	nodes, err := a.inner.QueryNodes(a.scopedFilter(filter))
	if err != nil {
		return nil, err
	}
	kept, removed := a.postFilterNodes(nodes)
	a.record("queryNodesPaginated", true, "", removed)
	kept = a.redactCost(kept)

	page := &models.NodePage{TotalCount: len(kept), Items: []*models.Node{}}
	if offset >= len(kept) {
		return page, nil
	}
	end := offset + limit
	if end > len(kept) {
		end = len(kept)
	}
	page.Items = kept[offset:end]
	if end < len(kept) {
		page.NextCursor = base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(end)))
	}
	return page, nil
}

// GetEdge hides edges with an out-of-scope endpoint.
func (a *AccessStore) GetEdge(id string) (*models.Edge, error) {
	if err := a.check("getEdge", models.PermRead); err != nil {
		return nil, err
	}
	e, err := a.inner.GetEdge(id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		a.record("getEdge", true, "", 0)
		return nil, nil
	}
	if !a.edgeInScope(e) {
		a.record("getEdge", true, "", 1)
		return nil, nil
	}
	a.record("getEdge", true, "", 0)
	return e, nil
}

// QueryEdges post-filters edges whose endpoints fall outside the scope.
func (a *AccessStore) QueryEdges(filter models.EdgeFilter) ([]*models.Edge, error) {
	if err := a.check("queryEdges", models.PermRead); err != nil {
		return nil, err
	}
	edges, err := a.inner.QueryEdges(filter)
	if err != nil {
		return nil, err
	}
	kept, removed := a.postFilterEdges(edges)
	a.record("queryEdges", true, "", removed)
	return kept, nil
}

// GetEdgesForNode post-filters like QueryEdges.
func (a *AccessStore) GetEdgesForNode(nodeID string, direction models.Direction) ([]*models.Edge, error) {
	if err := a.check("getEdgesForNode", models.PermRead); err != nil {
		return nil, err
	}
	edges, err := a.inner.GetEdgesForNode(nodeID, direction)
	if err != nil {
		return nil, err
	}
	kept, removed := a.postFilterEdges(edges)
	a.record("getEdgesForNode", true, "", removed)
	return kept, nil
}

// --- traversal ---

// GetNeighbors is gated by the traverse capability, distinct from read, so a
// principal can explore topology without seeing cost or change history.
func (a *AccessStore) GetNeighbors(nodeID string, depth int, direction models.Direction) (*models.Subgraph, error) {
	if err := a.check("getNeighbors", models.PermTraverse); err != nil {
		return nil, err
	}
	sub, err := a.inner.GetNeighbors(nodeID, depth, direction)
	if err != nil {
		return nil, err
	}
	nodes, removedNodes := a.postFilterNodes(sub.Nodes)
	edges, removedEdges := a.postFilterEdges(sub.Edges)
	a.record("getNeighbors", true, "", removedNodes+removedEdges)
	return &models.Subgraph{Nodes: a.redactCost(nodes), Edges: edges}, nil
}

// ShortestPath reports "no path" when any node on the path is out of scope;
// a partially visible path would leak the hidden hop.
func (a *AccessStore) ShortestPath(fromID, toID string) (*models.Path, error) {
	if err := a.check("shortestPath", models.PermTraverse); err != nil {
		return nil, err
	}
	path, err := a.inner.ShortestPath(fromID, toID)
	if err != nil {
		return nil, err
	}
	if !path.Found {
		a.record("shortestPath", true, "", 0)
		return path, nil
	}
	for _, n := range path.Nodes {
		if !a.inScope(n) {
			a.record("shortestPath", true, "", len(path.Nodes))
			return &models.Path{}, nil
		}
	}
	a.record("shortestPath", true, "", 0)
	path.Nodes = a.redactCost(path.Nodes)
	return path, nil
}

// BlastRadius requires traverse; without read-cost the cost aggregates are
// stripped and only the reachable set is reported.
func (a *AccessStore) BlastRadius(nodeID string, maxDepth int) (*models.BlastRadius, error) {
	if err := a.check("blastRadius", models.PermTraverse); err != nil {
		return nil, err
	}
	br, err := a.inner.BlastRadius(nodeID, maxDepth)
	if err != nil {
		return nil, err
	}
	nodes, removedNodes := a.postFilterNodes(br.Nodes)
	edges, removedEdges := a.postFilterEdges(br.Edges)
	a.record("blastRadius", true, "", removedNodes+removedEdges)
	out := &models.BlastRadius{
		OriginID:    br.OriginID,
		Nodes:       a.redactCost(nodes),
		Edges:       edges,
		CostByDepth: br.CostByDepth,
		TotalCost:   br.TotalCost,
	}
	if !a.perms[models.PermReadCost] {
		out.CostByDepth = nil
		out.TotalCost = 0
	}
	return out, nil
}

// FindArticulationPoints post-filters the reported nodes to the scope.
func (a *AccessStore) FindArticulationPoints() ([]*models.Node, error) {
	if err := a.check("findArticulationPoints", models.PermTraverse); err != nil {
		return nil, err
	}
	nodes, err := a.inner.FindArticulationPoints()
	if err != nil {
		return nil, err
	}
	kept, removed := a.postFilterNodes(nodes)
	a.record("findArticulationPoints", true, "", removed)
	return a.redactCost(kept), nil
}

// --- change log and stats ---

// GetChanges requires read-changes. Under a non-empty scope, changes whose
// target cannot be verified as in scope are dropped, including targets that
// no longer exist.
func (a *AccessStore) GetChanges(filter models.ChangeFilter) ([]*models.Change, error) {
	if err := a.check("getChanges", models.PermReadChanges); err != nil {
		return nil, err
	}
	changes, err := a.inner.GetChanges(filter)
	if err != nil {
		return nil, err
	}
	if a.bypassScope() || a.principal.Scope.IsEmpty() {
		a.record("getChanges", true, "", 0)
		return changes, nil
	}
	kept := changes[:0:0]
	for _, c := range changes {
		if n, err := a.inner.GetNode(c.TargetID); err == nil && n != nil && a.principal.Scope.Contains(n) {
			kept = append(kept, c)
			continue
		}
		if e, err := a.inner.GetEdge(c.TargetID); err == nil && e != nil && a.edgeInScope(e) {
			kept = append(kept, c)
		}
	}
	a.record("getChanges", true, "", len(changes)-len(kept))
	return kept, nil
}

// GetStats requires read-stats. Scoped principals get stats computed over
// their visible subgraph, not the whole graph; without read-cost the cost
// breakdowns are stripped.
func (a *AccessStore) GetStats() (*models.GraphStats, error) {
	if err := a.check("getStats", models.PermReadStats); err != nil {
		return nil, err
	}

	var stats *models.GraphStats
	if a.bypassScope() || a.principal.Scope.IsEmpty() {
		inner, err := a.inner.GetStats()
		if err != nil {
			return nil, err
		}
		stats = inner
		a.record("getStats", true, "", 0)
	} else {
		nodes, err := a.inner.QueryNodes(a.scopedFilter(models.NodeFilter{}))
		if err != nil {
			return nil, err
		}
		kept, removed := a.postFilterNodes(nodes)
		edges, err := a.inner.QueryEdges(models.EdgeFilter{})
		if err != nil {
			return nil, err
		}
		visibleEdges, removedEdges := a.postFilterEdges(edges)
		a.record("getStats", true, "", removed+removedEdges)
		stats = buildStats(kept, visibleEdges)
	}

	if !a.perms[models.PermReadCost] {
		stats.TotalCost = 0
		stats.CostByProvider = nil
		stats.CostByType = nil
	}
	return stats, nil
}

func buildStats(nodes []*models.Node, edges []*models.Edge) *models.GraphStats {
	stats := &models.GraphStats{
		NodeCount:       len(nodes),
		EdgeCount:       len(edges),
		NodesByProvider: make(map[string]int),
		NodesByType:     make(map[string]int),
		EdgesByType:     make(map[string]int),
		CostByProvider:  make(map[string]float64),
		CostByType:      make(map[string]float64),
	}
	for _, n := range nodes {
		stats.NodesByProvider[n.Provider]++
		stats.NodesByType[n.ResourceType]++
		if n.CostMonthly != nil {
			stats.TotalCost += *n.CostMonthly
			stats.CostByProvider[n.Provider] += *n.CostMonthly
			stats.CostByType[n.ResourceType] += *n.CostMonthly
		}
	}
	for _, e := range edges {
		stats.EdgesByType[e.RelationshipType]++
	}
	return stats
}

func nodeID(n *models.Node) string {
	if n == nil {
		return "(nil)"
	}
	return n.ID
}
