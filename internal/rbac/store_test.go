package rbac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infragraph/internal/iql"
	"infragraph/internal/snapshot"
	"infragraph/internal/storage"
	"infragraph/pkg/models"
)

// testPolicy carries one principal per interesting shape: a superadmin, an
// aws-scoped admin, an aws-scoped viewer, and a two-provider operator whose
// scope cannot be pushed down as a single equality filter.
func testPolicy() models.Policy {
	return models.Policy{
		AuditLog: true,
		Principals: []models.Principal{
			{ID: "root", Name: "Root", Role: models.RoleSuperadmin},
			{ID: "aws-admin", Name: "AWS Admin", Role: models.RoleAdmin, Scope: models.Scope{Providers: []string{"aws"}}},
			{ID: "aws-viewer", Name: "AWS Viewer", Role: models.RoleViewer, Scope: models.Scope{Providers: []string{"aws"}}},
			{ID: "multi-op", Name: "Multi Operator", Role: models.RoleOperator, Scope: models.Scope{Providers: []string{"aws", "azure"}}},
		},
	}
}

func cost(v float64) *float64 { return &v }

// seedMultiCloud stores four nodes across three providers and two edges, one
// fully inside aws and one crossing into azure.
func seedMultiCloud(t *testing.T) *storage.MemoryStore {
	t.Helper()
	s := storage.NewMemoryStore()
	nodes := []*models.Node{
		{
			ID: models.BuildNodeID("aws", "123", "us-east-1", "compute", "i-1"), Provider: "aws",
			Account: "123", Region: "us-east-1", ResourceType: "compute", NativeID: "i-1",
			Name: "api", Status: models.StatusRunning, CostMonthly: cost(100),
		},
		{
			ID: models.BuildNodeID("aws", "123", "us-east-1", "database", "db-1"), Provider: "aws",
			Account: "123", Region: "us-east-1", ResourceType: "database", NativeID: "db-1",
			Name: "db", Status: models.StatusRunning, CostMonthly: cost(300),
		},
		{
			ID: models.BuildNodeID("azure", "sub-1", "eastus", "compute", "vm-1"), Provider: "azure",
			Account: "sub-1", Region: "eastus", ResourceType: "compute", NativeID: "vm-1",
			Name: "worker", Status: models.StatusRunning,
		},
		{
			ID: models.BuildNodeID("gcp", "proj-1", "us-east1", "storage", "bkt-1"), Provider: "gcp",
			Account: "proj-1", Region: "us-east1", ResourceType: "storage", NativeID: "bkt-1",
			Name: "assets", Status: models.StatusRunning,
		},
	}
	require.NoError(t, s.UpsertNodes(nodes, models.SystemActor))

	awsAPI, awsDB, azureVM := nodes[0].ID, nodes[1].ID, nodes[2].ID
	edges := []*models.Edge{
		{ID: models.BuildEdgeID(awsAPI, awsDB, models.RelUses), SourceNodeID: awsAPI, TargetNodeID: awsDB, RelationshipType: models.RelUses, Confidence: 1},
		{ID: models.BuildEdgeID(azureVM, awsDB, models.RelUses), SourceNodeID: azureVM, TargetNodeID: awsDB, RelationshipType: models.RelUses, Confidence: 1},
	}
	require.NoError(t, s.UpsertEdges(edges, models.SystemActor))
	return s
}

func wrapAs(t *testing.T, s storage.Store, principalID string) *AccessStore {
	t.Helper()
	a, err := Wrap(s, principalID, testPolicy(), NewAuditLog())
	require.NoError(t, err)
	return a
}

func TestWrapUnknownPrincipalFallsBackToAnonymousViewer(t *testing.T) {
	s := seedMultiCloud(t)
	a, err := Wrap(s, "nobody", testPolicy(), NewAuditLog())
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, a.Principal().Role)
	assert.True(t, a.Principal().Scope.IsEmpty())

	// The anonymous fallback reads but never writes.
	nodes, err := a.QueryNodes(models.NodeFilter{})
	require.NoError(t, err)
	assert.Len(t, nodes, 4)
	err = a.DeleteNode(nodes[0].ID, models.Actor{})
	assert.True(t, IsAccessDenied(err))
}

func TestWrapDenyUnknown(t *testing.T) {
	s := seedMultiCloud(t)
	policy := testPolicy()
	policy.DenyUnknown = true
	_, err := Wrap(s, "nobody", policy, NewAuditLog())
	require.Error(t, err)
	assert.True(t, IsAccessDenied(err))

	// Known principals are unaffected.
	_, err = Wrap(s, "aws-viewer", policy, NewAuditLog())
	require.NoError(t, err)
}

func TestViewerCannotWriteOrReadChanges(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "aws-viewer")

	err := a.UpsertNode(&models.Node{ID: "aws:123:us-east-1:compute:i-9", Provider: "aws", ResourceType: "compute"}, models.Actor{})
	require.True(t, IsAccessDenied(err))

	_, err = a.GetChanges(models.ChangeFilter{})
	require.True(t, IsAccessDenied(err))
}

func TestScopedWriteDeniedOutsideProvider(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "aws-admin")

	azure := &models.Node{
		ID: models.BuildNodeID("azure", "sub-1", "eastus", "compute", "vm-9"), Provider: "azure",
		Account: "sub-1", Region: "eastus", ResourceType: "compute", NativeID: "vm-9",
	}
	err := a.UpsertNode(azure, models.Actor{})
	require.True(t, IsAccessDenied(err))
	if got, _ := s.GetNode(azure.ID); got != nil {
		t.Fatalf("denied write must not reach the inner store")
	}

	// In-scope write goes through, attributed to the principal.
	aws := &models.Node{
		ID: models.BuildNodeID("aws", "123", "us-east-1", "cache", "redis-1"), Provider: "aws",
		Account: "123", Region: "us-east-1", ResourceType: "cache", NativeID: "redis-1",
	}
	require.NoError(t, a.UpsertNode(aws, models.Actor{ID: "spoofed", Kind: "user"}))
	changes, err := s.GetChanges(models.ChangeFilter{TargetID: aws.ID})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "aws-admin", changes[0].InitiatorID)
}

func TestScopedBatchWritePreChecksEveryItem(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "aws-admin")

	batch := []*models.Node{
		{ID: models.BuildNodeID("aws", "123", "us-east-1", "queue", "q-1"), Provider: "aws", Account: "123", Region: "us-east-1", ResourceType: "queue", NativeID: "q-1"},
		{ID: models.BuildNodeID("azure", "sub-1", "eastus", "queue", "q-2"), Provider: "azure", Account: "sub-1", Region: "eastus", ResourceType: "queue", NativeID: "q-2"},
	}
	err := a.UpsertNodes(batch, models.Actor{})
	require.True(t, IsAccessDenied(err))
	// Unlike a validation failure mid-batch, a scope violation is detected
	// up front: nothing is applied.
	if got, _ := s.GetNode(batch[0].ID); got != nil {
		t.Fatalf("scope pre-check must reject the whole batch")
	}
}

func TestScopedEdgeWriteRequiresBothEndpoints(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "aws-admin")

	awsAPI := models.BuildNodeID("aws", "123", "us-east-1", "compute", "i-1")
	azureVM := models.BuildNodeID("azure", "sub-1", "eastus", "compute", "vm-1")
	e := &models.Edge{
		ID: models.BuildEdgeID(awsAPI, azureVM, models.RelRoutesTo), SourceNodeID: awsAPI,
		TargetNodeID: azureVM, RelationshipType: models.RelRoutesTo, Confidence: 1,
	}
	err := a.UpsertEdge(e, models.Actor{})
	require.True(t, IsAccessDenied(err))
}

func TestDeleteOutOfScopeBehavesLikeUnknownForReadsButDeniesWrites(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "aws-admin")
	azureVM := models.BuildNodeID("azure", "sub-1", "eastus", "compute", "vm-1")

	// Read: indistinguishable from not-found.
	n, err := a.GetNode(azureVM)
	require.NoError(t, err)
	assert.Nil(t, n)

	// Delete of an existing-but-hidden node is denied, not silently ignored;
	// the entity id was supplied by the caller, so nothing new leaks.
	err = a.DeleteNode(azureVM, models.Actor{})
	require.True(t, IsAccessDenied(err))
	if got, _ := s.GetNode(azureVM); got == nil {
		t.Fatalf("inner node must survive the denied delete")
	}

	// Delete of a genuinely unknown id stays a no-op.
	require.NoError(t, a.DeleteNode("aws:123:us-east-1:compute:ghost", models.Actor{}))
}

func TestDeniedNotFoundAndEmptyAreDistinguishable(t *testing.T) {
	s := seedMultiCloud(t)

	// Denied: viewer asking for changes gets a typed error.
	viewer := wrapAs(t, s, "aws-viewer")
	_, err := viewer.GetChanges(models.ChangeFilter{})
	assert.True(t, IsAccessDenied(err))

	// Not found: nil value, nil error.
	n, err := viewer.GetNode("aws:123:us-east-1:compute:ghost")
	require.NoError(t, err)
	assert.Nil(t, n)

	// Empty result: empty slice, nil error.
	nodes, err := viewer.QueryNodes(models.NodeFilter{Provider: "aws", Region: "antarctica-1"})
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestQueryNodesNarrowedToScope(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "aws-viewer")

	nodes, err := a.QueryNodes(models.NodeFilter{})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	for _, n := range nodes {
		assert.Equal(t, "aws", n.Provider)
	}

	// An explicit filter for another provider intersects with the scope to
	// nothing rather than escaping it.
	nodes, err = a.QueryNodes(models.NodeFilter{Provider: "azure"})
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestMultiValuedScopePostFilterAndAuditCount(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "multi-op")

	// Two providers cannot be pushed down as one equality filter; the
	// post-filter pass must still remove the gcp node and count it.
	nodes, err := a.QueryNodes(models.NodeFilter{})
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	entries := a.Audit().Entries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "queryNodes", last.Operation)
	assert.True(t, last.Granted)
	assert.Equal(t, 1, last.FilteredCount)
}

func TestCostRedactionForViewer(t *testing.T) {
	s := seedMultiCloud(t)
	viewer := wrapAs(t, s, "aws-viewer")

	nodes, err := viewer.QueryNodes(models.NodeFilter{})
	require.NoError(t, err)
	for _, n := range nodes {
		assert.Nil(t, n.CostMonthly, "viewer must not see cost on %s", n.ID)
	}

	// Redaction must not corrupt the stored node.
	op := wrapAs(t, s, "multi-op")
	withCost, err := op.GetNode(models.BuildNodeID("aws", "123", "us-east-1", "database", "db-1"))
	require.NoError(t, err)
	require.NotNil(t, withCost.CostMonthly)
	assert.Equal(t, 300.0, *withCost.CostMonthly)
}

func TestViewerStatsAreScopedAndCostFree(t *testing.T) {
	s := seedMultiCloud(t)
	viewer := wrapAs(t, s, "aws-viewer")

	stats, err := viewer.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NodeCount)
	assert.Equal(t, 1, stats.EdgeCount) // only the aws-internal edge
	assert.Zero(t, stats.TotalCost)
	assert.Nil(t, stats.CostByProvider)

	root := wrapAs(t, s, "root")
	full, err := root.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 4, full.NodeCount)
	assert.Equal(t, 400.0, full.TotalCost)
}

func TestEdgesWithOutOfScopeEndpointAreHidden(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "aws-viewer")

	edges, err := a.QueryEdges(models.EdgeFilter{})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	awsDB := models.BuildNodeID("aws", "123", "us-east-1", "database", "db-1")
	assert.Equal(t, awsDB, edges[0].TargetNodeID)

	azureVM := models.BuildNodeID("azure", "sub-1", "eastus", "compute", "vm-1")
	crossing, err := a.GetEdge(models.BuildEdgeID(azureVM, awsDB, models.RelUses))
	require.NoError(t, err)
	assert.Nil(t, crossing, "edge with a hidden endpoint must read as absent")
}

func TestShortestPathHiddenHopMeansNoPath(t *testing.T) {
	s := seedMultiCloud(t)
	// Extend the graph: aws api -> azure vm -> gcp bucket is the only route.
	awsAPI := models.BuildNodeID("aws", "123", "us-east-1", "compute", "i-1")
	azureVM := models.BuildNodeID("azure", "sub-1", "eastus", "compute", "vm-1")
	gcpBkt := models.BuildNodeID("gcp", "proj-1", "us-east1", "storage", "bkt-1")
	edges := []*models.Edge{
		{ID: models.BuildEdgeID(awsAPI, azureVM, models.RelRoutesTo), SourceNodeID: awsAPI, TargetNodeID: azureVM, RelationshipType: models.RelRoutesTo, Confidence: 1},
		{ID: models.BuildEdgeID(azureVM, gcpBkt, models.RelUses), SourceNodeID: azureVM, TargetNodeID: gcpBkt, RelationshipType: models.RelUses, Confidence: 1},
	}
	require.NoError(t, s.UpsertEdges(edges, models.SystemActor))

	// The operator sees aws and azure but not gcp: the path ends out of
	// scope, so the whole path is withheld.
	op := wrapAs(t, s, "multi-op")
	path, err := op.ShortestPath(awsAPI, gcpBkt)
	require.NoError(t, err)
	assert.False(t, path.Found)

	// The superadmin sees it.
	root := wrapAs(t, s, "root")
	path, err = root.ShortestPath(awsAPI, gcpBkt)
	require.NoError(t, err)
	assert.True(t, path.Found)
	assert.Equal(t, 2, path.Hops)
}

func TestGetChangesScopedToVisibleTargets(t *testing.T) {
	s := seedMultiCloud(t)
	op := wrapAs(t, s, "multi-op")

	changes, err := op.GetChanges(models.ChangeFilter{})
	require.NoError(t, err)
	for _, c := range changes {
		if n, _ := s.GetNode(c.TargetID); n != nil {
			assert.NotEqual(t, "gcp", n.Provider, "gcp change leaked: %s", c.TargetID)
		}
	}
	// The seed produced a change for the gcp node; it must be absent.
	all, err := s.GetChanges(models.ChangeFilter{})
	require.NoError(t, err)
	assert.Less(t, len(changes), len(all))
}

func TestPermissionOverridesWin(t *testing.T) {
	s := seedMultiCloud(t)
	policy := testPolicy()
	policy.Principals = append(policy.Principals, models.Principal{
		ID:   "costly-viewer",
		Role: models.RoleViewer,
		PermissionOverrides: map[models.Permission]bool{
			models.PermReadCost: true,
		},
	})
	a, err := Wrap(s, "costly-viewer", policy, NewAuditLog())
	require.NoError(t, err)

	n, err := a.GetNode(models.BuildNodeID("aws", "123", "us-east-1", "database", "db-1"))
	require.NoError(t, err)
	require.NotNil(t, n.CostMonthly)

	// Overrides also revoke.
	policy.Principals = append(policy.Principals, models.Principal{
		ID:   "no-traverse-admin",
		Role: models.RoleAdmin,
		PermissionOverrides: map[models.Permission]bool{
			models.PermTraverse: false,
		},
	})
	b, err := Wrap(s, "no-traverse-admin", policy, NewAuditLog())
	require.NoError(t, err)
	_, err = b.GetNeighbors(n.ID, 2, models.DirectionBoth)
	assert.True(t, IsAccessDenied(err))
}

func TestBlastRadiusCostStrippedWithoutReadCost(t *testing.T) {
	s := seedMultiCloud(t)
	awsAPI := models.BuildNodeID("aws", "123", "us-east-1", "compute", "i-1")

	viewer := wrapAs(t, s, "aws-viewer")
	br, err := viewer.BlastRadius(awsAPI, 3)
	require.NoError(t, err)
	assert.Zero(t, br.TotalCost)
	assert.Nil(t, br.CostByDepth)

	op := wrapAs(t, s, "multi-op")
	br, err = op.BlastRadius(awsAPI, 3)
	require.NoError(t, err)
	assert.Equal(t, 300.0, br.TotalCost)
}

func TestAuditRecordsDenialsWithReason(t *testing.T) {
	s := seedMultiCloud(t)
	viewer := wrapAs(t, s, "aws-viewer")
	_, _ = viewer.GetChanges(models.ChangeFilter{})

	entries := viewer.Audit().Entries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.False(t, last.Granted)
	assert.Equal(t, "getChanges", last.Operation)
	assert.Equal(t, "aws-viewer", last.PrincipalID)
	assert.NotEmpty(t, last.Reason)
	assert.NotEmpty(t, last.ID)
}

// End-to-end: the IQL executor over a wrapped store sees exactly what the
// principal sees, with no separate enforcement in the query layer.
func TestExecutorOverScopedStore(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "aws-viewer")
	exec := iql.NewExecutor(a, iql.ExecutorOptions{})

	res, err := exec.Execute(`FIND resources`)
	require.NoError(t, err)
	require.Len(t, res.Nodes, 2)

	// Filtering for the scoped provider returns the identical set.
	scoped, err := exec.Execute(`FIND resources WHERE provider = "aws"`)
	require.NoError(t, err)
	require.Len(t, scoped.Nodes, 2)

	// Filtering for a hidden provider returns nothing, not an error.
	hidden, err := exec.Execute(`FIND resources WHERE provider = "azure"`)
	require.NoError(t, err)
	assert.Empty(t, hidden.Nodes)

	// Summaries aggregate only the visible subgraph, and the viewer's cost
	// redaction flows through into COST buckets.
	sum, err := exec.Execute(`SUMMARIZE COST BY provider`)
	require.NoError(t, err)
	require.Len(t, sum.Buckets, 1)
	assert.Equal(t, "aws", sum.Buckets[0].Key)
	assert.Equal(t, 2, sum.Buckets[0].Count)
	assert.Zero(t, sum.Buckets[0].Cost)

	// Traversal through the wrapped store drops the azure upstream neighbor.
	awsDB := models.BuildNodeID("aws", "123", "us-east-1", "database", "db-1")
	up, err := exec.Execute(`FIND upstream OF "` + awsDB + `"`)
	require.NoError(t, err)
	require.Len(t, up.Nodes, 1)
	assert.Equal(t, "aws", up.Nodes[0].Provider)
}

func TestUpsertDeniedWhenIDCollidesWithHiddenNode(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "aws-admin")

	// Same id as the azure node, but every scoped field claims aws. The
	// write must be judged against the stored node, not the supplied one.
	azureID := models.BuildNodeID("azure", "sub-1", "eastus", "compute", "vm-1")
	hijack := &models.Node{
		ID: azureID, Provider: "aws", Account: "123", Region: "us-east-1",
		ResourceType: "compute", NativeID: "vm-1", Name: "hijacked",
		Status: models.StatusRunning,
	}
	err := a.UpsertNode(hijack, models.Actor{})
	require.True(t, IsAccessDenied(err))

	stored, err := s.GetNode(azureID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "azure", stored.Provider)
	assert.Equal(t, "worker", stored.Name)
}

func TestBatchUpsertAbortsOnHiddenNodeIDCollision(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "aws-admin")

	azureID := models.BuildNodeID("azure", "sub-1", "eastus", "compute", "vm-1")
	fresh := &models.Node{
		ID: models.BuildNodeID("aws", "123", "us-east-1", "compute", "i-9"), Provider: "aws",
		Account: "123", Region: "us-east-1", ResourceType: "compute", NativeID: "i-9",
		Name: "new-api", Status: models.StatusRunning,
	}
	hijack := &models.Node{
		ID: azureID, Provider: "aws", Account: "123", Region: "us-east-1",
		ResourceType: "compute", NativeID: "vm-1", Name: "hijacked",
	}
	err := a.UpsertNodes([]*models.Node{fresh, hijack}, models.Actor{})
	require.True(t, IsAccessDenied(err))

	// Pre-checks abort the batch before any item is applied.
	got, err := s.GetNode(fresh.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	stored, err := s.GetNode(azureID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "azure", stored.Provider)
}

func TestUpsertDeniedWhenIDCollidesWithHiddenEdge(t *testing.T) {
	s := seedMultiCloud(t)
	a := wrapAs(t, s, "aws-admin")

	awsAPI := models.BuildNodeID("aws", "123", "us-east-1", "compute", "i-1")
	awsDB := models.BuildNodeID("aws", "123", "us-east-1", "database", "db-1")
	azureVM := models.BuildNodeID("azure", "sub-1", "eastus", "compute", "vm-1")

	// Reuse the id of the hidden azure->aws edge while supplying all-aws
	// endpoints.
	hiddenID := models.BuildEdgeID(azureVM, awsDB, models.RelUses)
	hijack := &models.Edge{
		ID: hiddenID, SourceNodeID: awsAPI, TargetNodeID: awsDB,
		RelationshipType: models.RelUses, Confidence: 1,
	}
	err := a.UpsertEdge(hijack, models.Actor{})
	require.True(t, IsAccessDenied(err))

	stored, err := s.GetEdge(hiddenID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, azureVM, stored.SourceNodeID)

	err = a.UpsertEdges([]*models.Edge{hijack}, models.Actor{})
	require.True(t, IsAccessDenied(err))
}

func TestAuthorizeExportByTier(t *testing.T) {
	s := seedMultiCloud(t)

	viewer := wrapAs(t, s, "aws-viewer")
	err := viewer.Authorize("export", models.PermExport)
	require.True(t, IsAccessDenied(err))

	op := wrapAs(t, s, "multi-op")
	require.NoError(t, op.Authorize("export", models.PermExport))

	path := filepath.Join(t.TempDir(), "graph.jsonl")
	require.NoError(t, snapshot.Export(path, op))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
