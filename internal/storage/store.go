// Package storage owns the topology graph: nodes, edges, the append-only
// change log, and the traversal and analysis primitives built on them. The
// Store interface is the single contract every backend satisfies and every
// consumer (query execution, access control) depends on.
package storage

import (
	"infragraph/pkg/models"
)

// Store is the storage contract. Single-entity reads return (nil, nil) for
// a miss, never an error. Mutators validate their input and return a
// *ValidationError for malformed entities; they never fabricate entities to
// satisfy a write.
type Store interface {
	// UpsertNode inserts or updates a node by id. Repeated upserts with the
	// same id update fields in place; UpdatedAt and LastSeenAt never move
	// backwards.
	UpsertNode(node *models.Node, actor models.Actor) error
	// UpsertNodes applies the batch in order. The first invalid item aborts
	// the remainder; items applied before the failure are not rolled back.
	UpsertNodes(nodes []*models.Node, actor models.Actor) error
	// GetNode returns (nil, nil) for an unknown id: a miss is an absent
	// value, never an error. Errors are reserved for access denial by
	// wrapping layers.
	GetNode(id string) (*models.Node, error)
	GetNodeByNativeID(provider, nativeID string) (*models.Node, error)
	QueryNodes(filter models.NodeFilter) ([]*models.Node, error)
	QueryNodesPaginated(filter models.NodeFilter, cursor string, limit int) (*models.NodePage, error)
	// DeleteNode removes the node. Edges are not cascade-deleted; traversal
	// tolerates the resulting dangling edges. Deleting an unknown id is a
	// no-op.
	DeleteNode(id string, actor models.Actor) error

	UpsertEdge(edge *models.Edge, actor models.Actor) error
	UpsertEdges(edges []*models.Edge, actor models.Actor) error
	GetEdge(id string) (*models.Edge, error)
	QueryEdges(filter models.EdgeFilter) ([]*models.Edge, error)
	DeleteEdge(id string, actor models.Actor) error
	GetEdgesForNode(nodeID string, direction models.Direction) ([]*models.Edge, error)

	// GetNeighbors returns everything reachable within depth hops. Cyclic
	// graphs terminate; no node appears twice.
	GetNeighbors(nodeID string, depth int, direction models.Direction) (*models.Subgraph, error)
	// ShortestPath runs an unweighted breadth-first search. Disconnected
	// endpoints produce Path{Found: false}, not an error.
	ShortestPath(fromID, toID string) (*models.Path, error)
	// BlastRadius is the neighbor traversal plus monthly cost aggregated per
	// hop distance.
	BlastRadius(nodeID string, maxDepth int) (*models.BlastRadius, error)
	// FindArticulationPoints reports single points of failure among critical
	// resource kinds over the undirected projection of the graph.
	FindArticulationPoints() ([]*models.Node, error)

	GetChanges(filter models.ChangeFilter) ([]*models.Change, error)
	GetStats() (*models.GraphStats, error)
}

// ChangeSink receives change records as they are appended. Sinks must not
// mutate the records.
type ChangeSink interface {
	WriteChange(change *models.Change) error
}
