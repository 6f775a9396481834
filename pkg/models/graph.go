package models

// Subgraph is the set of nodes and edges reached by a traversal.
type Subgraph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Path is the result of a shortest-path search. Found is false when the
// endpoints are disconnected; Nodes and Edges are empty in that case.
type Path struct {
	Found bool    `json:"found"`
	Hops  int     `json:"hops"`
	Nodes []*Node `json:"nodes,omitempty"`
	Edges []*Edge `json:"edges,omitempty"`
}

// BlastRadius estimates the impact of removing or changing a node.
type BlastRadius struct {
	OriginID    string          `json:"origin_id"`
	Nodes       []*Node         `json:"nodes"`
	Edges       []*Edge         `json:"edges"`
	CostByDepth map[int]float64 `json:"cost_by_depth,omitempty"`
	TotalCost   float64         `json:"total_cost"`
}

// GraphStats aggregates counts and cost breakdowns over the whole graph.
type GraphStats struct {
	NodeCount       int                `json:"node_count"`
	EdgeCount       int                `json:"edge_count"`
	NodesByProvider map[string]int     `json:"nodes_by_provider,omitempty"`
	NodesByType     map[string]int     `json:"nodes_by_type,omitempty"`
	EdgesByType     map[string]int     `json:"edges_by_type,omitempty"`
	TotalCost       float64            `json:"total_cost"`
	CostByProvider  map[string]float64 `json:"cost_by_provider,omitempty"`
	CostByType      map[string]float64 `json:"cost_by_type,omitempty"`
}
