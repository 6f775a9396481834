package models

import (
	"strings"
	"time"
)

// Direction selects which edges to follow from a node.
type Direction string

const (
	DirectionUpstream   Direction = "upstream"
	DirectionDownstream Direction = "downstream"
	DirectionBoth       Direction = "both"
)

// NodeFilter narrows node queries. Zero-value dimensions are ignored;
// populated dimensions combine with AND.
type NodeFilter struct {
	Provider     string
	Account      string
	Region       string
	ResourceType string
	Status       string
	NamePattern  string            // case-insensitive substring match
	Tags         map[string]string // every listed tag must match
	Since        time.Time         // updated at or after
}

// Matches reports whether the node satisfies every populated dimension.
func (f NodeFilter) Matches(n *Node) bool {
	if n == nil {
		return false
	}
	if f.Provider != "" && n.Provider != f.Provider {
		return false
	}
	if f.Account != "" && n.Account != f.Account {
		return false
	}
	if f.Region != "" && n.Region != f.Region {
		return false
	}
	if f.ResourceType != "" && n.ResourceType != f.ResourceType {
		return false
	}
	if f.Status != "" && n.Status != f.Status {
		return false
	}
	if f.NamePattern != "" && !strings.Contains(strings.ToLower(n.Name), strings.ToLower(f.NamePattern)) {
		return false
	}
	for k, v := range f.Tags {
		if n.Tags[k] != v {
			return false
		}
	}
	if !f.Since.IsZero() && n.UpdatedAt.Before(f.Since) {
		return false
	}
	return true
}

// EdgeFilter narrows edge queries with AND semantics across populated
// dimensions.
type EdgeFilter struct {
	SourceNodeID     string
	TargetNodeID     string
	RelationshipType string
	MinConfidence    float64
	DiscoveredVia    string
}

// Matches reports whether the edge satisfies every populated dimension.
func (f EdgeFilter) Matches(e *Edge) bool {
	if e == nil {
		return false
	}
	if f.SourceNodeID != "" && e.SourceNodeID != f.SourceNodeID {
		return false
	}
	if f.TargetNodeID != "" && e.TargetNodeID != f.TargetNodeID {
		return false
	}
	if f.RelationshipType != "" && e.RelationshipType != f.RelationshipType {
		return false
	}
	if f.MinConfidence > 0 && e.Confidence < f.MinConfidence {
		return false
	}
	if f.DiscoveredVia != "" && e.DiscoveredVia != f.DiscoveredVia {
		return false
	}
	return true
}

// NodePage is one page of a paginated node query.
type NodePage struct {
	Items      []*Node `json:"items"`
	TotalCount int     `json:"total_count"`
	NextCursor string  `json:"next_cursor,omitempty"`
}
