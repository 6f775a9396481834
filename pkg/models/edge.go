package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Relationship types commonly produced by discovery.
const (
	RelContains  = "contains"
	RelUses      = "uses"
	RelRoutesTo  = "routes-to"
	RelDependsOn = "depends-on"
	RelTriggers  = "triggers"
)

// Edge is a directed, typed relationship between two nodes.
type Edge struct {
	ID               string                 `json:"id"`
	SourceNodeID     string                 `json:"source_node_id"`
	TargetNodeID     string                 `json:"target_node_id"`
	RelationshipType string                 `json:"relationship_type"`
	Confidence       float64                `json:"confidence"`
	DiscoveredVia    string                 `json:"discovered_via,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// BuildEdgeID builds the deterministic edge id for a (source, target, type)
// triple. Uniqueness of the triple is the caller's responsibility; identical
// triples always map to the same id.
func BuildEdgeID(sourceID, targetID, relationshipType string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(sourceID) + "|" + strings.ToLower(targetID) + "|" + strings.ToLower(relationshipType)))
	return "edge:" + hex.EncodeToString(sum[:8])
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	out := *e
	if e.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
