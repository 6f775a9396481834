package models

import "time"

// Change kinds recorded in the append-only change log.
const (
	ChangeNodeCreated = "node-created"
	ChangeNodeUpdated = "node-updated"
	ChangeNodeDeleted = "node-deleted"
	ChangeEdgeCreated = "edge-created"
	ChangeEdgeUpdated = "edge-updated"
	ChangeEdgeDeleted = "edge-deleted"
)

// Actor identifies who initiated a mutation.
type Actor struct {
	ID   string `json:"id"`
	Kind string `json:"kind"` // system, user, adapter, agent
}

// SystemActor is the initiator recorded when no actor is supplied.
var SystemActor = Actor{ID: "system", Kind: "system"}

// Change is an append-only audit record of a single mutation. Records are
// never mutated once written.
type Change struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	TargetID      string    `json:"target_id"`
	InitiatorID   string    `json:"initiator_id"`
	InitiatorKind string    `json:"initiator_kind"`
	Timestamp     time.Time `json:"ts"`
}

// ChangeFilter narrows change-log queries. Zero-value dimensions are ignored;
// populated dimensions combine with AND.
type ChangeFilter struct {
	TargetID    string
	InitiatorID string
	Kind        string
	Since       time.Time
	Until       time.Time
}

// Matches reports whether the change satisfies every populated dimension.
func (f ChangeFilter) Matches(c *Change) bool {
	if c == nil {
		return false
	}
	if f.TargetID != "" && c.TargetID != f.TargetID {
		return false
	}
	if f.InitiatorID != "" && c.InitiatorID != f.InitiatorID {
		return false
	}
	if f.Kind != "" && c.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && c.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && c.Timestamp.After(f.Until) {
		return false
	}
	return true
}
