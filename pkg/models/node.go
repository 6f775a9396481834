package models

import (
	"fmt"
	"strings"
	"time"
)

// Node statuses discovered resources can report.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusPending = "pending"
	StatusDeleted = "deleted"
	StatusUnknown = "unknown"
)

// Node represents one discovered infrastructure resource.
type Node struct {
	ID           string                 `json:"id"`
	Provider     string                 `json:"provider"`
	ResourceType string                 `json:"resource_type"`
	NativeID     string                 `json:"native_id"`
	Name         string                 `json:"name,omitempty"`
	Region       string                 `json:"region,omitempty"`
	Account      string                 `json:"account,omitempty"`
	Status       string                 `json:"status,omitempty"`
	Tags         map[string]string      `json:"tags,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CostMonthly  *float64               `json:"cost_monthly,omitempty"`
	Owner        *string                `json:"owner,omitempty"`
	CreatedAt    time.Time              `json:"created_at,omitempty"`
	DiscoveredAt time.Time              `json:"discovered_at,omitempty"`
	UpdatedAt    time.Time              `json:"updated_at,omitempty"`
	LastSeenAt   time.Time              `json:"last_seen_at,omitempty"`
}

// BuildNodeID builds the deterministic composite node id. Re-discovery of the
// same native resource always produces the same id.
func BuildNodeID(provider, account, region, resourceType, nativeID string) string {
	parts := []string{provider, account, region, resourceType, nativeID}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, ":")
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	if n.Tags != nil {
		out.Tags = make(map[string]string, len(n.Tags))
		for k, v := range n.Tags {
			out.Tags[k] = v
		}
	}
	if n.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(n.Metadata))
		for k, v := range n.Metadata {
			out.Metadata[k] = v
		}
	}
	if n.CostMonthly != nil {
		cost := *n.CostMonthly
		out.CostMonthly = &cost
	}
	if n.Owner != nil {
		owner := *n.Owner
		out.Owner = &owner
	}
	return &out
}

// Field returns a node field by IQL field name. Tag values are addressed as
// tags.<key>.
func (n *Node) Field(name string) (interface{}, bool) {
	if n == nil {
		return nil, false
	}
	if strings.HasPrefix(name, "tags.") {
		key := strings.TrimPrefix(name, "tags.")
		v, ok := n.Tags[key]
		return v, ok
	}
	switch name {
	case "id":
		return n.ID, true
	case "provider":
		return n.Provider, true
	case "resourceType", "resource_type":
		return n.ResourceType, true
	case "nativeId", "native_id":
		return n.NativeID, true
	case "name":
		return n.Name, true
	case "region":
		return n.Region, true
	case "account":
		return n.Account, true
	case "status":
		return n.Status, true
	case "owner":
		if n.Owner == nil {
			return nil, false
		}
		return *n.Owner, true
	case "costMonthly", "cost_monthly":
		if n.CostMonthly == nil {
			return nil, false
		}
		return *n.CostMonthly, true
	default:
		return nil, false
	}
}

// FieldString returns the node field rendered as a string.
func (n *Node) FieldString(name string) string {
	v, ok := n.Field(name)
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
