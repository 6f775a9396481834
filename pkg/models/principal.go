package models

// Role is an ordered capability tier. Each tier includes everything the tier
// below it can do.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleOperator   Role = "operator"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Permission flags checked by the access layer.
type Permission string

const (
	PermRead         Permission = "read"
	PermTraverse     Permission = "traverse"
	PermReadStats    Permission = "read-stats"
	PermReadCost     Permission = "read-cost"
	PermReadChanges  Permission = "read-changes"
	PermExport       Permission = "export"
	PermWrite        Permission = "write"
	PermManageGroups Permission = "manage-groups"
	PermManageSync   Permission = "manage-sync"
	PermBypassScope  Permission = "bypass-scope"
)

// Scope narrows what a principal may see or mutate. Every populated dimension
// must match (AND); an entirely empty scope matches everything.
type Scope struct {
	Providers     []string          `yaml:"providers" json:"providers,omitempty"`
	Accounts      []string          `yaml:"accounts" json:"accounts,omitempty"`
	Regions       []string          `yaml:"regions" json:"regions,omitempty"`
	ResourceTypes []string          `yaml:"resource_types" json:"resource_types,omitempty"`
	RequiredTags  map[string]string `yaml:"required_tags" json:"required_tags,omitempty"`
}

// IsEmpty reports whether no dimension is populated.
func (s Scope) IsEmpty() bool {
	return len(s.Providers) == 0 && len(s.Accounts) == 0 && len(s.Regions) == 0 &&
		len(s.ResourceTypes) == 0 && len(s.RequiredTags) == 0
}

// Contains reports whether the node passes every populated dimension.
func (s Scope) Contains(n *Node) bool {
	if n == nil {
		return false
	}
	if len(s.Providers) > 0 && !containsString(s.Providers, n.Provider) {
		return false
	}
	if len(s.Accounts) > 0 && !containsString(s.Accounts, n.Account) {
		return false
	}
	if len(s.Regions) > 0 && !containsString(s.Regions, n.Region) {
		return false
	}
	if len(s.ResourceTypes) > 0 && !containsString(s.ResourceTypes, n.ResourceType) {
		return false
	}
	for k, v := range s.RequiredTags {
		if n.Tags[k] != v {
			return false
		}
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Principal is one identity the access layer makes decisions for. Principals
// are configuration values, never mutated after construction.
type Principal struct {
	ID                  string              `yaml:"id" json:"id"`
	Name                string              `yaml:"name" json:"name,omitempty"`
	Role                Role                `yaml:"role" json:"role"`
	Scope               Scope               `yaml:"scope" json:"scope,omitempty"`
	PermissionOverrides map[Permission]bool `yaml:"permission_overrides" json:"permission_overrides,omitempty"`
}

// Policy is the access configuration supplied once per storage wrap.
type Policy struct {
	Principals  []Principal `yaml:"principals" json:"principals"`
	DefaultRole Role        `yaml:"default_role" json:"default_role"`
	AuditLog    bool        `yaml:"audit_log" json:"audit_log"`

	// DenyUnknown refuses unrecognized principal ids instead of resolving
	// them to an anonymous principal at DefaultRole with an empty scope.
	// The permissive default is deliberate but easy to mis-configure; see
	// the README before relying on it.
	DenyUnknown bool `yaml:"deny_unknown" json:"deny_unknown"`
}

// Lookup resolves a principal by id. The second return is false for
// unrecognized ids; the caller decides between anonymous fallback and deny.
func (p Policy) Lookup(id string) (Principal, bool) {
	for _, pr := range p.Principals {
		if pr.ID == id {
			return pr, true
		}
	}
	return Principal{}, false
}
