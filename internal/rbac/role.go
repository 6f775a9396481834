// Package rbac enforces per-principal, scope-narrowed access to the storage
// contract. AccessStore is a pure decorator: it satisfies storage.Store while
// wrapping an inner store, a principal, and a policy, so security composes
// underneath query execution without the query layer knowing about it.
package rbac

import "infragraph/pkg/models"

// roleDefaults are the permission sets per role tier. Tiers are strictly
// increasing: each role carries everything the tier below it grants.
var roleDefaults = map[models.Role]map[models.Permission]bool{
	models.RoleViewer: {
		models.PermRead:      true,
		models.PermTraverse:  true,
		models.PermReadStats: true,
	},
	models.RoleOperator: {
		models.PermRead:        true,
		models.PermTraverse:    true,
		models.PermReadStats:   true,
		models.PermReadCost:    true,
		models.PermReadChanges: true,
		models.PermExport:      true,
	},
	models.RoleAdmin: {
		models.PermRead:         true,
		models.PermTraverse:     true,
		models.PermReadStats:    true,
		models.PermReadCost:     true,
		models.PermReadChanges:  true,
		models.PermExport:       true,
		models.PermWrite:        true,
		models.PermManageGroups: true,
		models.PermManageSync:   true,
	},
	models.RoleSuperadmin: {
		models.PermRead:         true,
		models.PermTraverse:     true,
		models.PermReadStats:    true,
		models.PermReadCost:     true,
		models.PermReadChanges:  true,
		models.PermExport:       true,
		models.PermWrite:        true,
		models.PermManageGroups: true,
		models.PermManageSync:   true,
		models.PermBypassScope:  true,
	},
}

// EffectivePermissions merges the role defaults with the principal's explicit
// overrides; overrides always win.
func EffectivePermissions(p models.Principal) map[models.Permission]bool {
	defaults := roleDefaults[p.Role]
	out := make(map[models.Permission]bool, len(defaults)+len(p.PermissionOverrides))
	for perm, allowed := range defaults {
		out[perm] = allowed
	}
	for perm, allowed := range p.PermissionOverrides {
		out[perm] = allowed
	}
	return out
}
