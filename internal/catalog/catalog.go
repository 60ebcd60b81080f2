// Package catalog maps application names to the roles whose sign-off an
// access request needs. The catalog is consulted exactly once, at request
// creation; its answer is frozen onto the entity.
package catalog

import (
	"strings"

	"accessdesk.org/internal/rbac"
)

// Catalog resolves application names case-insensitively against a static
// table. Immutable after construction, safe for concurrent use.
type Catalog struct {
	entries map[string][]rbac.Role
}

// New builds a catalog from the given table. Keys are normalized to lower
// case; role slices are copied.
func New(entries map[string][]rbac.Role) *Catalog {
	c := &Catalog{entries: make(map[string][]rbac.Role, len(entries))}
	for name, roles := range entries {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || len(roles) == 0 {
			continue
		}
		c.entries[key] = dedupeRoles(roles)
	}
	return c
}

// Default returns the built-in catalog of known internal applications.
func Default() *Catalog {
	return New(map[string][]rbac.Role{
		"GitHub":     {rbac.RoleIT},
		"Jira":       {rbac.RoleIT},
		"Slack":      {rbac.RoleIT},
		"Salesforce": {rbac.RoleManager, rbac.RoleIT},
		"Workday":    {rbac.RoleHR, rbac.RoleManager},
		"AWS":        {rbac.RoleManager, rbac.RoleIT},
		"Payroll":    {rbac.RoleHR, rbac.RoleAdmin},
	})
}

// RequiredApprovals resolves the approval set for an application name.
// Unknown names resolve to {ADMIN}: an unrecognized application must not
// default to an easily-satisfied set, so it is routed to the
// highest-privilege role for manual triage.
func (c *Catalog) RequiredApprovals(applicationName string) []rbac.Role {
	key := strings.ToLower(strings.TrimSpace(applicationName))
	if roles, ok := c.entries[key]; ok {
		out := make([]rbac.Role, len(roles))
		copy(out, roles)
		return out
	}
	return []rbac.Role{rbac.RoleAdmin}
}

// Known reports whether the application name is in the catalog.
func (c *Catalog) Known(applicationName string) bool {
	_, ok := c.entries[strings.ToLower(strings.TrimSpace(applicationName))]
	return ok
}

func dedupeRoles(roles []rbac.Role) []rbac.Role {
	seen := make(map[rbac.Role]struct{}, len(roles))
	out := make([]rbac.Role, 0, len(roles))
	for _, r := range roles {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
