// Package rbac holds the static role/permission model for access requests.
// All authorization decisions go through the permission matrix; no call site
// may branch on a role name directly.
package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the static identity classification of a user. Immutable once
// assigned.
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleIT       Role = "IT"
	RoleHR       Role = "HR"
	RoleAdmin    Role = "ADMIN"
)

// Permission is a fine-grained capability token, namespaced as
// <resource>:<verb>[:<scope>].
type Permission string

const (
	PermRequestCreate       Permission = "access_request:create"
	PermRequestViewOwn      Permission = "access_request:view:own"
	PermRequestViewAll      Permission = "access_request:view:all"
	PermRequestViewByStatus Permission = "access_request:view:status"
	PermRequestDecide       Permission = "access_request:decide"
)

// matrix maps every role to its granted permissions. Built once at package
// init and never mutated afterwards, so lookups are safe from any goroutine
// without synchronization. ADMIN holds every permission of every other role.
var matrix = buildMatrix(map[Role][]Permission{
	RoleEmployee: {
		PermRequestCreate,
		PermRequestViewOwn,
	},
	RoleManager: {
		PermRequestCreate,
		PermRequestViewOwn,
		PermRequestViewByStatus,
		PermRequestDecide,
	},
	RoleIT: {
		PermRequestCreate,
		PermRequestViewOwn,
		PermRequestViewByStatus,
		PermRequestDecide,
	},
	RoleHR: {
		PermRequestCreate,
		PermRequestViewOwn,
		PermRequestViewByStatus,
		PermRequestDecide,
	},
	RoleAdmin: {
		PermRequestCreate,
		PermRequestViewOwn,
		PermRequestViewAll,
		PermRequestViewByStatus,
		PermRequestDecide,
	},
})

func buildMatrix(grants map[Role][]Permission) map[Role]map[Permission]struct{} {
	m := make(map[Role]map[Permission]struct{}, len(grants))
	for role, perms := range grants {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		m[role] = set
	}
	return m
}

// Roles lists all known roles in stable order.
func Roles() []Role {
	out := make([]Role, 0, len(matrix))
	for role := range matrix {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseRole normalizes and validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := matrix[role]; !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRole, raw)
	}
	return role, nil
}

// Allowed reports whether the role holds the permission. Total and
// deterministic; unknown roles simply hold nothing.
func Allowed(role Role, perm Permission) bool {
	set, ok := matrix[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// Check returns a ForbiddenError naming both the role and the missing
// permission when the role does not hold it. The message alone must be
// enough to diagnose the denial.
func Check(role Role, perm Permission) error {
	if Allowed(role, perm) {
		return nil
	}
	return &ForbiddenError{Role: role, Permission: perm}
}

// Permissions returns the permission set granted to the role, in stable
// order. Unknown roles return nil.
func Permissions(role Role) []Permission {
	set, ok := matrix[role]
	if !ok {
		return nil
	}
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
