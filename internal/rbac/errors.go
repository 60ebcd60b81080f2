package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is the sentinel every ForbiddenError unwraps to.
	ErrForbidden = errors.New("rbac: forbidden")

	// ErrInvalidRole indicates a role name outside the known set.
	ErrInvalidRole = errors.New("rbac: invalid role")
)

// ForbiddenError carries the denied role and the permission it lacked.
type ForbiddenError struct {
	Role       Role
	Permission Permission
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("role %s does not hold permission %s", e.Role, e.Permission)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }
