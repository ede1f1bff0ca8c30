package rbac

import (
	"errors"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/permission"
)

var (
	// ErrRoleNotFound is returned when an operation names an unknown role.
	ErrRoleNotFound = errors.New("rbac: role not found")

	// ErrSystemRole is returned when a caller tries to redefine or remove a
	// seeded system role.
	ErrSystemRole = errors.New("rbac: system role cannot be modified")

	// ErrCycleDetected is returned when a role's parents would make the
	// inheritance graph cyclic. The role is not inserted.
	ErrCycleDetected = errors.New("rbac: role inheritance cycle detected")

	// ErrInvalidRole is returned for role definitions that fail validation.
	ErrInvalidRole = errors.New("rbac: invalid role definition")

	// ErrSelfParent mirrors the permission-level check so callers can branch
	// on it without importing both packages.
	ErrSelfParent = permission.ErrSelfParent
)
