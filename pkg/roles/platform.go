package roles

import (
	"context"
	"errors"
)

// ErrPlatformUnavailable is returned when the remote platform cannot serve
// a request right now
var ErrPlatformUnavailable = errors.New("role platform unavailable")

// Role is a role on the remote platform
type Role struct {
	ID   RoleID
	Name string
}

// Platform manages roles on the remote collaboration platform.
// Implementations must be safe for concurrent use.
type Platform interface {
	// FindOrCreateRole returns the role with the given name, creating it if absent
	FindOrCreateRole(ctx context.Context, name, reason string) (Role, error)
	// ApplyRoleDiff assigns and removes roles for a member. A partial failure
	// is reported as a single error.
	ApplyRoleDiff(ctx context.Context, subjectID string, diff Diff, reason string) error
	// AssignedRoles returns the roles a member holds. present is false when
	// the subject is not a member of the platform.
	AssignedRoles(ctx context.Context, subjectID string) (assigned Set, present bool, err error)
	// ListMembers returns the next page of member ids after the given id.
	// An empty page marks the end of the list.
	ListMembers(ctx context.Context, after string) ([]string, error)
}
