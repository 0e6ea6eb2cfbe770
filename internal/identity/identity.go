// Package identity provides the local principal boundary: user lookup,
// group membership, and credential verification for the HTTP API.
//
// Full user and group management lives in the enclosing platform; this
// package carries only the surface the share lifecycle needs.
package identity

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
)

// User is a local user principal.
type User struct {
	ID           string
	DisplayName  string
	PasswordHash string

	// SharingDisabled marks users whose sharing rights have been revoked
	// platform-wide. Checked in addition to the remote's share permission.
	SharingDisabled bool
}

// Directory resolves local principals and their group memberships.
type Directory interface {
	// GetUser retrieves a user by id. Returns ErrUserNotFound if absent.
	GetUser(ctx context.Context, uid string) (*User, error)

	// GroupsForUser returns the ids of all groups the user belongs to.
	GroupsForUser(ctx context.Context, uid string) ([]string, error)

	// IsMember reports whether the user belongs to the given group.
	IsMember(ctx context.Context, uid, gid string) (bool, error)
}
