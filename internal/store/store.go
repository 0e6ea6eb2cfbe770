// Package store provides persistence primitives and driver abstractions
// for federated external share records.
package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")

	// ErrDuplicateMountpoint reports a (user, mountpoint_hash) uniqueness
	// violation. Callers retry with another mount point.
	ErrDuplicateMountpoint = errors.New("duplicate mount point for user")
)

// Share types.
const (
	ShareTypeUser  = "user"
	ShareTypeGroup = "group"
)

// Acceptance states.
const (
	StatePending  = 0
	StateAccepted = 1
)

// RootParent is the parent sentinel for records that are not member-specific
// children of a group share.
const RootParent = "-1"

// ShareRecord is the persisted unit of a federated external share.
//
// For group shares the canonical record has User set to the group id and
// Parent set to RootParent; per-member decisions are child records with
// User set to the member id and Parent referencing the canonical record.
type ShareRecord struct {
	ID        string `json:"id" gorm:"column:id;primaryKey"`
	Parent    string `json:"parent" gorm:"column:parent;index"`
	ShareType string `json:"share_type" gorm:"column:share_type"`

	Remote     string `json:"remote" gorm:"column:remote"`
	RemoteID   string `json:"remote_id" gorm:"column:remote_id"`
	ShareToken string `json:"share_token,omitempty" gorm:"column:share_token"`
	Password   string `json:"password,omitempty" gorm:"column:password"`

	Name  string `json:"name" gorm:"column:name"`
	Owner string `json:"owner" gorm:"column:owner"`

	// User is the local principal: a user id for user shares, a group id
	// for canonical group shares, a member id for group children.
	User string `json:"user" gorm:"column:user;uniqueIndex:idx_user_mountpoint"`

	Mountpoint     string `json:"mountpoint" gorm:"column:mountpoint"`
	MountpointHash string `json:"mountpoint_hash" gorm:"column:mountpoint_hash;uniqueIndex:idx_user_mountpoint"`

	Accepted int `json:"accepted" gorm:"column:accepted"`

	CreatedAt int64 `json:"created_at" gorm:"column:created_at"`
	UpdatedAt int64 `json:"updated_at" gorm:"column:updated_at"`
}

// TableName fixes the table name for GORM.
func (ShareRecord) TableName() string { return "share_external" }

// SetMountpoint sets Mountpoint and keeps MountpointHash in sync.
// All mount point writes must go through here.
func (r *ShareRecord) SetMountpoint(mountpoint string) {
	r.Mountpoint = mountpoint
	r.MountpointHash = HashMountpoint(mountpoint)
}

// IsGroupChild reports whether the record is a member-specific child of a
// canonical group share.
func (r *ShareRecord) IsGroupChild() bool {
	return r.ShareType == ShareTypeGroup && r.Parent != RootParent
}

// HashMountpoint returns the MD5 hex digest of a mount point path, used as
// the per-user collision key.
func HashMountpoint(mountpoint string) string {
	sum := md5.Sum([]byte(mountpoint))
	return hex.EncodeToString(sum[:])
}

// ShareStore defines operations for share persistence.
// Implementations must enforce (user, mountpoint_hash) uniqueness on Create
// and Update, reporting violations as ErrDuplicateMountpoint.
type ShareStore interface {
	// Create inserts a new record. A missing ID is generated.
	Create(ctx context.Context, rec *ShareRecord) error

	// GetByID retrieves a record by id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*ShareRecord, error)

	// GetByMountpointHash retrieves a user's record by mount point hash.
	GetByMountpointHash(ctx context.Context, user, hash string) (*ShareRecord, error)

	// GetChild retrieves the member-specific child of a canonical group
	// record, if one exists.
	GetChild(ctx context.Context, parentID, user string) (*ShareRecord, error)

	// Update persists changes to an existing record.
	Update(ctx context.Context, rec *ShareRecord) error

	// UpdateMountpoint rewrites a user's record identified by the old mount
	// point hash. Returns ErrNotFound if no such record exists.
	UpdateMountpoint(ctx context.Context, user, oldHash, mountpoint, newHash string) error

	// Delete removes a record by id.
	Delete(ctx context.Context, id string) error

	// ListForPrincipals returns records visible to a user: the user's own
	// records plus canonical group records for any of the given groups.
	ListForPrincipals(ctx context.Context, user string, groups []string) ([]*ShareRecord, error)

	// ListByUser returns all records whose user column matches exactly
	// (user shares and group children for a uid, canonical rows for a gid).
	ListByUser(ctx context.Context, user string) ([]*ShareRecord, error)

	// ListChildren returns the member-specific children of a canonical
	// group record.
	ListChildren(ctx context.Context, parentID string) ([]*ShareRecord, error)
}

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	ShareStore

	// Init initializes the driver (create tables, open files).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (sqlite, memory).
	Name() string
}
