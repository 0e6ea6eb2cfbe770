// Package vfs defines the virtual filesystem contracts external shares mount
// into. The enclosing platform owns the full filesystem; this package carries
// the storage and mount surfaces the share subsystem implements plus the
// user-root path conventions.
package vfs

import (
	"context"
	"errors"
	"io"
	"os"
)

var (
	// ErrNotFound means the path does not exist on the storage.
	ErrNotFound = errors.New("path not found")
	// ErrForbidden means the storage rejected the caller's credentials.
	ErrForbidden = errors.New("access forbidden")
	// ErrStorageNotAvailable means the storage cannot be reached right now.
	ErrStorageNotAvailable = errors.New("storage not available")
	// ErrStorageInvalid means the storage is permanently gone or misconfigured.
	ErrStorageInvalid = errors.New("storage invalid")
)

// Storage is a mounted filesystem backend.
type Storage interface {
	// ID returns a stable identifier unique to this storage instance.
	ID() string

	Stat(ctx context.Context, path string) (os.FileInfo, error)
	ReadDir(ctx context.Context, path string) ([]os.FileInfo, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Write(ctx context.Context, path string, r io.Reader) error
	Mkdir(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error

	// HasUpdated reports whether anything under path changed since the given
	// unix time.
	HasUpdated(ctx context.Context, path string, since int64) (bool, error)
}

// Mount binds a storage to a position in a user's virtual tree.
type Mount interface {
	// MountPoint returns the absolute virtual path, /<uid>/files/<relative>.
	MountPoint() string
	Storage() Storage
}

// MoveableMount is a mount whose mount point can be renamed.
type MoveableMount interface {
	Mount
	// MoveMount relocates the mount point. The handle's path changes only
	// after the move is persisted.
	MoveMount(ctx context.Context, newPath string) error
}

// RemovableMount is a mount that can be detached and its backing share
// released.
type RemovableMount interface {
	Mount
	RemoveMount(ctx context.Context) error
}
