package sharing

import (
	"context"
	"sync"

	"github.com/meshdrive/extshares/internal/vfs"
)

// ShareAdministrator is the slice of the manager a mount handle needs for
// its move and remove callbacks. The narrow interface keeps the mutual
// Mount and Manager reference acyclic at the type level.
type ShareAdministrator interface {
	SetMountPoint(ctx context.Context, caller, oldPath, newPath string) error
	RemoveShare(ctx context.Context, caller, mountPath string) error
}

// MountKind tags shares for the UI layer.
const MountKind = "shared"

// Mount is the handle for one accepted share in a user's virtual tree.
type Mount struct {
	admin   ShareAdministrator
	storage vfs.Storage
	user    string

	mu   sync.Mutex
	path string // absolute, /<uid>/files/<relative>
}

// MountPoint returns the absolute virtual path of the mount.
func (m *Mount) MountPoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// Storage returns the backing remote storage.
func (m *Mount) Storage() vfs.Storage {
	return m.storage
}

// Kind tags this mount as a federated share.
func (m *Mount) Kind() string {
	return MountKind
}

// MoveMount relocates the mount point. The handle's recorded path changes
// only after the store confirms the move, so in-memory and persisted state
// never diverge.
func (m *Mount) MoveMount(ctx context.Context, newPath string) error {
	m.mu.Lock()
	oldPath := m.path
	m.mu.Unlock()

	if err := m.admin.SetMountPoint(ctx, m.user, oldPath, newPath); err != nil {
		return err
	}

	m.mu.Lock()
	m.path = newPath
	m.mu.Unlock()
	return nil
}

// RemoveMount detaches the mount and releases the backing share.
func (m *Mount) RemoveMount(ctx context.Context) error {
	return m.admin.RemoveShare(ctx, m.user, m.MountPoint())
}

var (
	_ vfs.Mount          = (*Mount)(nil)
	_ vfs.MoveableMount  = (*Mount)(nil)
	_ vfs.RemovableMount = (*Mount)(nil)
)
