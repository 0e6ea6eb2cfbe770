// Package sharing orchestrates the lifecycle of federated external shares:
// pending offers, accept and decline decisions, mount point management, and
// removal. The manager is the only writer of share records.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meshdrive/extshares/internal/identity"
	"github.com/meshdrive/extshares/internal/logutil"
	"github.com/meshdrive/extshares/internal/notifier"
	"github.com/meshdrive/extshares/internal/store"
	"github.com/meshdrive/extshares/internal/vfs"
)

var (
	// ErrNotPermitted means the caller may not act on the share.
	ErrNotPermitted = errors.New("share not accessible to caller")
	// ErrShareNotFound means no share matches the given reference.
	ErrShareNotFound = errors.New("share not found")
)

// tempMountPrefix marks a mount point that has not been chosen by the user
// yet. Pending shares carry one so the uniqueness constraint has something
// to hold on to without occupying a real path.
const tempMountPrefix = "{{TemporaryMountPointName#"

// maxMountAttempts bounds the collision loops. A user with this many equally
// named shares has other problems.
const maxMountAttempts = 100

// Notifier reports lifecycle outcomes to the sharing remote. Failures
// collapse to false and never block local changes.
type Notifier interface {
	Notify(ctx context.Context, remote, token, remoteID string, action notifier.Action) bool
}

// NotificationBadge maintains the pending-share indicator shown to users.
// Both operations are idempotent.
type NotificationBadge interface {
	MarkPending(ctx context.Context, user, shareID string) error
	ClearPending(ctx context.Context, user, shareID string) error
}

// ReshareCleaner removes local re-shares rooted at a storage when the
// backing mount disappears.
type ReshareCleaner interface {
	RemoveResharesByStorage(ctx context.Context, storageID string) error
}

// Manager is the share lifecycle manager.
type Manager struct {
	store     store.ShareStore
	directory identity.Directory
	notifier  Notifier
	badge     NotificationBadge
	reshares  ReshareCleaner
	logger    *slog.Logger

	// factory instantiates mounts for accepted records. Set by the factory
	// itself during wiring; nil means AddShare returns no mount handle.
	factory *MountFactory
}

// NewManager creates a share lifecycle manager. badge and reshares are
// optional collaborators.
func NewManager(st store.ShareStore, dir identity.Directory, n Notifier, badge NotificationBadge, reshares ReshareCleaner, logger *slog.Logger) *Manager {
	return &Manager{
		store:     st,
		directory: dir,
		notifier:  n,
		badge:     badge,
		reshares:  reshares,
		logger:    logutil.NoopIfNil(logger),
	}
}

// AddShareParams describes an incoming share offer.
type AddShareParams struct {
	Remote    string
	Token     string
	Password  string
	Name      string
	Owner     string
	ShareType string // store.ShareTypeUser or store.ShareTypeGroup
	Accepted  bool
	User      string // local user id, or group id for group shares
	RemoteID  string
	Parent    string // store.RootParent unless creating a member child
}

// AddShare persists a new share offer. Pre-accepted shares get a real mount
// point and a live mount handle; pending shares get a temporary mount point
// and no handle.
func (m *Manager) AddShare(ctx context.Context, p AddShareParams) (*Mount, error) {
	name := normalizeName(p.Name)
	if p.Parent == "" {
		p.Parent = store.RootParent
	}

	rec := &store.ShareRecord{
		Parent:     p.Parent,
		ShareType:  p.ShareType,
		Remote:     p.Remote,
		RemoteID:   p.RemoteID,
		ShareToken: p.Token,
		Password:   p.Password,
		Name:       name,
		Owner:      p.Owner,
		User:       p.User,
	}

	if !p.Accepted {
		rec.Accepted = store.StatePending
		if err := m.insertWithTempMountpoint(ctx, rec, name); err != nil {
			return nil, err
		}
		m.logger.Info("share offer stored",
			"id", rec.ID, "remote", p.Remote, "user", p.User, "share_type", p.ShareType)
		if p.ShareType != store.ShareTypeGroup {
			m.markBadge(ctx, p.User, rec.ID)
		}
		return nil, nil
	}

	rec.Accepted = store.StateAccepted
	if err := m.insertWithFreeMountpoint(ctx, rec, name); err != nil {
		return nil, err
	}
	m.logger.Info("share stored as accepted",
		"id", rec.ID, "mountpoint", rec.Mountpoint, "user", p.User)

	if m.factory == nil {
		return nil, nil
	}
	return m.factory.mountForRecord(rec)
}

// AcceptShare marks the share accepted for the caller, assigns a collision
// free mount point under the caller's root, notifies the remote, and clears
// the pending badge. Accepting an already accepted share is a no-op with the
// same final state.
func (m *Manager) AcceptShare(ctx context.Context, caller, id string) error {
	rec, err := m.authorizedShare(ctx, caller, id)
	if err != nil {
		return err
	}

	switch rec.ShareType {
	case store.ShareTypeGroup:
		err = m.acceptGroupShare(ctx, caller, rec)
	default:
		err = m.acceptUserShare(ctx, rec)
	}
	if err != nil {
		return err
	}

	if ok := m.notifier.Notify(ctx, rec.Remote, rec.ShareToken, rec.RemoteID, notifier.ActionAccept); !ok {
		m.logger.Warn("remote not notified of accept", "id", id, "remote", rec.Remote)
	}
	m.clearBadge(ctx, caller, id)
	return nil
}

func (m *Manager) acceptUserShare(ctx context.Context, rec *store.ShareRecord) error {
	if rec.Accepted == store.StateAccepted && !strings.HasPrefix(rec.Mountpoint, tempMountPrefix) {
		return nil
	}

	rec.Accepted = store.StateAccepted
	for i := 1; i <= maxMountAttempts; i++ {
		rec.SetMountpoint(mountCandidate(rec.Name, i))
		err := m.store.Update(ctx, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicateMountpoint) {
			return err
		}
	}
	return fmt.Errorf("no free mountpoint for %s", rec.Name)
}

func (m *Manager) acceptGroupShare(ctx context.Context, caller string, rec *store.ShareRecord) error {
	// The canonical group row is never mutated; each member materializes
	// their decision as a child row.
	if child, err := m.store.GetChild(ctx, rec.ID, caller); err == nil {
		if child.Accepted == store.StateAccepted {
			return nil
		}
		child.Accepted = store.StateAccepted
		for i := 1; i <= maxMountAttempts; i++ {
			child.SetMountpoint(mountCandidate(rec.Name, i))
			err := m.store.Update(ctx, child)
			if err == nil {
				return nil
			}
			if !errors.Is(err, store.ErrDuplicateMountpoint) {
				return err
			}
		}
		return fmt.Errorf("no free mountpoint for %s", rec.Name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	child := &store.ShareRecord{
		Parent:     rec.ID,
		ShareType:  store.ShareTypeGroup,
		Remote:     rec.Remote,
		RemoteID:   rec.RemoteID,
		ShareToken: rec.ShareToken,
		Password:   rec.Password,
		Name:       rec.Name,
		Owner:      rec.Owner,
		User:       caller,
		Accepted:   store.StateAccepted,
	}
	return m.insertWithFreeMountpoint(ctx, child, rec.Name)
}

// DeclineShare records the caller's refusal. User shares are deleted
// outright; group shares keep a declined child row so the group offer is
// not shown to this member again.
func (m *Manager) DeclineShare(ctx context.Context, caller, id string) error {
	rec, err := m.authorizedShare(ctx, caller, id)
	if err != nil {
		return err
	}

	switch rec.ShareType {
	case store.ShareTypeGroup:
		err = m.declineGroupShare(ctx, caller, rec)
	default:
		if ok := m.notifier.Notify(ctx, rec.Remote, rec.ShareToken, rec.RemoteID, notifier.ActionDecline); !ok {
			m.logger.Warn("remote not notified of decline", "id", id, "remote", rec.Remote)
		}
		err = m.store.Delete(ctx, rec.ID)
	}
	if err != nil {
		return err
	}

	m.clearBadge(ctx, caller, id)
	return nil
}

func (m *Manager) declineGroupShare(ctx context.Context, caller string, rec *store.ShareRecord) error {
	if ok := m.notifier.Notify(ctx, rec.Remote, rec.ShareToken, rec.RemoteID, notifier.ActionDecline); !ok {
		m.logger.Warn("remote not notified of decline", "id", rec.ID, "remote", rec.Remote)
	}

	if child, err := m.store.GetChild(ctx, rec.ID, caller); err == nil {
		child.Accepted = store.StatePending
		return m.store.Update(ctx, child)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	child := &store.ShareRecord{
		Parent:     rec.ID,
		ShareType:  store.ShareTypeGroup,
		Remote:     rec.Remote,
		RemoteID:   rec.RemoteID,
		ShareToken: rec.ShareToken,
		Password:   rec.Password,
		Name:       rec.Name,
		Owner:      rec.Owner,
		User:       caller,
		Accepted:   store.StatePending,
	}
	return m.insertWithTempMountpoint(ctx, child, rec.Name)
}

// GetShare returns the share if the caller may see it. The visibility rule
// is the same authorization check Accept applies.
func (m *Manager) GetShare(ctx context.Context, caller, id string) (*store.ShareRecord, error) {
	return m.authorizedShare(ctx, caller, id)
}

// ListPendingShares returns the open offers visible to the caller: their own
// pending rows plus canonical group rows for groups they belong to, minus
// offers they have already materialized a decision for.
func (m *Manager) ListPendingShares(ctx context.Context, caller string) ([]*store.ShareRecord, error) {
	groups, err := m.directory.GroupsForUser(ctx, caller)
	if err != nil {
		return nil, err
	}

	recs, err := m.store.ListForPrincipals(ctx, caller, groups)
	if err != nil {
		return nil, err
	}

	var pending []*store.ShareRecord
	for _, rec := range recs {
		if rec.Accepted != store.StatePending {
			continue
		}
		if rec.IsGroupChild() {
			// A declined child is a materialized decision, not an offer.
			continue
		}
		if rec.ShareType == store.ShareTypeGroup && rec.User != caller {
			if _, err := m.store.GetChild(ctx, rec.ID, caller); err == nil {
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
		pending = append(pending, rec)
	}
	return pending, nil
}

// SetMountPoint moves a share to a new virtual path. Both paths are given
// absolute and are stripped to the caller's private root before hashing.
func (m *Manager) SetMountPoint(ctx context.Context, caller, oldPath, newPath string) error {
	oldRel, ok := vfs.RelativeMountPath(caller, oldPath)
	if !ok {
		return fmt.Errorf("%w: %s", ErrShareNotFound, oldPath)
	}
	newRel, ok := vfs.RelativeMountPath(caller, newPath)
	if !ok {
		return fmt.Errorf("path %s outside user root", newPath)
	}

	err := m.store.UpdateMountpoint(ctx, caller,
		store.HashMountpoint(oldRel), newRel, store.HashMountpoint(newRel))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrShareNotFound, oldPath)
	}
	return err
}

// RemoveShare removes the share mounted at the given virtual path. Remote
// notification is best-effort; the local record always goes away so the
// tree never keeps pointing at a dead remote. Group membership rows are
// soft-declined instead of deleted.
func (m *Manager) RemoveShare(ctx context.Context, caller, mountPath string) error {
	rel, ok := vfs.RelativeMountPath(caller, mountPath)
	if !ok {
		return fmt.Errorf("%w: %s", ErrShareNotFound, mountPath)
	}

	rec, err := m.store.GetByMountpointHash(ctx, caller, store.HashMountpoint(rel))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrShareNotFound, mountPath)
	}
	if err != nil {
		return err
	}

	m.cleanupReshares(ctx, rec)

	if ok := m.notifier.Notify(ctx, rec.Remote, rec.ShareToken, rec.RemoteID, notifier.ActionDecline); !ok {
		m.logger.Warn("remote not notified of removal", "id", rec.ID, "remote", rec.Remote)
	}

	if rec.ShareType == store.ShareTypeGroup {
		rec.Accepted = store.StatePending
		return m.store.Update(ctx, rec)
	}
	return m.store.Delete(ctx, rec.ID)
}

// RemoveUserShares deletes every share of a user, used on account deletion.
// Remote notifications are best-effort per row; local deletion is
// unconditional.
func (m *Manager) RemoveUserShares(ctx context.Context, uid string) error {
	recs, err := m.store.ListByUser(ctx, uid)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		m.cleanupReshares(ctx, rec)
		if ok := m.notifier.Notify(ctx, rec.Remote, rec.ShareToken, rec.RemoteID, notifier.ActionDecline); !ok {
			m.logger.Warn("remote not notified of removal", "id", rec.ID, "remote", rec.Remote)
		}
		if err := m.store.Delete(ctx, rec.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

// RemoveGroupShares deletes a group's canonical shares and every member
// child, used on group deletion.
func (m *Manager) RemoveGroupShares(ctx context.Context, gid string) error {
	recs, err := m.store.ListByUser(ctx, gid)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		children, err := m.store.ListChildren(ctx, rec.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			m.cleanupReshares(ctx, child)
			if err := m.store.Delete(ctx, child.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		if ok := m.notifier.Notify(ctx, rec.Remote, rec.ShareToken, rec.RemoteID, notifier.ActionDecline); !ok {
			m.logger.Warn("remote not notified of removal", "id", rec.ID, "remote", rec.Remote)
		}
		if err := m.store.Delete(ctx, rec.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

// removeRecord is the self-heal entry point: delete the record without any
// remote notification. The remote already told us the share is gone.
func (m *Manager) removeRecord(ctx context.Context, rec *store.ShareRecord) error {
	m.cleanupReshares(ctx, rec)
	err := m.store.Delete(ctx, rec.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (m *Manager) authorizedShare(ctx context.Context, caller, id string) (*store.ShareRecord, error) {
	rec, err := m.store.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrShareNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	switch rec.ShareType {
	case store.ShareTypeGroup:
		member, err := m.directory.IsMember(ctx, caller, rec.User)
		if err != nil {
			return nil, err
		}
		if !member && rec.User != caller {
			return nil, ErrNotPermitted
		}
	default:
		if rec.User != caller {
			return nil, ErrNotPermitted
		}
	}
	return rec, nil
}

// insertWithTempMountpoint inserts rec under a temporary mount point,
// appending -<n> on collision.
func (m *Manager) insertWithTempMountpoint(ctx context.Context, rec *store.ShareRecord, name string) error {
	base := tempMountPrefix + name + "}}"
	for i := 0; i <= maxMountAttempts; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		rec.SetMountpoint(candidate)
		err := m.store.Create(ctx, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicateMountpoint) {
			return err
		}
	}
	return fmt.Errorf("no free temporary mountpoint for %s", name)
}

// insertWithFreeMountpoint inserts rec under the first free variant of name,
// trying name, name (2), name (3) and so on.
func (m *Manager) insertWithFreeMountpoint(ctx context.Context, rec *store.ShareRecord, name string) error {
	for i := 1; i <= maxMountAttempts; i++ {
		rec.SetMountpoint(mountCandidate(name, i))
		err := m.store.Create(ctx, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicateMountpoint) {
			return err
		}
	}
	return fmt.Errorf("no free mountpoint for %s", name)
}

func (m *Manager) cleanupReshares(ctx context.Context, rec *store.ShareRecord) {
	if m.reshares == nil {
		return
	}
	storageID := storageIDForRecord(rec)
	if err := m.reshares.RemoveResharesByStorage(ctx, storageID); err != nil {
		m.logger.Warn("reshare cleanup failed", "storage_id", storageID, "error", err)
	}
}

func (m *Manager) markBadge(ctx context.Context, user, id string) {
	if m.badge == nil {
		return
	}
	if err := m.badge.MarkPending(ctx, user, id); err != nil {
		m.logger.Warn("failed to mark pending badge", "id", id, "error", err)
	}
}

func (m *Manager) clearBadge(ctx context.Context, caller, id string) {
	if m.badge == nil {
		return
	}
	if err := m.badge.ClearPending(ctx, caller, id); err != nil {
		m.logger.Warn("failed to clear pending badge", "id", id, "error", err)
	}
}

// normalizeName reduces a display name to a rooted path with a single
// leading slash.
func normalizeName(name string) string {
	return "/" + strings.Trim(name, "/")
}

// mountCandidate returns the i-th disambiguation of a mount point name:
// the name itself first, then "name (2)", "name (3)" and so on.
func mountCandidate(name string, i int) string {
	if i <= 1 {
		return name
	}
	return fmt.Sprintf("%s (%d)", name, i)
}
