// Package memory provides an in-memory share store, used in tests and as a
// throwaway backend for development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meshdrive/extshares/internal/store"
)

func init() {
	store.Register("memory", func(cfg *store.DriverConfig) (store.Driver, error) {
		return NewDriver(), nil
	})
}

// Driver is an in-memory implementation of store.Driver.
type Driver struct {
	mu      sync.RWMutex
	records map[string]*store.ShareRecord // keyed by record id

	// Index enforcing (user, mountpoint_hash) uniqueness
	mountIndex map[string]string // "user\x00hash" -> record id
}

// NewDriver creates a new in-memory share store.
func NewDriver() *Driver {
	return &Driver{
		records:    make(map[string]*store.ShareRecord),
		mountIndex: make(map[string]string),
	}
}

func (d *Driver) Name() string                   { return "memory" }
func (d *Driver) Init(ctx context.Context) error { return nil }
func (d *Driver) Close() error                   { return nil }

// mountKey creates the uniqueness key for (user, mountpoint_hash).
func mountKey(user, hash string) string {
	return user + "\x00" + hash
}

func (d *Driver) Create(ctx context.Context, rec *store.ShareRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec.ID == "" {
		rec.ID = store.NewRecordID()
	}

	key := mountKey(rec.User, rec.MountpointHash)
	if _, exists := d.mountIndex[key]; exists {
		return store.ErrDuplicateMountpoint
	}

	now := time.Now().Unix()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	clone := *rec
	d.records[rec.ID] = &clone
	d.mountIndex[key] = rec.ID

	return nil
}

func (d *Driver) GetByID(ctx context.Context, id string) (*store.ShareRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (d *Driver) GetByMountpointHash(ctx context.Context, user, hash string) (*store.ShareRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.mountIndex[mountKey(user, hash)]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *d.records[id]
	return &clone, nil
}

func (d *Driver) GetChild(ctx context.Context, parentID, user string) (*store.ShareRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, rec := range d.records {
		if rec.Parent == parentID && rec.User == user {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, store.ErrNotFound
}

func (d *Driver) Update(ctx context.Context, rec *store.ShareRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.records[rec.ID]
	if !ok {
		return store.ErrNotFound
	}

	newKey := mountKey(rec.User, rec.MountpointHash)
	oldKey := mountKey(existing.User, existing.MountpointHash)
	if newKey != oldKey {
		if _, taken := d.mountIndex[newKey]; taken {
			return store.ErrDuplicateMountpoint
		}
		delete(d.mountIndex, oldKey)
		d.mountIndex[newKey] = rec.ID
	}

	rec.UpdatedAt = time.Now().Unix()
	clone := *rec
	d.records[rec.ID] = &clone

	return nil
}

func (d *Driver) UpdateMountpoint(ctx context.Context, user, oldHash, mountpoint, newHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.mountIndex[mountKey(user, oldHash)]
	if !ok {
		return store.ErrNotFound
	}

	newKey := mountKey(user, newHash)
	if other, taken := d.mountIndex[newKey]; taken && other != id {
		return store.ErrDuplicateMountpoint
	}

	rec := d.records[id]
	delete(d.mountIndex, mountKey(user, oldHash))
	rec.Mountpoint = mountpoint
	rec.MountpointHash = newHash
	rec.UpdatedAt = time.Now().Unix()
	d.mountIndex[newKey] = id

	return nil
}

func (d *Driver) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[id]
	if !ok {
		return store.ErrNotFound
	}

	delete(d.mountIndex, mountKey(rec.User, rec.MountpointHash))
	delete(d.records, id)

	return nil
}

func (d *Driver) ListForPrincipals(ctx context.Context, user string, groups []string) ([]*store.ShareRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	groupSet := make(map[string]bool, len(groups))
	for _, g := range groups {
		groupSet[g] = true
	}

	var result []*store.ShareRecord
	for _, rec := range d.records {
		if rec.User == user ||
			(rec.ShareType == store.ShareTypeGroup && rec.Parent == store.RootParent && groupSet[rec.User]) {
			clone := *rec
			result = append(result, &clone)
		}
	}
	sortByCreation(result)
	return result, nil
}

func (d *Driver) ListByUser(ctx context.Context, user string) ([]*store.ShareRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*store.ShareRecord
	for _, rec := range d.records {
		if rec.User == user {
			clone := *rec
			result = append(result, &clone)
		}
	}
	sortByCreation(result)
	return result, nil
}

func (d *Driver) ListChildren(ctx context.Context, parentID string) ([]*store.ShareRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*store.ShareRecord
	for _, rec := range d.records {
		if rec.Parent == parentID {
			clone := *rec
			result = append(result, &clone)
		}
	}
	sortByCreation(result)
	return result, nil
}

// sortByCreation orders records oldest-first with id as tiebreaker, matching
// the sqlite driver's ordering.
func sortByCreation(recs []*store.ShareRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt < recs[j].CreatedAt
		}
		return recs[i].ID < recs[j].ID
	})
}

var _ store.Driver = (*Driver)(nil)
