package identity

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory Directory implementation.
type MemoryDirectory struct {
	mu     sync.RWMutex
	users  map[string]*User
	groups map[string]map[string]bool // gid -> set of uids
}

// NewMemoryDirectory creates a new in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:  make(map[string]*User),
		groups: make(map[string]map[string]bool),
	}
}

// AddUser adds or replaces a user.
func (d *MemoryDirectory) AddUser(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *u
	d.users[u.ID] = &clone
}

// AddToGroup adds a user to a group, creating the group if needed.
func (d *MemoryDirectory) AddToGroup(uid, gid string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.groups[gid] == nil {
		d.groups[gid] = make(map[string]bool)
	}
	d.groups[gid][uid] = true
}

func (d *MemoryDirectory) GetUser(ctx context.Context, uid string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[uid]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (d *MemoryDirectory) GroupsForUser(ctx context.Context, uid string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var gids []string
	for gid, members := range d.groups {
		if members[uid] {
			gids = append(gids, gid)
		}
	}
	return gids, nil
}

func (d *MemoryDirectory) IsMember(ctx context.Context, uid, gid string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.groups[gid][uid], nil
}

var _ Directory = (*MemoryDirectory)(nil)
