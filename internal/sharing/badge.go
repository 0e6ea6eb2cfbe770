package sharing

import (
	"context"
	"sync"
)

// MemoryBadge is an in-process NotificationBadge. The enclosing platform
// may substitute its own notification center; this one backs the pending
// indicator the HTTP API exposes.
type MemoryBadge struct {
	mu      sync.Mutex
	pending map[string]map[string]bool // user -> share id set
}

// NewMemoryBadge creates an empty badge store.
func NewMemoryBadge() *MemoryBadge {
	return &MemoryBadge{pending: make(map[string]map[string]bool)}
}

// MarkPending flags a share as awaiting the user's decision.
func (b *MemoryBadge) MarkPending(ctx context.Context, user, shareID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[user] == nil {
		b.pending[user] = make(map[string]bool)
	}
	b.pending[user][shareID] = true
	return nil
}

// ClearPending removes the flag. Clearing an unflagged share is a no-op.
func (b *MemoryBadge) ClearPending(ctx context.Context, user, shareID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending[user], shareID)
	return nil
}

// PendingCount reports how many undecided offers a user has flagged.
func (b *MemoryBadge) PendingCount(ctx context.Context, user string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[user])
}

var _ NotificationBadge = (*MemoryBadge)(nil)
