package sharing

import (
	"context"
	"log/slog"

	"github.com/meshdrive/extshares/internal/discovery"
	"github.com/meshdrive/extshares/internal/httpclient"
	"github.com/meshdrive/extshares/internal/logutil"
	"github.com/meshdrive/extshares/internal/remote"
	"github.com/meshdrive/extshares/internal/store"
	"github.com/meshdrive/extshares/internal/vfs"
)

// MountFactory turns accepted share records into live mounts backed by
// remote storage adapters.
type MountFactory struct {
	manager        *Manager
	httpClient     *httpclient.Client
	discovery      *discovery.Client
	allowResharing bool
	logger         *slog.Logger
}

// NewMountFactory creates a mount factory and registers it with the manager
// so AddShare can hand out mounts for pre-accepted shares.
func NewMountFactory(m *Manager, httpClient *httpclient.Client, disc *discovery.Client, allowResharing bool, logger *slog.Logger) *MountFactory {
	f := &MountFactory{
		manager:        m,
		httpClient:     httpClient,
		discovery:      disc,
		allowResharing: allowResharing,
		logger:         logutil.NoopIfNil(logger),
	}
	m.factory = f
	return f
}

// GetMountsForUser instantiates one mount per accepted share of the user,
// each placed under the user's private root. Records that fail to produce an
// adapter are skipped with a log line rather than failing the whole
// enumeration.
func (f *MountFactory) GetMountsForUser(ctx context.Context, uid string) ([]*Mount, error) {
	recs, err := f.manager.store.ListByUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	mounts := make([]*Mount, 0, len(recs))
	for _, rec := range recs {
		if rec.Accepted != store.StateAccepted {
			continue
		}
		mount, err := f.mountForRecord(rec)
		if err != nil {
			f.logger.Error("skipping unmountable share",
				"id", rec.ID, "remote", rec.Remote, "error", err)
			continue
		}
		mounts = append(mounts, mount)
	}
	return mounts, nil
}

// mountForRecord builds the storage adapter and mount handle for one
// accepted record.
func (f *MountFactory) mountForRecord(rec *store.ShareRecord) (*Mount, error) {
	storage, err := remote.NewStorage(&remote.Config{
		Remote:         rec.Remote,
		Token:          rec.ShareToken,
		Password:       rec.Password,
		AllowResharing: f.allowResharing,
		HTTPClient:     f.httpClient,
		Discovery:      f.discovery,
		Healer:         &recordHealer{manager: f.manager, record: rec},
		Logger:         f.logger,
	})
	if err != nil {
		return nil, err
	}

	return &Mount{
		admin:   f.manager,
		storage: storage,
		user:    rec.User,
		path:    mountPathForRecord(rec),
	}, nil
}

// recordHealer binds a storage adapter's permanent-failure signal to the
// deletion of its record.
type recordHealer struct {
	manager *Manager
	record  *store.ShareRecord
}

func (h *recordHealer) HealPermanentFailure(ctx context.Context, reason string) error {
	return h.manager.removeRecord(ctx, h.record)
}

func storageIDForRecord(rec *store.ShareRecord) string {
	return remote.StorageID(rec.ShareToken, rec.Remote)
}

// mountPathForRecord rewrites a record's relative mount point into the
// user's private tree.
func mountPathForRecord(rec *store.ShareRecord) string {
	return vfs.AbsoluteMountPath(rec.User, rec.Mountpoint)
}
