// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/meshdrive/extshares/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements the store.Driver interface using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "extshares.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	if err := db.AutoMigrate(&store.ShareRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create inserts a new record, generating an id when absent.
func (d *Driver) Create(ctx context.Context, rec *store.ShareRecord) error {
	if rec.ID == "" {
		rec.ID = store.NewRecordID()
	}
	now := time.Now().Unix()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	result := d.db.WithContext(ctx).Create(rec)
	if result.Error != nil {
		return translateDuplicate(result.Error)
	}
	return nil
}

// GetByID retrieves a record by id.
func (d *Driver) GetByID(ctx context.Context, id string) (*store.ShareRecord, error) {
	var rec store.ShareRecord
	result := d.db.WithContext(ctx).First(&rec, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &rec, nil
}

// GetByMountpointHash retrieves a user's record by mount point hash.
func (d *Driver) GetByMountpointHash(ctx context.Context, user, hash string) (*store.ShareRecord, error) {
	var rec store.ShareRecord
	result := d.db.WithContext(ctx).First(&rec, "user = ? AND mountpoint_hash = ?", user, hash)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &rec, nil
}

// GetChild retrieves the member-specific child of a canonical group record.
func (d *Driver) GetChild(ctx context.Context, parentID, user string) (*store.ShareRecord, error) {
	var rec store.ShareRecord
	result := d.db.WithContext(ctx).First(&rec, "parent = ? AND user = ?", parentID, user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &rec, nil
}

// Update persists changes to an existing record.
func (d *Driver) Update(ctx context.Context, rec *store.ShareRecord) error {
	rec.UpdatedAt = time.Now().Unix()
	result := d.db.WithContext(ctx).Save(rec)
	if result.Error != nil {
		return translateDuplicate(result.Error)
	}
	return nil
}

// UpdateMountpoint rewrites a user's record identified by the old mount
// point hash.
func (d *Driver) UpdateMountpoint(ctx context.Context, user, oldHash, mountpoint, newHash string) error {
	result := d.db.WithContext(ctx).
		Model(&store.ShareRecord{}).
		Where("user = ? AND mountpoint_hash = ?", user, oldHash).
		Updates(map[string]any{
			"mountpoint":      mountpoint,
			"mountpoint_hash": newHash,
			"updated_at":      time.Now().Unix(),
		})
	if result.Error != nil {
		return translateDuplicate(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes a record by id.
func (d *Driver) Delete(ctx context.Context, id string) error {
	result := d.db.WithContext(ctx).Delete(&store.ShareRecord{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListForPrincipals returns the user's own records plus canonical group
// records for any of the given groups. Group membership uses a proper
// multi-value IN clause.
func (d *Driver) ListForPrincipals(ctx context.Context, user string, groups []string) ([]*store.ShareRecord, error) {
	var recs []*store.ShareRecord
	query := d.db.WithContext(ctx).Where("user = ?", user)
	if len(groups) > 0 {
		query = query.Or("share_type = ? AND parent = ? AND user IN ?",
			store.ShareTypeGroup, store.RootParent, groups)
	}
	result := query.Order("created_at").Find(&recs)
	if result.Error != nil {
		return nil, result.Error
	}
	return recs, nil
}

// ListByUser returns all records whose user column matches exactly.
func (d *Driver) ListByUser(ctx context.Context, user string) ([]*store.ShareRecord, error) {
	var recs []*store.ShareRecord
	result := d.db.WithContext(ctx).Where("user = ?", user).Order("created_at").Find(&recs)
	if result.Error != nil {
		return nil, result.Error
	}
	return recs, nil
}

// ListChildren returns the member-specific children of a canonical group record.
func (d *Driver) ListChildren(ctx context.Context, parentID string) ([]*store.ShareRecord, error) {
	var recs []*store.ShareRecord
	result := d.db.WithContext(ctx).Where("parent = ?", parentID).Find(&recs)
	if result.Error != nil {
		return nil, result.Error
	}
	return recs, nil
}

// translateDuplicate maps unique-constraint violations onto
// store.ErrDuplicateMountpoint. The string check covers sqlite errors that
// predate GORM's error translation.
func translateDuplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrDuplicateMountpoint
	}
	return err
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.ShareStore = (*Driver)(nil)
