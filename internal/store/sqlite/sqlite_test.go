package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/meshdrive/extshares/internal/store"
	"github.com/meshdrive/extshares/internal/store/sqlite"
)

func openDriver(t *testing.T, dataDir string) store.Driver {
	t.Helper()

	d, err := sqlite.NewDriver(&store.DriverConfig{Driver: "sqlite", DataDir: dataDir})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func newRecord(user, mountpoint string) *store.ShareRecord {
	rec := &store.ShareRecord{
		Parent:     store.RootParent,
		ShareType:  store.ShareTypeUser,
		Remote:     "https://remote.example",
		RemoteID:   "42",
		ShareToken: "tok",
		Name:       "/Docs",
		Owner:      "alice@remote.example",
		User:       user,
		Accepted:   store.StatePending,
	}
	rec.SetMountpoint(mountpoint)
	return rec
}

func TestRequiresDataDir(t *testing.T) {
	if _, err := sqlite.NewDriver(&store.DriverConfig{Driver: "sqlite"}); err == nil {
		t.Error("NewDriver accepted an empty data dir")
	}
}

func TestCreateEnforcesUniqueness(t *testing.T) {
	d := openDriver(t, t.TempDir())
	ctx := context.Background()

	if err := d.Create(ctx, newRecord("bob", "/Docs")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	err := d.Create(ctx, newRecord("bob", "/Docs"))
	if !errors.Is(err, store.ErrDuplicateMountpoint) {
		t.Fatalf("want ErrDuplicateMountpoint, got %v", err)
	}

	if err := d.Create(ctx, newRecord("carol", "/Docs")); err != nil {
		t.Fatalf("Create for other user: %v", err)
	}
}

func TestUpdateMountpoint(t *testing.T) {
	d := openDriver(t, t.TempDir())
	ctx := context.Background()

	rec := newRecord("bob", "/Docs")
	if err := d.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	newHash := store.HashMountpoint("/Documents")
	if err := d.UpdateMountpoint(ctx, "bob", rec.MountpointHash, "/Documents", newHash); err != nil {
		t.Fatalf("UpdateMountpoint: %v", err)
	}

	got, err := d.GetByMountpointHash(ctx, "bob", newHash)
	if err != nil {
		t.Fatalf("GetByMountpointHash: %v", err)
	}
	if got.Mountpoint != "/Documents" {
		t.Errorf("mountpoint = %q, want /Documents", got.Mountpoint)
	}

	err = d.UpdateMountpoint(ctx, "bob", "no-such-hash", "/X", store.HashMountpoint("/X"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing record err = %v, want ErrNotFound", err)
	}
}

func TestRecordsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	d := openDriver(t, dir)
	rec := newRecord("bob", "/Docs")
	if err := d.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openDriver(t, dir)
	got, err := reopened.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID after reopen: %v", err)
	}
	if got.Mountpoint != "/Docs" || got.User != "bob" {
		t.Errorf("record = %+v, lost fields across reopen", got)
	}
}

func TestListForPrincipals(t *testing.T) {
	d := openDriver(t, t.TempDir())
	ctx := context.Background()

	if err := d.Create(ctx, newRecord("bob", "/Mine")); err != nil {
		t.Fatalf("Create own: %v", err)
	}
	groupRec := newRecord("staff", "/Team")
	groupRec.ShareType = store.ShareTypeGroup
	if err := d.Create(ctx, groupRec); err != nil {
		t.Fatalf("Create group: %v", err)
	}

	recs, err := d.ListForPrincipals(ctx, "bob", []string{"staff", "admins"})
	if err != nil {
		t.Fatalf("ListForPrincipals: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	// Without group membership only the user's own rows surface.
	recs, err = d.ListForPrincipals(ctx, "bob", nil)
	if err != nil {
		t.Fatalf("ListForPrincipals without groups: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("got %d records, want 1", len(recs))
	}
}
