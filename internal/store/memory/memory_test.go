package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/meshdrive/extshares/internal/store"
	"github.com/meshdrive/extshares/internal/store/memory"
)

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

func TestCreateKeepsHashInSync(t *testing.T) {
	d := memory.NewDriver()
	ctx := context.Background()

	rec := newRecord("bob", "/Docs")
	if err := d.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := d.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.MountpointHash != store.HashMountpoint(got.Mountpoint) {
		t.Errorf("hash out of sync: mountpoint=%q hash=%q", got.Mountpoint, got.MountpointHash)
	}
}

func TestCreateRejectsDuplicateMountpoint(t *testing.T) {
	d := memory.NewDriver()
	ctx := context.Background()

	if err := d.Create(ctx, newRecord("bob", "/Docs")); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	err := d.Create(ctx, newRecord("bob", "/Docs"))
	if !errors.Is(err, store.ErrDuplicateMountpoint) {
		t.Fatalf("want ErrDuplicateMountpoint, got %v", err)
	}

	// A different user may reuse the path.
	if err := d.Create(ctx, newRecord("carol", "/Docs")); err != nil {
		t.Fatalf("Create for other user: %v", err)
	}
}

func TestUpdateMountpoint(t *testing.T) {
	d := memory.NewDriver()
	ctx := context.Background()

	rec := newRecord("bob", "/Docs")
	if err := d.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	oldHash := rec.MountpointHash
	newHash := store.HashMountpoint("/Documents")
	if err := d.UpdateMountpoint(ctx, "bob", oldHash, "/Documents", newHash); err != nil {
		t.Fatalf("UpdateMountpoint: %v", err)
	}

	got, err := d.GetByMountpointHash(ctx, "bob", newHash)
	if err != nil {
		t.Fatalf("GetByMountpointHash: %v", err)
	}
	if got.Mountpoint != "/Documents" {
		t.Errorf("mountpoint = %q, want /Documents", got.Mountpoint)
	}

	if _, err := d.GetByMountpointHash(ctx, "bob", oldHash); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("old hash still resolves, err = %v", err)
	}
}

func TestUpdateMountpointCollision(t *testing.T) {
	d := memory.NewDriver()
	ctx := context.Background()

	a := newRecord("bob", "/A")
	b := newRecord("bob", "/B")
	if err := d.Create(ctx, a); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if err := d.Create(ctx, b); err != nil {
		t.Fatalf("Create b: %v", err)
	}

	err := d.UpdateMountpoint(ctx, "bob", b.MountpointHash, "/A", store.HashMountpoint("/A"))
	if !errors.Is(err, store.ErrDuplicateMountpoint) {
		t.Fatalf("want ErrDuplicateMountpoint, got %v", err)
	}
}

func TestListForPrincipalsIncludesGroupRows(t *testing.T) {
	d := memory.NewDriver()
	ctx := context.Background()

	own := newRecord("bob", "/Mine")
	if err := d.Create(ctx, own); err != nil {
		t.Fatalf("Create own: %v", err)
	}

	groupRec := newRecord("staff", "/Team")
	groupRec.ShareType = store.ShareTypeGroup
	if err := d.Create(ctx, groupRec); err != nil {
		t.Fatalf("Create group: %v", err)
	}

	otherGroup := newRecord("admins", "/Admin")
	otherGroup.ShareType = store.ShareTypeGroup
	if err := d.Create(ctx, otherGroup); err != nil {
		t.Fatalf("Create other group: %v", err)
	}

	recs, err := d.ListForPrincipals(ctx, "bob", []string{"staff"})
	if err != nil {
		t.Fatalf("ListForPrincipals: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	seen := map[string]bool{}
	for _, rec := range recs {
		seen[rec.User] = true
	}
	if !seen["bob"] || !seen["staff"] {
		t.Errorf("unexpected principals in result: %v", seen)
	}
}

func TestGetChildAndListChildren(t *testing.T) {
	d := memory.NewDriver()
	ctx := context.Background()

	canonical := newRecord("staff", "/Team")
	canonical.ShareType = store.ShareTypeGroup
	if err := d.Create(ctx, canonical); err != nil {
		t.Fatalf("Create canonical: %v", err)
	}

	child := newRecord("bob", "/Team")
	child.ShareType = store.ShareTypeGroup
	child.Parent = canonical.ID
	child.Accepted = store.StateAccepted
	if err := d.Create(ctx, child); err != nil {
		t.Fatalf("Create child: %v", err)
	}

	got, err := d.GetChild(ctx, canonical.ID, "bob")
	if err != nil {
		t.Fatalf("GetChild: %v", err)
	}
	if !got.IsGroupChild() {
		t.Error("child record not recognized as group child")
	}

	children, err := d.ListChildren(ctx, canonical.ID)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("got %d children, want 1", len(children))
	}
}

func TestDeleteRemovesMountIndex(t *testing.T) {
	d := memory.NewDriver()
	ctx := context.Background()

	rec := newRecord("bob", "/Docs")
	if err := d.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := d.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// The path is free again.
	if err := d.Create(ctx, newRecord("bob", "/Docs")); err != nil {
		t.Fatalf("Create after delete: %v", err)
	}
}
