package identity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/meshdrive/extshares/internal/identity"
)

// Cost 4 is bcrypt's minimum, keeps the suite fast.
const testCost = 4

func TestHashAndVerifyPassword(t *testing.T) {
	auth := identity.NewUserAuth(testCost)

	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in the clear")
	}

	if err := auth.VerifyPassword(hash, "s3cret"); err != nil {
		t.Errorf("VerifyPassword with correct password: %v", err)
	}
	if err := auth.VerifyPassword(hash, "wrong"); !errors.Is(err, identity.ErrInvalidPassword) {
		t.Errorf("VerifyPassword with wrong password = %v, want ErrInvalidPassword", err)
	}
}

func TestAuthenticate(t *testing.T) {
	auth := identity.NewUserAuth(testCost)
	dir := identity.NewMemoryDirectory()
	ctx := context.Background()

	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	dir.AddUser(&identity.User{ID: "bob", DisplayName: "Bob", PasswordHash: hash})

	user, err := auth.Authenticate(ctx, dir, "bob", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != "bob" {
		t.Errorf("user.ID = %q, want bob", user.ID)
	}

	if _, err := auth.Authenticate(ctx, dir, "bob", "wrong"); !errors.Is(err, identity.ErrInvalidPassword) {
		t.Errorf("wrong password error = %v, want ErrInvalidPassword", err)
	}
	if _, err := auth.Authenticate(ctx, dir, "ghost", "hunter2"); !errors.Is(err, identity.ErrUserNotFound) {
		t.Errorf("unknown user error = %v, want ErrUserNotFound", err)
	}
}

func TestGroupMembership(t *testing.T) {
	dir := identity.NewMemoryDirectory()
	ctx := context.Background()

	dir.AddUser(&identity.User{ID: "bob"})
	dir.AddToGroup("bob", "staff")

	ok, err := dir.IsMember(ctx, "bob", "staff")
	if err != nil || !ok {
		t.Errorf("IsMember(bob, staff) = %v, %v; want true", ok, err)
	}
	ok, err = dir.IsMember(ctx, "bob", "admins")
	if err != nil || ok {
		t.Errorf("IsMember(bob, admins) = %v, %v; want false", ok, err)
	}

	groups, err := dir.GroupsForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("GroupsForUser: %v", err)
	}
	if len(groups) != 1 || groups[0] != "staff" {
		t.Errorf("groups = %v, want [staff]", groups)
	}
}
