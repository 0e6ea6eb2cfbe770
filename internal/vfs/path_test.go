package vfs_test

import (
	"testing"

	"github.com/meshdrive/extshares/internal/vfs"
)

func TestAbsoluteMountPath(t *testing.T) {
	cases := []struct {
		uid, rel, want string
	}{
		{"bob", "/Docs", "/bob/files/Docs"},
		{"bob", "Docs", "/bob/files/Docs"},
		{"bob", "/", "/bob/files"},
	}
	for _, tc := range cases {
		if got := vfs.AbsoluteMountPath(tc.uid, tc.rel); got != tc.want {
			t.Errorf("AbsoluteMountPath(%q, %q) = %q, want %q", tc.uid, tc.rel, got, tc.want)
		}
	}
}

func TestRelativeMountPath(t *testing.T) {
	rel, ok := vfs.RelativeMountPath("bob", "/bob/files/Docs/sub")
	if !ok || rel != "/Docs/sub" {
		t.Errorf("got %q, %v; want /Docs/sub, true", rel, ok)
	}

	rel, ok = vfs.RelativeMountPath("bob", "/bob/files")
	if !ok || rel != "/" {
		t.Errorf("root: got %q, %v; want /, true", rel, ok)
	}

	// Paths of other users or outside /files never resolve.
	if _, ok := vfs.RelativeMountPath("bob", "/carol/files/Docs"); ok {
		t.Error("foreign user path resolved")
	}
	if _, ok := vfs.RelativeMountPath("bob", "/bob/filesystem/Docs"); ok {
		t.Error("prefix confusion: /bob/filesystem resolved under /bob/files")
	}
}
