package vfs

import (
	"path"
	"strings"
)

// UserRoot returns the root of a user's private file tree.
func UserRoot(uid string) string {
	return "/" + uid + "/files"
}

// AbsoluteMountPath places a relative virtual path under the user's root.
// The relative path may or may not carry a leading slash.
func AbsoluteMountPath(uid, relative string) string {
	return path.Join(UserRoot(uid), strings.TrimPrefix(relative, "/"))
}

// RelativeMountPath strips the user's private prefix from an absolute virtual
// path. Returns the path unchanged and false when it is not under the user's
// root. The result always carries a leading slash.
func RelativeMountPath(uid, absolute string) (string, bool) {
	root := UserRoot(uid)
	if absolute == root {
		return "/", true
	}
	if !strings.HasPrefix(absolute, root+"/") {
		return absolute, false
	}
	return absolute[len(root):], true
}
