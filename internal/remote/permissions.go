package remote

import (
	"net/http"
	"strings"
)

// Permissions is the local permission bitmask for a mounted share.
type Permissions int

const (
	PermissionRead   Permissions = 1
	PermissionUpdate Permissions = 2
	PermissionCreate Permissions = 4
	PermissionDelete Permissions = 8
	PermissionShare  Permissions = 16

	PermissionAll = PermissionRead | PermissionUpdate | PermissionCreate | PermissionDelete | PermissionShare
)

// Can reports whether all bits of p are granted.
func (perms Permissions) Can(p Permissions) bool {
	return perms&p == p
}

// permissionsHeader is the legacy per-resource permission header some
// remotes attach to WebDAV responses. Its value is a letter string in the
// style of DAV permission props.
const permissionsHeader = "X-OC-Permissions"

// FromHeader translates the legacy letter-string format. Unknown letters are
// ignored; read is always implied because the resource was served at all.
func FromHeader(h http.Header) (Permissions, bool) {
	v := h.Get(permissionsHeader)
	if v == "" {
		return 0, false
	}

	perms := PermissionRead
	for _, c := range v {
		switch c {
		case 'W':
			perms |= PermissionUpdate
		case 'C', 'K':
			perms |= PermissionCreate
		case 'D':
			perms |= PermissionDelete
		case 'R':
			perms |= PermissionShare
		}
	}
	return perms, true
}

// FromACL translates a WebDAV current-user-privilege-set (RFC 3744) into the
// local bitmask. "write" is the aggregate privilege; write-content and
// bind/unbind carry the narrow bits. No DAV privilege maps to share.
func FromACL(privileges []string) (Permissions, bool) {
	if len(privileges) == 0 {
		return 0, false
	}

	var perms Permissions
	for _, p := range privileges {
		switch strings.ToLower(p) {
		case "read":
			perms |= PermissionRead
		case "all":
			perms |= PermissionAll &^ PermissionShare
		case "write":
			perms |= PermissionUpdate | PermissionCreate | PermissionDelete
		case "write-content":
			perms |= PermissionUpdate
		case "bind":
			perms |= PermissionCreate
		case "unbind":
			perms |= PermissionDelete
		}
	}
	return perms, true
}

// FromOCM translates the OCM capability-string array format.
func FromOCM(caps []string) (Permissions, bool) {
	if len(caps) == 0 {
		return 0, false
	}

	var perms Permissions
	for _, c := range caps {
		switch strings.ToLower(c) {
		case "read":
			perms |= PermissionRead
		case "write":
			perms |= PermissionUpdate | PermissionCreate | PermissionDelete
		case "share":
			perms |= PermissionShare
		}
	}
	return perms, true
}

// DefaultPermissions is the conservative fallback when the remote declares
// nothing: directories get everything, files everything except create.
func DefaultPermissions(isDir bool) Permissions {
	if isDir {
		return PermissionAll
	}
	return PermissionAll &^ PermissionCreate
}
