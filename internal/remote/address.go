// Package remote implements the storage adapter for a single federated
// share: WebDAV access to the remote folder, availability classification of
// remote failures, and the self-heal hook for shares the remote has
// permanently revoked.
package remote

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Endpoint is the parsed form of a record's remote field.
type Endpoint struct {
	Scheme string
	Host   string
	// Path is the remote's installation prefix, empty for root installs.
	Path string
}

// ParseRemote splits a remote base URL into its parts. Bare hosts default
// to https.
func ParseRemote(remote string) (*Endpoint, error) {
	remote = strings.TrimSuffix(remote, "/")
	if !strings.Contains(remote, "://") {
		remote = "https://" + remote
	}

	u, err := url.Parse(remote)
	if err != nil {
		return nil, fmt.Errorf("invalid remote %q: %w", remote, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid remote %q: no host", remote)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote %q: unsupported scheme %s", remote, u.Scheme)
	}

	return &Endpoint{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   strings.TrimSuffix(u.Path, "/"),
	}, nil
}

// BaseURL reassembles the remote base URL.
func (e *Endpoint) BaseURL() string {
	return e.Scheme + "://" + e.Host + e.Path
}

// JoinPath appends a path below the remote's installation prefix.
func (e *Endpoint) JoinPath(p string) string {
	return e.BaseURL() + "/" + strings.TrimPrefix(p, "/")
}

// StorageID derives the stable storage identifier for a share. Two mounts of
// the same remote share collapse to the same id.
func StorageID(token, remote string) string {
	sum := md5.Sum([]byte(token + "@" + strings.TrimSuffix(remote, "/")))
	return "shared::" + hex.EncodeToString(sum[:])
}
