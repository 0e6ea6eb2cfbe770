package remote_test

import (
	"strings"
	"testing"

	"github.com/meshdrive/extshares/internal/remote"
)

func TestParseRemoteDefaultsToHTTPS(t *testing.T) {
	ep, err := remote.ParseRemote("cloud.example.org")
	if err != nil {
		t.Fatalf("ParseRemote: %v", err)
	}
	if ep.Scheme != "https" || ep.Host != "cloud.example.org" {
		t.Errorf("endpoint = %+v, want https://cloud.example.org", ep)
	}
}

func TestParseRemoteKeepsInstallationPrefix(t *testing.T) {
	ep, err := remote.ParseRemote("https://example.org/owncloud/")
	if err != nil {
		t.Fatalf("ParseRemote: %v", err)
	}
	if ep.Path != "/owncloud" {
		t.Errorf("path = %q, want /owncloud", ep.Path)
	}
	if got := ep.BaseURL(); got != "https://example.org/owncloud" {
		t.Errorf("BaseURL = %q", got)
	}
	if got := ep.JoinPath("/status.php"); got != "https://example.org/owncloud/status.php" {
		t.Errorf("JoinPath = %q", got)
	}
}

func TestParseRemoteRejectsBadInput(t *testing.T) {
	for _, in := range []string{"ftp://example.org", "https://", ""} {
		if _, err := remote.ParseRemote(in); err == nil {
			t.Errorf("ParseRemote(%q) succeeded, want error", in)
		}
	}
}

func TestStorageIDStable(t *testing.T) {
	a := remote.StorageID("tok", "https://example.org")
	b := remote.StorageID("tok", "https://example.org/")
	if a != b {
		t.Errorf("trailing slash changes id: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "shared::") {
		t.Errorf("id = %q, want shared:: prefix", a)
	}
	if c := remote.StorageID("other", "https://example.org"); c == a {
		t.Error("different tokens collapse to the same id")
	}
}
