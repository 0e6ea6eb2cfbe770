package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/meshdrive/extshares/internal/config"
	"github.com/meshdrive/extshares/internal/discovery"
	"github.com/meshdrive/extshares/internal/httpclient"
	"github.com/meshdrive/extshares/internal/remote"
	"github.com/meshdrive/extshares/internal/vfs"

	_ "github.com/meshdrive/extshares/internal/cache/memory"
)

const davRoot = "/public.php/webdav"

const rootMultistatus = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
 <d:response>
  <d:href>/public.php/webdav/</d:href>
  <d:propstat>
   <d:prop>
    <d:resourcetype><d:collection/></d:resourcetype>
    <d:getlastmodified>Mon, 02 Jan 2006 15:04:05 GMT</d:getlastmodified>
   </d:prop>
   <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat>
 </d:response>
</d:multistatus>`

type fakeHealer struct {
	mu      sync.Mutex
	reasons []string
}

func (h *fakeHealer) HealPermanentFailure(ctx context.Context, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reasons = append(h.reasons, reason)
	return nil
}

func (h *fakeHealer) heals() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.reasons...)
}

func testHTTPClient() *httpclient.Client {
	return httpclient.New(&config.OutboundHTTPConfig{
		SSRFMode:         "off",
		TimeoutMS:        5000,
		ConnectTimeoutMS: 5000,
		MaxRedirects:     1,
		MaxResponseBytes: 1 << 20,
	})
}

func buildStorage(t *testing.T, remoteURL string, healer remote.Healer) *remote.Storage {
	t.Helper()

	hc := testHTTPClient()
	st, err := remote.NewStorage(&remote.Config{
		Remote:     remoteURL,
		Token:      "tok",
		Password:   "pw",
		HTTPClient: hc,
		Discovery:  discovery.NewClient(hc, nil, nil),
		Healer:     healer,
	})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return st
}

// remoteDown simulates a remote whose WebDAV endpoint answers with the given
// status while the identity endpoints behave per identityBody.
func remoteDown(t *testing.T, davStatus int, identityBody string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/status.php" && identityBody != "":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(identityBody))
		case r.Method == "PROPFIND":
			w.WriteHeader(davStatus)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoneShareSelfHealsOnce(t *testing.T) {
	srv := remoteDown(t, http.StatusNotFound, `{"installed":true,"version":"10.0.0"}`)
	healer := &fakeHealer{}
	st := buildStorage(t, srv.URL, healer)
	ctx := context.Background()

	_, err := st.Stat(ctx, "/")
	if !errors.Is(err, vfs.ErrStorageInvalid) {
		t.Fatalf("Stat error = %v, want ErrStorageInvalid", err)
	}

	heals := healer.heals()
	if len(heals) != 1 || heals[0] != "share_gone" {
		t.Fatalf("heals = %v, want [share_gone]", heals)
	}

	// The heal fires at most once per adapter, even when operations keep
	// failing.
	if err := st.Remove(ctx, "/x"); !errors.Is(err, vfs.ErrStorageInvalid) {
		t.Fatalf("Remove error = %v, want ErrStorageInvalid", err)
	}
	if got := healer.heals(); len(got) != 1 {
		t.Errorf("heal ran %d times, want 1", len(got))
	}
}

func TestUnidentifiedRemoteIsTransient(t *testing.T) {
	srv := remoteDown(t, http.StatusNotFound, "")
	healer := &fakeHealer{}
	st := buildStorage(t, srv.URL, healer)

	_, err := st.Stat(context.Background(), "/")
	if !errors.Is(err, vfs.ErrStorageNotAvailable) {
		t.Fatalf("Stat error = %v, want ErrStorageNotAvailable", err)
	}
	if got := healer.heals(); len(got) != 0 {
		t.Errorf("heal ran on a transient failure: %v", got)
	}
}

func TestRevokedCredentialsArePermanent(t *testing.T) {
	srv := remoteDown(t, http.StatusUnauthorized, "")
	healer := &fakeHealer{}
	st := buildStorage(t, srv.URL, healer)

	_, err := st.Stat(context.Background(), "/")
	if !errors.Is(err, vfs.ErrStorageInvalid) {
		t.Fatalf("Stat error = %v, want ErrStorageInvalid", err)
	}
	heals := healer.heals()
	if len(heals) != 1 || heals[0] != "auth_revoked" {
		t.Errorf("heals = %v, want [auth_revoked]", heals)
	}
}

func TestUnreachableRemoteIsTransient(t *testing.T) {
	srv := remoteDown(t, http.StatusOK, "")
	url := srv.URL
	srv.Close()

	healer := &fakeHealer{}
	st := buildStorage(t, url, healer)

	_, err := st.Stat(context.Background(), "/")
	if !errors.Is(err, vfs.ErrStorageNotAvailable) {
		t.Fatalf("Stat error = %v, want ErrStorageNotAvailable", err)
	}
	if got := healer.heals(); len(got) != 0 {
		t.Errorf("heal ran for an unreachable remote: %v", got)
	}
}

func TestMissingPathOnHealthyRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == davRoot || r.URL.Path == davRoot+"/" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusMultiStatus)
			w.Write([]byte(rootMultistatus))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	healer := &fakeHealer{}
	st := buildStorage(t, srv.URL, healer)

	_, err := st.Stat(context.Background(), "/missing.txt")
	if !errors.Is(err, vfs.ErrNotFound) {
		t.Fatalf("Stat error = %v, want ErrNotFound", err)
	}
	if got := healer.heals(); len(got) != 0 {
		t.Errorf("heal ran for a path-scoped miss: %v", got)
	}
}

func TestCheckAvailabilityHealthy(t *testing.T) {
	srv := remoteDown(t, http.StatusMultiStatus, "")
	st := buildStorage(t, srv.URL, nil)

	v := st.CheckAvailability(context.Background())
	if v.Class != remote.FailureNone {
		t.Fatalf("verdict = %+v, want FailureNone", v)
	}
}

func TestCheckAvailabilityCancelled(t *testing.T) {
	srv := remoteDown(t, http.StatusMultiStatus, "")
	st := buildStorage(t, srv.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := st.CheckAvailability(ctx)
	if v.Class != remote.FailureTransient {
		t.Fatalf("verdict class = %v, want FailureTransient", v.Class)
	}
	if v.Reason != remote.ReasonCancelled {
		t.Errorf("reason = %q, want %q", v.Reason, remote.ReasonCancelled)
	}
}

func TestHasUpdatedChecksRemoteOnce(t *testing.T) {
	var propfinds int
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		propfinds++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(rootMultistatus))
	}))
	t.Cleanup(srv.Close)

	st := buildStorage(t, srv.URL, nil)
	ctx := context.Background()

	updated, err := st.HasUpdated(ctx, "/", 0)
	if err != nil {
		t.Fatalf("HasUpdated: %v", err)
	}
	if !updated {
		t.Error("first HasUpdated = false, want true for a past timestamp")
	}

	updated, err = st.HasUpdated(ctx, "/", 0)
	if err != nil {
		t.Fatalf("second HasUpdated: %v", err)
	}
	if updated {
		t.Error("second HasUpdated = true, want false (latched)")
	}

	mu.Lock()
	defer mu.Unlock()
	if propfinds != 1 {
		t.Errorf("remote probed %d times, want 1", propfinds)
	}
}

// permsServer answers every PROPFIND with the given multistatus body and
// optional legacy permission header.
func permsServer(t *testing.T, header, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			http.NotFound(w, r)
			return
		}
		if header != "" {
			w.Header().Set("X-OC-Permissions", header)
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPermissionsForHeaderOverridesDefault(t *testing.T) {
	srv := permsServer(t, "W", rootMultistatus)
	st := buildStorage(t, srv.URL, nil)

	perms, err := st.PermissionsFor(context.Background(), "/report.txt")
	if err != nil {
		t.Fatalf("PermissionsFor: %v", err)
	}
	if !perms.Can(remote.PermissionRead | remote.PermissionUpdate) {
		t.Errorf("perms = %v, want read|update granted", perms)
	}
	// The default for a file would have granted delete; the remote's
	// declaration is narrower and must win.
	if perms.Can(remote.PermissionDelete) {
		t.Errorf("perms = %v, delete must not be granted", perms)
	}
}

func TestPermissionsForReadsPrivilegeSet(t *testing.T) {
	const body = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
 <d:response>
  <d:href>/public.php/webdav/report.txt</d:href>
  <d:propstat>
   <d:prop>
    <d:resourcetype/>
    <d:current-user-privilege-set>
     <d:privilege><d:read/></d:privilege>
     <d:privilege><d:write-content/></d:privilege>
    </d:current-user-privilege-set>
   </d:prop>
   <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat>
 </d:response>
</d:multistatus>`

	srv := permsServer(t, "", body)
	st := buildStorage(t, srv.URL, nil)

	perms, err := st.PermissionsFor(context.Background(), "/report.txt")
	if err != nil {
		t.Fatalf("PermissionsFor: %v", err)
	}
	if !perms.Can(remote.PermissionRead | remote.PermissionUpdate) {
		t.Errorf("perms = %v, want read|update granted", perms)
	}
	if perms.Can(remote.PermissionCreate) || perms.Can(remote.PermissionDelete) {
		t.Errorf("perms = %v, privilege set withheld create and delete", perms)
	}
}

func TestPermissionsForDefaultsOnSilentRemote(t *testing.T) {
	srv := permsServer(t, "", rootMultistatus)
	st := buildStorage(t, srv.URL, nil)

	perms, err := st.PermissionsFor(context.Background(), "/")
	if err != nil {
		t.Fatalf("PermissionsFor: %v", err)
	}
	if perms != remote.PermissionAll {
		t.Errorf("perms = %v, want the directory default (all)", perms)
	}
}

func TestPermissionsForPrefersOCMDeclaration(t *testing.T) {
	hc := testHTTPClient()
	st, err := remote.NewStorage(&remote.Config{
		Remote:         "https://remote.example",
		Token:          "tok",
		OCMPermissions: []string{"read", "share"},
		HTTPClient:     hc,
		Discovery:      discovery.NewClient(hc, nil, nil),
	})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	perms, err := st.PermissionsFor(context.Background(), "/anything")
	if err != nil {
		t.Fatalf("PermissionsFor: %v", err)
	}
	if !perms.Can(remote.PermissionRead | remote.PermissionShare) {
		t.Errorf("perms = %v, want read|share granted", perms)
	}
	if perms.Can(remote.PermissionUpdate) {
		t.Errorf("perms = %v, update must not be granted", perms)
	}
}
