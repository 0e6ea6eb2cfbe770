package discovery_test

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

	_ "github.com/meshdrive/extshares/internal/cache/memory"
)

func testHTTPClient() *httpclient.Client {
	return httpclient.New(&config.OutboundHTTPConfig{
		SSRFMode:         "off",
		TimeoutMS:        5000,
		ConnectTimeoutMS: 5000,
		MaxRedirects:     1,
		MaxResponseBytes: 1 << 20,
	})
}

// countingServer serves fixed bodies per path and counts hits.
type countingServer struct {
	*httptest.Server
	mu     sync.Mutex
	hits   map[string]int
	bodies map[string]string
}

func newCountingServer(t *testing.T, bodies map[string]string) *countingServer {
	t.Helper()

	cs := &countingServer{hits: map[string]int{}, bodies: bodies}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.hits[r.URL.Path]++
		body, ok := cs.bodies[r.URL.Path]
		cs.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *countingServer) hitCount(path string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.hits[path]
}

func TestDiscoverReadsAdvertisedEndpoints(t *testing.T) {
	srv := newCountingServer(t, map[string]string{
		"/ocm-provider/": `{
			"version": "1.0",
			"services": {
				"FEDERATED_SHARING": {
					"version": 1,
					"endpoints": {
						"webdav": "/custom/dav",
						"share": "/custom/shares"
					}
				}
			}
		}`,
	})

	c := discovery.NewClient(testHTTPClient(), nil, nil)
	ctx := context.Background()

	if got := c.WebdavEndpoint(ctx, srv.URL); got != "/custom/dav" {
		t.Errorf("WebdavEndpoint = %q, want /custom/dav", got)
	}
	if got := c.ShareEndpoint(ctx, srv.URL); got != "/custom/shares" {
		t.Errorf("ShareEndpoint = %q, want /custom/shares", got)
	}
}

func TestDiscoverFallsBackToOCSProvider(t *testing.T) {
	srv := newCountingServer(t, map[string]string{
		"/ocs-provider/": `{
			"services": {
				"FEDERATED_SHARING": {
					"endpoints": {"share": "/legacy/shares"}
				}
			}
		}`,
	})

	c := discovery.NewClient(testHTTPClient(), nil, nil)
	ctx := context.Background()

	if got := c.ShareEndpoint(ctx, srv.URL); got != "/legacy/shares" {
		t.Errorf("ShareEndpoint = %q, want /legacy/shares", got)
	}
	// The webdav key was absent, the default covers it.
	if got := c.WebdavEndpoint(ctx, srv.URL); got != discovery.DefaultWebdavEndpoint {
		t.Errorf("WebdavEndpoint = %q, want default", got)
	}
}

func TestEndpointDefaultsOnSilentRemote(t *testing.T) {
	srv := newCountingServer(t, nil)

	c := discovery.NewClient(testHTTPClient(), nil, nil)
	ctx := context.Background()

	if got := c.WebdavEndpoint(ctx, srv.URL); got != discovery.DefaultWebdavEndpoint {
		t.Errorf("WebdavEndpoint = %q, want %q", got, discovery.DefaultWebdavEndpoint)
	}
	if got := c.ShareEndpoint(ctx, srv.URL); got != discovery.DefaultShareEndpoint {
		t.Errorf("ShareEndpoint = %q, want %q", got, discovery.DefaultShareEndpoint)
	}
}

func TestDiscoverCachesDocument(t *testing.T) {
	srv := newCountingServer(t, map[string]string{
		"/ocm-provider/": `{"services":{}}`,
	})

	c := discovery.NewClient(testHTTPClient(), nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Discover(ctx, srv.URL); err != nil {
			t.Fatalf("Discover #%d: %v", i, err)
		}
	}

	if got := srv.hitCount("/ocm-provider/"); got != 1 {
		t.Errorf("remote fetched %d times, want 1", got)
	}
}

func TestVerifyRemoteRequiresStatusFields(t *testing.T) {
	// 200 with JSON but neither installed nor version: not a federation
	// server.
	srv := newCountingServer(t, map[string]string{
		"/status.php": `{"hello":"world"}`,
	})

	c := discovery.NewClient(testHTTPClient(), nil, nil)
	if c.VerifyRemote(context.Background(), srv.URL) {
		t.Error("VerifyRemote = true for a non-federation status.php")
	}
}

func TestVerifyRemoteCachesPositiveResult(t *testing.T) {
	srv := newCountingServer(t, map[string]string{
		"/status.php": `{"installed":true,"version":"10.15.0"}`,
	})

	c := discovery.NewClient(testHTTPClient(), nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !c.VerifyRemote(ctx, srv.URL) {
			t.Fatalf("VerifyRemote #%d = false", i)
		}
	}

	if got := srv.hitCount("/status.php"); got != 1 {
		t.Errorf("identity probed %d times, want 1 (cached)", got)
	}
}

func TestVerifyRemoteDoesNotCacheFailure(t *testing.T) {
	srv := newCountingServer(t, nil)

	c := discovery.NewClient(testHTTPClient(), nil, nil)
	ctx := context.Background()

	c.VerifyRemote(ctx, srv.URL)
	c.VerifyRemote(ctx, srv.URL)

	if got := srv.hitCount("/status.php"); got != 2 {
		t.Errorf("status.php probed %d times, want 2 (failures are not cached)", got)
	}
}

func TestDiscoverOCMPrefersWellKnown(t *testing.T) {
	srv := newCountingServer(t, map[string]string{
		"/.well-known/ocm": `{"enabled":true,"apiVersion":"1.1","endPoint":"https://remote.example/ocm"}`,
		"/ocm-provider":    `{"enabled":true,"apiVersion":"1.0","endPoint":"https://remote.example/legacy-ocm"}`,
	})

	c := discovery.NewClient(testHTTPClient(), nil, nil)
	ep, err := c.NotificationsEndpoint(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("NotificationsEndpoint: %v", err)
	}
	if ep != "https://remote.example/ocm" {
		t.Errorf("endpoint = %q, want the well-known one", ep)
	}
}

func TestDiscoverOCMDisabledIsNoProvider(t *testing.T) {
	srv := newCountingServer(t, map[string]string{
		"/.well-known/ocm": `{"enabled":false,"endPoint":"https://remote.example/ocm"}`,
	})

	c := discovery.NewClient(testHTTPClient(), nil, nil)
	_, err := c.DiscoverOCM(context.Background(), srv.URL)
	if !errors.Is(err, discovery.ErrNoProvider) {
		t.Fatalf("DiscoverOCM error = %v, want ErrNoProvider", err)
	}
}
