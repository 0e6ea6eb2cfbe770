package httpclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meshdrive/extshares/internal/config"
	"github.com/meshdrive/extshares/internal/httpclient"
)

func newClient(ssrfMode string, maxBytes int64) *httpclient.Client {
	return httpclient.New(&config.OutboundHTTPConfig{
		SSRFMode:         ssrfMode,
		TimeoutMS:        5000,
		ConnectTimeoutMS: 5000,
		MaxRedirects:     1,
		MaxResponseBytes: maxBytes,
	})
}

func TestStrictModeBlocksLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached a loopback server in strict mode")
	}))
	defer srv.Close()

	c := newClient("strict", 1<<20)
	_, err := c.Get(context.Background(), srv.URL)
	if !httpclient.IsSSRFError(err) {
		t.Fatalf("err = %v, want SSRF block", err)
	}

	if _, err := c.Get(context.Background(), "http://localhost/status.php"); !httpclient.IsSSRFError(err) {
		t.Errorf("localhost err = %v, want SSRF block", err)
	}
}

func TestOffModeAllowsLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newClient("off", 1<<20)
	body, resp, err := c.GetJSON(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
}

func TestSameHostRedirectFollowed(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, "/dest", http.StatusFound)
		case "/dest":
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte("landed"))
		}
	}))
	defer srv.Close()

	c := newClient("off", 1<<20)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/start", nil)
	req.Header.Set("Authorization", "Basic c2VjcmV0")

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 after redirect", resp.StatusCode)
	}
	if gotAuth != "" {
		t.Error("Authorization header leaked across the redirect")
	}
}

func TestCrossHostRedirectBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://elsewhere.example/dest", http.StatusFound)
	}))
	defer srv.Close()

	c := newClient("off", 1<<20)
	_, err := c.Get(context.Background(), srv.URL)
	if !errors.Is(err, httpclient.ErrRedirectNotSameHost) {
		t.Fatalf("err = %v, want ErrRedirectNotSameHost", err)
	}
}

func TestRedirectLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	c := newClient("off", 1<<20)
	_, err := c.Get(context.Background(), srv.URL+"/a")
	if !errors.Is(err, httpclient.ErrTooManyRedirects) {
		t.Fatalf("err = %v, want ErrTooManyRedirects", err)
	}
}

func TestResponseSizeBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	c := newClient("off", 1024)
	_, _, err := c.GetJSON(context.Background(), srv.URL)
	if !errors.Is(err, httpclient.ErrResponseTooLarge) {
		t.Fatalf("err = %v, want ErrResponseTooLarge", err)
	}
}
