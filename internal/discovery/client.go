package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meshdrive/extshares/internal/cache"
	"github.com/meshdrive/extshares/internal/httpclient"
	"github.com/meshdrive/extshares/internal/logutil"
)

// Client fetches and caches remote discovery documents.
type Client struct {
	httpClient *httpclient.Client
	cache      cache.Cache
	logger     *slog.Logger
}

// NewClient creates a new discovery client.
// If c is nil, it is silently replaced with the default in-memory cache so
// discovery always caches results and callers cannot accidentally create an
// uncached client.
func NewClient(httpClient *httpclient.Client, c cache.Cache, logger *slog.Logger) *Client {
	if c == nil {
		c = cache.NewDefault()
	}
	return &Client{
		httpClient: httpClient,
		cache:      c,
		logger:     logutil.NoopIfNil(logger),
	}
}

// Discover fetches the discovery document for a remote server.
// Uses cache if available and not expired. Returns an error only when the
// remote could not be reached at all; a missing or malformed document is not
// an error because endpoint defaults cover it.
func (c *Client) Discover(ctx context.Context, remote string) (*Document, error) {
	remote = strings.TrimSuffix(remote, "/")

	cacheKey := "discovery:" + remote
	if data, err := c.cache.Get(ctx, cacheKey); err == nil {
		var doc Document
		if err := json.Unmarshal(data, &doc); err == nil {
			return &doc, nil
		}
	}

	doc, err := c.fetchDocument(ctx, remote+"/ocm-provider/")
	if err != nil {
		doc, err = c.fetchDocument(ctx, remote+"/ocs-provider/")
		if err != nil {
			return nil, fmt.Errorf("discovery failed for %s: %w", remote, err)
		}
	}

	if data, err := json.Marshal(doc); err == nil {
		c.cache.Set(ctx, cacheKey, data, cache.TTLDiscovery)
	}

	return doc, nil
}

// WebdavEndpoint resolves the remote's WebDAV root, falling back to the
// default when discovery fails.
func (c *Client) WebdavEndpoint(ctx context.Context, remote string) string {
	doc, err := c.Discover(ctx, remote)
	if err != nil {
		c.logger.Debug("discovery unavailable, using default webdav endpoint",
			"remote", remote, "error", err)
		return DefaultWebdavEndpoint
	}
	return doc.WebdavEndpoint()
}

// ShareEndpoint resolves the remote's share API path, falling back to the
// default when discovery fails.
func (c *Client) ShareEndpoint(ctx context.Context, remote string) string {
	doc, err := c.Discover(ctx, remote)
	if err != nil {
		c.logger.Debug("discovery unavailable, using default share endpoint",
			"remote", remote, "error", err)
		return DefaultShareEndpoint
	}
	return doc.ShareEndpoint()
}

func (c *Client) fetchDocument(ctx context.Context, docURL string) (*Document, error) {
	data, resp, err := c.httpClient.GetJSON(ctx, docURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery returned status %d", resp.StatusCode)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid discovery JSON: %w", err)
	}

	return &doc, nil
}
