package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/meshdrive/extshares/internal/cache"
)

// ErrNoProvider means the remote does not advertise an OCM provider. Callers
// fall back to the legacy protocol on it.
var ErrNoProvider = errors.New("remote has no OCM provider")

// OCMDocument is the OCM provider descriptor of a remote server, distinct
// from the legacy services Document.
type OCMDocument struct {
	Enabled       bool     `json:"enabled"`
	APIVersion    string   `json:"apiVersion"`
	EndPoint      string   `json:"endPoint"`
	ResourceTypes []any    `json:"resourceTypes,omitempty"`
	Capabilities  []string `json:"capabilities,omitempty"`
}

// DiscoverOCM fetches the OCM provider descriptor for a remote server,
// trying the well-known location first and the legacy path second.
// Returns ErrNoProvider when neither answers or OCM is disabled.
func (c *Client) DiscoverOCM(ctx context.Context, remote string) (*OCMDocument, error) {
	remote = strings.TrimSuffix(remote, "/")

	cacheKey := "discovery-ocm:" + remote
	if data, err := c.cache.Get(ctx, cacheKey); err == nil {
		var doc OCMDocument
		if err := json.Unmarshal(data, &doc); err == nil {
			return &doc, nil
		}
	}

	doc, err := c.fetchOCMDocument(ctx, remote+"/.well-known/ocm")
	if err != nil {
		doc, err = c.fetchOCMDocument(ctx, remote+"/ocm-provider")
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNoProvider, remote)
		}
	}

	if data, err := json.Marshal(doc); err == nil {
		c.cache.Set(ctx, cacheKey, data, cache.TTLDiscovery)
	}

	return doc, nil
}

// NotificationsEndpoint resolves the base OCM API endpoint of a remote for
// notification dispatch.
func (c *Client) NotificationsEndpoint(ctx context.Context, remote string) (string, error) {
	doc, err := c.DiscoverOCM(ctx, remote)
	if err != nil {
		return "", err
	}
	if doc.EndPoint == "" {
		return "", ErrNoProvider
	}
	return doc.EndPoint, nil
}

func (c *Client) fetchOCMDocument(ctx context.Context, docURL string) (*OCMDocument, error) {
	data, resp, err := c.httpClient.GetJSON(ctx, docURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery returned status %d", resp.StatusCode)
	}

	var doc OCMDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid discovery JSON: %w", err)
	}

	if !doc.Enabled {
		return nil, fmt.Errorf("OCM is disabled at %s", docURL)
	}

	return &doc, nil
}
