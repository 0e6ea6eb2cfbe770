package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/meshdrive/extshares/internal/cache"
)

// identityPaths are probed in order to confirm a host is a live federation
// server. A NotFound from a WebDAV operation is only trusted as "the share is
// gone" when one of these answers, otherwise the remote may be mid-upgrade or
// behind a broken proxy.
var identityPaths = []string{
	"/ocs-provider/index.php",
	"/ocs-provider/",
	"/status.php",
}

// VerifyRemote reports whether the remote answers as a federation server.
// Results are cached for 24 hours per remote; a failed probe is not cached so
// a recovering remote is recognized immediately.
func (c *Client) VerifyRemote(ctx context.Context, remote string) bool {
	remote = strings.TrimSuffix(remote, "/")

	cacheKey := "remote-identity:" + remote
	if _, err := c.cache.Get(ctx, cacheKey); err == nil {
		return true
	}

	for _, p := range identityPaths {
		if c.probeIdentity(ctx, remote+p) {
			c.cache.Set(ctx, cacheKey, []byte("1"), cache.TTLRemoteIdentity)
			return true
		}
	}

	c.logger.Debug("remote identity probe failed", "remote", remote)
	return false
}

// probeIdentity checks a single candidate path. The body must be JSON; for
// status.php it must additionally carry an installed or version field, since
// many unrelated servers happily return 200 with an HTML error page.
func (c *Client) probeIdentity(ctx context.Context, probeURL string) bool {
	data, resp, err := c.httpClient.GetJSON(ctx, probeURL)
	if err != nil || resp.StatusCode != http.StatusOK {
		return false
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return false
	}

	if strings.HasSuffix(probeURL, "/status.php") {
		_, hasInstalled := body["installed"]
		_, hasVersion := body["version"]
		return hasInstalled || hasVersion
	}

	return true
}
