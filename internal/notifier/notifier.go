// Package notifier tells the sharing remote what happened to one of its
// shares. It prefers the OCM notification protocol and falls back to the
// legacy OCS share API for older remotes.
//
// Every outcome collapses to a bool. Callers remove or update local state
// regardless of whether the remote heard about it, so a notification failure
// must never propagate as an error.
package notifier

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/meshdrive/extshares/internal/discovery"
	"github.com/meshdrive/extshares/internal/httpclient"
	"github.com/meshdrive/extshares/internal/logutil"
	"github.com/meshdrive/extshares/internal/ocm"
	"github.com/meshdrive/extshares/internal/ocs"
)

// Action is the lifecycle outcome reported to the remote.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
)

// legacyTimeout bounds the legacy leg. Remotes old enough to need it are
// also the ones most likely to hang.
const legacyTimeout = 10 * time.Second

// ProtocolNotifier dispatches share lifecycle notifications to remotes.
type ProtocolNotifier struct {
	providers  *ocm.ProviderManager
	discovery  *discovery.Client
	httpClient *httpclient.Client
	logger     *slog.Logger
}

// New creates a ProtocolNotifier.
func New(providers *ocm.ProviderManager, disc *discovery.Client, httpClient *httpclient.Client, logger *slog.Logger) *ProtocolNotifier {
	return &ProtocolNotifier{
		providers:  providers,
		discovery:  disc,
		httpClient: httpClient,
		logger:     logutil.NoopIfNil(logger),
	}
}

// Notify reports the action for the share identified by remoteID at the
// given remote. The OCM result is authoritative when that leg succeeds;
// otherwise the legacy OCS endpoint is tried. Returns whether the remote
// acknowledged the notification.
func (n *ProtocolNotifier) Notify(ctx context.Context, remote, token, remoteID string, action Action) bool {
	remote = ocm.NormalizeRemote(remote)

	if n.notifyOCM(ctx, remote, token, remoteID, action) {
		return true
	}
	return n.notifyLegacy(ctx, remote, token, remoteID, action)
}

func (n *ProtocolNotifier) notifyOCM(ctx context.Context, remote, token, remoteID string, action Action) bool {
	var err error
	switch action {
	case ActionAccept:
		err = n.providers.SendShareAccepted(ctx, remote, remoteID, token)
	case ActionDecline:
		err = n.providers.SendShareDeclined(ctx, remote, remoteID, token)
	default:
		return false
	}
	if err != nil {
		n.logger.Debug("ocm notification failed, trying legacy endpoint",
			"remote", remote, "remote_id", remoteID, "action", string(action), "error", err)
		return false
	}
	return true
}

func (n *ProtocolNotifier) notifyLegacy(ctx context.Context, remote, token, remoteID string, action Action) bool {
	ctx, cancel := context.WithTimeout(ctx, legacyTimeout)
	defer cancel()

	// Discovery may advertise the share endpoint as a full URL instead of a
	// path on the remote.
	endpoint := n.discovery.ShareEndpoint(ctx, remote)
	base := remote
	if strings.Contains(endpoint, "://") {
		base, endpoint = endpoint, ""
	}
	target, err := url.JoinPath(base, endpoint, remoteID, string(action))
	if err != nil {
		n.logger.Warn("failed to build legacy notification URL",
			"remote", remote, "remote_id", remoteID, "error", err)
		return false
	}
	target += "?format=json"

	body, _, err := n.httpClient.PostForm(ctx, target, url.Values{"token": {token}})
	if err != nil {
		n.logger.Warn("legacy notification failed",
			"remote", remote, "remote_id", remoteID, "action", string(action), "error", err)
		return false
	}

	env, err := ocs.Parse(body)
	if err != nil {
		n.logger.Warn("legacy notification returned invalid OCS envelope",
			"remote", remote, "remote_id", remoteID, "error", err)
		return false
	}
	if !env.Success() {
		n.logger.Warn("legacy notification rejected",
			"remote", remote, "remote_id", remoteID, "statuscode", env.OCS.Meta.StatusCode)
		return false
	}
	return true
}
