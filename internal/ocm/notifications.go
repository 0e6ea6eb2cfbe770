// Package ocm implements the outbound side of Open Cloud Mesh share
// notifications, the preferred federation protocol. The legacy OCS fallback
// lives with the notifier that orchestrates both.
package ocm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/meshdrive/extshares/internal/httpclient"
)

// NotificationType identifies the kind of an OCM notification.
type NotificationType string

const (
	NotificationShareAccepted NotificationType = "SHARE_ACCEPTED"
	NotificationShareDeclined NotificationType = "SHARE_DECLINED"
)

// Notification is an outgoing OCM notification message.
// See OCM-API NewNotification schema.
type Notification struct {
	NotificationType NotificationType `json:"notificationType"`
	ResourceType     string           `json:"resourceType"`
	ProviderID       string           `json:"providerId"`
	Notification     *Payload         `json:"notification,omitempty"`
}

// Payload carries the share-scoped part of a notification.
type Payload struct {
	SharedSecret string `json:"sharedSecret"`
	Message      string `json:"message,omitempty"`
}

// DiscoveryResolver resolves the OCM notifications endpoint of a remote.
// A remote without OCM support reports ErrNoProvider.
type DiscoveryResolver interface {
	NotificationsEndpoint(ctx context.Context, remote string) (string, error)
}

// ProviderManager dispatches OCM notifications to remote providers.
type ProviderManager struct {
	httpClient *httpclient.Client
	resolver   DiscoveryResolver
}

// NewProviderManager creates a new OCM provider manager.
func NewProviderManager(httpClient *httpclient.Client, resolver DiscoveryResolver) *ProviderManager {
	return &ProviderManager{
		httpClient: httpClient,
		resolver:   resolver,
	}
}

// SendNotification sends a notification to the remote's OCM endpoint.
func (m *ProviderManager) SendNotification(ctx context.Context, remote string, n *Notification) error {
	endpoint, err := m.resolver.NotificationsEndpoint(ctx, remote)
	if err != nil {
		return fmt.Errorf("no OCM provider for %s: %w", remote, err)
	}

	notificationsURL, err := url.JoinPath(endpoint, "notifications")
	if err != nil {
		return fmt.Errorf("failed to build notifications URL: %w", err)
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notificationsURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}

	return nil
}

// SendShareAccepted sends a SHARE_ACCEPTED notification for the given share.
func (m *ProviderManager) SendShareAccepted(ctx context.Context, remote, providerID, sharedSecret string) error {
	return m.SendNotification(ctx, remote, &Notification{
		NotificationType: NotificationShareAccepted,
		ResourceType:     "file",
		ProviderID:       providerID,
		Notification:     &Payload{SharedSecret: sharedSecret, Message: "Recipient accepted the share"},
	})
}

// SendShareDeclined sends a SHARE_DECLINED notification for the given share.
func (m *ProviderManager) SendShareDeclined(ctx context.Context, remote, providerID, sharedSecret string) error {
	return m.SendNotification(ctx, remote, &Notification{
		NotificationType: NotificationShareDeclined,
		ResourceType:     "file",
		ProviderID:       providerID,
		Notification:     &Payload{SharedSecret: sharedSecret, Message: "Recipient declined the share"},
	})
}

// NormalizeRemote ensures a remote reference carries a scheme, defaulting to
// https for bare hosts.
func NormalizeRemote(remote string) string {
	remote = strings.TrimSuffix(remote, "/")
	if !strings.Contains(remote, "://") {
		return "https://" + remote
	}
	return remote
}
