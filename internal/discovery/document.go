// Package discovery fetches and caches federation discovery documents from
// remote servers. A discovery document is a per-remote capability map that
// advertises protocol endpoints; the subsystem only reads the
// FEDERATED_SHARING service out of it.
package discovery

// ServiceFederatedSharing is the service key this subsystem consumes.
const ServiceFederatedSharing = "FEDERATED_SHARING"

// Endpoint defaults used when a remote does not declare them.
const (
	DefaultWebdavEndpoint = "/public.php/webdav"
	DefaultShareEndpoint  = "/ocs/v2.php/cloud/shares"
)

// Document is a remote server's discovery document.
type Document struct {
	Version  string             `json:"version"`
	Services map[string]Service `json:"services"`
}

// Service is one advertised service with its endpoint map.
type Service struct {
	Version   int               `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// endpoint returns the named endpoint of the FEDERATED_SHARING service, or
// the given default if the service or key is absent.
func (d *Document) endpoint(key, def string) string {
	if d == nil {
		return def
	}
	svc, ok := d.Services[ServiceFederatedSharing]
	if !ok {
		return def
	}
	if ep, ok := svc.Endpoints[key]; ok && ep != "" {
		return ep
	}
	return def
}

// WebdavEndpoint returns the advertised WebDAV root, or the default.
func (d *Document) WebdavEndpoint() string {
	return d.endpoint("webdav", DefaultWebdavEndpoint)
}

// ShareEndpoint returns the advertised share API path, or the default.
func (d *Document) ShareEndpoint() string {
	return d.endpoint("share", DefaultShareEndpoint)
}
