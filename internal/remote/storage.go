package remote

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/studio-b12/gowebdav"

	"github.com/meshdrive/extshares/internal/discovery"
	"github.com/meshdrive/extshares/internal/httpclient"
	"github.com/meshdrive/extshares/internal/identity"
	"github.com/meshdrive/extshares/internal/logutil"
	"github.com/meshdrive/extshares/internal/vfs"
)

// Healer removes the local record and mount backing this storage once the
// remote has permanently rejected the share.
type Healer interface {
	HealPermanentFailure(ctx context.Context, reason string) error
}

// Config assembles a Storage. All collaborators are injected; the adapter
// holds no global state.
type Config struct {
	Remote   string
	Token    string
	Password string

	// OCMPermissions are the capability strings the remote declared when the
	// share was created, empty when it declared none.
	OCMPermissions []string

	AllowResharing bool

	HTTPClient *httpclient.Client
	Discovery  *discovery.Client
	Healer     Healer
	Logger     *slog.Logger
}

// Storage adapts one remote federated share to the vfs.Storage contract.
// Instances are created per request by the mount factory; the change latch
// below relies on that lifetime.
type Storage struct {
	endpoint *Endpoint
	token    string
	password string
	id       string
	perms    Permissions

	allowResharing bool

	httpClient *httpclient.Client
	discovery  *discovery.Client
	healer     Healer
	logger     *slog.Logger

	mu            sync.Mutex
	dav           *gowebdav.Client
	updateChecked bool
	healed        bool
}

// NewStorage creates a storage adapter for a single share.
func NewStorage(cfg *Config) (*Storage, error) {
	endpoint, err := ParseRemote(cfg.Remote)
	if err != nil {
		return nil, err
	}

	perms, _ := FromOCM(cfg.OCMPermissions)

	return &Storage{
		endpoint:       endpoint,
		token:          cfg.Token,
		password:       cfg.Password,
		id:             StorageID(cfg.Token, cfg.Remote),
		perms:          perms,
		allowResharing: cfg.AllowResharing,
		httpClient:     cfg.HTTPClient,
		discovery:      cfg.Discovery,
		healer:         cfg.Healer,
		logger:         logutil.NoopIfNil(cfg.Logger),
	}, nil
}

// ID returns the stable storage identifier, shared::<md5 of token@remote>.
func (s *Storage) ID() string {
	return s.id
}

// davURL resolves the absolute WebDAV root of the share. Discovery may
// advertise a full URL or an absolute path; a silent remote gets the
// default path.
func (s *Storage) davURL(ctx context.Context) string {
	ep := s.discovery.WebdavEndpoint(ctx, s.endpoint.BaseURL())
	if strings.Contains(ep, "://") {
		return ep
	}
	return s.endpoint.JoinPath(ep)
}

// client returns the WebDAV client, creating it on first use. Federated
// shares authenticate with the share token as username and the optional
// share password as password.
func (s *Storage) client(ctx context.Context) *gowebdav.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dav == nil {
		dav := gowebdav.NewClient(s.davURL(ctx), s.token, s.password)
		dav.SetTransport(s.httpClient.Transport())
		dav.SetTimeout(s.httpClient.Timeout())
		s.dav = dav
	}
	return s.dav
}

func (s *Storage) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	fi, err := s.client(ctx).Stat(path)
	if err != nil {
		return nil, s.operationFailed(ctx, "stat", path, err)
	}
	return fi, nil
}

func (s *Storage) ReadDir(ctx context.Context, path string) ([]os.FileInfo, error) {
	entries, err := s.client(ctx).ReadDir(path)
	if err != nil {
		return nil, s.operationFailed(ctx, "readdir", path, err)
	}
	return entries, nil
}

func (s *Storage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := s.client(ctx).ReadStream(path)
	if err != nil {
		return nil, s.operationFailed(ctx, "open", path, err)
	}
	return r, nil
}

func (s *Storage) Write(ctx context.Context, path string, r io.Reader) error {
	if err := s.client(ctx).WriteStream(path, r, 0644); err != nil {
		return s.operationFailed(ctx, "write", path, err)
	}
	return nil
}

func (s *Storage) Mkdir(ctx context.Context, path string) error {
	if err := s.client(ctx).Mkdir(path, 0755); err != nil {
		return s.operationFailed(ctx, "mkdir", path, err)
	}
	return nil
}

func (s *Storage) Remove(ctx context.Context, path string) error {
	if err := s.client(ctx).Remove(path); err != nil {
		return s.operationFailed(ctx, "remove", path, err)
	}
	return nil
}

func (s *Storage) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := s.client(ctx).Rename(oldPath, newPath, false); err != nil {
		return s.operationFailed(ctx, "rename", oldPath, err)
	}
	return nil
}

// HasUpdated checks whether the remote changed since the given unix time.
// Change propagation for this storage kind is tracked per mount, not per
// file, and checked at most once per adapter lifetime. Callers asking again
// within the same request get false without remote traffic.
func (s *Storage) HasUpdated(ctx context.Context, path string, since int64) (bool, error) {
	s.mu.Lock()
	if s.updateChecked {
		s.mu.Unlock()
		return false, nil
	}
	s.updateChecked = true
	s.mu.Unlock()

	fi, err := s.Stat(ctx, "/")
	if err != nil {
		return false, err
	}
	return fi.ModTime().Unix() > since, nil
}

// permsPropfindBody asks for the resource type together with the DAV
// privilege set. The legacy permission letters arrive as a response header on
// the same request.
const permsPropfindBody = `<?xml version="1.0"?><d:propfind xmlns:d="DAV:"><d:prop><d:resourcetype/><d:current-user-privilege-set/></d:prop></d:propfind>`

type permsMultistatus struct {
	Responses []struct {
		Propstats []struct {
			Status string    `xml:"status"`
			Prop   permsProp `xml:"prop"`
		} `xml:"propstat"`
	} `xml:"response"`
}

type permsProp struct {
	ResourceType struct {
		Collection *struct{} `xml:"collection"`
	} `xml:"resourcetype"`
	PrivilegeSet struct {
		Privileges []davPrivilege `xml:"privilege"`
	} `xml:"current-user-privilege-set"`
}

// davPrivilege holds one granted privilege; the grant is the name of the
// single child element.
type davPrivilege struct {
	Grant struct {
		XMLName xml.Name
	} `xml:",any"`
}

func (ms *permsMultistatus) okProp() (*permsProp, bool) {
	for i := range ms.Responses {
		for j := range ms.Responses[i].Propstats {
			ps := &ms.Responses[i].Propstats[j]
			if strings.Contains(ps.Status, "200") {
				return &ps.Prop, true
			}
		}
	}
	return nil, false
}

func (p *permsProp) privilegeNames() []string {
	names := make([]string, 0, len(p.PrivilegeSet.Privileges))
	for _, priv := range p.PrivilegeSet.Privileges {
		if priv.Grant.XMLName.Local != "" {
			names = append(names, priv.Grant.XMLName.Local)
		}
	}
	return names
}

// PermissionsFor returns the effective local permissions for a path. The
// remote's OCM capability declaration from share creation wins when present.
// Otherwise the path is probed and any per-resource declaration, the legacy
// permission-letter header or the DAV privilege set, overrides the
// conservative directory-based default.
func (s *Storage) PermissionsFor(ctx context.Context, path string) (Permissions, error) {
	if s.perms != 0 {
		return s.perms, nil
	}
	return s.probePermissions(ctx, path)
}

// probePermissions issues a depth-0 PROPFIND for the path and reads every
// permission representation the remote attaches to the response.
func (s *Storage) probePermissions(ctx context.Context, path string) (Permissions, error) {
	target := strings.TrimSuffix(s.davURL(ctx), "/")
	if p := strings.Trim(path, "/"); p != "" {
		target += "/" + p
	}

	req, err := http.NewRequestWithContext(ctx, "PROPFIND", target, strings.NewReader(permsPropfindBody))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Depth", "0")
	req.Header.Set("Content-Type", "application/xml")
	req.SetBasicAuth(s.token, s.password)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, s.operationFailed(ctx, "propfind", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, s.operationFailed(ctx, "propfind", path,
			gowebdav.StatusError{Status: resp.StatusCode})
	}

	if perms, ok := FromHeader(resp.Header); ok {
		return perms, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("propfind %s: %w", path, err)
	}
	var ms permsMultistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return 0, fmt.Errorf("propfind %s: invalid multistatus: %w", path, err)
	}
	prop, ok := ms.okProp()
	if !ok {
		return 0, fmt.Errorf("propfind %s: no granted propstat in multistatus", path)
	}

	if perms, ok := FromACL(prop.privilegeNames()); ok {
		return perms, nil
	}
	return DefaultPermissions(prop.ResourceType.Collection != nil), nil
}

// AllowReshare decides whether the given local user may re-share content
// from this mount. The platform switch and the user's own sharing rights are
// checked before the remote's SHARE bit.
func (s *Storage) AllowReshare(ctx context.Context, user *identity.User, path string) (bool, error) {
	if !s.allowResharing {
		return false, nil
	}
	if user == nil || user.SharingDisabled {
		return false, nil
	}
	perms, err := s.PermissionsFor(ctx, path)
	if err != nil {
		return false, err
	}
	return perms.Can(PermissionShare), nil
}

// operationFailed turns a WebDAV operation error into a surfaced error,
// running the availability classifier when the failure could mean the whole
// share is gone. Permanent verdicts self-heal before surfacing.
func (s *Storage) operationFailed(ctx context.Context, op, path string, err error) error {
	if isCancellation(ctx, err) {
		return fmt.Errorf("%w: %s %s: %v", vfs.ErrStorageNotAvailable, op, path, err)
	}
	if !shouldClassify(err) {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}

	verdict := s.CheckAvailability(ctx)
	switch verdict.Class {
	case FailureNone:
		// The storage is fine, the failure is scoped to this path.
		if davStatus(err) == http.StatusNotFound {
			return fmt.Errorf("%w: %s", vfs.ErrNotFound, path)
		}
		if st := davStatus(err); st == http.StatusForbidden || st == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", vfs.ErrForbidden, path)
		}
		return fmt.Errorf("%s %s: %w", op, path, err)
	case FailurePermanent:
		s.selfHeal(ctx, verdict.Reason)
		return fmt.Errorf("%w: %s (%s)", vfs.ErrStorageInvalid, s.id, verdict.Reason)
	default:
		return fmt.Errorf("%w: %s (%s)", vfs.ErrStorageNotAvailable, s.id, verdict.Reason)
	}
}

// CheckAvailability probes the share root and classifies the outcome.
// Transient verdicts never touch local state; only an unambiguous rejection
// by an identified federation server is permanent.
func (s *Storage) CheckAvailability(ctx context.Context) Verdict {
	status, err := s.probe(ctx)
	if err != nil {
		if isCancellation(ctx, err) {
			return Verdict{Class: FailureTransient, Reason: ReasonCancelled, Cause: err}
		}
		return Verdict{Class: FailureTransient, Reason: ReasonUnreachable, Cause: err}
	}

	switch {
	case status == http.StatusMultiStatus || (status >= 200 && status < 300):
		return Verdict{Class: FailureNone}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Verdict{Class: FailurePermanent, Reason: ReasonAuthRevoked}
	case status == http.StatusNotFound:
		// A 404 is ambiguous: the share may be gone, or the host behind
		// this name may not be a federation server at all right now.
		if s.discovery.VerifyRemote(ctx, s.endpoint.BaseURL()) {
			return Verdict{Class: FailurePermanent, Reason: ReasonShareGone}
		}
		return Verdict{Class: FailureTransient, Reason: ReasonUnidentified}
	default:
		return Verdict{Class: FailureTransient, Reason: ReasonUnreachable}
	}
}

// probe performs a depth-0 PROPFIND against the share root.
func (s *Storage) probe(ctx context.Context) (int, error) {
	const body = `<?xml version="1.0"?><d:propfind xmlns:d="DAV:"><d:prop><d:resourcetype/></d:prop></d:propfind>`

	req, err := http.NewRequestWithContext(ctx, "PROPFIND", s.davURL(ctx), strings.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Depth", "0")
	req.Header.Set("Content-Type", "application/xml")
	req.SetBasicAuth(s.token, s.password)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}

// selfHeal removes the record and mount behind this storage. Runs at most
// once per adapter; the triggering error still surfaces to the caller.
func (s *Storage) selfHeal(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.healed {
		s.mu.Unlock()
		return
	}
	s.healed = true
	s.mu.Unlock()

	s.logger.Warn("remote share permanently unavailable, removing local state",
		"storage_id", s.id, "remote", s.endpoint.BaseURL(), "reason", reason)

	if s.healer == nil {
		return
	}
	if err := s.healer.HealPermanentFailure(ctx, reason); err != nil {
		s.logger.Error("self-heal failed", "storage_id", s.id, "error", err)
	}
}

var _ vfs.Storage = (*Storage)(nil)
