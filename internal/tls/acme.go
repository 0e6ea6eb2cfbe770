package tls

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/meshdrive/extshares/internal/config"
	"github.com/meshdrive/extshares/internal/logutil"
)

const (
	acmeStagingDirectory    = "https://acme-staging-v02.api.letsencrypt.org/directory"
	acmeProductionDirectory = "https://acme-v02.api.letsencrypt.org/directory"
)

// ACMEManager obtains a certificate for the configured domain through lego
// and serves it to the TLS listener. Certificate and account material live
// under cfg.StorageDir, so a restart with material on disk makes no network
// calls.
type ACMEManager struct {
	cfg    *config.ACMEConfig
	logger *slog.Logger

	mu         sync.RWMutex
	cert       *cryptotls.Certificate
	legoClient *lego.Client
	account    *acmeAccount
	challenges *challengeStore
}

// NewACMEManager creates an ACME certificate manager.
func NewACMEManager(cfg *config.ACMEConfig, logger *slog.Logger) *ACMEManager {
	return &ACMEManager{
		cfg:    cfg,
		logger: logutil.NoopIfNil(logger),
	}
}

// acmeAccount carries the registration lego needs. The private key is kept
// out of the JSON and stored PEM-encoded next to it.
type acmeAccount struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	key          crypto.PrivateKey
}

func (a *acmeAccount) GetEmail() string                        { return a.Email }
func (a *acmeAccount) GetRegistration() *registration.Resource { return a.Registration }
func (a *acmeAccount) GetPrivateKey() crypto.PrivateKey        { return a.key }

// challengeStore holds HTTP-01 tokens for the challenge handler. The server
// owns the HTTP listener; lego never binds a port of its own.
type challengeStore struct {
	tokens sync.Map // token -> key authorization
}

func (s *challengeStore) Present(domain, token, keyAuth string) error {
	s.tokens.Store(token, keyAuth)
	return nil
}

func (s *challengeStore) CleanUp(domain, token, keyAuth string) error {
	s.tokens.Delete(token)
	return nil
}

// Init readies the manager: certificate from disk when present, otherwise a
// fresh order against the ACME directory.
func (m *ACMEManager) Init(ctx context.Context) error {
	if m.cfg.Domain == "" {
		return errors.New("ACME domain is required")
	}
	if m.cfg.Email == "" {
		return errors.New("ACME email is required")
	}
	if err := os.MkdirAll(m.cfg.StorageDir, 0700); err != nil {
		return fmt.Errorf("failed to create ACME storage dir: %w", err)
	}

	// The challenge handler may already be mounted and receiving requests.
	m.challenges = &challengeStore{}

	if cert, err := m.loadCertificate(); err == nil {
		m.mu.Lock()
		m.cert = cert
		m.mu.Unlock()
		m.logger.Info("loaded existing ACME certificate", "domain", m.cfg.Domain)
		return nil
	}

	m.logger.Info("no existing certificate, contacting ACME server", "domain", m.cfg.Domain)
	return m.orderCertificate()
}

// orderCertificate runs the account and order flow against the directory.
func (m *ACMEManager) orderCertificate() error {
	account, err := m.loadOrCreateAccount()
	if err != nil {
		return fmt.Errorf("failed to load/create ACME account: %w", err)
	}
	m.account = account

	legoCfg := lego.NewConfig(account)
	legoCfg.CADirURL = m.directoryURL()
	legoCfg.Certificate.KeyType = certcrypto.EC256

	client, err := lego.NewClient(legoCfg)
	if err != nil {
		return fmt.Errorf("failed to create ACME client: %w", err)
	}
	m.legoClient = client

	if err := client.Challenge.SetHTTP01Provider(m.challenges); err != nil {
		return fmt.Errorf("failed to set HTTP-01 provider: %w", err)
	}

	if account.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{
			TermsOfServiceAgreed: true,
		})
		if err != nil {
			return fmt.Errorf("failed to register ACME account: %w", err)
		}
		account.Registration = reg
		if err := m.saveAccount(account); err != nil {
			m.logger.Warn("failed to save ACME account", "error", err)
		}
	}

	m.logger.Info("obtaining new ACME certificate", "domain", m.cfg.Domain)
	if err := m.obtainCertificate(); err != nil {
		return fmt.Errorf("failed to obtain certificate: %w", err)
	}
	return nil
}

func (m *ACMEManager) directoryURL() string {
	if m.cfg.Directory != "" {
		return m.cfg.Directory
	}
	if m.cfg.UseStaging {
		return acmeStagingDirectory
	}
	return acmeProductionDirectory
}

// GetCertificate is wired into tls.Config.GetCertificate.
func (m *ACMEManager) GetCertificate(hello *cryptotls.ClientHelloInfo) (*cryptotls.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cert == nil {
		return nil, errors.New("no certificate available")
	}
	return m.cert, nil
}

// Config returns a TLS config backed by this manager's certificates.
func (m *ACMEManager) Config() *cryptotls.Config {
	return &cryptotls.Config{
		GetCertificate: m.GetCertificate,
		MinVersion:     cryptotls.VersionTLS12,
	}
}

// ChallengeHandler answers HTTP-01 challenges at
// /.well-known/acme-challenge/{token}. Mount on the plain HTTP listener.
func (m *ACMEManager) ChallengeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/.well-known/acme-challenge/"
		token := strings.TrimPrefix(r.URL.Path, prefix)
		if token == "" || token == r.URL.Path {
			http.NotFound(w, r)
			return
		}
		keyAuth, ok := m.challenges.tokens.Load(token)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, keyAuth.(string))
	})
}

func (m *ACMEManager) accountPaths() (jsonFile, keyFile string) {
	return filepath.Join(m.cfg.StorageDir, "account.json"),
		filepath.Join(m.cfg.StorageDir, "account.key")
}

func (m *ACMEManager) certPaths() (certFile, keyFile string) {
	return filepath.Join(m.cfg.StorageDir, "cert.pem"),
		filepath.Join(m.cfg.StorageDir, "key.pem")
}

func (m *ACMEManager) loadOrCreateAccount() (*acmeAccount, error) {
	jsonFile, keyFile := m.accountPaths()

	if data, err := os.ReadFile(jsonFile); err == nil {
		if keyData, err := os.ReadFile(keyFile); err == nil {
			account := &acmeAccount{}
			if err := json.Unmarshal(data, account); err == nil {
				if key, err := certcrypto.ParsePEMPrivateKey(keyData); err == nil {
					account.key = key
					return account, nil
				}
			}
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}
	return &acmeAccount{Email: m.cfg.Email, key: key}, nil
}

func (m *ACMEManager) saveAccount(account *acmeAccount) error {
	jsonFile, keyFile := m.accountPaths()

	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(jsonFile, data, 0600); err != nil {
		return err
	}
	return os.WriteFile(keyFile, certcrypto.PEMEncode(account.key), 0600)
}

func (m *ACMEManager) loadCertificate() (*cryptotls.Certificate, error) {
	certFile, keyFile := m.certPaths()
	cert, err := cryptotls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (m *ACMEManager) obtainCertificate() error {
	certificates, err := m.legoClient.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{m.cfg.Domain},
		Bundle:  true,
	})
	if err != nil {
		return err
	}

	certFile, keyFile := m.certPaths()
	if err := os.WriteFile(certFile, certificates.Certificate, 0644); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}
	if err := os.WriteFile(keyFile, certificates.PrivateKey, 0600); err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}

	cert, err := cryptotls.X509KeyPair(certificates.Certificate, certificates.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	m.mu.Lock()
	m.cert = &cert
	m.mu.Unlock()

	m.logger.Info("obtained and saved ACME certificate",
		"domain", m.cfg.Domain, "cert_file", certFile)
	return nil
}
