// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/meshdrive/extshares/internal/config"
	"github.com/meshdrive/extshares/internal/identity"
	"github.com/meshdrive/extshares/internal/logutil"
	"github.com/meshdrive/extshares/internal/sharing"
	"github.com/meshdrive/extshares/internal/tls"
)

var ErrMissingDep = errors.New("missing required dependency")

// Deps holds the server's collaborators.
type Deps struct {
	Directory identity.Directory
	UserAuth  *identity.UserAuth
	Manager   *sharing.Manager
	Mounts    *sharing.MountFactory

	// Optional: pending-share indicator backing /api/shares/badge.
	Badge *sharing.MemoryBadge
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	deps       *Deps
	httpServer *http.Server
	acme       *tls.ACMEManager
}

// New creates a server. Fails fast on missing required dependencies.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		logger: logutil.NoopIfNil(logger),
		deps:   deps,
	}

	if cfg.TLS.Mode == "acme" {
		s.acme = tls.NewACMEManager(&cfg.TLS.ACME, s.logger)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start runs the server. It blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"external_origin", s.cfg.ExternalOrigin,
		"tls_mode", s.cfg.TLS.Mode,
	)

	switch s.cfg.TLS.Mode {
	case "off":
		return s.httpServer.ListenAndServe()

	case "static", "selfsigned":
		manager := tls.NewManager(&s.cfg.TLS, s.logger)
		tlsConfig, err := manager.Config(externalHostname(s.cfg.ExternalOrigin))
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
		return s.httpServer.ListenAndServeTLS("", "")

	case "acme":
		if err := s.acme.Init(ctx); err != nil {
			return fmt.Errorf("ACME initialization failed: %w", err)
		}
		s.httpServer.TLSConfig = s.acme.Config()
		return s.httpServer.ListenAndServeTLS("", "")

	default:
		return fmt.Errorf("%w: %s", tls.ErrInvalidMode, s.cfg.TLS.Mode)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// externalHostname extracts the hostname from the external origin, used for
// certificate generation.
func externalHostname(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return "localhost"
	}
	return u.Hostname()
}

func validateDeps(deps *Deps) error {
	if deps == nil {
		return fmt.Errorf("%w: deps", ErrMissingDep)
	}
	if deps.Directory == nil {
		return fmt.Errorf("%w: Directory", ErrMissingDep)
	}
	if deps.UserAuth == nil {
		return fmt.Errorf("%w: UserAuth", ErrMissingDep)
	}
	if deps.Manager == nil {
		return fmt.Errorf("%w: Manager", ErrMissingDep)
	}
	if deps.Mounts == nil {
		return fmt.Errorf("%w: Mounts", ErrMissingDep)
	}
	return nil
}
