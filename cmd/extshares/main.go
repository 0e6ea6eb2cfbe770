// Package main is the entrypoint for the extshares server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshdrive/extshares/internal/cache"
	"github.com/meshdrive/extshares/internal/config"
	"github.com/meshdrive/extshares/internal/discovery"
	"github.com/meshdrive/extshares/internal/httpclient"
	"github.com/meshdrive/extshares/internal/identity"
	"github.com/meshdrive/extshares/internal/notifier"
	"github.com/meshdrive/extshares/internal/ocm"
	"github.com/meshdrive/extshares/internal/server"
	"github.com/meshdrive/extshares/internal/sharing"
	"github.com/meshdrive/extshares/internal/store"

	// Register drivers
	_ "github.com/meshdrive/extshares/internal/cache/memory"
	_ "github.com/meshdrive/extshares/internal/store/memory"
	_ "github.com/meshdrive/extshares/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	externalOrigin := flag.String("external-origin", "", "External origin (overrides config)")
	ssrfMode := flag.String("ssrf-mode", "", "SSRF protection mode: strict or off (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off, static, selfsigned, or acme (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: sqlite or memory (overrides config)")
	storeDataDir := flag.String("store-data-dir", "", "Store data directory (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors.
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:     listenAddr,
			ExternalOrigin: externalOrigin,
			SSRFMode:       ssrfMode,
			TLSMode:        tlsMode,
			StoreDriver:    storeDriver,
			StoreDataDir:   storeDataDir,
			LoggingLevel:   loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence
	shareStore, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
	})
	if err != nil {
		logger.Error("failed to create share store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	if err := shareStore.Init(ctx); err != nil {
		logger.Error("failed to initialize share store", "error", err)
		os.Exit(1)
	}
	defer shareStore.Close()

	// Shared cache for discovery documents and remote identity probes.
	sharedCache, err := cache.NewFromConfig(cfg.Cache.Driver, cfg.Cache.Drivers)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer sharedCache.Close()

	// Outbound HTTP with SSRF policy, shared by discovery, notifications and
	// the WebDAV adapters.
	httpClient := httpclient.New(&cfg.OutboundHTTP)

	discoveryClient := discovery.NewClient(httpClient, sharedCache, logger)
	providers := ocm.NewProviderManager(httpClient, discoveryClient)
	protocolNotifier := notifier.New(providers, discoveryClient, httpClient, logger)

	// Identity
	userAuth := identity.NewUserAuth(12)
	directory, err := seedDirectory(cfg, userAuth, logger)
	if err != nil {
		logger.Error("failed to seed user directory", "error", err)
		os.Exit(1)
	}

	// Share lifecycle
	badge := sharing.NewMemoryBadge()
	manager := sharing.NewManager(shareStore, directory, protocolNotifier, badge, nil, logger)
	mounts := sharing.NewMountFactory(manager, httpClient, discoveryClient, cfg.Sharing.AllowResharing, logger)

	srv, err := server.New(cfg, logger, &server.Deps{
		Directory: directory,
		UserAuth:  userAuth,
		Manager:   manager,
		Mounts:    mounts,
		Badge:     badge,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
	}
}

// seedDirectory builds the local user directory from config. Plaintext seed
// passwords are hashed at startup and never kept.
func seedDirectory(cfg *config.Config, auth *identity.UserAuth, logger *slog.Logger) (identity.Directory, error) {
	dir := identity.NewMemoryDirectory()

	for _, seed := range cfg.Users {
		hash := seed.PasswordHash
		if hash == "" && seed.Password != "" {
			var err error
			hash, err = auth.HashPassword(seed.Password)
			if err != nil {
				return nil, err
			}
		}
		dir.AddUser(&identity.User{
			ID:              seed.ID,
			DisplayName:     seed.DisplayName,
			PasswordHash:    hash,
			SharingDisabled: seed.SharingDisabled,
		})
		for _, gid := range seed.Groups {
			dir.AddToGroup(seed.ID, gid)
		}
	}

	if len(cfg.Users) == 0 {
		logger.Warn("no users configured, API requests will all be rejected")
	}
	return dir, nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
