// Package config provides configuration loading and validation.
package config

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address the HTTP API listens on.
	// Example: ":9400"
	ListenAddr string `toml:"listen_addr"`

	// ExternalOrigin is the public origin (scheme + host + port) of this
	// instance, used for TLS hostname selection.
	ExternalOrigin string `toml:"external_origin"`

	TLS          TLSConfig          `toml:"tls"`
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`
	Store        StoreConfig        `toml:"store"`
	Cache        CacheConfig        `toml:"cache"`
	Sharing      SharingConfig      `toml:"sharing"`
	Logging      LoggingConfig      `toml:"logging"`

	// Users seeds the local directory. The enclosing platform normally
	// provides user management; the standalone daemon reads them from here.
	Users []UserSeed `toml:"users"`
}

// UserSeed describes one local user in the config file.
type UserSeed struct {
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`

	// Password is hashed at startup. PasswordHash takes precedence when set.
	Password     string `toml:"password"`
	PasswordHash string `toml:"password_hash"`

	Groups          []string `toml:"groups"`
	SharingDisabled bool     `toml:"sharing_disabled"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned, acme
	Mode string `toml:"mode"`

	// CertFile and KeyFile for static mode
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`

	// SelfSignedDir is where generated certificates are stored
	SelfSignedDir string `toml:"self_signed_dir"`

	// ACME settings for acme mode
	ACME ACMEConfig `toml:"acme"`
}

// ACMEConfig holds ACME certificate settings.
type ACMEConfig struct {
	Email      string `toml:"email"`
	Domain     string `toml:"domain"`
	Directory  string `toml:"directory"`
	StorageDir string `toml:"storage_dir"`
	UseStaging bool   `toml:"use_staging"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off
	SSRFMode string `toml:"ssrf_mode"`

	// TimeoutMS is the overall request timeout in milliseconds
	TimeoutMS int `toml:"timeout_ms"`

	// ConnectTimeoutMS is the connection timeout in milliseconds
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`

	// MaxRedirects is the maximum number of redirects to follow
	MaxRedirects int `toml:"max_redirects"`

	// MaxResponseBytes is the maximum response body size
	MaxResponseBytes int64 `toml:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (dev-only)
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is the store driver name: sqlite, memory
	Driver string `toml:"driver"`

	// DataDir is the directory for data files (sqlite db)
	DataDir string `toml:"data_dir"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name; empty defaults to memory.
	Driver string `toml:"driver"`

	// Drivers holds driver-specific options keyed by driver name.
	Drivers map[string]any `toml:"drivers"`
}

// SharingConfig holds platform-wide sharing switches.
type SharingConfig struct {
	// AllowResharing is the platform-wide switch for re-sharing
	// federated mounts locally.
	AllowResharing bool `toml:"allow_resharing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `toml:"level"`
}
