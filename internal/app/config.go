package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os/user"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tradingtool/kitetoken/internal/callback"
	"github.com/tradingtool/kitetoken/internal/kiteconnect"
	"github.com/tradingtool/kitetoken/internal/observability"
	"github.com/tradingtool/kitetoken/internal/tokenstore"
)

// PatchMode controls whether the local config file is updated with the new access token.
type PatchMode string

const (
	PatchModeAsk    PatchMode = "ask"
	PatchModeAlways PatchMode = "always"
	PatchModeNever  PatchMode = "never"
)

// LoginMode selects how the request token reaches the tool.
type LoginMode string

const (
	// LoginModePaste reads the redirect URL or bare token from the console.
	LoginModePaste LoginMode = "paste"
	// LoginModeCallback receives the redirect on a loopback HTTP server.
	LoginModeCallback LoginMode = "callback"
)

// KeyringService is the keyring service name access tokens are stored under.
const KeyringService = "kitetoken-access-token"

// Default configuration values
const (
	DefaultConfigLogFormat       = observability.FormatText
	DefaultConfigLogExporter     = observability.ExporterNone
	DefaultConfigLocalConfig     = "service/src/main/resources/localconfig.yaml"
	DefaultConfigPatch           = PatchModeAsk
	DefaultConfigKiteAPIURL      = kiteconnect.DefaultBaseURL
	DefaultConfigKiteLoginURL    = kiteconnect.DefaultLoginURL
	DefaultConfigKiteVersion     = kiteconnect.DefaultVersion
	DefaultConfigKiteTimeout     = kiteconnect.DefaultTimeout
	DefaultConfigLoginMode       = LoginModePaste
	DefaultConfigCallbackAddr    = "127.0.0.1:8080"
	DefaultConfigCallbackPath    = callback.DefaultPath
	DefaultConfigCallbackTimeout = 5 * time.Minute
	DefaultConfigShutdownTimeout = 5 * time.Second
)

// KiteConfig holds Kite Connect app credentials and endpoints.
type KiteConfig struct {
	// Credentials override the local config file when both are set.
	APIKey    string `json:"api_key,omitempty"`
	APISecret string `json:"api_secret,omitempty"`

	APIURL   string        `json:"api_url" validate:"required,url"`
	LoginURL string        `json:"login_url" validate:"required,url"`
	Version  string        `json:"version" validate:"required"`
	Timeout  time.Duration `json:"timeout" validate:"gte=0"`
}

// LoginConfig describes how the browser login is started and completed.
type LoginConfig struct {
	Mode            LoginMode     `json:"mode" validate:"required,oneof=paste callback"`
	NoBrowser       bool          `json:"no_browser"`
	CallbackAddr    string        `json:"callback_addr" validate:"required,hostname_port"`
	CallbackPath    string        `json:"callback_path" validate:"required,startswith=/"`
	CallbackTimeout time.Duration `json:"callback_timeout" validate:"gt=0"`
}

// StoreConfig lists additional places the access token is written to.
type StoreConfig struct {
	File        string `json:"file,omitempty"`
	Keyring     bool   `json:"keyring"`
	KeyringUser string `json:"keyring_user,omitempty"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level             `json:"log_level"`
	LogFormat   observability.Format   `json:"log_format" validate:"oneof=text json"`
	LogExporter observability.Exporter `json:"log_exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`

	// LocalConfig is the service's pseudo-YAML config holding apiKey,
	// apiSecret and accessToken.
	LocalConfig string    `json:"local_config" validate:"required"`
	Patch       PatchMode `json:"patch" validate:"required,oneof=ask always never"`

	Kite  KiteConfig  `json:"kite"`
	Login LoginConfig `json:"login"`
	Store StoreConfig `json:"store"`

	// ShutdownTimeout bounds the callback server's graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.LogExporter == "" {
		c.LogExporter = DefaultConfigLogExporter
	}
	if c.LocalConfig == "" {
		c.LocalConfig = DefaultConfigLocalConfig
	}
	if c.Patch == "" {
		c.Patch = DefaultConfigPatch
	}
	if c.Kite.APIURL == "" {
		c.Kite.APIURL = DefaultConfigKiteAPIURL
	}
	if c.Kite.LoginURL == "" {
		c.Kite.LoginURL = DefaultConfigKiteLoginURL
	}
	if c.Kite.Version == "" {
		c.Kite.Version = DefaultConfigKiteVersion
	}
	if c.Kite.Timeout == 0 {
		c.Kite.Timeout = DefaultConfigKiteTimeout
	}
	if c.Login.Mode == "" {
		c.Login.Mode = DefaultConfigLoginMode
	}
	if c.Login.CallbackAddr == "" {
		c.Login.CallbackAddr = DefaultConfigCallbackAddr
	}
	if c.Login.CallbackPath == "" {
		c.Login.CallbackPath = DefaultConfigCallbackPath
	}
	if c.Login.CallbackTimeout == 0 {
		c.Login.CallbackTimeout = DefaultConfigCallbackTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultConfigShutdownTimeout
	}

	if c.Store.Keyring && c.Store.KeyringUser == "" {
		currentUser, err := user.Current()
		if err != nil {
			return fmt.Errorf("store.keyring_user required (auto-detect failed: %w)", err)
		}
		c.Store.KeyringUser = currentUser.Username
	}

	return nil
}

// Validate validates the configuration using struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if (c.Kite.APIKey == "") != (c.Kite.APISecret == "") {
		return errors.New("kite.api_key and kite.api_secret must be set together")
	}
	if c.Store.Keyring && c.Store.KeyringUser == "" {
		return errors.New("store.keyring_user required for keyring storage")
	}

	return nil
}

// NewTokenStores creates the additional token stores configured in Store.
// The local config file is handled separately because patching it is optional.
func (s *StoreConfig) NewTokenStores() ([]tokenstore.TokenStore, error) {
	var stores []tokenstore.TokenStore

	if s.File != "" {
		store, err := tokenstore.NewFileStore(s.File)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		stores = append(stores, store)
	}

	if s.Keyring {
		store, err := tokenstore.NewKeyringStore(KeyringService, s.KeyringUser)
		if err != nil {
			return nil, fmt.Errorf("keyring store: %w", err)
		}
		stores = append(stores, store)
	}

	return stores, nil
}
