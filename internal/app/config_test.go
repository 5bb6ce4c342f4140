package app

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}

	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.LocalConfig != "service/src/main/resources/localconfig.yaml" {
		t.Errorf("LocalConfig = %q", cfg.LocalConfig)
	}
	if cfg.Kite.APIURL != "https://api.kite.trade" || cfg.Kite.Version != "3" {
		t.Errorf("Kite = %+v", cfg.Kite)
	}
	if cfg.Kite.Timeout != 30*time.Second {
		t.Errorf("Kite.Timeout = %v", cfg.Kite.Timeout)
	}
	if cfg.Patch != PatchModeAsk || cfg.Login.Mode != LoginModePaste {
		t.Errorf("Patch = %q, Login.Mode = %q", cfg.Patch, cfg.Login.Mode)
	}
	if cfg.Login.CallbackPath != "/kite/callback" {
		t.Errorf("CallbackPath = %q", cfg.Login.CallbackPath)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		LocalConfig: "other.yaml",
		Patch:       PatchModeNever,
		Kite:        KiteConfig{Version: "4", Timeout: time.Second},
		Store:       StoreConfig{Keyring: true, KeyringUser: "alice"},
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatal(err)
	}

	if cfg.LocalConfig != "other.yaml" || cfg.Patch != PatchModeNever {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
	if cfg.Kite.Version != "4" || cfg.Kite.Timeout != time.Second {
		t.Errorf("explicit kite values overwritten: %+v", cfg.Kite)
	}
	if cfg.Store.KeyringUser != "alice" {
		t.Errorf("KeyringUser = %q", cfg.Store.KeyringUser)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown patch mode",
			mutate:  func(c *Config) { c.Patch = "sometimes" },
			wantErr: "Patch",
		},
		{
			name:    "unknown login mode",
			mutate:  func(c *Config) { c.Login.Mode = "device" },
			wantErr: "Mode",
		},
		{
			name:    "invalid api url",
			mutate:  func(c *Config) { c.Kite.APIURL = "not a url" },
			wantErr: "APIURL",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: "LogFormat",
		},
		{
			name:    "invalid callback address",
			mutate:  func(c *Config) { c.Login.CallbackAddr = "localhost" },
			wantErr: "CallbackAddr",
		},
		{
			name:    "callback path without slash",
			mutate:  func(c *Config) { c.Login.CallbackPath = "kite/callback" },
			wantErr: "CallbackPath",
		},
		{
			name:    "api key without secret",
			mutate:  func(c *Config) { c.Kite.APIKey = "k" },
			wantErr: "set together",
		},
		{
			name:    "keyring without user",
			mutate:  func(c *Config) { c.Store.Keyring = true },
			wantErr: "keyring_user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewTokenStores(t *testing.T) {
	s := StoreConfig{File: "/tmp/kitetoken/token", Keyring: true, KeyringUser: "alice"}
	stores, err := s.NewTokenStores()
	if err != nil {
		t.Fatal(err)
	}
	if len(stores) != 2 {
		t.Fatalf("expected 2 stores, got %d", len(stores))
	}
	if stores[0].String() != "/tmp/kitetoken/token" {
		t.Errorf("first store = %s", stores[0])
	}

	empty, err := (&StoreConfig{}).NewTokenStores()
	if err != nil || len(empty) != 0 {
		t.Errorf("expected no stores, got %v, %v", empty, err)
	}
}
