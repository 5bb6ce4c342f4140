package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tradingtool/kitetoken/internal/app"
)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("", nil, environ())
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}

	want, err := app.Default()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LocalConfig != want.LocalConfig || cfg.Patch != want.Patch || cfg.Kite.APIURL != want.Kite.APIURL {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kitetoken.toml")
	content := `
log_level = "debug"
local_config = "from-file.yaml"
patch = "always"

[kite]
api_url = "https://kite.example.com"
timeout = "10s"

[login]
mode = "callback"
callback_addr = "127.0.0.1:9000"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path, nil, environ(
		"KITETOKEN_LOCAL_CONFIG=from-env.yaml",
		"KITETOKEN_KITE__API_KEY=envkey",
		"KITETOKEN_KITE__API_SECRET=envsecret",
		"UNRELATED=1",
	))
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}

	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.LocalConfig != "from-env.yaml" {
		t.Errorf("environment should override file, LocalConfig = %q", cfg.LocalConfig)
	}
	if cfg.Patch != app.PatchModeAlways {
		t.Errorf("Patch = %q", cfg.Patch)
	}
	if cfg.Kite.APIURL != "https://kite.example.com" || cfg.Kite.Timeout != 10*time.Second {
		t.Errorf("Kite = %+v", cfg.Kite)
	}
	if cfg.Kite.APIKey != "envkey" || cfg.Kite.APISecret != "envsecret" {
		t.Errorf("credentials from environment not loaded: %+v", cfg.Kite)
	}
	if cfg.Login.Mode != app.LoginModeCallback || cfg.Login.CallbackAddr != "127.0.0.1:9000" {
		t.Errorf("Login = %+v", cfg.Login)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), nil, environ())
		if err == nil || !strings.Contains(err.Error(), "loading config file") {
			t.Errorf("expected file error, got %v", err)
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := loadConfig("", nil, environ("KITETOKEN_PATCH=sometimes"))
		if err == nil || !strings.Contains(err.Error(), "invalid config") {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestLoadConfigFlags(t *testing.T) {
	var cfg *app.Config
	cmd := &cli.Command{
		Name: "kitetoken",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: slog.LevelInfo.String()},
		},
		Commands: []*cli.Command{
			{
				Name: "login",
				Flags: append(sharedFlags(),
					&cli.StringFlag{Name: "patch", Value: string(app.DefaultConfigPatch)},
					&cli.BoolFlag{Name: "login--no-browser"},
					&cli.DurationFlag{Name: "login--callback-timeout", Value: app.DefaultConfigCallbackTimeout},
				),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					var err error
					cfg, err = loadConfig("", cmd, environ(
						"KITETOKEN_PATCH=always",
						"KITETOKEN_LOCAL_CONFIG=from-env.yaml",
					))
					return err
				},
			},
		},
	}

	err := cmd.Run(context.Background(), []string{
		"kitetoken", "--log-level", "warn",
		"login", "--patch", "never", "--kite--api-url", "https://kite.example.com",
		"--login--no-browser", "--login--callback-timeout", "1m",
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("parent flag not applied, LogLevel = %v", cfg.LogLevel)
	}
	if cfg.Patch != app.PatchModeNever {
		t.Errorf("flag should override environment, Patch = %q", cfg.Patch)
	}
	if cfg.LocalConfig != "from-env.yaml" {
		t.Errorf("unset flag must not shadow environment, LocalConfig = %q", cfg.LocalConfig)
	}
	if cfg.Kite.APIURL != "https://kite.example.com" {
		t.Errorf("APIURL = %q", cfg.Kite.APIURL)
	}
	if !cfg.Login.NoBrowser || cfg.Login.CallbackTimeout != time.Minute {
		t.Errorf("Login = %+v", cfg.Login)
	}
}

func TestExtractAndTransformFlags(t *testing.T) {
	var got map[string]any
	cmd := &cli.Command{
		Name: "kitetoken",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "store--keyring-user"},
			&cli.StringFlag{Name: "local-config", Value: "default.yaml"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			got = extractAndTransformFlags(cmd)
			return nil
		},
	}

	if err := cmd.Run(context.Background(), []string{"kitetoken", "--store--keyring-user", "alice"}); err != nil {
		t.Fatal(err)
	}

	if got["store.keyring_user"] != "alice" {
		t.Errorf("store.keyring_user = %v", got["store.keyring_user"])
	}
	if _, ok := got["local_config"]; ok {
		t.Error("unset flag should be skipped")
	}
}
