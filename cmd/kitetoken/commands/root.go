package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tradingtool/kitetoken/internal/app"
	"github.com/tradingtool/kitetoken/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, version string, args []string) error {
	cmd := &cli.Command{
		Name:    "kitetoken",
		Usage:   "Kite Connect access token generator",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
		},
		DefaultCommand: "login",
		Commands: []*cli.Command{
			loginCommand(),
			verifyCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func loginCommand() *cli.Command {
	flags := append(sharedFlags(),
		&cli.StringFlag{
			Name:  "patch",
			Usage: "update the local config with the new token (ask|always|never)",
			Value: string(app.DefaultConfigPatch),
		},
		&cli.StringFlag{
			Name:  "kite--login-url",
			Usage: "Kite Connect login page",
			Value: app.DefaultConfigKiteLoginURL,
		},
		&cli.StringFlag{
			Name:  "login--mode",
			Usage: "how the request token is received (paste|callback)",
			Value: string(app.DefaultConfigLoginMode),
		},
		&cli.BoolFlag{
			Name:  "login--no-browser",
			Usage: "print the login URL without opening a browser",
		},
		&cli.StringFlag{
			Name:  "login--callback-addr",
			Usage: "listen address for callback mode",
			Value: app.DefaultConfigCallbackAddr,
		},
		&cli.StringFlag{
			Name:  "login--callback-path",
			Usage: "redirect path for callback mode",
			Value: app.DefaultConfigCallbackPath,
		},
		&cli.DurationFlag{
			Name:  "login--callback-timeout",
			Usage: "how long callback mode waits for the redirect",
			Value: app.DefaultConfigCallbackTimeout,
		},
	)

	return &cli.Command{
		Name:   "login",
		Usage:  "exchange a request token for an access token",
		Flags:  flags,
		Action: loginAction,
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:   "verify",
		Usage:  "check the stored access token against the profile endpoint",
		Flags:  sharedFlags(),
		Action: verifyAction,
	}
}

// sharedFlags are accepted by every subcommand.
func sharedFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log format (text|json)",
			Value: string(app.DefaultConfigLogFormat),
		},
		&cli.StringFlag{
			Name:  "log-exporter",
			Usage: "log exporter (none|stdout|otlp-http|otlp-grpc)",
			Value: string(app.DefaultConfigLogExporter),
		},
		&cli.StringFlag{
			Name:  "local-config",
			Usage: "path to the service's localconfig.yaml",
			Value: app.DefaultConfigLocalConfig,
		},
		&cli.StringFlag{
			Name:  "kite--api-url",
			Usage: "Kite Connect API base URL",
			Value: app.DefaultConfigKiteAPIURL,
		},
		&cli.StringFlag{
			Name:  "kite--version",
			Usage: "X-Kite-Version header value",
			Value: app.DefaultConfigKiteVersion,
		},
		&cli.DurationFlag{
			Name:  "kite--timeout",
			Usage: "timeout for Kite Connect API calls",
			Value: app.DefaultConfigKiteTimeout,
		},
		&cli.StringFlag{
			Name:  "store--file",
			Usage: "also write the access token to this file",
		},
		&cli.BoolFlag{
			Name:  "store--keyring",
			Usage: "also write the access token to the system keyring",
		},
		&cli.StringFlag{
			Name:  "store--keyring-user",
			Usage: "keyring account name (defaults to the current user)",
		},
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	return run(ctx, cmd, (*app.App).Login)
}

func verifyAction(ctx context.Context, cmd *cli.Command) error {
	return run(ctx, cmd, (*app.App).Verify)
}

func run(ctx context.Context, cmd *cli.Command, flow func(*app.App, context.Context) error) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, os.Stderr, cfg.LogLevel, cfg.LogFormat, cfg.LogExporter)
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		// Flush exporters even when ctx was cancelled by a signal
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
	}()

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	start := time.Now()
	slog.DebugContext(ctx, "starting", "command", cmd.Name)

	if err := flow(application, ctx); err != nil {
		return err
	}

	slog.DebugContext(ctx, "finished", "command", cmd.Name, "elapsed", time.Since(start))
	return nil
}
