package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tradingtool/kitetoken/internal/callback"
	"github.com/tradingtool/kitetoken/internal/console"
	"github.com/tradingtool/kitetoken/internal/kiteconnect"
	"github.com/tradingtool/kitetoken/internal/localconfig"
	"github.com/tradingtool/kitetoken/internal/tokenstore"
)

// Console is the interactive surface used by the login flow.
type Console interface {
	Printf(format string, args ...any)
	ReadLine(prompt string) (string, error)
	ReadSecret(prompt string) (string, error)
	Confirm(prompt string, defaultYes bool) (bool, error)
}

// App runs the login and verify flows.
type App struct {
	cfg         *Config
	console     Console
	openBrowser func(string) error
	transport   http.RoundTripper
	logger      *slog.Logger

	localConfig *tokenstore.LocalConfigStore
	stores      []tokenstore.TokenStore
}

// Option configures an App.
type Option func(*App)

// WithConsole replaces the stdin/stdout console.
func WithConsole(c Console) Option {
	return func(a *App) {
		a.console = c
	}
}

// WithBrowser replaces the function used to open the login URL.
func WithBrowser(open func(string) error) Option {
	return func(a *App) {
		a.openBrowser = open
	}
}

// WithTransport sets the HTTP transport for Kite Connect calls.
func WithTransport(transport http.RoundTripper) Option {
	return func(a *App) {
		a.transport = transport
	}
}

// New creates a new App instance. No I/O is performed.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	localConfig, err := tokenstore.NewLocalConfigStore(cfg.LocalConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create local config store: %w", err)
	}

	stores, err := cfg.Store.NewTokenStores()
	if err != nil {
		return nil, fmt.Errorf("failed to create token stores: %w", err)
	}

	a := &App{
		cfg:         cfg,
		console:     console.New(os.Stdin, os.Stdout),
		openBrowser: console.OpenBrowser,
		transport:   http.DefaultTransport,
		logger:      slog.Default().With("run_id", uuid.NewString()),
		localConfig: localConfig,
		stores:      stores,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Login runs the one-shot token exchange: load credentials, show and open the
// login URL, obtain the request token, exchange it, show the access token and
// persist it. Only invalid input and exchange failures are returned as
// errors; persistence problems are reported as warnings.
func (a *App) Login(ctx context.Context) error {
	a.console.Printf("\n─── Kite Connect token generator ───────────────────────────\n\n")

	creds, err := a.loadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	client := a.newClient(creds)

	requestToken, err := a.requestToken(ctx, client)
	if err != nil {
		return err
	}

	a.console.Printf("\n  request_token : %s\n", requestToken)
	a.console.Printf("  Exchanging for access_token...\n")

	session, err := client.GenerateSession(ctx, requestToken)
	if err != nil {
		return fmt.Errorf("exchanging request token: %w", err)
	}
	a.logger.DebugContext(ctx, "request token exchanged", "user_id", session.UserID)

	a.console.Printf("\n  ✓ access_token : %s\n", session.AccessToken)
	if session.UserID != "" {
		a.console.Printf("    user         : %s (%s)\n", session.UserID, session.UserName)
	}
	if expiry := session.Expiry(); !expiry.IsZero() {
		a.console.Printf("    valid until  : %s\n", expiry.Format(time.RFC1123))
	}

	a.persist(ctx, session.AccessToken)

	a.console.Printf("\n  Done. Restart the backend to pick up the new token.\n\n")
	return nil
}

// Verify checks the stored access token against the profile endpoint.
func (a *App) Verify(ctx context.Context) error {
	creds, err := a.loadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	accessToken, source, err := a.storedToken(ctx)
	if err != nil {
		return fmt.Errorf("no stored access token: %w", err)
	}
	a.console.Printf("  Checking access token from %s...\n", source)

	profile, err := a.newClient(creds).Profile(ctx, accessToken)
	if err != nil {
		var exchangeErr *kiteconnect.ExchangeError
		if errors.As(err, &exchangeErr) && exchangeErr.TokenRejected() {
			return fmt.Errorf("access token is invalid or expired, run login again: %w", err)
		}
		return fmt.Errorf("verifying access token: %w", err)
	}

	a.console.Printf("  ✓ access token is valid for %s (%s, %s)\n", profile.UserID, profile.UserName, profile.Broker)
	return nil
}

func (a *App) loadCredentials(ctx context.Context) (localconfig.Credentials, error) {
	if a.cfg.Kite.APIKey != "" && a.cfg.Kite.APISecret != "" {
		a.console.Printf("  Using api_key from configuration\n")
		return localconfig.Credentials{APIKey: a.cfg.Kite.APIKey, APISecret: a.cfg.Kite.APISecret}, nil
	}

	path := a.cfg.LocalConfig
	prompter := &fallbackPrompter{Console: a.console, path: path}
	creds, err := localconfig.LoadCredentials(ctx, path, prompter)
	if err != nil {
		return localconfig.Credentials{}, err
	}
	if !prompter.prompted {
		a.console.Printf("  Loaded api_key from %s\n", path)
	}
	return creds, nil
}

// fallbackPrompter announces once that the local config was unusable before
// the first manual prompt.
type fallbackPrompter struct {
	Console
	path     string
	prompted bool
}

func (p *fallbackPrompter) notice() {
	if p.prompted {
		return
	}
	p.prompted = true
	p.Printf("  Could not read %s, enter values manually.\n", p.path)
}

func (p *fallbackPrompter) ReadLine(prompt string) (string, error) {
	p.notice()
	return p.Console.ReadLine(prompt)
}

func (p *fallbackPrompter) ReadSecret(prompt string) (string, error) {
	p.notice()
	return p.Console.ReadSecret(prompt)
}

func (a *App) newClient(creds localconfig.Credentials) *kiteconnect.Client {
	return kiteconnect.NewClient(creds.APIKey, creds.APISecret,
		kiteconnect.WithBaseURL(a.cfg.Kite.APIURL),
		kiteconnect.WithLoginURL(a.cfg.Kite.LoginURL),
		kiteconnect.WithVersion(a.cfg.Kite.Version),
		kiteconnect.WithTimeout(a.cfg.Kite.Timeout),
		kiteconnect.WithTransport(a.transport),
	)
}

func (a *App) requestToken(ctx context.Context, client *kiteconnect.Client) (string, error) {
	if a.cfg.Login.Mode == LoginModeCallback {
		return a.awaitCallback(ctx, client)
	}

	a.showLoginURL(ctx, client.LoginURL(nil))
	a.console.Printf(
		"\n  After logging in, Zerodha redirects you to your registered callback URL.\n" +
			"  The URL looks like:\n" +
			"    https://your-host/kite/callback?request_token=XXXXXXXX&status=success\n\n",
	)

	raw, err := a.console.ReadLine("Paste the full redirect URL (or just the request_token): ")
	if err != nil {
		return "", fmt.Errorf("reading request token: %w", err)
	}
	return kiteconnect.ExtractRequestToken(raw)
}

func (a *App) showLoginURL(ctx context.Context, loginURL string) {
	a.console.Printf("\n  Login URL:\n  %s\n\n", loginURL)
	if a.cfg.Login.NoBrowser {
		return
	}

	a.console.Printf("  Opening in your browser...\n")
	if err := a.openBrowser(loginURL); err != nil {
		a.logger.WarnContext(ctx, "could not open browser", "error", err)
		a.console.Printf("  Could not open the browser automatically, open the URL above manually.\n")
	}
}

// awaitCallback receives the request token on a loopback server instead of
// the console. Kite echoes redirect_params, which carry a per-run state.
func (a *App) awaitCallback(ctx context.Context, client *kiteconnect.Client) (string, error) {
	state := uuid.NewString()
	server := callback.New(a.cfg.Login.CallbackPath, state)

	errCh, err := server.Start(ctx, a.cfg.Login.CallbackAddr)
	if err != nil {
		return "", fmt.Errorf("starting callback server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.WarnContext(shutdownCtx, "callback server shutdown failed", "error", err)
		}
	}()

	a.showLoginURL(ctx, client.LoginURL(url.Values{"state": {state}}))
	a.console.Printf("  Waiting for the redirect on http://%s%s ...\n", server.Addr(), a.cfg.Login.CallbackPath)

	waitCtx, stop := context.WithTimeout(ctx, a.cfg.Login.CallbackTimeout)
	defer stop()
	g, gCtx := errgroup.WithContext(waitCtx)

	// Monitor runtime errors - errgroup cancels the wait on first error
	g.Go(func() error {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("callback server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	var requestToken string
	g.Go(func() error {
		defer stop()
		select {
		case requestToken = <-server.Tokens():
			return nil
		case <-gCtx.Done():
			if errors.Is(gCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("no redirect received within %s", a.cfg.Login.CallbackTimeout)
			}
			return gCtx.Err()
		}
	})

	if err := g.Wait(); err != nil {
		return "", err
	}
	return requestToken, nil
}

// persist writes the access token to the local config (subject to the patch
// mode) and every additional store. Failures only produce warnings: the
// token has already been shown and can be copied manually.
func (a *App) persist(ctx context.Context, accessToken string) {
	patch := false
	switch a.cfg.Patch {
	case PatchModeAlways:
		patch = true
	case PatchModeAsk:
		a.console.Printf("\n")
		ok, err := a.console.Confirm(fmt.Sprintf("Patch this into %s automatically?", filepath.Base(a.cfg.LocalConfig)), true)
		if err != nil {
			a.logger.WarnContext(ctx, "could not read patch confirmation", "error", err)
			a.console.Printf("\n  WARNING: No answer, %s left unchanged.\n", a.cfg.LocalConfig)
		}
		patch = ok
	}

	if patch {
		a.save(ctx, a.localConfig, accessToken)
	}
	for _, store := range a.stores {
		a.save(ctx, store, accessToken)
	}
}

func (a *App) save(ctx context.Context, store tokenstore.TokenStore, accessToken string) {
	err := store.Write(ctx, accessToken)
	switch {
	case err == nil:
		a.console.Printf("  Saved access token to %s.\n", store)
	case errors.Is(err, localconfig.ErrFieldNotFound):
		a.logger.WarnContext(ctx, "access token not persisted", "store", store.String(), "error", err)
		a.console.Printf("  WARNING: Could not find '%s' line in %s, patch skipped.\n", localconfig.KeyAccessToken, store)
	default:
		a.logger.WarnContext(ctx, "access token not persisted", "store", store.String(), "error", err)
		a.console.Printf("  WARNING: Could not save access token to %s: %v\n", store, err)
	}
}

// storedToken returns the first access token found in the local config or
// the additional stores.
func (a *App) storedToken(ctx context.Context) (string, tokenstore.TokenStore, error) {
	var errs []error
	for _, store := range append([]tokenstore.TokenStore{a.localConfig}, a.stores...) {
		token, err := store.Read(ctx)
		if err == nil {
			return token, store, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", store, err))
	}
	return "", nil, errors.Join(errs...)
}
