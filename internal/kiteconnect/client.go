package kiteconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// Default endpoints and protocol settings for Kite Connect v3.
const (
	DefaultBaseURL  = "https://api.kite.trade"
	DefaultLoginURL = "https://kite.zerodha.com/connect/login"
	DefaultVersion  = "3"
	DefaultTimeout  = 30 * time.Second
)

const (
	sessionTokenPath = "/session/token"
	userProfilePath  = "/user/profile"

	versionHeader = "X-Kite-Version"

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 1 << 20
)

var tracer = otel.Tracer("github.com/tradingtool/kitetoken/internal/kiteconnect")

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	baseURL   string
	loginURL  string
	version   string
	timeout   time.Duration
	transport http.RoundTripper
}

// WithBaseURL sets the API root, e.g. for tests against httptest servers.
func WithBaseURL(baseURL string) Option {
	return func(c *clientConfig) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLoginURL sets the browser login endpoint.
func WithLoginURL(loginURL string) Option {
	return func(c *clientConfig) {
		c.loginURL = loginURL
	}
}

// WithVersion sets the protocol version sent in the X-Kite-Version header
// and the login URL.
func WithVersion(version string) Option {
	return func(c *clientConfig) {
		c.version = version
	}
}

// WithTimeout bounds each HTTP call. Zero disables the timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithTransport sets the base transport. If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.transport = transport
	}
}

// Client talks to the Kite Connect API on behalf of one app.
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	loginURL   string
	version    string
	httpClient *http.Client
}

// NewClient creates a Client for the app identified by apiKey and apiSecret.
func NewClient(apiKey, apiSecret string, opts ...Option) *Client {
	cfg := &clientConfig{
		baseURL:   DefaultBaseURL,
		loginURL:  DefaultLoginURL,
		version:   DefaultVersion,
		timeout:   DefaultTimeout,
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   cfg.baseURL,
		loginURL:  cfg.loginURL,
		version:   cfg.version,
		httpClient: &http.Client{
			Timeout: cfg.timeout,
			Transport: &versionTransport{
				version: cfg.version,
				base:    cfg.transport,
			},
		},
	}
}

// LoginURL returns the URL that starts a browser login. redirectParams, if
// non-empty, are echoed back by Kite on the redirect to the callback URL.
func (c *Client) LoginURL(redirectParams url.Values) string {
	query := url.Values{}
	query.Set("v", c.version)
	query.Set("api_key", c.apiKey)
	if len(redirectParams) > 0 {
		query.Set("redirect_params", redirectParams.Encode())
	}

	u, err := url.Parse(c.loginURL)
	if err != nil {
		// Fall back to plain concatenation for unparsable overrides
		return c.loginURL + "?" + query.Encode()
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// GenerateSession exchanges a request token for an access token. It makes
// exactly one attempt; failures are returned as *ExchangeError.
func (c *Client) GenerateSession(ctx context.Context, requestToken string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "kiteconnect.GenerateSession", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("request_token", requestToken)
	form.Set("checksum", Checksum(c.apiKey, requestToken, c.apiSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sessionTokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, endSpan(span, &ExchangeError{Op: opSessionToken, Err: err})
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var session Session
	if err := do(c.httpClient, req, opSessionToken, span, &session); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("kite.user_id", session.UserID))
	return &session, nil
}

// Profile fetches the profile of the user owning accessToken. It fails with
// an *ExchangeError of type TokenException once the token has expired.
func (c *Client) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	ctx, span := tracer.Start(ctx, "kiteconnect.Profile", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	client := &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(authToken(c.apiKey, accessToken)),
			Base:   c.httpClient.Transport,
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+userProfilePath, nil)
	if err != nil {
		return nil, endSpan(span, &ExchangeError{Op: opUserProfile, Err: err})
	}

	var profile Profile
	if err := do(client, req, opUserProfile, span, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// envelope is the common shape of every Kite Connect response.
type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// checker is implemented by response data that can be incomplete despite a
// "success" status.
type checker interface {
	check() error
}

// do sends req and decodes the data field of a successful response into out.
func do(client *http.Client, req *http.Request, op string, span trace.Span, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return endSpan(span, &ExchangeError{Op: op, Err: err})
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return endSpan(span, &ExchangeError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("reading response body: %w", err),
		})
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	exchangeErr := &ExchangeError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Message:    env.Message,
		ErrorType:  env.ErrorType,
	}

	switch {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		exchangeErr.Err = fmt.Errorf("unexpected HTTP status %s", resp.Status)
	case decodeErr != nil:
		exchangeErr.Err = fmt.Errorf("decoding response: %w", decodeErr)
	case env.Status != "success":
		exchangeErr.Err = fmt.Errorf("unexpected response status %q", env.Status)
	default:
		if err := json.Unmarshal(env.Data, out); err != nil {
			exchangeErr.Err = fmt.Errorf("decoding response data: %w", err)
			return endSpan(span, exchangeErr)
		}
		if v, ok := out.(checker); ok {
			if err := v.check(); err != nil {
				exchangeErr.Err = err
				return endSpan(span, exchangeErr)
			}
		}
		return nil
	}

	return endSpan(span, exchangeErr)
}

// endSpan marks span as failed and returns err unchanged.
func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// versionTransport adds the X-Kite-Version header to every request.
type versionTransport struct {
	version string
	base    http.RoundTripper
}

// Compile-time check that versionTransport implements http.RoundTripper.
var _ http.RoundTripper = (*versionTransport)(nil)

func (t *versionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	newReq := req.Clone(req.Context())
	newReq.Header.Set(versionHeader, t.version)
	return base.RoundTrip(newReq)
}
