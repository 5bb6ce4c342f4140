package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// DefaultPath is the redirect path registered for the app in the Kite developer console.
const DefaultPath = "/kite/callback"

// Server receives the browser redirect that follows a Kite login and
// delivers the request token carried in its query string.
type Server struct {
	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener
	state    string
	tokens   chan string
	accepted atomic.Bool
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a callback server answering GET requests on path. A non-empty
// state must be echoed back in the redirect's state parameter.
func New(path, state string) *Server {
	if path == "" {
		path = DefaultPath
	}

	s := &Server{
		mux:    http.NewServeMux(),
		state:  state,
		tokens: make(chan string, 1),
	}

	s.mux.Handle("GET "+path, applyMiddlewares(http.HandlerFunc(s.handleCallback),
		Logging(slog.Default()),
		Recovery,
	))

	return s
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Tokens delivers the first valid request token received.
func (s *Server) Tokens() <-chan string {
	return s.tokens
}

// Addr returns the listening address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if status := query.Get("status"); status != "" && status != "success" {
		writeJSONError(ctx, w, fmt.Sprintf("login was not successful: status %q", status), http.StatusBadRequest)
		return
	}

	if s.state != "" && query.Get("state") != s.state {
		slog.WarnContext(ctx, "rejected callback with mismatched state")
		writeJSONError(ctx, w, "state mismatch", http.StatusBadRequest)
		return
	}

	requestToken := query.Get("request_token")
	if requestToken == "" {
		writeJSONError(ctx, w, "Missing request_token parameter", http.StatusBadRequest)
		return
	}

	if !s.accepted.CompareAndSwap(false, true) {
		writeJSONError(ctx, w, "request_token already received", http.StatusConflict)
		return
	}

	// Buffered for exactly one token, so this never blocks
	s.tokens <- requestToken
	writeJSON(ctx, w, map[string]string{
		"status":  "received",
		"message": "Login complete, return to the terminal.",
	}, http.StatusOK)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
