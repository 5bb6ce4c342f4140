package tokenstore

import "context"

// TokenStore reads and writes an access token to persistent storage.
type TokenStore interface {
	// Read returns the stored token. Returns error if token is missing or empty.
	Read(ctx context.Context) (string, error)

	// Write persists the token, overwriting any previous value.
	Write(ctx context.Context, token string) error

	// String names the storage location for user-facing messages.
	String() string
}
