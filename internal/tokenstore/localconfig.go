package tokenstore

import (
	"context"
	"fmt"
	"os"

	"github.com/tradingtool/kitetoken/internal/localconfig"
)

// LocalConfigStore keeps the access token in the accessToken line of the
// service's pseudo-YAML local config file.
type LocalConfigStore struct {
	path string
}

// Compile-time check to ensure LocalConfigStore implements TokenStore
var _ TokenStore = (*LocalConfigStore)(nil)

// NewLocalConfigStore creates a LocalConfigStore for the file at path.
func NewLocalConfigStore(path string) (*LocalConfigStore, error) {
	if path == "" {
		return nil, fmt.Errorf("local config path cannot be empty")
	}

	return &LocalConfigStore{path: path}, nil
}

// Read returns the accessToken value. Returns error if the file is unreadable
// or the value is empty.
func (l *LocalConfigStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return "", err
	}

	token := localconfig.Value(string(data), localconfig.KeyAccessToken)
	if token == "" {
		return "", fmt.Errorf("empty %s in %s", localconfig.KeyAccessToken, l.path)
	}
	return token, nil
}

// Write patches the accessToken line. Returns an error wrapping
// localconfig.ErrFieldNotFound when the file has no such line.
func (l *LocalConfigStore) Write(ctx context.Context, token string) error {
	return localconfig.Patch(ctx, l.path, localconfig.KeyAccessToken, token)
}

func (l *LocalConfigStore) String() string {
	return l.path
}
