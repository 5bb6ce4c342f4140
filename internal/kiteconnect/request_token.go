package kiteconnect

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidInput is returned when pasted text contains no request token.
var ErrInvalidInput = errors.New("no request_token found")

var (
	requestTokenParam = regexp.MustCompile(`[?&]request_token=([^&#\s]*)`)
	bareToken         = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// ExtractRequestToken returns the request token from either a full redirect
// URL (https://host/callback?request_token=abc&status=success) or a bare
// alphanumeric token. The query value is URL-decoded but its character set
// is not checked.
func ExtractRequestToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	if m := requestTokenParam.FindStringSubmatch(raw); m != nil {
		token, err := url.QueryUnescape(m[1])
		if err != nil {
			return "", fmt.Errorf("%w: decoding %q: %w", ErrInvalidInput, m[1], err)
		}
		if token == "" {
			return "", fmt.Errorf("%w: empty request_token in %q", ErrInvalidInput, raw)
		}
		return token, nil
	}

	if bareToken.MatchString(raw) {
		return raw, nil
	}

	return "", fmt.Errorf("%w in %q", ErrInvalidInput, raw)
}

// Checksum returns the lowercase hex SHA-256 of apiKey+requestToken+apiSecret.
func Checksum(apiKey, requestToken, apiSecret string) string {
	sum := sha256.Sum256([]byte(apiKey + requestToken + apiSecret))
	return hex.EncodeToString(sum[:])
}
