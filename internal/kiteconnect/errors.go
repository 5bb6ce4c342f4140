package kiteconnect

import (
	"fmt"
	"strings"
)

const (
	opSessionToken = "session token exchange"
	opUserProfile  = "user profile"
)

// ErrorTypeToken is the error_type Kite reports for invalid or expired
// tokens and checksums.
const ErrorTypeToken = "TokenException"

// ExchangeError reports a failed Kite Connect call. Body holds the raw
// response, if any, for diagnostics.
type ExchangeError struct {
	Op         string
	StatusCode int
	Body       string
	Message    string
	ErrorType  string
	Err        error
}

func (e *ExchangeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "kite %s failed: %v", e.Op, e.Err)
	if e.ErrorType != "" || e.Message != "" {
		fmt.Fprintf(&sb, " (%s: %s)", e.ErrorType, e.Message)
	}
	if e.Body != "" {
		fmt.Fprintf(&sb, "; response: %s", e.Body)
	}
	return sb.String()
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// TokenRejected reports whether Kite rejected the token or checksum.
func (e *ExchangeError) TokenRejected() bool {
	return e.ErrorType == ErrorTypeToken
}
