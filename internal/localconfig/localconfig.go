package localconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Field names used in the local config file.
const (
	KeyAPIKey      = "apiKey"
	KeyAPISecret   = "apiSecret"
	KeyAccessToken = "accessToken"
)

var (
	// ErrConfigMissing reports an absent or incomplete local config file.
	ErrConfigMissing = errors.New("local config missing or incomplete")

	// ErrFieldNotFound reports that no "key: value" line exists for a field.
	ErrFieldNotFound = errors.New("field not found in local config")
)

// valuePattern matches a flat `key: value` line. Group 1 is everything up to
// the value (indentation, key, colon and spacing), group 2 the bare value.
// Only horizontal whitespace is allowed so a match never spans two lines,
// and a CRLF line keeps its carriage return.
func valuePattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^([ \t]*` + regexp.QuoteMeta(key) + `[ \t]*:[ \t]*)["']?([^"'#\r\n]*)["']?`)
}

// Value returns the trimmed value of the first `key: value` line in text,
// or "" when the key is absent.
func Value(text, key string) string {
	m := valuePattern(key).FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[2])
}

// Replace sets the value of every `key: ...` line in text to a double-quoted
// value. All other bytes are preserved. The second result is false when text
// has no such line, in which case text is returned unchanged.
func Replace(text, key, value string) (string, bool) {
	re := valuePattern(key)
	if !re.MatchString(text) {
		return text, false
	}
	return re.ReplaceAllStringFunc(text, func(line string) string {
		prefix := re.FindStringSubmatch(line)[1]
		if !strings.HasSuffix(prefix, " ") && !strings.HasSuffix(prefix, "\t") {
			prefix += " "
		}
		return prefix + `"` + value + `"`
	}), true
}

// Credentials are the Kite Connect app credentials.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Prompter supplies values interactively.
type Prompter interface {
	ReadLine(prompt string) (string, error)
	ReadSecret(prompt string) (string, error)
}

// ReadCredentials extracts apiKey and apiSecret from the file at path.
// Returns ErrConfigMissing if the file cannot be read or either value is empty.
func ReadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrConfigMissing, err)
	}

	text := string(data)
	creds := Credentials{
		APIKey:    Value(text, KeyAPIKey),
		APISecret: Value(text, KeyAPISecret),
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return Credentials{}, fmt.Errorf("%w: %s or %s empty in %s", ErrConfigMissing, KeyAPIKey, KeyAPISecret, path)
	}
	return creds, nil
}

// LoadCredentials reads credentials from path, falling back to prompting for
// both values when the file is absent or incomplete. It only fails when the
// prompter fails or the user enters an empty value.
func LoadCredentials(ctx context.Context, path string, p Prompter) (Credentials, error) {
	creds, err := ReadCredentials(path)
	if err == nil {
		return creds, nil
	}
	slog.DebugContext(ctx, "falling back to interactive credentials", "path", path, "error", err)

	return PromptCredentials(p)
}

// PromptCredentials asks for both credentials. The secret is read without echo
// where the prompter supports it.
func PromptCredentials(p Prompter) (Credentials, error) {
	apiKey, err := p.ReadLine("api_key    : ")
	if err != nil {
		return Credentials{}, fmt.Errorf("reading api_key: %w", err)
	}
	apiSecret, err := p.ReadSecret("api_secret : ")
	if err != nil {
		return Credentials{}, fmt.Errorf("reading api_secret: %w", err)
	}

	creds := Credentials{
		APIKey:    strings.TrimSpace(apiKey),
		APISecret: strings.TrimSpace(apiSecret),
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return Credentials{}, errors.New("api_key and api_secret are required")
	}
	return creds, nil
}

// Patch rewrites the value of key in the file at path, keeping every other
// byte and the file mode. Returns ErrFieldNotFound if the file has no line
// for key; the file is left untouched in that case.
func Patch(ctx context.Context, path, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	updated, ok := Replace(string(data), key, value)
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrFieldNotFound, key, path)
	}
	if updated == string(data) {
		return nil
	}

	return os.WriteFile(path, []byte(updated), info.Mode().Perm())
}
