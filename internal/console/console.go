// Package console provides the interactive terminal surface: progress
// output, line and secret prompts, and launching the default browser.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Console reads answers from in and writes prompts and progress to out.
type Console struct {
	in  *bufio.Reader
	out io.Writer

	// fd is the terminal file descriptor behind in, or -1 when in is not a terminal.
	fd int
}

// New creates a Console. Secret prompts disable echo when in is a terminal.
func New(in io.Reader, out io.Writer) *Console {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}

	return &Console{
		in:  bufio.NewReader(in),
		out: out,
		fd:  fd,
	}
}

// Printf writes formatted progress output.
func (c *Console) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// ReadLine prints prompt and returns the next input line without surrounding whitespace.
// A final line without newline is accepted; empty input at EOF returns io.EOF.
func (c *Console) ReadLine(prompt string) (string, error) {
	c.Printf("  %s", prompt)

	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadSecret is ReadLine without echo on terminals.
func (c *Console) ReadSecret(prompt string) (string, error) {
	if c.fd < 0 {
		return c.ReadLine(prompt)
	}

	c.Printf("  %s", prompt)
	secret, err := term.ReadPassword(c.fd)
	c.Printf("\n")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

// Confirm asks a yes/no question. An empty answer selects defaultYes.
func (c *Console) Confirm(prompt string, defaultYes bool) (bool, error) {
	choices := "[y/N]"
	if defaultYes {
		choices = "[Y/n]"
	}

	answer, err := c.ReadLine(prompt + " " + choices + ": ")
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
