package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// SecretPrompt is the flag value that asks for a secret on stdin.
const SecretPrompt = "-"

// ReadSecret prompts for name on out and reads one line from in without echo
// when in is a terminal.
func ReadSecret(in io.Reader, out io.Writer, name string) (string, error) {
	fmt.Fprintf(out, "Enter %s: ", name)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	fmt.Fprintln(out)

	return strings.TrimSpace(line), nil
}

// isSecret reports whether a parameter carries key or PIN material.
func isSecret(name string) bool {
	return strings.Contains(name, "key") || strings.Contains(name, "pin") || strings.HasPrefix(name, "component")
}
