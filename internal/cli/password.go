package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"

	"github.com/calvinalkan/lightdb/internal/secret"
)

// Environment variables that supply passwords non-interactively.
const (
	EnvPassword    = "LIGHTDB_PASSWORD"
	EnvNewPassword = "LIGHTDB_NEW_PASSWORD"
)

// passwordReader resolves passwords from the environment, a terminal prompt,
// or (when stdin is not a terminal) one line of stdin per request.
type passwordReader struct {
	stdin io.Reader
	env   map[string]string
	lines *bufio.Reader
}

func newPasswordReader(stdin io.Reader, env map[string]string) *passwordReader {
	return &passwordReader{stdin: stdin, env: env}
}

// current returns the password of an existing database.
func (p *passwordReader) current() ([]byte, error) {
	if v := p.env[EnvPassword]; v != "" {
		return []byte(v), nil
	}

	return p.prompt("Password: ")
}

// choose returns a new password from envKey, or prompts twice.
func (p *passwordReader) choose(envKey string) ([]byte, error) {
	if v := p.env[envKey]; v != "" {
		return []byte(v), nil
	}

	first, err := p.prompt("New password: ")
	if err != nil {
		return nil, err
	}

	second, err := p.prompt("Repeat new password: ")
	if err != nil {
		secret.Zero(first)

		return nil, err
	}

	defer secret.Zero(second)

	if !bytes.Equal(first, second) {
		secret.Zero(first)

		return nil, ErrPasswordMismatch
	}

	return first, nil
}

func (p *passwordReader) prompt(prompt string) ([]byte, error) {
	if f, ok := p.stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return terminalPrompt(prompt)
	}

	if p.stdin == nil {
		return nil, fmt.Errorf("%w: set %s or run in a terminal", ErrPasswordRequired, EnvPassword)
	}

	if p.lines == nil {
		p.lines = bufio.NewReader(p.stdin)
	}

	line, err := p.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, fmt.Errorf("%w: reading stdin: %w", ErrPasswordRequired, err)
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, ErrPasswordRequired
	}

	return []byte(line), nil
}

func terminalPrompt(prompt string) ([]byte, error) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	pw, err := line.PasswordPrompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil, ErrPasswordRequired
		}

		return nil, fmt.Errorf("reading password: %w", err)
	}

	if pw == "" {
		return nil, ErrPasswordRequired
	}

	return []byte(pw), nil
}
