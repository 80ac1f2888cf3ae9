// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package secret implements the interactive passphrase channel.
//
// A passphrase lives in process memory as a single owned buffer: the only
// constructor is prompting, users append the bytes into buffers they scrub
// themselves, and Release zeroes the backing memory exactly once. Nothing in
// this package logs, stores or copies the secret.
package secret

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// ErrNoTerminal indicates no interactive terminal is attached, so no
// passphrase can be prompted for. There is no fallback source.
var ErrNoTerminal = errors.New("no interactive terminal attached")

// Passphrase is an owned secret.
//
// The owner must call Release exactly once when done, on every path including
// errors. Double release and use after release are programming errors and
// panic.
type Passphrase struct {
	data     []byte
	released bool
}

// newPassphrase takes ownership of data; it is the single surviving copy.
func newPassphrase(data []byte) *Passphrase {
	return &Passphrase{data: data}
}

// Len returns the secret length in bytes.
func (p *Passphrase) Len() int {
	return len(p.data)
}

// Append appends the secret to dst and returns the extended slice.
//
// The caller owns dst and must scrub it when done.
func (p *Passphrase) Append(dst []byte) []byte {
	if p.released {
		panic("secret: passphrase used after release")
	}

	return append(dst, p.data...)
}

// Release zeroes the backing memory and invalidates the passphrase.
func (p *Passphrase) Release() {
	if p.released {
		panic("secret: passphrase released twice")
	}

	p.released = true

	Scrub(p.data)
	p.data = nil
}

// Scrub overwrites b with zeroes. Buffers a passphrase was appended to are
// scrubbed with this before they are dropped.
func Scrub(b []byte) {
	clear(b)
}

// Prompter obtains a passphrase from the operator.
type Prompter interface {
	Prompt(prompt string) (*Passphrase, error)
}

// TTY prompts on the controlling terminal.
type TTY struct{}

// Check interface.
var _ Prompter = TTY{}

// Prompt writes prompt to stderr and reads one line from stdin with echo
// disabled.
//
// The line buffer is owned by the returned Passphrase; no intermediate copy
// survives, and on failure whatever was read is scrubbed before returning.
// There is no timeout: the call blocks until the operator answers.
func (TTY) Prompt(prompt string) (*Passphrase, error) {
	fd := os.Stdin.Fd()

	if !isatty.IsTerminal(fd) {
		return nil, fmt.Errorf("%w: standard input is not a terminal", ErrNoTerminal)
	}

	fmt.Fprint(os.Stderr, prompt)

	data, err := term.ReadPassword(int(fd))

	fmt.Fprintln(os.Stderr)

	if err != nil {
		Scrub(data)

		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}

	return newPassphrase(data), nil
}

// Static answers every prompt with a fixed passphrase. It backs tests and
// non-interactive callers which already hold the secret.
type Static struct {
	Data []byte
}

// Check interface.
var _ Prompter = Static{}

// Prompt implements the Prompter interface. Each call hands out a fresh owned
// copy, so every returned Passphrase has an independent lifecycle.
func (s Static) Prompt(string) (*Passphrase, error) {
	data := make([]byte, len(s.Data))
	copy(data, s.Data)

	return newPassphrase(data), nil
}
