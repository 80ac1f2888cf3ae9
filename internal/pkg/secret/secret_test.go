// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package secret

import (
	"os"
	"testing"

	"github.com/mattn/go-isatty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassphraseAppend(t *testing.T) {
	t.Parallel()

	p := newPassphrase([]byte("hunter2"))

	assert.Equal(t, 7, p.Len())

	buf := p.Append([]byte("passphrase="))
	assert.Equal(t, "passphrase=hunter2", string(buf))

	// caller side scrub
	Scrub(buf)
	assert.Equal(t, make([]byte, len(buf)), buf)

	p.Release()
}

func TestPassphraseScrubOnRelease(t *testing.T) {
	t.Parallel()

	backing := []byte("correct horse battery staple")

	p := newPassphrase(backing)
	p.Release()

	// the backing memory must not contain the secret anymore
	assert.Equal(t, make([]byte, len(backing)), backing)
	assert.Zero(t, p.Len())
}

func TestPassphraseDoubleRelease(t *testing.T) {
	t.Parallel()

	p := newPassphrase([]byte("secret"))
	p.Release()

	require.Panics(t, func() { p.Release() })
}

func TestPassphraseUseAfterRelease(t *testing.T) {
	t.Parallel()

	p := newPassphrase([]byte("secret"))
	p.Release()

	require.Panics(t, func() { p.Append(nil) })
}

func TestTTYNoTerminal(t *testing.T) {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		t.Skip("stdin is a terminal")
	}

	_, err := TTY{}.Prompt("passphrase: ")
	require.ErrorIs(t, err, ErrNoTerminal)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	static := Static{Data: []byte("hunter2")}

	first, err := static.Prompt("passphrase: ")
	require.NoError(t, err)

	second, err := static.Prompt("passphrase: ")
	require.NoError(t, err)

	// each handle owns an independent copy
	first.Release()

	assert.Equal(t, "hunter2", string(second.Append(nil)))
	assert.Equal(t, []byte("hunter2"), static.Data)

	second.Release()
}
