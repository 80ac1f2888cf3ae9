// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package probe_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/poolfs-mount/pkg/probe"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, imageSize), 0o600))

	dev, err := probe.Open(path)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, dev.Close()) })

	assert.Equal(t, path, dev.Path())
	assert.EqualValues(t, imageSize, dev.Size())
	assert.True(t, dev.RegularFile())

	// shared locks coexist
	other, err := probe.Open(path)
	require.NoError(t, err)
	require.NoError(t, other.Close())
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	_, err := probe.Open(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = probe.Open(t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "neither a block device nor a regular file")
}

func TestOpenLockContention(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, imageSize), 0o600))

	holder, err := os.Open(path)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, holder.Close()) })

	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_EX))

	_, err = probe.Open(path)
	require.ErrorIs(t, err, probe.ErrFailedLock)
}
