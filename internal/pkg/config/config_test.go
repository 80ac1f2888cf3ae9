// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siderolabs/go-pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/poolfs-mount/internal/pkg/config"
)

func TestReadFrom(t *testing.T) {
	t.Parallel()

	c, err := config.ReadFrom(strings.NewReader(`
options: ro,noatime
devices:
  - /dev/vda
  - /dev/vdb
logLevel: debug
parallelism: 8
`))
	require.NoError(t, err)

	assert.Equal(t, &config.Config{
		Options:     "ro,noatime",
		Devices:     []string{"/dev/vda", "/dev/vdb"},
		SysfsRoot:   "/sys/class/block",
		LogLevel:    "debug",
		Parallelism: pointer.To(8),
	}, c)
}

func TestReadFromEmpty(t *testing.T) {
	t.Parallel()

	c, err := config.ReadFrom(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, config.Default(), c)
}

func TestReadFromInvalid(t *testing.T) {
	t.Parallel()

	_, err := config.ReadFrom(strings.NewReader("options: [not, a, string]"))
	require.ErrorContains(t, err, "failed to parse configuration")
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mount.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sysfsRoot: /fake/sys\n"), 0o600))

	c, err := config.Open(path)
	require.NoError(t, err)

	assert.Equal(t, "/fake/sys", c.SysfsRoot)
	assert.Equal(t, "info", c.LogLevel)
}

func TestOpenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mount.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: warn\n"), 0o600))

	t.Setenv(config.EnvVar, path)

	c, err := config.Open("")
	require.NoError(t, err)

	assert.Equal(t, "warn", c.LogLevel)
}

func TestOpenMissing(t *testing.T) {
	t.Parallel()

	_, err := config.Open(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenDefaults(t *testing.T) {
	if _, err := os.Stat(config.DefaultPath); err == nil {
		t.Skipf("%s exists", config.DefaultPath)
	}

	t.Setenv(config.EnvVar, "")

	c, err := config.Open("")
	require.NoError(t, err)

	assert.Equal(t, config.Default(), c)
}

func TestLevel(t *testing.T) {
	t.Parallel()

	c := config.Default()

	level, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)

	c.LogLevel = "nonsense"

	_, err = c.Level()
	require.ErrorContains(t, err, "failed to parse log level")
}
