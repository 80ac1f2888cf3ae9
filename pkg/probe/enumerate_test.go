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

	"github.com/siderolabs/poolfs-mount/pkg/probe"
)

// populateSysfs builds a /sys/class/block lookalike: a class directory of
// symlinks into a device tree, each device directory carrying a uevent file.
func populateSysfs(t *testing.T, root string, devices map[string]string) string {
	t.Helper()

	classDir := filepath.Join(root, "class", "block")
	require.NoError(t, os.MkdirAll(classDir, 0o755))

	for name, uevent := range devices {
		deviceDir := filepath.Join(root, "devices", name)
		require.NoError(t, os.MkdirAll(deviceDir, 0o755))

		if uevent != "" {
			require.NoError(t, os.WriteFile(filepath.Join(deviceDir, "uevent"), []byte(uevent), 0o644))
		}

		require.NoError(t, os.Symlink(deviceDir, filepath.Join(classDir, filepath.Base(name))))
	}

	return classDir
}

func TestEnumerate(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	classDir := populateSysfs(t, root, map[string]string{
		"virtual/block/loop0": "MAJOR=7\nMINOR=0\nDEVNAME=loop0\nDEVTYPE=disk\n",
		"virtual/block/ram0":  "MAJOR=1\nMINOR=0\nDEVNAME=ram0\nDEVTYPE=disk\n",
		"pci/block/sda":       "MAJOR=8\nMINOR=0\nDEVNAME=sda\nDEVTYPE=disk\n",
		"pci/block/sda/sda1":  "MAJOR=8\nMINOR=1\nDEVNAME=sda1\nDEVTYPE=partition\n",
		"pci/block/sdb":       "",
	})

	// entry whose target vanished between listing and resolution
	require.NoError(t, os.Symlink(filepath.Join(root, "devices", "gone"), filepath.Join(classDir, "vanished")))

	devices, err := probe.Enumerate(classDir)
	require.NoError(t, err)

	assert.Equal(t, []string{"/dev/loop0", "/dev/sda", "/dev/sda1"}, devices)
}

func TestEnumerateMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := probe.Enumerate(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
