// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestParseOptions(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name    string
		options string

		expected mountOptions
	}{
		{
			name: "empty",
		},
		{
			name:    "rw is the default",
			options: "rw",
		},
		{
			name:    "read-only",
			options: "ro",

			expected: mountOptions{
				flags: unix.MS_RDONLY,
			},
		},
		{
			name:    "kernel flags",
			options: "ro,nosuid,nodev,noexec,noatime,nodiratime,relatime,sync",

			expected: mountOptions{
				flags: unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC |
					unix.MS_NOATIME | unix.MS_NODIRATIME | unix.MS_RELATIME | unix.MS_SYNCHRONOUS,
			},
		},
		{
			name:    "degraded",
			options: "degraded",

			expected: mountOptions{
				data:     []string{"degraded"},
				degraded: true,
			},
		},
		{
			name:    "passphrase",
			options: "passphrase=hunter2",

			expected: mountOptions{
				data:          []string{"passphrase=hunter2"},
				hasPassphrase: true,
			},
		},
		{
			name:    "filesystem options pass through",
			options: "metadata_replicas=2,fix_errors",

			expected: mountOptions{
				data: []string{"metadata_replicas=2", "fix_errors"},
			},
		},
		{
			name:    "mixed",
			options: "rw,noatime,degraded,compression=zstd",

			expected: mountOptions{
				flags:    unix.MS_NOATIME,
				data:     []string{"degraded", "compression=zstd"},
				degraded: true,
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, test.expected, parseOptions(test.options))
		})
	}
}
