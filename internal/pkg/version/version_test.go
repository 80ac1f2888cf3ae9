// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package version_test

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/poolfs-mount/internal/pkg/version"
)

func TestShort(t *testing.T) {
	t.Parallel()

	assert.True(t, strings.HasPrefix(version.Short(), version.Name+" "))
	assert.Equal(t, fmt.Sprintf("%s %s", version.Name, version.Tag), version.Short())
}

func TestWriteLongVersion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, version.WriteLongVersion(&buf))

	output := buf.String()

	assert.True(t, strings.HasPrefix(output, version.Name+":"))
	assert.Contains(t, output, fmt.Sprintf("Go version:  %s", runtime.Version()))
	assert.Contains(t, output, fmt.Sprintf("OS/Arch:     %s/%s", runtime.GOOS, runtime.GOARCH))
}
