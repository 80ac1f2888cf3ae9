// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cli_test

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/siderolabs/poolfs-mount/pkg/cli"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Not parallel: signal handler registration is process-global.
func TestWithContext(t *testing.T) {
	errFailed := errors.New("scan failed")

	err := cli.WithContext(context.Background(), func(context.Context) error {
		return errFailed
	})
	require.ErrorIs(t, err, errFailed)

	require.NoError(t, cli.WithContext(context.Background(), func(context.Context) error {
		return nil
	}))
}

func TestWithContextSignal(t *testing.T) {
	err := cli.WithContext(context.Background(), func(ctx context.Context) error {
		require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

		<-ctx.Done()

		return ctx.Err()
	})

	require.ErrorIs(t, err, context.Canceled)
}
