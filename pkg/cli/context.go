// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cli provides helpers shared by the commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// WithContext runs f with a context cancelled on ^C or SIGTERM.
//
// The first signal cancels the context so a running scan can wind down and
// close its devices; default signal handling is restored at the same time, so
// a second signal terminates the process immediately.
func WithContext(ctx context.Context, f func(context.Context) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-signals:
			cancel()

			signal.Stop(signals)
			fmt.Fprintln(os.Stderr, "Interrupt received, winding down the scan. A second signal aborts immediately.")
		case <-runCtx.Done():
			return
		case <-done:
		}
	}()

	return f(runCtx)
}
