// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package probe discovers poolfs member devices.
//
// A scan opens each candidate device, reads the fixed superblock region and
// decodes it, partitioning the candidates into pool members and rejected
// devices. Decoding is pure, so devices are probed in parallel; the result is
// always assembled in input order, one consistent snapshot per scan.
package probe

import (
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"
	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/siderolabs/poolfs-mount/pkg/superblock"
)

// Member is a successfully probed pool member.
type Member struct {
	Device     *Device
	SuperBlock *superblock.SuperBlock
}

// RejectedDevice is a candidate that failed probing in a reportable way.
//
// Corrupt superblocks, unsupported versions and I/O failures land here.
// Devices that simply are not pool members do not.
type RejectedDevice struct {
	Path string
	Err  error
}

// Result is the outcome of one scan pass over a candidate list.
//
// Members hold their devices open until Close. A result is immutable once
// returned; a later scan produces a new one, and results from two scans must
// not be merged.
type Result struct {
	Members  []Member
	Rejected []RejectedDevice
}

// Close releases every member device handle.
func (r *Result) Close() error {
	var multiErr *multierror.Error

	for _, m := range r.Members {
		multiErr = multierror.Append(multiErr, m.Device.Close())
	}

	return multiErr.ErrorOrNil()
}

// Options configure a scan.
type Options struct {
	Parallelism int
}

// Option customizes scan options.
type Option func(*Options)

// WithParallelism bounds the number of devices probed concurrently.
func WithParallelism(n int) Option {
	return func(o *Options) {
		o.Parallelism = n
	}
}

// DefaultOptions returns the default scan options.
func DefaultOptions() Options {
	return Options{
		Parallelism: 4,
	}
}

// Scan probes every path and partitions the candidates into pool members and
// rejected devices.
//
// Paths are deduplicated, first occurrence wins. Per-device failures never
// abort the scan; Scan returns an error only when the context is canceled.
func Scan(ctx context.Context, logger *zap.Logger, paths []string, opt ...Option) (*Result, error) {
	opts := DefaultOptions()

	for _, o := range opt {
		o(&opts)
	}

	paths = dedupe(paths)

	type outcome struct {
		member   *Member
		rejected *RejectedDevice
	}

	outcomes := make([]outcome, len(paths))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Parallelism)

	for i, path := range paths {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			member, rejected := probePath(logger, path)

			outcomes[i] = outcome{member: member, rejected: rejected}

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		for _, o := range outcomes {
			if o.member != nil {
				o.member.Device.Close() //nolint:errcheck
			}
		}

		return nil, err
	}

	result := &Result{}

	for _, o := range outcomes {
		switch {
		case o.member != nil:
			result.Members = append(result.Members, *o.member)
		case o.rejected != nil:
			result.Rejected = append(result.Rejected, *o.rejected)
		}
	}

	return result, nil
}

// probePath reads one candidate. It reports at most one of member, rejected;
// both nil means the device is not a pool member.
func probePath(logger *zap.Logger, path string) (*Member, *RejectedDevice) {
	dev, err := Open(path)
	if err != nil {
		logger.Debug("failed to open device", zap.String("device", path), zap.Error(err))

		return nil, &RejectedDevice{Path: path, Err: err}
	}

	sb, err := dev.readSuperblock()
	if err != nil {
		dev.Close() //nolint:errcheck

		if errors.Is(err, superblock.ErrNotMember) {
			logger.Debug("skipping device", zap.String("device", path))

			return nil, nil
		}

		logger.Warn("rejecting device", zap.String("device", path), zap.Error(err))

		return nil, &RejectedDevice{Path: path, Err: err}
	}

	logger.Debug("discovered pool member",
		zap.String("device", path),
		zap.Stringer("uuid", sb.UUID),
		zap.Uint64("seq", sb.Seq),
	)

	return &Member{Device: dev, SuperBlock: sb}, nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))

	return xslices.Filter(paths, func(path string) bool {
		if _, ok := seen[path]; ok {
			return false
		}

		seen[path] = struct{}{}

		return true
	})
}
