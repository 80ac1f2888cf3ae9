// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mount orchestrates mounting a discovered pool.
//
// The orchestrator resolves the requested identifier, obtains a passphrase
// for encrypted pools, assembles the member device list and invokes the mount
// operation exactly once. The kernel call sits behind the Mounter interface.
package mount

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freddierice/go-losetup/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/poolfs-mount/internal/pkg/secret"
	"github.com/siderolabs/poolfs-mount/pkg/pool"
)

// FSType is the filesystem type passed to the kernel.
const FSType = "poolfs"

var (
	// ErrMountpointRequired indicates the caller did not supply a mountpoint.
	// A default is never invented.
	ErrMountpointRequired = errors.New("mountpoint was not specified")
	// ErrDegraded indicates the pool has fewer members than it was formatted
	// with and the options do not allow mounting it anyway.
	ErrDegraded = errors.New("pool is degraded")
)

// Mounter is the opaque mount operation: a device list, a mountpoint and an
// option string go in, success or a system error comes out.
//
// The data string can carry a passphrase. It reaches the implementation as an
// immutable copy which cannot be scrubbed, so implementations must not retain
// it beyond the call.
type Mounter interface {
	Mount(source, target, fstype string, flags uintptr, data string) error
}

// SysMounter mounts via the kernel.
type SysMounter struct{}

// Mount implements the Mounter interface.
func (SysMounter) Mount(source, target, fstype string, flags uintptr, data string) error {
	return unix.Mount(source, target, fstype, flags, data)
}

// AttachFunc attaches a backing file to a block device, returning the device
// path and a detach function.
type AttachFunc func(path string) (devicePath string, detach func() error, err error)

// LoopAttach implements AttachFunc with loop devices.
func LoopAttach(path string) (string, func() error, error) {
	dev, err := losetup.Attach(path, 0, false)
	if err != nil {
		return "", nil, fmt.Errorf("failed to attach %s to a loop device: %w", path, err)
	}

	return dev.Path(), dev.Detach, nil
}

// Options are the orchestrator's collaborators. Zero fields get production
// defaults.
type Options struct {
	Prompter secret.Prompter
	Mounter  Mounter
	Attach   AttachFunc
}

// Orchestrator drives one mount request to completion.
type Orchestrator struct {
	logger   *zap.Logger
	prompter secret.Prompter
	mounter  Mounter
	attach   AttachFunc
}

// New creates an orchestrator with explicit collaborators.
func New(logger *zap.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.Prompter == nil {
		opts.Prompter = secret.TTY{}
	}

	if opts.Mounter == nil {
		opts.Mounter = SysMounter{}
	}

	if opts.Attach == nil {
		opts.Attach = LoopAttach
	}

	return &Orchestrator{
		logger:   logger,
		prompter: opts.Prompter,
		mounter:  opts.Mounter,
		attach:   opts.Attach,
	}
}

// Mount resolves id against the registry and mounts the pool at target.
//
// The passphrase is prompted for at most once, only when the pool is
// encrypted and options do not already embed one, and it is released on every
// exit path. The mount operation is invoked exactly once: a failed mount on
// encrypted media is not retried, a wrong passphrase looped blindly could
// trigger lockouts.
func (o *Orchestrator) Mount(reg *pool.Registry, id uuid.UUID, target, options string) error {
	p, err := reg.Lookup(id)
	if err != nil {
		return err
	}

	if target == "" {
		return ErrMountpointRequired
	}

	parsed := parseOptions(options)

	if p.Degraded() && !parsed.degraded {
		expected, _ := p.ExpectedDevices().Get()

		return fmt.Errorf("%w: found %d of %d member devices (pass -o degraded to mount anyway)",
			ErrDegraded, len(p.Members()), expected)
	}

	var pass *secret.Passphrase

	if p.Encrypted() && !parsed.hasPassphrase {
		pass, err = o.prompter.Prompt(passphrasePrompt(p))
		if err != nil {
			return fmt.Errorf("failed to obtain passphrase: %w", err)
		}

		defer pass.Release()
	}

	source, detach, err := o.assemble(p)
	if err != nil {
		return err
	}

	data := []byte(strings.Join(parsed.data, ","))

	if pass != nil {
		if len(data) > 0 {
			data = append(data, ',')
		}

		data = append(data, "passphrase="...)
		data = pass.Append(data)
	}

	defer secret.Scrub(data)

	o.logger.Info("mounting pool",
		zap.Stringer("uuid", p.ID()),
		zap.String("source", source),
		zap.String("target", target),
	)

	if err = o.mounter.Mount(source, target, FSType, parsed.flags, string(data)); err != nil {
		if detachErr := detach(); detachErr != nil {
			o.logger.Warn("failed to detach loop devices", zap.Error(detachErr))
		}

		return fmt.Errorf("failed to mount %s at %s: %w", p.ID(), target, err)
	}

	return nil
}

// assemble produces the colon-joined source string, attaching regular-file
// members to loop devices first. The returned detach releases the loop
// devices this call attached; after a successful mount they stay, backing the
// filesystem.
func (o *Orchestrator) assemble(p *pool.Pool) (source string, detach func() error, err error) {
	var detachers []func() error

	detach = func() error {
		var multiErr *multierror.Error

		for _, d := range detachers {
			multiErr = multierror.Append(multiErr, d())
		}

		return multiErr.ErrorOrNil()
	}

	members := p.Members()
	sources := make([]string, 0, len(members))

	for _, member := range members {
		path := member.Device.Path()

		if member.Device.RegularFile() {
			loopPath, loopDetach, attachErr := o.attach(path)
			if attachErr != nil {
				return "", nil, multierror.Append(attachErr, detach()).ErrorOrNil()
			}

			o.logger.Debug("attached loop device", zap.String("file", path), zap.String("device", loopPath))

			detachers = append(detachers, loopDetach)
			path = loopPath
		}

		sources = append(sources, path)
	}

	return strings.Join(sources, ":"), detach, nil
}

func passphrasePrompt(p *pool.Pool) string {
	desc := p.ID().String()

	if label := p.Label(); label != "" {
		desc = fmt.Sprintf("%s (%s)", label, desc)
	}

	return fmt.Sprintf("Enter passphrase for %s: ", desc)
}
