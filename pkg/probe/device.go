// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package probe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unsafe"

	"github.com/siderolabs/go-retry/retry"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/poolfs-mount/pkg/superblock"
)

// ErrFailedLock indicates another process holds an exclusive lock on the device.
var ErrFailedLock = errors.New("failed to lock device")

// flockTimeout bounds how long Open waits for a contended advisory lock.
const flockTimeout = 2 * time.Second

// Device is an open, read-locked handle to a candidate member device.
//
// Both block devices and regular files (disk images) are accepted.
type Device struct {
	*os.File

	size    uint64
	regular bool
}

// Open opens path read-only and takes a shared advisory lock on it.
//
// Lock contention is retried for a short period, then reported as
// ErrFailedLock. The lock is released by Close.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}

	dev := &Device{File: f}

	st, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck

		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	switch mode := st.Mode(); {
	case mode.IsRegular():
		dev.regular = true
		dev.size = uint64(st.Size())
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0:
		if dev.size, err = blockDeviceSize(f); err != nil {
			f.Close() //nolint:errcheck

			return nil, fmt.Errorf("failed to query size of %s: %w", path, err)
		}
	default:
		f.Close() //nolint:errcheck

		return nil, fmt.Errorf("%s is neither a block device nor a regular file", path)
	}

	if err = lockShared(f); err != nil {
		f.Close() //nolint:errcheck

		return nil, err
	}

	return dev, nil
}

// Path returns the path the device was opened with.
func (d *Device) Path() string {
	return d.Name()
}

// Size returns the device size in bytes.
func (d *Device) Size() uint64 {
	return d.size
}

// RegularFile reports whether the handle is a regular file rather than a block device.
func (d *Device) RegularFile() bool {
	return d.regular
}

// readSuperblock reads and decodes the superblock region.
//
// A device too small to hold the region decodes as a non-member.
func (d *Device) readSuperblock() (*superblock.SuperBlock, error) {
	buf := make([]byte, superblock.Size)

	n, err := d.ReadAt(buf, superblock.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read superblock region: %w", err)
	}

	return superblock.Decode(buf[:n])
}

func lockShared(f *os.File) error {
	err := retry.Constant(flockTimeout, retry.WithUnits(50*time.Millisecond)).Retry(func() error {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); err != nil {
			if errors.Is(err, unix.EWOULDBLOCK) {
				return retry.ExpectedError(err)
			}

			return err
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrFailedLock, f.Name(), err)
	}

	return nil
}

func blockDeviceSize(f *os.File) (uint64, error) {
	var size uint64

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size))); errno != 0 {
		return 0, errno
	}

	return size, nil
}
