// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package probe

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// DefaultSysfsRoot is where the kernel exposes block device class entries.
const DefaultSysfsRoot = "/sys/class/block"

// Enumerate lists candidate block device paths from sysfs.
//
// Partitions appear as their own entries and are candidates like whole disks.
// The list is sorted, so scan order is deterministic. Callers may bypass
// enumeration entirely by passing an explicit device list to Scan.
func Enumerate(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", root, err)
	}

	result := make([]string, 0, len(entries))

	for _, entry := range entries {
		path, err := filepath.EvalSymlinks(filepath.Join(root, entry.Name()))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("failed to resolve %s: %w", entry.Name(), err)
		}

		uevent, err := readUevent(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return nil, err
		}

		if uevent["MAJOR"] == "1" {
			// ignore ram disks (/dev/ramX), major number is 1
			// ref: https://www.kernel.org/doc/Documentation/admin-guide/devices.txt
			continue
		}

		name := uevent["DEVNAME"]
		if name == "" {
			name = entry.Name()
		}

		result = append(result, filepath.Join("/dev", name))
	}

	slices.Sort(result)

	return result, nil
}

// readUevent parses the key=value uevent file of a sysfs block entry.
func readUevent(path string) (map[string]string, error) {
	path = filepath.Join(path, "uevent")

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	result := map[string]string{}

	for _, kv := range bytes.Split(content, []byte("\n")) {
		key, value, ok := bytes.Cut(kv, []byte("="))
		if !ok {
			continue
		}

		result[string(key)] = string(value)
	}

	return result, nil
}
