// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mount

import (
	"strings"

	"golang.org/x/sys/unix"
)

// knownFlags maps option names handled by the kernel mount call itself to
// their flag bits; everything else is filesystem-specific and travels in the
// data string.
var knownFlags = map[string]uintptr{
	"ro":         unix.MS_RDONLY,
	"nosuid":     unix.MS_NOSUID,
	"nodev":      unix.MS_NODEV,
	"noexec":     unix.MS_NOEXEC,
	"noatime":    unix.MS_NOATIME,
	"nodiratime": unix.MS_NODIRATIME,
	"relatime":   unix.MS_RELATIME,
	"sync":       unix.MS_SYNCHRONOUS,
}

// mountOptions is the parsed form of a -o option string.
type mountOptions struct {
	flags         uintptr
	data          []string
	degraded      bool
	hasPassphrase bool
}

func parseOptions(options string) mountOptions {
	var parsed mountOptions

	for _, opt := range strings.Split(options, ",") {
		switch {
		case opt == "" || opt == "rw":
		case opt == "degraded":
			parsed.degraded = true
			parsed.data = append(parsed.data, opt)
		case strings.HasPrefix(opt, "passphrase="):
			parsed.hasPassphrase = true
			parsed.data = append(parsed.data, opt)
		default:
			if flag, ok := knownFlags[opt]; ok {
				parsed.flags |= flag
			} else {
				parsed.data = append(parsed.data, opt)
			}
		}
	}

	return parsed
}
