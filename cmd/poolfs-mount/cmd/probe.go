// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"fmt"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/prometheus/procfs"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siderolabs/poolfs-mount/internal/pkg/mount"
	"github.com/siderolabs/poolfs-mount/pkg/cli"
	"github.com/siderolabs/poolfs-mount/pkg/pool"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Scan block devices and report the discovered poolfs filesystems",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.WithContext(context.Background(), runProbe)
	},
}

func runProbe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	defer logger.Sync() //nolint:errcheck

	reg, result, err := scanDevices(ctx, logger, cfg)
	if err != nil {
		return err
	}

	defer result.Close() //nolint:errcheck

	if reg.Len() == 0 {
		fmt.Println("No poolfs filesystems found")
	} else {
		printPools(reg, poolfsMountpoints(logger))
	}

	if len(result.Rejected) > 0 {
		fmt.Println()
		fmt.Println("Rejected devices:")

		for _, rejected := range result.Rejected {
			fmt.Printf("    %s: %s\n", rejected.Path, color.RedString("%s", rejected.Err))
		}
	}

	return nil
}

func printPools(reg *pool.Registry, mountpoints map[string]string) {
	withPlaceholder := func(in string) string {
		if in == "" {
			return "-"
		}

		return in
	}

	s := []string{"UUID | LABEL | VERSION | SEQ | DEVICES | SIZE | FLAGS | MOUNTED"}

	for _, p := range reg.Pools() {
		devices := fmt.Sprintf("%d", len(p.Members()))

		if expected, ok := p.ExpectedDevices().Get(); ok {
			devices = fmt.Sprintf("%d/%d", len(p.Members()), expected)
		}

		var flags []string

		if p.Encrypted() {
			flags = append(flags, "encrypted")
		}

		if p.Degraded() {
			flags = append(flags, color.YellowString("degraded"))
		}

		s = append(s, fmt.Sprintf("%s | %s | %d | %d | %s | %s | %s | %s",
			p.ID(),
			withPlaceholder(p.Label()),
			p.Version(),
			p.Seq(),
			devices,
			humanize.IBytes(p.Size()),
			withPlaceholder(strings.Join(flags, ",")),
			withPlaceholder(mountpointFor(p, mountpoints)),
		))
	}

	fmt.Println(columnize.SimpleFormat(s))
}

// poolfsMountpoints maps member device paths to mountpoints of the currently
// mounted poolfs filesystems.
func poolfsMountpoints(logger *zap.Logger) map[string]string {
	mounts, err := procfs.GetMounts()
	if err != nil {
		logger.Debug("failed to read mountinfo", zap.Error(err))

		return nil
	}

	mountpoints := map[string]string{}

	for _, m := range mounts {
		if m.FSType != mount.FSType {
			continue
		}

		for _, device := range strings.Split(m.Source, ":") {
			mountpoints[device] = m.MountPoint
		}
	}

	return mountpoints
}

func mountpointFor(p *pool.Pool, mountpoints map[string]string) string {
	for _, device := range p.DevicePaths() {
		if target, ok := mountpoints[device]; ok {
			return target
		}
	}

	return ""
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
