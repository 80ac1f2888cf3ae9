// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/siderolabs/go-pointer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siderolabs/poolfs-mount/internal/pkg/config"
	"github.com/siderolabs/poolfs-mount/internal/pkg/mount"
	"github.com/siderolabs/poolfs-mount/internal/pkg/version"
	"github.com/siderolabs/poolfs-mount/pkg/cli"
	"github.com/siderolabs/poolfs-mount/pkg/logging"
	"github.com/siderolabs/poolfs-mount/pkg/pool"
	"github.com/siderolabs/poolfs-mount/pkg/probe"
)

var rootCmdFlags struct {
	configFile string
	logLevel   string
	devices    []string
	options    string
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "poolfs-mount <fs-uuid> <mountpoint>",
	Short:         "Discover the member devices of a poolfs filesystem and mount it",
	Long:          ``,
	Args:          cobra.RangeArgs(1, 2),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid filesystem UUID %q: %w", args[0], err)
		}

		var target string

		if len(args) > 1 {
			target = args[1]
		}

		return cli.WithContext(context.Background(), func(ctx context.Context) error {
			return runMount(ctx, id, target)
		})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())

		errorString := err.Error()
		if strings.Contains(errorString, "arg(s)") || strings.Contains(errorString, "flag") || strings.Contains(errorString, "command") {
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, cmd.UsageString())
		}
	}

	return err
}

func runMount(ctx context.Context, id uuid.UUID, target string) error {
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

	orchestrator := mount.New(logger, mount.Options{})

	if err = orchestrator.Mount(reg, id, target, joinOptions(cfg.Options, rootCmdFlags.options)); err != nil {
		if errors.Is(err, pool.ErrPoolNotFound) {
			return describeRejected(err, result)
		}

		return err
	}

	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Open(rootCmdFlags.configFile)
	if err != nil {
		return nil, err
	}

	if rootCmdFlags.logLevel != "" {
		cfg.LogLevel = rootCmdFlags.logLevel
	}

	if len(rootCmdFlags.devices) > 0 {
		cfg.Devices = rootCmdFlags.devices
	}

	return cfg, nil
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	logger := logging.Console(os.Stderr, level)
	logger.Debug(version.Short())

	return logger, nil
}

func scanDevices(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*pool.Registry, *probe.Result, error) {
	paths := cfg.Devices

	if len(paths) == 0 {
		var err error

		paths, err = probe.Enumerate(cfg.SysfsRoot)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to enumerate block devices: %w", err)
		}
	}

	var opts []probe.Option

	if n := pointer.SafeDeref(cfg.Parallelism); n > 0 {
		opts = append(opts, probe.WithParallelism(n))
	}

	result, err := probe.Scan(ctx, logger.With(logging.Component("probe")), paths, opts...)
	if err != nil {
		return nil, nil, err
	}

	return pool.Group(result), result, nil
}

// describeRejected extends a resolution failure with the devices which carried
// unusable superblocks, so a missing pool can be told apart from a damaged one.
func describeRejected(err error, result *probe.Result) error {
	if len(result.Rejected) == 0 {
		return err
	}

	multiErr := multierror.Append(err)

	for _, rejected := range result.Rejected {
		multiErr = multierror.Append(multiErr, fmt.Errorf("%s: %w", rejected.Path, rejected.Err))
	}

	return multiErr.ErrorOrNil()
}

func joinOptions(base, extra string) string {
	switch {
	case base == "":
		return extra
	case extra == "":
		return base
	default:
		return base + "," + extra
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootCmdFlags.configFile, "config", "", "path to the configuration file (defaults to "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&rootCmdFlags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringArrayVar(&rootCmdFlags.devices, "device", nil, "probe the device instead of enumerating "+probe.DefaultSysfsRoot+" (can be repeated)")
	rootCmd.Flags().StringVarP(&rootCmdFlags.options, "options", "o", "", "comma-separated mount options")
}
