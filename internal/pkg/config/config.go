// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config loads the optional tool configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap/zapcore"
	yaml "gopkg.in/yaml.v3"

	"github.com/siderolabs/poolfs-mount/pkg/probe"
)

const (
	// DefaultPath is where the configuration file lives unless overridden.
	DefaultPath = "/etc/poolfs/mount.yaml"
	// EnvVar overrides the configuration file path.
	EnvVar = "POOLFS_MOUNT_CONFIG"
)

// Config represents the configuration file.
//
// Every field is optional, command line flags take precedence.
type Config struct {
	// Options is prepended to the -o option string.
	Options string `yaml:"options,omitempty"`
	// Devices overrides block device enumeration when non-empty.
	Devices []string `yaml:"devices,omitempty"`
	// SysfsRoot is the directory block devices are enumerated from.
	SysfsRoot string `yaml:"sysfsRoot,omitempty"`
	// LogLevel is a zap level name.
	LogLevel string `yaml:"logLevel,omitempty"`
	// Parallelism bounds concurrent device probes.
	Parallelism *int `yaml:"parallelism,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SysfsRoot: probe.DefaultSysfsRoot,
		LogLevel:  "info",
	}
}

// Open reads the configuration.
//
// An explicit path (argument or EnvVar) must exist; with neither given the
// file at DefaultPath is read when present, and the built-in defaults are
// returned when it is not.
func Open(path string) (*Config, error) {
	required := true

	if path == "" {
		path = os.Getenv(EnvVar)
	}

	if path == "" {
		path = DefaultPath
		required = false
	}

	f, err := os.Open(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("failed to open configuration: %w", err)
	}

	defer f.Close() //nolint:errcheck

	return ReadFrom(f)
}

// ReadFrom reads a configuration from io.Reader on top of the defaults.
func ReadFrom(r io.Reader) (*Config, error) {
	c := Default()

	if err := yaml.NewDecoder(r).Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return c, nil
		}

		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return c, nil
}

// Level parses the configured log level.
func (c *Config) Level() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return level, fmt.Errorf("failed to parse log level: %w", err)
	}

	return level, nil
}
