// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package logging configures the zap loggers used across the tool.
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Destination routes log entries to a single writer with its own level and
// encoder settings.
type Destination struct {
	level  zapcore.LevelEnabler
	writer io.Writer
	config zapcore.EncoderConfig
}

// Option defines a destination encoder config setter.
type Option func(config *zapcore.EncoderConfig)

// WithoutTimestamp disables the timestamp.
func WithoutTimestamp() Option {
	return func(config *zapcore.EncoderConfig) {
		config.EncodeTime = nil
	}
}

// WithColoredLevels enables log level colored output.
func WithColoredLevels() Option {
	return func(config *zapcore.EncoderConfig) {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
}

// NewDestination creates a new log destination.
func NewDestination(writer io.Writer, logLevel zapcore.LevelEnabler, options ...Option) *Destination {
	config := zap.NewDevelopmentEncoderConfig()
	config.ConsoleSeparator = " "
	config.StacktraceKey = "error"

	for _, option := range options {
		option(&config)
	}

	return &Destination{
		level:  logLevel,
		config: config,
		writer: writer,
	}
}

// New creates a logger fanning out to all the destinations.
func New(dests ...*Destination) *zap.Logger {
	if len(dests) == 0 {
		panic("at least one destination must be defined")
	}

	cores := xslices.Map(dests, func(dest *Destination) zapcore.Core {
		return zapcore.NewCore(
			zapcore.NewConsoleEncoder(dest.config),
			zapcore.AddSync(dest.writer),
			dest.level,
		)
	})

	return zap.New(zapcore.NewTee(cores...))
}

// Console creates the standard command line logger writing to w.
//
// Levels are colored when w is a terminal.
func Console(w io.Writer, logLevel zapcore.LevelEnabler) *zap.Logger {
	var options []Option

	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		options = append(options, WithColoredLevels())
	}

	return New(NewDestination(w, logLevel, options...))
}

// Component helper for creating zap.Field.
func Component(name string) zapcore.Field {
	return zap.String("component", name)
}
