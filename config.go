// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config provides a configuration struct and options to adjust the configuration.
//
// The default configuration mirrors plain extraction: existing files are
// overwritten, the destination is created if needed and no limits are applied.
// Entry paths are always confined to the destination.
type Config struct {
	// createDestination creates the destination directory if it does not exist
	createDestination bool

	// customCreateDirMode is the file mode for created directories, that are not defined in the archive (respecting umask)
	customCreateDirMode fs.FileMode

	// customDecompressFileMode is the file mode for a decompressed file (respecting umask)
	customDecompressFileMode fs.FileMode

	// denySymlinks rejects symlink entries
	denySymlinks bool

	// dropFileAttributes skips restoring modification times
	dropFileAttributes bool

	// logger stream for extraction
	logger logger

	// maxExtractionSize is the maximum size over all extracted files (-1 disables the check)
	maxExtractionSize int64

	// maxFiles is the maximum of entries (including folder and symlinks) in an archive (-1 disables the check)
	maxFiles int64

	// maxInputSize is the maximum size of the archive itself (-1 disables the check)
	maxInputSize int64

	// noUntarAfterDecompression treats every gzip payload as a single file
	noUntarAfterDecompression bool

	// overwrite existing files in the destination
	overwrite bool

	// target is the filesystem the entries are materialized to
	target Target

	// telemetryHook is a function to consume telemetry data after finished extraction
	telemetryHook TelemetryHook

	// traverseSymlinks allows existing symlinks as part of entry paths
	traverseSymlinks bool
}

// CheckExtractionSize checks if size exceeds the configured maximum. If the maximum is
// exceeded, [ErrMaxExtractionSizeExceeded] is returned.
func (c *Config) CheckExtractionSize(size int64) error {
	if c.maxExtractionSize == -1 {
		return nil
	}
	if size > c.maxExtractionSize {
		return ErrMaxExtractionSizeExceeded
	}
	return nil
}

// CheckInputSize checks if size exceeds the configured maximum input size. If the
// maximum is exceeded, [ErrMaxInputSizeExceeded] is returned.
func (c *Config) CheckInputSize(size int64) error {
	if c.maxInputSize == -1 {
		return nil
	}
	if size > c.maxInputSize {
		return ErrMaxInputSizeExceeded
	}
	return nil
}

// CheckMaxFiles checks if counter exceeds the configured maximum. If the maximum is
// exceeded, [ErrMaxFilesExceeded] is returned.
func (c *Config) CheckMaxFiles(counter int64) error {
	if c.maxFiles == -1 {
		return nil
	}
	if counter > c.maxFiles {
		return ErrMaxFilesExceeded
	}
	return nil
}

// CreateDestination returns true if the destination directory should be
// created if it does not exist.
func (c *Config) CreateDestination() bool {
	return c.createDestination
}

// CustomCreateDirMode returns the file mode for created directories,
// that are not defined in the archive. (respecting umask)
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// CustomDecompressFileMode returns the file mode for a decompressed file.
// (respecting umask)
func (c *Config) CustomDecompressFileMode() fs.FileMode {
	return c.customDecompressFileMode
}

// DenySymlinks returns true if symlink entries are rejected.
func (c *Config) DenySymlinks() bool {
	return c.denySymlinks
}

// DropFileAttributes returns true if modification times from the archive are not restored.
func (c *Config) DropFileAttributes() bool {
	return c.dropFileAttributes
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// MaxExtractionSize returns the maximum size over all extracted files.
func (c *Config) MaxExtractionSize() int64 {
	return c.maxExtractionSize
}

// MaxFiles returns the maximum of entries in an archive.
func (c *Config) MaxFiles() int64 {
	return c.maxFiles
}

// MaxInputSize returns the maximum size of the archive.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// NoUntarAfterDecompression returns true if a gzip payload is never treated as tar archive.
func (c *Config) NoUntarAfterDecompression() bool {
	return c.noUntarAfterDecompression
}

// Overwrite returns true if existing files in the destination are overwritten.
func (c *Config) Overwrite() bool {
	return c.overwrite
}

// Target returns the filesystem the entries are written to.
func (c *Config) Target() Target {
	return c.target
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return defaultTelemetryHook
	}
	return c.telemetryHook
}

// TraverseSymlinks returns true if existing symlinks may be part of entry paths.
func (c *Config) TraverseSymlinks() bool {
	return c.traverseSymlinks
}

const (
	defaultCreateDestination         = true  // create destination directory
	defaultCustomCreateDirMode       = 0750  // default directory permissions rwxr-x---
	defaultCustomDecompressFileMode  = 0640  // default decompression permissions rw-r-----
	defaultDenySymlinks              = false // allow symlink extraction
	defaultDropFileAttributes        = false // restore modification times
	defaultMaxExtractionSize         = -1    // no limit
	defaultMaxFiles                  = -1    // no limit
	defaultMaxInputSize              = -1    // no limit
	defaultNoUntarAfterDecompression = false // untar after decompression
	defaultOverwrite                 = true  // overwrite existing files
	defaultTraverseSymlinks          = false // don't traverse symlinks
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {
	config := &Config{
		createDestination:         defaultCreateDestination,
		customCreateDirMode:       defaultCustomCreateDirMode,
		customDecompressFileMode:  defaultCustomDecompressFileMode,
		denySymlinks:              defaultDenySymlinks,
		dropFileAttributes:        defaultDropFileAttributes,
		logger:                    defaultLogger,
		maxExtractionSize:         defaultMaxExtractionSize,
		maxFiles:                  defaultMaxFiles,
		maxInputSize:              defaultMaxInputSize,
		noUntarAfterDecompression: defaultNoUntarAfterDecompression,
		overwrite:                 defaultOverwrite,
		target:                    NewTargetDisk(),
		telemetryHook:             defaultTelemetryHook,
		traverseSymlinks:          defaultTraverseSymlinks,
	}

	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithCreateDestination options pattern function to create
// destination directory if it does not exist.
func WithCreateDestination(create bool) ConfigOption {
	return func(c *Config) {
		c.createDestination = create
	}
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories, that are not defined in the archive. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithCustomDecompressFileMode options pattern function to set the file mode for a
// decompressed file. (respecting umask)
func WithCustomDecompressFileMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customDecompressFileMode = mode
	}
}

// WithDenySymlinks options pattern function to reject symlink entries.
func WithDenySymlinks(deny bool) ConfigOption {
	return func(c *Config) {
		c.denySymlinks = deny
	}
}

// WithDropFileAttributes options pattern function to skip restoring the
// modification times of extracted files.
func WithDropFileAttributes(drop bool) ConfigOption {
	return func(c *Config) {
		c.dropFileAttributes = drop
	}
}

// WithInsecureTraverseSymlinks options pattern function to allow existing symlinks
// as part of entry paths.
func WithInsecureTraverseSymlinks(traverse bool) ConfigOption {
	return func(c *Config) {
		c.traverseSymlinks = traverse
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxExtractionSize options pattern function to set maximum size over all
// decompressed and extracted files. (-1 to disable check)
func WithMaxExtractionSize(maxExtractionSize int64) ConfigOption {
	return func(c *Config) {
		c.maxExtractionSize = maxExtractionSize
	}
}

// WithMaxFiles options pattern function to set maximum number of extracted files,
// directories and symlinks. (-1 to disable check)
func WithMaxFiles(maxFiles int64) ConfigOption {
	return func(c *Config) {
		c.maxFiles = maxFiles
	}
}

// WithMaxInputSize options pattern function to set the maximum archive size. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithNoUntarAfterDecompression options pattern function to enable/disable tar
// detection inside gzip streams.
func WithNoUntarAfterDecompression(disable bool) ConfigOption {
	return func(c *Config) {
		c.noUntarAfterDecompression = disable
	}
}

// WithOverwrite options pattern function specify if files should be overwritten in
// the destination. If disabled, an existing file fails the extraction with [ErrFileExists].
func WithOverwrite(enable bool) ConfigOption {
	return func(c *Config) {
		c.overwrite = enable
	}
}

// WithTarget options pattern function to set the [Target] entries are written to.
func WithTarget(t Target) ConfigOption {
	return func(c *Config) {
		if t != nil {
			c.target = t
		}
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which is called after extraction.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}
