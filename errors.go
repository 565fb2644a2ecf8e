// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"errors"
	"fmt"
)

// Kind categorizes an [Error].
type Kind int

const (
	// KindUnknown is the catch-all for failures that are neither format nor I/O related,
	// e.g. a rejected entry path or an exceeded limit.
	KindUnknown Kind = iota

	// KindInvalidFormat is returned while constructing an [Archive] from content
	// that is not a tar, zip or gzip stream.
	KindInvalidFormat

	// KindIO covers filesystem and byte stream failures as well as structural
	// errors reported by the tar, zip and gzip decoders.
	KindIO
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidFormat:
		return "invalid format"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidFormat is matched by every [Error] of kind [KindInvalidFormat].
	ErrInvalidFormat = errors.New("unsupported archive format")

	// ErrArchiveConsumed is returned if an [Archive] is unarchived a second time.
	ErrArchiveConsumed = errors.New("archive has already been unarchived")

	// ErrArchiveUninitialized is returned if an [Archive] was not created by
	// [FromPath], [FromBytes] or [FromReader].
	ErrArchiveUninitialized = errors.New("archive is not initialized")

	// ErrPathTraversal is returned if an entry would be written outside of the destination.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrSymlinkInPath is returned if an existing symlink is part of an entry path.
	ErrSymlinkInPath = errors.New("symlink in path")

	// ErrSymlinkDenied is returned for symlink entries if symlinks are denied.
	ErrSymlinkDenied = errors.New("symlink extraction denied")

	// ErrFileExists is returned if overwriting is disabled and the entry already exists.
	ErrFileExists = errors.New("file already exists")

	// ErrMaxFilesExceeded is returned if the archive contains more entries than allowed.
	ErrMaxFilesExceeded = errors.New("maximum files exceeded")

	// ErrMaxExtractionSizeExceeded is returned if the extracted content grows beyond the limit.
	ErrMaxExtractionSizeExceeded = errors.New("maximum extraction size exceeded")

	// ErrMaxInputSizeExceeded is returned if the archive itself is larger than allowed.
	ErrMaxInputSizeExceeded = errors.New("maximum input size exceeded")
)

// policyErrors are raised by this package rather than by a decoder or the
// filesystem, so they are reported as [KindUnknown].
var policyErrors = []error{
	ErrArchiveConsumed,
	ErrArchiveUninitialized,
	ErrPathTraversal,
	ErrSymlinkInPath,
	ErrSymlinkDenied,
	ErrFileExists,
	ErrMaxFilesExceeded,
	ErrMaxExtractionSizeExceeded,
	ErrMaxInputSizeExceeded,
}

// Error is the error type returned by all exported functions of this package.
type Error struct {
	// Kind is the category of the failure.
	Kind Kind

	// Label is the MIME type that was detected for content of kind [KindInvalidFormat].
	// It is empty if no known signature matched at all.
	Label string

	// Err is the underlying cause.
	Err error
}

// Error returns a one line description including the cause.
func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidFormat:
		if e.Label == "" {
			return "the archive format is not supported: no known signature detected"
		}
		return fmt.Sprintf("the archive format %q is not supported", e.Label)
	case KindIO:
		return fmt.Sprintf("error reading the archive: %s", e.Err)
	default:
		return fmt.Sprintf("error: %s", e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// invalidFormat creates the construction error for content with the detected label.
func invalidFormat(label string) *Error {
	return &Error{Kind: KindInvalidFormat, Label: label, Err: ErrInvalidFormat}
}

// newError wraps err with msg. Policy violations become [KindUnknown], everything
// else [KindIO]. An err that already is an [*Error] is returned as is.
func newError(msg string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	kind := KindIO
	for _, pe := range policyErrors {
		if errors.Is(err, pe) {
			kind = KindUnknown
			break
		}
	}
	return &Error{Kind: kind, Err: fmt.Errorf("%s: %w", msg, err)}
}
