// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "io error", err: io.ErrUnexpectedEOF, want: KindIO},
		{name: "wrapped io error", err: fmt.Errorf("read: %w", io.ErrUnexpectedEOF), want: KindIO},
		{name: "path traversal", err: fmt.Errorf("check: %w", ErrPathTraversal), want: KindUnknown},
		{name: "symlink in path", err: ErrSymlinkInPath, want: KindUnknown},
		{name: "consumed", err: ErrArchiveConsumed, want: KindUnknown},
		{name: "uninitialized", err: ErrArchiveUninitialized, want: KindUnknown},
		{name: "file exists", err: ErrFileExists, want: KindUnknown},
		{name: "limit", err: ErrMaxExtractionSizeExceeded, want: KindUnknown},
		{name: "already categorized", err: invalidFormat("image/png"), want: KindInvalidFormat},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e := newError("msg", test.err)
			assert.Equal(t, test.want, e.Kind)
			assert.ErrorIs(t, e, test.err)
		})
	}
}

func TestNewErrorKeepsExistingError(t *testing.T) {
	inner := newError("inner", io.ErrUnexpectedEOF)
	outer := newError("outer", fmt.Errorf("wrapped: %w", inner))
	assert.Same(t, inner, outer)
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "invalid format without label",
			err:  invalidFormat(""),
			want: "the archive format is not supported: no known signature detected",
		},
		{
			name: "invalid format with label",
			err:  invalidFormat("image/png"),
			want: `the archive format "image/png" is not supported`,
		},
		{
			name: "io",
			err:  newError("cannot read", io.ErrUnexpectedEOF),
			want: "error reading the archive: cannot read: unexpected EOF",
		},
		{
			name: "unknown",
			err:  newError("cannot create", ErrPathTraversal),
			want: "error: cannot create: path traversal detected",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, test.err.Error())
		})
	}
}

func TestInvalidFormatMatchesSentinel(t *testing.T) {
	var err error = invalidFormat("")
	assert.True(t, errors.Is(err, ErrInvalidFormat))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, "invalid format", KindInvalidFormat.String())
	assert.Equal(t, "io", KindIO.String())
}
