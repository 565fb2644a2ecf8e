// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"io"
	"io/fs"
	"time"
)

// archiveWalker iterates the entries of an archive in the order they are stored.
// Next returns io.EOF after the last entry.
type archiveWalker interface {
	Type() string
	Next() (archiveEntry, error)
}

// archiveEntry is a file, directory, symlink or hard link recorded in an archive.
// Name is the path as recorded in the archive and must not be trusted. The
// Linkname of a hard link is the name of an earlier entry of the same archive.
type archiveEntry interface {
	AccessTime() time.Time
	IsRegular() bool
	IsDir() bool
	IsHardlink() bool
	IsSymlink() bool
	Linkname() (string, error)
	Mode() fs.FileMode
	ModTime() time.Time
	Name() string
	Open() (io.ReadCloser, error)
	Size() int64
	Type() fs.FileMode
}
