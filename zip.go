// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"
)

// fileExtensionZip is the file extension for zip files.
const fileExtensionZip = "zip"

// maxSymlinkTargetSize bounds the content of a zip symlink entry, which holds the link target.
const maxSymlinkTargetSize = 4096

// unpackZip extracts the zip archive in src into dst. The central directory is
// read from the end of the buffer, the entries are visited in its order.
func unpackZip(ctx context.Context, t Target, dst string, src *source, cfg *Config, td *TelemetryData) error {
	cfg.Logger().Info("extracting zip")

	reader, err := zip.NewReader(bytes.NewReader(src.data), int64(len(src.data)))
	// insecure names are rejected by the materializer, with the entry at hand
	if errors.Is(err, zip.ErrInsecurePath) && reader != nil {
		err = nil
	}
	if err != nil {
		return handleError(cfg, td, "cannot create zip reader", err)
	}
	return extract(ctx, t, dst, &zipWalker{zr: reader}, cfg, td)
}

// zipWalker is a walker for zip files
type zipWalker struct {
	zr *zip.Reader
	fp int
}

// Type returns the file extension for zip files
func (z *zipWalker) Type() string {
	return fileExtensionZip
}

// Next returns the next entry in the zip archive
func (z *zipWalker) Next() (archiveEntry, error) {
	if z.fp >= len(z.zr.File) {
		return nil, io.EOF
	}
	defer func() { z.fp++ }()
	return &zipEntry{z.zr.File[z.fp]}, nil
}

// zipEntry is an entry in a zip archive
type zipEntry struct {
	zf *zip.File
}

// Name returns the name of the entry
func (z *zipEntry) Name() string {
	return z.zf.FileHeader.Name
}

// Size returns the size of the entry
func (z *zipEntry) Size() int64 {
	return int64(z.zf.FileHeader.UncompressedSize64)
}

// Mode returns the mode of the entry
func (z *zipEntry) Mode() fs.FileMode {
	return z.zf.FileHeader.Mode()
}

// Linkname reads the link target, which zip stores as content of the entry
func (z *zipEntry) Linkname() (string, error) {
	rc, err := z.zf.Open()
	if err != nil {
		return "", fmt.Errorf("cannot open symlink entry: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSymlinkTargetSize+1))
	if err != nil {
		return "", fmt.Errorf("cannot read symlink target: %w", err)
	}
	if len(data) > maxSymlinkTargetSize {
		return "", fmt.Errorf("symlink target exceeds %d bytes", maxSymlinkTargetSize)
	}
	return string(data), nil
}

// IsRegular returns true if the entry is a regular file
func (z *zipEntry) IsRegular() bool {
	return z.zf.FileHeader.Mode().Type() == 0
}

// IsDir returns true if the entry is a directory
func (z *zipEntry) IsDir() bool {
	return z.zf.FileHeader.Mode().Type() == fs.ModeDir
}

// IsHardlink is always false, zip has no hard links
func (z *zipEntry) IsHardlink() bool {
	return false
}

// IsSymlink returns true if the entry is a symlink
func (z *zipEntry) IsSymlink() bool {
	return z.zf.FileHeader.Mode().Type() == fs.ModeSymlink
}

// Open returns a reader for the entry
func (z *zipEntry) Open() (io.ReadCloser, error) {
	return z.zf.Open()
}

// Type returns the type of the entry
func (z *zipEntry) Type() fs.FileMode {
	return z.zf.FileHeader.Mode().Type()
}

// AccessTime returns the access time of the entry, zip only records the modification time
func (z *zipEntry) AccessTime() time.Time {
	return z.zf.FileHeader.Modified
}

// ModTime returns the modification time of the entry
func (z *zipEntry) ModTime() time.Time {
	return z.zf.FileHeader.Modified
}
