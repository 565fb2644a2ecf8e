// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"time"
)

// fileExtensionTar is the file extension for tar files
const fileExtensionTar = "tar"

// unpackTar streams the tar archive in src into dst.
func unpackTar(ctx context.Context, t Target, dst string, src *source, cfg *Config, td *TelemetryData) error {
	return processTar(ctx, t, dst, bytes.NewReader(src.data), cfg, td)
}

// processTar extracts the tar stream r to dst. r is consumed sequentially, so it
// may be a decompressing reader.
func processTar(ctx context.Context, t Target, dst string, r io.Reader, cfg *Config, td *TelemetryData) error {
	return extract(ctx, t, dst, &tarWalker{tr: tar.NewReader(r)}, cfg, td)
}

// tarWalker is a walker for tar files
type tarWalker struct {
	tr *tar.Reader
}

// Type returns the file extension for tar files
func (t *tarWalker) Type() string {
	return fileExtensionTar
}

// Next returns the next entry in the tar archive
func (t *tarWalker) Next() (archiveEntry, error) {
	for {
		hdr, err := t.tr.Next()
		// insecure names are rejected by the materializer, with the entry at hand
		if errors.Is(err, tar.ErrInsecurePath) && hdr != nil {
			err = nil
		}
		if err != nil {
			return nil, err
		}

		// pax global headers (e.g. the commit id written by git archive) carry no file
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		return &tarEntry{hdr, t.tr}, nil
	}
}

// tarEntry is an entry in a tar archive
type tarEntry struct {
	hdr *tar.Header
	tr  *tar.Reader
}

// Name returns the name of the entry
func (t *tarEntry) Name() string {
	return t.hdr.Name
}

// Size returns the size of the entry
func (t *tarEntry) Size() int64 {
	return t.hdr.Size
}

// Mode returns the mode of the entry
func (t *tarEntry) Mode() fs.FileMode {
	return t.hdr.FileInfo().Mode()
}

// Linkname returns the linkname of the entry
func (t *tarEntry) Linkname() (string, error) {
	return t.hdr.Linkname, nil
}

// IsRegular returns true if the entry is a regular file. Contiguous files are
// stored like regular ones.
func (t *tarEntry) IsRegular() bool {
	return t.hdr.Typeflag == tar.TypeReg || t.hdr.Typeflag == tar.TypeCont
}

// IsHardlink returns true if the entry links to an earlier entry of the archive
func (t *tarEntry) IsHardlink() bool {
	return t.hdr.Typeflag == tar.TypeLink
}

// IsDir returns true if the entry is a directory
func (t *tarEntry) IsDir() bool {
	return t.hdr.Typeflag == tar.TypeDir
}

// IsSymlink returns true if the entry is a symlink
func (t *tarEntry) IsSymlink() bool {
	return t.hdr.Typeflag == tar.TypeSymlink
}

// Open returns a reader for the entry. The reader is only valid until the
// walker advances.
func (t *tarEntry) Open() (io.ReadCloser, error) {
	return io.NopCloser(t.tr), nil
}

// Type returns the type of the entry
func (t *tarEntry) Type() fs.FileMode {
	return t.hdr.FileInfo().Mode().Type()
}

// AccessTime returns the access time of the entry
func (t *tarEntry) AccessTime() time.Time {
	if t.hdr.AccessTime.IsZero() {
		return t.hdr.ModTime
	}
	return t.hdr.AccessTime
}

// ModTime returns the modification time of the entry
func (t *tarEntry) ModTime() time.Time {
	return t.hdr.ModTime
}
