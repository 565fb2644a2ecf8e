// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

// Archive is a tar, zip or gzip payload bound either to a file path or to an
// in-memory buffer. The format is detected once, when the Archive is created.
//
// An Archive can be unarchived only once.
type Archive struct {
	format  Format
	content content
	used    atomic.Bool
}

// content holds either the unread path or the owned bytes of an archive.
type content struct {
	path string
	data []byte
}

// source is the loaded content handed to an unpacker.
type source struct {
	// name is the base name of the archive file, empty for in-memory archives.
	name string
	data []byte

	// size is the number of bytes read from the archive.
	size int64
}

// FromPath creates an Archive for the file at path. Only a bounded prefix is read to
// detect the format, the file itself is read when the Archive is unarchived.
//
// An [*Error] of kind [KindInvalidFormat] is returned if the file is not a tar, zip
// or gzip stream.
func FromPath(path string) (*Archive, error) {
	format, err := ClassifyFile(path)
	if err != nil {
		return nil, err
	}
	return &Archive{format: format, content: content{path: path}}, nil
}

// FromBytes creates an Archive from a copy of b.
//
// An [*Error] of kind [KindInvalidFormat] is returned if b is not a tar, zip or
// gzip stream.
func FromBytes(b []byte) (*Archive, error) {
	format, err := ClassifyBytes(b)
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(b))
	copy(data, b)
	return &Archive{format: format, content: content{data: data}}, nil
}

// FromReader reads r completely and creates an Archive from the read bytes.
func FromReader(r io.Reader) (*Archive, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, newError("cannot read archive", err)
	}
	format, err := ClassifyBytes(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return &Archive{format: format, content: content{data: buf.Bytes()}}, nil
}

// Format returns the detected format of the archive.
func (a *Archive) Format() Format {
	return a.format
}

// Unarchive extracts the archive to dst. If cfg is nil, [NewConfig] is used.
//
// Tar and zip archives are extracted into the directory dst, which is created if it
// does not exist. A gzip stream wrapping a tar archive is extracted the same way. Any
// other gzip payload is decompressed into the file dst; if dst is an existing
// directory, the file is placed inside it.
//
// Unarchive consumes the archive, a second call returns [ErrArchiveConsumed]. An
// error during extraction aborts it; entries extracted until then stay in place.
func (a *Archive) Unarchive(ctx context.Context, dst string, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}
	if !a.used.CompareAndSwap(false, true) {
		return newError("cannot unarchive", ErrArchiveConsumed)
	}

	desc, ok := formats[a.format]
	if !ok {
		return newError("cannot unarchive", ErrArchiveUninitialized)
	}

	// prepare telemetry capturing
	td := &TelemetryData{ExtractedType: desc.Name}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureExtractionDuration(td, now())

	// read content exactly once and release it from the archive
	src, err := a.content.load(cfg)
	a.content = content{}
	if err != nil {
		return handleError(cfg, td, "cannot read archive", err)
	}
	td.InputSize = src.size

	// check if context is canceled
	if err := ctx.Err(); err != nil {
		return handleError(cfg, td, "context error", err)
	}

	cfg.Logger().Info("unarchive", "format", desc.Name, "size", len(src.data), "destination", dst)
	return desc.Unpacker(ctx, cfg.Target(), dst, src, cfg, td)
}

// load returns the archive bytes, reading them from disk if the archive was
// created from a path.
func (c content) load(cfg *Config) (*source, error) {
	if c.path == "" {
		if err := cfg.CheckInputSize(int64(len(c.data))); err != nil {
			return nil, err
		}
		return &source{data: c.data, size: int64(len(c.data))}, nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("cannot open archive: %w", err)
	}
	defer f.Close()

	lr := newLimitErrorReader(f, cfg.MaxInputSize())
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	return &source{name: filepath.Base(c.path), data: data, size: lr.ReadBytes()}, nil
}
