// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/h2non/filetype"
)

// Format is the archive format of an [Archive].
type Format int

const (
	// FormatTar is an uncompressed tar archive.
	FormatTar Format = iota + 1

	// FormatZip is a zip archive.
	FormatZip

	// FormatGZip is a gzip stream, wrapping either a tar archive or a single file.
	FormatGZip
)

const (
	mimeTar  = "application/x-tar"
	mimeZip  = "application/zip"
	mimeGZip = "application/gzip"
)

// sniffLength is the number of leading bytes inspected to classify content.
// It is the same header size that filetype reads from files.
const sniffLength = 8 << 10

// unpackFunc extracts src into dst.
type unpackFunc func(ctx context.Context, t Target, dst string, src *source, cfg *Config, td *TelemetryData) error

// formatSpec ties a format to its signature and its unpacker. Adding a format
// means adding exactly one entry to formats.
type formatSpec struct {
	Name     string
	MIME     string
	Unpacker unpackFunc
}

// formats is the closed set of supported formats.
var formats = map[Format]formatSpec{
	FormatTar:  {Name: fileExtensionTar, MIME: mimeTar, Unpacker: unpackTar},
	FormatZip:  {Name: fileExtensionZip, MIME: mimeZip, Unpacker: unpackZip},
	FormatGZip: {Name: fileExtensionGZip, MIME: mimeGZip, Unpacker: unpackGZip},
}

// String returns the short name of the format.
func (f Format) String() string {
	if desc, ok := formats[f]; ok {
		return desc.Name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// MIME returns the MIME type the format is detected by.
func (f Format) MIME() string {
	return formats[f].MIME
}

// ClassifyBytes detects the format of b by its leading signature. Only the first
// few kilobytes of b are inspected.
//
// If b is not a tar, zip or gzip stream, an [*Error] of kind [KindInvalidFormat] is
// returned. Its Label carries the detected MIME type, if any signature matched.
func ClassifyBytes(b []byte) (Format, error) {
	if len(b) > sniffLength {
		b = b[:sniffLength]
	}
	return formatFromMIME(sniff(b))
}

// ClassifyFile detects the format of the file at path. Only a bounded prefix of the
// file is read. See [ClassifyBytes] for the returned errors.
func ClassifyFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, newError("cannot open archive", err)
	}
	defer f.Close()

	header, err := readHeader(f)
	if err != nil {
		return 0, newError("cannot read archive header", err)
	}
	return formatFromMIME(sniff(header))
}

// readHeader reads up to sniffLength bytes from r. A short input is not an error.
func readHeader(r io.Reader) ([]byte, error) {
	buf := make([]byte, sniffLength)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}

// sniff returns the MIME type detected for header, or "" if no signature matched.
func sniff(header []byte) string {
	kind, err := filetype.Match(header)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// formatFromMIME maps a sniffed MIME type onto the supported formats.
func formatFromMIME(mime string) (Format, error) {
	for f, desc := range formats {
		if desc.MIME == mime {
			return f, nil
		}
	}
	return 0, invalidFormat(mime)
}
