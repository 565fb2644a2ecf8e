// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	// fileExtensionGZip is the file extension for gzip files.
	fileExtensionGZip = "gz"

	// fileExtensionTarGZip is the combined type reported for tar archives inside gzip.
	fileExtensionTarGZip = "tar.gz"

	// defaultDecompressionName is the file name used for a decompressed in-memory payload
	// if the destination is a directory.
	defaultDecompressionName = "unarchived-content"

	// defaultDecompressedSuffix is appended to the archive name if it has no gzip extension.
	defaultDecompressedSuffix = "decompressed"
)

// unpackGZip decompresses src. If the decompressed payload starts with a tar header,
// it is streamed into the tar extractor, otherwise it is written as a single file.
//
// Every pass over the payload uses a fresh decompressor on the compressed bytes,
// the prefix used for detection is never replayed.
func unpackGZip(ctx context.Context, t Target, dst string, src *source, cfg *Config, td *TelemetryData) error {
	if !cfg.NoUntarAfterDecompression() {
		mime, err := sniffGZipPayload(src.data)
		if err != nil {
			return handleError(cfg, td, "cannot read uncompressed header", err)
		}
		cfg.Logger().Debug("sniffed gzip payload", "mime", mime)

		if mime == mimeTar {
			td.ExtractedType = fileExtensionTarGZip
			gz, err := gzip.NewReader(bytes.NewReader(src.data))
			if err != nil {
				return handleError(cfg, td, "cannot start decompression", err)
			}
			defer gz.Close()
			return processTar(ctx, t, dst, gz, cfg, td)
		}
	}

	// check if context is canceled
	if err := ctx.Err(); err != nil {
		return handleError(cfg, td, "context error", err)
	}

	return decompressFile(t, dst, src, cfg, td)
}

// sniffGZipPayload decompresses at most sniffLength bytes of data and returns the
// MIME type detected for them.
func sniffGZipPayload(data []byte) (string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer gz.Close()

	header, err := readHeader(gz)
	if err != nil {
		return "", err
	}
	return sniff(header), nil
}

// decompressFile writes the decompressed payload of src into a single file.
func decompressFile(t Target, dst string, src *source, cfg *Config, td *TelemetryData) error {
	gz, err := gzip.NewReader(bytes.NewReader(src.data))
	if err != nil {
		return handleError(cfg, td, "cannot start decompression", err)
	}
	defer gz.Close()

	dir, name := determineOutputName(t, dst, src.name)
	cfg.Logger().Debug("determined output name", "dir", dir, "name", name)

	// ensure the parent directory exists
	if dir != "." && dir != "" {
		if _, err := t.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			if !cfg.CreateDestination() {
				return handleError(cfg, td, "cannot create file", fmt.Errorf("destination does not exist: %w", err))
			}
			if err := t.CreateDir(dir, cfg.CustomCreateDirMode()); err != nil {
				return handleError(cfg, td, "cannot create destination directory", err)
			}
		}
	}

	n, err := t.CreateFile(filepath.Join(dir, name), gz, cfg.CustomDecompressFileMode(), cfg.Overwrite(), cfg.MaxExtractionSize())
	td.ExtractionSize = n
	if err != nil {
		return handleError(cfg, td, "cannot create file", err)
	}
	td.ExtractedFiles++
	return nil
}

// determineOutputName splits dst into the directory and the name of the decompressed
// file. dst itself is the output file, unless it is an existing directory or ends
// with a separator. In that case the name is derived from inputName, the name of
// the archive file.
func determineOutputName(t Target, dst string, inputName string) (string, string) {
	// a trailing separator marks dst as directory
	if strings.HasSuffix(dst, "/") || strings.HasSuffix(dst, string(os.PathSeparator)) {
		return filepath.Clean(dst), decompressedName(inputName)
	}
	if dst != "" && dst != "." {
		stat, err := t.Stat(dst)
		if err != nil || !stat.IsDir() {
			return filepath.Dir(dst), filepath.Base(dst)
		}
	}
	if dst == "" {
		dst = "."
	}
	return dst, decompressedName(inputName)
}

// decompressedName derives the file name of the decompressed payload from the
// archive name, e.g. "data.json.gz" becomes "data.json".
func decompressedName(inputName string) string {
	if inputName == "" {
		return defaultDecompressionName
	}

	newName := inputName
	for _, ext := range []string{".gz", ".gzip"} {
		if strings.HasSuffix(strings.ToLower(newName), ext) {
			newName = newName[:len(newName)-len(ext)]
			break
		}
	}

	// no extension has been removed, add a suffix
	if newName == inputName {
		newName = fmt.Sprintf("%s.%s", inputName, defaultDecompressedSuffix)
	}

	// the name must be a plain file name
	if !filepath.IsLocal(newName) || newName == "." || filepath.Base(newName) != newName {
		return defaultDecompressionName
	}
	return newName
}
