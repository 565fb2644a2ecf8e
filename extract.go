// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
)

// extract checks ctx for cancellation, while it walks src and materializes every
// entry below dst. Entries are processed one after another in archive order.
func extract(ctx context.Context, t Target, dst string, src archiveWalker, cfg *Config, td *TelemetryData) error {
	if dst == "" {
		dst = "."
	}

	// ensure destination exists
	if err := prepareDestination(t, dst, cfg); err != nil {
		return handleError(cfg, td, "cannot prepare destination", err)
	}

	// start extraction
	cfg.Logger().Info("start extraction", "type", src.Type())
	var objectCounter int64
	var extractedBytes int64

	for {
		// check if context is canceled
		if err := ctx.Err(); err != nil {
			return handleError(cfg, td, "context error", err)
		}

		// get next entry
		ae, err := src.Next()

		switch {

		// if no more entries are found exit loop
		case errors.Is(err, io.EOF):
			return nil

		// return any other error
		case err != nil:
			return handleError(cfg, td, "error reading", err)

		case ae == nil:
			continue
		}

		// check if maximum of objects is exceeded
		objectCounter++
		if err := cfg.CheckMaxFiles(objectCounter); err != nil {
			return handleError(cfg, td, "max objects check failed", err)
		}

		cfg.Logger().Debug("extract", "name", ae.Name())
		switch {

		case ae.IsDir():
			if err := createDir(t, dst, ae.Name(), dirMode(ae, cfg), cfg); err != nil {
				return handleError(cfg, td, "failed to create directory", err)
			}
			td.ExtractedDirs++

		case ae.IsRegular():
			// check extraction size before reading the entry
			if ae.Size() > 0 {
				if err := cfg.CheckExtractionSize(extractedBytes + ae.Size()); err != nil {
					return handleError(cfg, td, "max extraction size exceeded", err)
				}
			}

			n, err := extractFile(t, dst, ae, remaining(cfg.MaxExtractionSize(), extractedBytes), cfg)
			extractedBytes += n
			td.ExtractionSize = extractedBytes
			if err != nil {
				return handleError(cfg, td, "failed to create file", err)
			}
			td.ExtractedFiles++

		case ae.IsHardlink():
			linkTarget, err := ae.Linkname()
			if err != nil {
				return handleError(cfg, td, "cannot read hard link target", err)
			}
			if err := createHardlink(t, dst, ae.Name(), linkTarget, cfg); err != nil {
				return handleError(cfg, td, "failed to create hard link", err)
			}
			td.ExtractedFiles++

		case ae.IsSymlink():
			if cfg.DenySymlinks() {
				return handleError(cfg, td, "cannot extract symlink", fmt.Errorf("%w: %s", ErrSymlinkDenied, ae.Name()))
			}
			if err := extractSymlink(t, dst, ae, cfg); err != nil {
				return handleError(cfg, td, "failed to create symlink", err)
			}
			td.ExtractedSymlinks++

		default:
			cfg.Logger().Warn("skipping unsupported entry", "name", ae.Name(), "type", ae.Type().String())
			td.UnsupportedFiles++
			td.LastUnsupportedFile = ae.Name()
		}
	}
}

// extractFile copies the content of ae to its path below dst and returns the
// number of bytes written.
func extractFile(t Target, dst string, ae archiveEntry, maxSize int64, cfg *Config) (int64, error) {
	fin, err := ae.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open entry: %w", err)
	}
	defer fin.Close()

	n, err := createFile(t, dst, ae.Name(), fin, fileMode(ae, cfg), maxSize, cfg)
	if err != nil {
		return n, err
	}

	if !cfg.DropFileAttributes() && !ae.ModTime().IsZero() {
		path := filepath.Join(dst, cleanEntryName(ae.Name()))
		if err := t.Chtimes(path, ae.AccessTime(), ae.ModTime()); err != nil {
			return n, fmt.Errorf("failed to restore file times: %w", err)
		}
	}
	return n, nil
}

// extractSymlink creates the symlink recorded by ae below dst.
func extractSymlink(t Target, dst string, ae archiveEntry, cfg *Config) error {
	linkTarget, err := ae.Linkname()
	if err != nil {
		return err
	}
	if err := createSymlink(t, dst, ae.Name(), linkTarget, cfg); err != nil {
		return err
	}

	if !cfg.DropFileAttributes() && !ae.ModTime().IsZero() {
		path := filepath.Join(dst, cleanEntryName(ae.Name()))
		if err := t.Lchtimes(path, ae.AccessTime(), ae.ModTime()); err != nil {
			cfg.Logger().Debug("cannot restore symlink times", "name", ae.Name(), "error", err)
		}
	}
	return nil
}

// dirMode returns the mode for a directory entry. The owner always keeps full
// access, so that later entries can be written into the directory.
func dirMode(ae archiveEntry, cfg *Config) fs.FileMode {
	perm := ae.Mode().Perm()
	if perm == 0 {
		return cfg.CustomCreateDirMode()
	}
	return perm | 0700
}

// fileMode returns the mode for a file entry, falling back to the configured
// decompression mode if the archive records no permissions.
func fileMode(ae archiveEntry, cfg *Config) fs.FileMode {
	perm := ae.Mode().Perm()
	if perm == 0 {
		return cfg.CustomDecompressFileMode()
	}
	return perm
}

// remaining returns how many bytes may still be written, -1 if unlimited.
func remaining(limit int64, written int64) int64 {
	if limit < 0 {
		return -1
	}
	if written >= limit {
		return 0
	}
	return limit - written
}
