// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Target specifies all function that are needed to be implemented to materialize the
// entries of an archive.
type Target interface {
	// CreateFile creates a file at the specified path with src as content. The mode parameter is the file mode that
	// should be set on the file. If the file already exists and overwrite is false, an error wrapping [ErrFileExists]
	// should be returned, otherwise the file is replaced. The size of the file should not exceed maxSize. The number
	// of bytes written is returned, also along with an error. If maxSize < 0, the file size is not limited.
	CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error)

	// CreateDir creates a directory and all missing parents at the specified path with the specified mode. If the
	// directory already exists, nothing is done.
	CreateDir(path string, mode fs.FileMode) error

	// CreateSymlink creates a symbolic link from newname to oldname. If newname already exists and overwrite is false,
	// the function returns an error. If newname already exists and overwrite is true, the existing entry is replaced.
	CreateSymlink(oldname string, newname string, overwrite bool) error

	// CreateHardlink creates newname as a hard link to the regular file oldname. If newname already exists and
	// overwrite is false, an error wrapping [ErrFileExists] is returned, otherwise the existing entry is replaced.
	CreateHardlink(oldname string, newname string, overwrite bool) error

	// Lstat see docs for os.Lstat. Main purpose is to check for symlinks in the extraction path.
	Lstat(path string) (fs.FileInfo, error)

	// Stat see docs for os.Stat. Main purpose is to check if a symlink is pointing to a file or directory.
	Stat(path string) (fs.FileInfo, error)

	// Chtimes see docs for os.Chtimes.
	Chtimes(name string, atime, mtime time.Time) error

	// Lchtimes is like Chtimes, but does not follow symlinks.
	Lchtimes(name string, atime, mtime time.Time) error
}

// cleanEntryName converts a slash separated entry name into an os specific
// relative path. Leading slashes are dropped.
func cleanEntryName(name string) string {
	parts := strings.Split(name, "/")
	return filepath.Join(parts...)
}

// prepareDestination ensures that dst exists and is a directory. If it is missing and
// config.CreateDestination() returns true, it is created with all parents.
func prepareDestination(t Target, dst string, cfg *Config) error {
	stat, err := t.Stat(dst)
	if errors.Is(err, fs.ErrNotExist) {
		if !cfg.CreateDestination() {
			return fmt.Errorf("destination does not exist: %w", err)
		}
		if err := t.CreateDir(dst, cfg.CustomCreateDirMode()); err != nil {
			return fmt.Errorf("cannot create destination directory: %w", err)
		}
		cfg.Logger().Info("created destination directory", "path", dst)
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("destination is not a directory: %s", dst)
	}
	return nil
}

// createFile is a wrapper around the CreateFile function
//
// If the name is empty or resolves to the destination itself, the function returns an error.
//
// If the directory for the file does not exist, it will be created with the config.CustomCreateDirMode().
// An existing directory is fine, it may have been created by an earlier entry.
//
// If the path contains path traversal or a symlink, the function returns an error.
//
// If the file is created successfully, the function returns the number of bytes written and nil.
func createFile(t Target, dst string, name string, src io.Reader, mode fs.FileMode, maxSize int64, cfg *Config) (int64, error) {
	name = cleanEntryName(name)
	if name == "" || name == "." {
		return 0, fmt.Errorf("cannot create file without name")
	}

	// ensures that the directory exists and is safe to write to
	if err := createDir(t, dst, filepath.Dir(name), cfg.CustomCreateDirMode(), cfg); err != nil {
		return 0, fmt.Errorf("cannot create directory: %w", err)
	}

	// ensure that if the file exist that it is not a symlink
	if err := securityCheck(t, dst, name, cfg); err != nil {
		return 0, fmt.Errorf("security check path failed: %w", err)
	}
	return t.CreateFile(filepath.Join(dst, name), src, mode, cfg.Overwrite(), maxSize)
}

// createDir is a wrapper around the CreateDir function
//
// The directory is created with all missing parents, an already existing
// directory is not an error.
//
// If the path contains path traversal or a symlink, the function returns an error.
func createDir(t Target, dst string, name string, mode fs.FileMode, cfg *Config) error {
	name = cleanEntryName(name)

	// no action needed
	if name == "" || name == "." {
		return nil
	}

	// perform security check to ensure that the path is safe to write to
	if err := securityCheck(t, dst, name, cfg); err != nil {
		return fmt.Errorf("security check path failed: %w", err)
	}

	return t.CreateDir(filepath.Join(dst, name), mode)
}

// createSymlink is a wrapper around the CreateSymlink function
//
// If the link target is an absolute path or points outside of dst, the function
// returns an error.
//
// If the directory for the symlink does not exist, it will be created with the config.CustomCreateDirMode().
//
// If the path contains path traversal or a symlink, the function returns an error.
func createSymlink(t Target, dst string, name string, linkTarget string, cfg *Config) error {
	name = cleanEntryName(name)
	if name == "" || name == "." {
		return fmt.Errorf("cannot create symlink without name")
	}

	// check if link target is absolute path
	if filepath.IsAbs(linkTarget) || strings.HasPrefix(linkTarget, "/") {
		return fmt.Errorf("%w: symlink with absolute path as target: %s", ErrPathTraversal, linkTarget)
	}

	// create target dir && check for traversal in file name
	linkDirectory := filepath.Dir(name)
	if err := createDir(t, dst, linkDirectory, cfg.CustomCreateDirMode(), cfg); err != nil {
		return fmt.Errorf("cannot create directory (%s) for symlink: %w", linkDirectory, err)
	}

	// check the link itself and its target for traversal, an existing link
	// at name is replaced and not followed
	if !filepath.IsLocal(name) {
		return fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}
	targetCleaned := filepath.Join(linkDirectory, filepath.FromSlash(linkTarget))
	if !filepath.IsLocal(targetCleaned) {
		return fmt.Errorf("%w: symlink target %s", ErrPathTraversal, linkTarget)
	}

	return t.CreateSymlink(linkTarget, filepath.Join(dst, name), cfg.Overwrite())
}

// createHardlink is a wrapper around the CreateHardlink function
//
// linkTarget is the name of an earlier entry of the archive. Both name and
// linkTarget must stay inside dst and must not contain a symlink, and the
// link target must be an already extracted regular file.
func createHardlink(t Target, dst string, name string, linkTarget string, cfg *Config) error {
	name = cleanEntryName(name)
	if name == "" || name == "." {
		return fmt.Errorf("cannot create hard link without name")
	}
	target := cleanEntryName(linkTarget)
	if !filepath.IsLocal(target) {
		return fmt.Errorf("%w: hard link target %s", ErrPathTraversal, linkTarget)
	}
	if target == name {
		return fmt.Errorf("hard link %s points to itself", name)
	}

	if err := createDir(t, dst, filepath.Dir(name), cfg.CustomCreateDirMode(), cfg); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	if err := securityCheck(t, dst, name, cfg); err != nil {
		return fmt.Errorf("security check path failed: %w", err)
	}
	if err := securityCheck(t, dst, target, cfg); err != nil {
		return fmt.Errorf("security check hard link target failed: %w", err)
	}

	stat, err := t.Lstat(filepath.Join(dst, target))
	if err != nil {
		return fmt.Errorf("invalid hard link target %s: %w", linkTarget, err)
	}
	if !stat.Mode().IsRegular() {
		return fmt.Errorf("hard link target %s is not a regular file", linkTarget)
	}

	return t.CreateHardlink(filepath.Join(dst, target), filepath.Join(dst, name), cfg.Overwrite())
}

// securityCheck checks if path, relative to dst, contains path traversal
// and if an existing element of the path is a symlink.
//
// If the path contains a symlink and config.TraverseSymlinks() returns true,
// a warning is logged and the function continues.
func securityCheck(t Target, dst string, path string, cfg *Config) error {
	path = cleanEntryName(path)

	// check if the relative path is local
	if !filepath.IsLocal(path) {
		return fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}

	// check each dir in path
	elements := strings.Split(path, string(os.PathSeparator))
	for i := range elements {
		subDirs := filepath.Join(elements[0 : i+1]...)
		checkDir := filepath.Join(dst, subDirs)

		stat, err := t.Lstat(checkDir)
		if errors.Is(err, fs.ErrNotExist) {
			// nothing below a missing element can exist
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}

		if stat.Mode()&fs.ModeSymlink != 0 {
			if !cfg.TraverseSymlinks() {
				return fmt.Errorf("%w: %s", ErrSymlinkInPath, subDirs)
			}
			cfg.Logger().Warn("traverse symlink", "sub-dir", subDirs)
		}
	}

	return nil
}
