// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// TargetDisk materializes archive entries on the local filesystem. It is the
// default [Target] of a [Config].
//
// TargetDisk trusts the paths it is given, the entry names are checked before
// by the extraction.
type TargetDisk struct{}

// NewTargetDisk creates a new [TargetDisk]
func NewTargetDisk() *TargetDisk {
	return &TargetDisk{}
}

// CreateDir creates the directory path and all missing parents with mode.
// An existing directory is left untouched.
func (d *TargetDisk) CreateDir(path string, mode fs.FileMode) error {
	if err := os.MkdirAll(path, mode.Perm()); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	return nil
}

// CreateFile writes src into a new file at path with mode and returns the number
// of bytes written. At most maxSize bytes are written, -1 disables the limit.
//
// An existing file or symlink at path is removed first if overwrite is true, so
// read-only files can be replaced. Otherwise [ErrFileExists] is returned.
func (d *TargetDisk) CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error) {
	if err := d.replaceable(path, overwrite); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode.Perm())
	if err != nil {
		return 0, fmt.Errorf("cannot open for writing: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(limitWriter(f, maxSize), src)
	if err != nil {
		return n, fmt.Errorf("cannot write %s: %w", path, err)
	}
	return n, f.Close()
}

// CreateSymlink creates newname as a symlink pointing to oldname. An existing
// entry at newname is replaced if overwrite is true.
func (d *TargetDisk) CreateSymlink(oldname string, newname string, overwrite bool) error {
	if err := d.replaceable(newname, overwrite); err != nil {
		return err
	}
	if err := os.Symlink(oldname, newname); err != nil {
		return fmt.Errorf("cannot create symlink: %w", err)
	}
	return nil
}

// CreateHardlink creates newname as a hard link to oldname. An existing entry
// at newname is replaced if overwrite is true.
func (d *TargetDisk) CreateHardlink(oldname string, newname string, overwrite bool) error {
	if err := d.replaceable(newname, overwrite); err != nil {
		return err
	}
	if err := os.Link(oldname, newname); err != nil {
		return fmt.Errorf("cannot create hard link: %w", err)
	}
	return nil
}

// replaceable makes sure nothing is in the way at path. A file or symlink is
// removed if overwrite is true, a directory is never removed.
func (d *TargetDisk) replaceable(path string, overwrite bool) error {
	stat, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if !overwrite {
		return fmt.Errorf("%w: %s", ErrFileExists, path)
	}
	if stat.IsDir() {
		return fmt.Errorf("cannot replace directory %s", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("cannot replace %s: %w", path, err)
	}
	return nil
}

// Lstat returns the [fs.FileInfo] of name without following a symlink.
func (d *TargetDisk) Lstat(name string) (fs.FileInfo, error) {
	return os.Lstat(name)
}

// Stat returns the [fs.FileInfo] of name, symlinks are followed.
func (d *TargetDisk) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// Chtimes sets the access and modification times of name.
func (d *TargetDisk) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

// Lchtimes is like Chtimes, but does not follow symlinks. It is a no-op on
// platforms that cannot do this.
func (d *TargetDisk) Lchtimes(name string, atime, mtime time.Time) error {
	if canMaintainSymlinkTimestamps {
		return lchtimes(name, atime, mtime)
	}
	return nil
}
