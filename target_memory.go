// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package unarchive

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// TargetMemory is an in-memory [Target]. Entries are keyed by their slash separated
// path. Permissions are recorded but not enforced.
//
// It can be used to inspect an archive without touching the disk.
type TargetMemory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// memoryEntry is a file, directory or symlink in a [TargetMemory]. For symlinks,
// data holds the link target.
type memoryEntry struct {
	info memoryFileInfo
	data []byte
}

// NewTargetMemory creates an empty [TargetMemory].
func NewTargetMemory() *TargetMemory {
	return &TargetMemory{entries: make(map[string]*memoryEntry)}
}

// memoryKey converts an os specific path into the key of an entry.
func memoryKey(name string) (string, error) {
	key := path.Clean(filepath.ToSlash(name))
	if !fs.ValidPath(key) {
		return "", fmt.Errorf("%w: %s", fs.ErrInvalid, name)
	}
	return key, nil
}

// CreateFile stores the content of src at name. See [Target] for the semantics of
// overwrite and maxSize.
func (m *TargetMemory) CreateFile(name string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error) {
	key, err := memoryKey(name)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	n, err := io.Copy(limitWriter(&buf, maxSize), src)
	if err != nil {
		return n, fmt.Errorf("cannot write %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		if !overwrite {
			return 0, fmt.Errorf("%w: %s", ErrFileExists, name)
		}
		if e.info.IsDir() {
			return 0, fmt.Errorf("cannot replace directory %s", name)
		}
	}
	m.entries[key] = &memoryEntry{
		info: memoryFileInfo{name: path.Base(key), size: n, mode: mode.Perm(), modTime: now()},
		data: buf.Bytes(),
	}
	return n, nil
}

// CreateDir creates the directory name and all missing parents.
func (m *TargetMemory) CreateDir(name string, mode fs.FileMode) error {
	key, err := memoryKey(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// collect missing directories, an existing non-directory fails the whole path
	var missing []string
	for dir := key; dir != "."; dir = path.Dir(dir) {
		e, ok := m.entries[dir]
		if !ok {
			missing = append(missing, dir)
			continue
		}
		if e.info.Mode()&fs.ModeSymlink != 0 {
			if e, err := m.resolve(dir); err == nil && e.info.IsDir() {
				continue
			}
		}
		if !e.info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	for _, dir := range missing {
		m.entries[dir] = &memoryEntry{
			info: memoryFileInfo{name: path.Base(dir), mode: mode.Perm() | fs.ModeDir, modTime: now()},
		}
	}
	return nil
}

// CreateSymlink records a symlink at newname pointing to oldname.
func (m *TargetMemory) CreateSymlink(oldname string, newname string, overwrite bool) error {
	key, err := memoryKey(newname)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok && !overwrite {
		return fmt.Errorf("%w: %s", ErrFileExists, newname)
	}
	m.entries[key] = &memoryEntry{
		info: memoryFileInfo{name: path.Base(key), mode: 0777 | fs.ModeSymlink, modTime: now()},
		data: []byte(filepath.ToSlash(oldname)),
	}
	return nil
}

// CreateHardlink records newname as a second name for the regular file oldname.
// Both names share the content, later writes to one name replace only that name.
func (m *TargetMemory) CreateHardlink(oldname string, newname string, overwrite bool) error {
	oldKey, err := memoryKey(oldname)
	if err != nil {
		return err
	}
	newKey, err := memoryKey(newname)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	src, err := m.lookup(oldKey)
	if err != nil {
		return err
	}
	if !src.info.Mode().IsRegular() {
		return fmt.Errorf("cannot link %s: not a regular file", oldname)
	}
	if e, ok := m.entries[newKey]; ok {
		if !overwrite {
			return fmt.Errorf("%w: %s", ErrFileExists, newname)
		}
		if e.info.IsDir() {
			return fmt.Errorf("cannot replace directory %s", newname)
		}
	}

	info := src.info
	info.name = path.Base(newKey)
	m.entries[newKey] = &memoryEntry{info: info, data: src.data}
	return nil
}

// Lstat returns the [fs.FileInfo] of name without following a symlink.
func (m *TargetMemory) Lstat(name string) (fs.FileInfo, error) {
	key, err := memoryKey(name)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	return e.info, nil
}

// Stat returns the [fs.FileInfo] of name, following symlinks.
func (m *TargetMemory) Stat(name string) (fs.FileInfo, error) {
	key, err := memoryKey(name)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, err := m.resolve(key)
	if err != nil {
		return nil, err
	}
	return e.info, nil
}

// Chtimes sets the modification time of the entry at name, following symlinks.
// The access time is not recorded.
func (m *TargetMemory) Chtimes(name string, atime, mtime time.Time) error {
	key, err := memoryKey(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.resolve(key)
	if err != nil {
		return err
	}
	e.info.modTime = mtime
	return nil
}

// Lchtimes is like Chtimes, but does not follow symlinks.
func (m *TargetMemory) Lchtimes(name string, atime, mtime time.Time) error {
	key, err := memoryKey(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(key)
	if err != nil {
		return err
	}
	e.info.modTime = mtime
	return nil
}

// ReadFile returns the content of the file at name, following symlinks.
func (m *TargetMemory) ReadFile(name string) ([]byte, error) {
	key, err := memoryKey(name)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, err := m.resolve(key)
	if err != nil {
		return nil, err
	}
	if e.info.IsDir() {
		return nil, fmt.Errorf("cannot read directory: %s", name)
	}
	return bytes.Clone(e.data), nil
}

// Readlink returns the target of the symlink at name.
func (m *TargetMemory) Readlink(name string) (string, error) {
	key, err := memoryKey(name)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, err := m.lookup(key)
	if err != nil {
		return "", err
	}
	if e.info.Mode()&fs.ModeSymlink == 0 {
		return "", fmt.Errorf("not a symlink: %w: %s", fs.ErrInvalid, name)
	}
	return string(e.data), nil
}

// Paths returns the sorted paths of all entries.
func (m *TargetMemory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.entries))
	for p := range m.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// lookup returns the entry at key. The root always exists.
func (m *TargetMemory) lookup(key string) (*memoryEntry, error) {
	if key == "." {
		return &memoryEntry{info: memoryFileInfo{name: ".", mode: fs.ModeDir | 0755}}, nil
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, key)
	}
	return e, nil
}

// resolve is like lookup, but follows symlinks.
func (m *TargetMemory) resolve(key string) (*memoryEntry, error) {
	for i := 0; i < 255; i++ {
		e, err := m.lookup(key)
		if err != nil {
			return nil, err
		}
		if e.info.Mode()&fs.ModeSymlink == 0 {
			return e, nil
		}
		key = path.Join(path.Dir(key), string(e.data))
		if !fs.ValidPath(key) {
			return nil, fmt.Errorf("%w: symlink leaves the target: %s", fs.ErrInvalid, key)
		}
	}
	return nil, fmt.Errorf("too many levels of symbolic links: %s", key)
}

// memoryFileInfo is the [fs.FileInfo] of a [TargetMemory] entry.
type memoryFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (fi memoryFileInfo) Name() string       { return fi.name }
func (fi memoryFileInfo) Size() int64        { return fi.size }
func (fi memoryFileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi memoryFileInfo) ModTime() time.Time { return fi.modTime }
func (fi memoryFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi memoryFileInfo) Sys() any           { return nil }
