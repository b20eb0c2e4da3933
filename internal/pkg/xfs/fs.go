// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package xfs provides directory handles addressed by a file descriptor, as
// well as utility functions for reading, writing, and removing files and
// directories relative to such a handle.
package xfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"syscall"

	"github.com/hashicorp/go-multierror"
)

// FS is a writable fs.FS rooted at a directory descriptor.
type FS interface {
	fs.FS

	// FileDescriptor returns a negative value once the handle is closed.
	FileDescriptor() int

	Lstat(name string) (fs.FileInfo, error)
	Mkdir(name string, perm os.FileMode) error
	OpenFile(name string, flags int, perm os.FileMode) (File, error)
	Remove(name string) error
}

// File is an fs.File which can also be written and seeked.
type File interface {
	fs.File
	io.Closer
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Writer
	io.WriterAt
}

// Interface guard.
var _ File = (*os.File)(nil)

// ReadFile reads the whole file name from fsys.
func ReadFile(fsys FS, name string) ([]byte, error) {
	if err := checkOpen(fsys, "read", name); err != nil {
		return nil, err
	}

	return fs.ReadFile(fsys, name)
}

// ReadDir returns the entries of the directory name, sorted by filename.
func ReadDir(fsys FS, name string) ([]fs.DirEntry, error) {
	if err := checkOpen(fsys, "readdir", name); err != nil {
		return nil, err
	}

	return fs.ReadDir(fsys, name)
}

// Stat follows symlinks; use (FS).Lstat to inspect the link itself.
func Stat(fsys FS, name string) (fs.FileInfo, error) {
	if err := checkOpen(fsys, "stat", name); err != nil {
		return nil, err
	}

	return fs.Stat(fsys, name)
}

// WriteFile writes data to name, creating it with perm or truncating it.
func WriteFile(fsys FS, name string, data []byte, perm os.FileMode) error {
	if err := checkOpen(fsys, "write", name); err != nil {
		return err
	}

	f, err := fsys.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	_, err = f.Write(data)
	if err1 := f.Close(); err1 != nil && err == nil {
		err = err1
	}

	return err
}

// MkdirAll creates name along with any missing parents.
//
// Leading separators are ignored: name is always created below fsys. An
// existing component which is not a directory fails with ENOTDIR.
func MkdirAll(fsys FS, name string, perm os.FileMode) error {
	if err := checkOpen(fsys, "mkdir", name); err != nil {
		return err
	}

	var dir string

	for _, component := range SplitPath(name) {
		dir = path.Join(dir, component)

		err := fsys.Mkdir(dir, perm)
		if err == nil {
			continue
		}

		if !errors.Is(err, fs.ErrExist) {
			return err
		}

		info, statErr := Stat(fsys, dir)
		if statErr != nil {
			return statErr
		}

		if !info.IsDir() {
			return &fs.PathError{Op: "mkdir", Path: dir, Err: syscall.ENOTDIR}
		}
	}

	return nil
}

// RemoveAll removes name and, for a directory, everything below it.
//
// Symlinks are removed, never followed. A failure to remove one entry doesn't
// stop removal of its siblings; all failures are returned together.
func RemoveAll(fsys FS, name string) error {
	if err := checkOpen(fsys, "unlinkat", name); err != nil {
		return err
	}

	stat, err := fsys.Lstat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return err
	}

	if !stat.IsDir() {
		return fsys.Remove(name)
	}

	entries, err := ReadDir(fsys, name)
	if err != nil {
		return err
	}

	var errs *multierror.Error

	for _, entry := range entries {
		if err := RemoveAll(fsys, path.Join(name, entry.Name())); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	return fsys.Remove(name)
}

// SplitPath returns the components of a slash-separated path.
//
// Empty and "." components are dropped, ".." is kept as is. A path without
// components, such as "", "." or "/", yields nil.
func SplitPath(name string) []string {
	var parts []string

	for _, component := range strings.Split(name, "/") {
		if component == "" || component == "." {
			continue
		}

		parts = append(parts, component)
	}

	return parts
}

func checkOpen(fsys FS, op, name string) error {
	if fsys.FileDescriptor() < 0 {
		return &fs.PathError{Op: op, Path: name, Err: os.ErrClosed}
	}

	return nil
}
