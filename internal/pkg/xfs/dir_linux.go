// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const dirFlags = unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC

// Dir is a directory addressed by an owned file descriptor.
//
// Names passed to its methods are resolved relative to the directory with
// plain openat(2) semantics: absolute names and ".." are not confined.
type Dir struct {
	path string
	fd   int
}

// Interface guard.
var _ interface {
	FS
} = (*Dir)(nil)

// OpenDir opens the directory at path.
func OpenDir(path string) (*Dir, error) {
	fd, err := ignoringEINTR(func() (int, error) {
		return unix.Open(path, dirFlags, 0)
	})
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}

	return &Dir{path: path, fd: fd}, nil
}

// FromRawFd creates a Dir which takes ownership of fd.
//
// The caller guarantees that fd is an open directory descriptor. If fd is
// also owned elsewhere, ownership must be handed back with IntoRawFd before
// the Dir is closed.
func FromRawFd(fd int) *Dir {
	return &Dir{fd: fd}
}

// IntoRawFd releases ownership of the descriptor without closing it and returns it.
//
// The Dir is unusable afterwards.
func (dir *Dir) IntoRawFd() int {
	fd := dir.fd
	dir.fd = -1

	return fd
}

// FileDescriptor returns the file descriptor of the directory, or -1 once it was closed or released.
func (dir *Dir) FileDescriptor() int {
	return dir.fd
}

// Path returns the path the directory was opened with, if known.
func (dir *Dir) Path() string {
	return dir.path
}

// SubDir opens the directory name relative to dir.
//
// SubDir(".") opens a new independent descriptor for dir itself.
func (dir *Dir) SubDir(name string) (*Dir, error) {
	if err := dir.checkOpen("openat", name); err != nil {
		return nil, err
	}

	fd, err := ignoringEINTR(func() (int, error) {
		return unix.Openat(dir.fd, name, dirFlags, 0)
	})
	if err != nil {
		return nil, &fs.PathError{Op: "openat", Path: name, Err: err}
	}

	path := name
	if dir.path != "" {
		path = filepath.Join(dir.path, name)
	}

	return &Dir{path: path, fd: fd}, nil
}

// Mkdir creates a new directory with the specified name and permissions.
func (dir *Dir) Mkdir(name string, perm os.FileMode) error {
	if err := dir.checkOpen("mkdirat", name); err != nil {
		return err
	}

	if err := unix.Mkdirat(dir.fd, name, uint32(perm.Perm())); err != nil {
		return &fs.PathError{Op: "mkdirat", Path: name, Err: err}
	}

	return nil
}

// Open opens a file with the specified name in read-only mode.
func (dir *Dir) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	return dir.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens a file with the specified name, flags, and permissions.
func (dir *Dir) OpenFile(name string, flags int, perm os.FileMode) (File, error) {
	if err := dir.checkOpen("openat", name); err != nil {
		return nil, err
	}

	fd, err := ignoringEINTR(func() (int, error) {
		return unix.Openat(dir.fd, name, flags|unix.O_CLOEXEC, uint32(perm.Perm()))
	})
	if err != nil {
		return nil, &fs.PathError{Op: "openat", Path: name, Err: err}
	}

	return os.NewFile(uintptr(fd), name), nil
}

// Lstat returns file information for name without following a trailing symlink.
func (dir *Dir) Lstat(name string) (fs.FileInfo, error) {
	if err := dir.checkOpen("lstat", name); err != nil {
		return nil, err
	}

	fd, err := ignoringEINTR(func() (int, error) {
		return unix.Openat(dir.fd, name, unix.O_PATH|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	})
	if err != nil {
		return nil, &fs.PathError{Op: "lstat", Path: name, Err: err}
	}

	f := os.NewFile(uintptr(fd), name)
	defer f.Close() //nolint:errcheck

	return f.Stat()
}

// Remove removes a file or directory.
func (dir *Dir) Remove(name string) error {
	flags := 0

	info, err := dir.Lstat(name)
	if err != nil {
		return err
	}

	if info.IsDir() {
		flags = unix.AT_REMOVEDIR
	}

	if err = unix.Unlinkat(dir.fd, name, flags); err != nil {
		return &fs.PathError{Op: "unlinkat", Path: name, Err: err}
	}

	return nil
}

// Close closes the file descriptor.
func (dir *Dir) Close() error {
	if dir.fd < 0 {
		return nil
	}

	fd := dir.fd
	dir.fd = -1

	return unix.Close(fd)
}

func (dir *Dir) checkOpen(op, name string) error {
	if dir.fd < 0 {
		return &fs.PathError{Op: op, Path: name, Err: os.ErrClosed}
	}

	return nil
}

// ignoringEINTR retries open-like calls interrupted by a signal.
func ignoringEINTR(f func() (int, error)) (int, error) {
	for {
		fd, err := f()
		if !errors.Is(err, unix.EINTR) {
			return fd, err
		}
	}
}
