// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package capdir

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sys/unix"
)

const dirFlags = unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC

// Dir is an owned directory descriptor scoped to the subtree it was opened on.
//
// Dir is not safe for concurrent Close; all other methods may be called concurrently.
type Dir struct {
	resolve resolver
	name    string
	fd      int
}

func newDir(fd int, name string) *Dir {
	return &Dir{
		fd:      fd,
		name:    name,
		resolve: defaultResolver(),
	}
}

// derive wraps fd, obtained through d, resolving names the same way d does.
func (d *Dir) derive(fd int, name string) *Dir {
	return &Dir{
		fd:      fd,
		name:    name,
		resolve: d.resolve,
	}
}

// OpenAmbientDir opens the directory at path using ambient authority.
func OpenAmbientDir(path string, _ AmbientAuthority) (*Dir, error) {
	fd, err := ignoringEINTR(func() (int, error) {
		return unix.Open(path, dirFlags, 0)
	})
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}

	return newDir(fd, path), nil
}

// ReopenDir opens a new handle on the directory referenced by fd.
//
// The descriptor is borrowed: it is neither closed nor retained, and the
// returned Dir stays valid after fd is closed.
func ReopenDir(fd int) (*Dir, error) {
	nfd, err := ignoringEINTR(func() (int, error) {
		return unix.Openat(fd, ".", dirFlags, 0)
	})
	if err != nil {
		return nil, &fs.PathError{Op: "reopen", Path: ".", Err: err}
	}

	return newDir(nfd, ""), nil
}

// Fd returns the descriptor owned by d, or -1 if d is closed.
//
// The descriptor remains owned by d.
func (d *Dir) Fd() int {
	return d.fd
}

// Name returns the path d was opened with; it is empty for handles derived from a descriptor.
func (d *Dir) Name() string {
	return d.name
}

// Close releases the descriptor. Closing a closed Dir is a no-op.
func (d *Dir) Close() error {
	if d.fd < 0 {
		return nil
	}

	fd := d.fd
	d.fd = -1

	return unix.Close(fd)
}

// TryClone duplicates the descriptor into a new, independently owned Dir.
func (d *Dir) TryClone() (*Dir, error) {
	if err := d.checkValid("dup"); err != nil {
		return nil, err
	}

	fd, err := unix.FcntlInt(uintptr(d.fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, &fs.PathError{Op: "dup", Path: d.name, Err: err}
	}

	return d.derive(fd, d.name), nil
}

// Identity returns the device and inode of the directory.
func (d *Dir) Identity() (FileID, error) {
	if err := d.checkValid("fstat"); err != nil {
		return FileID{}, err
	}

	var st unix.Stat_t

	if err := unix.Fstat(d.fd, &st); err != nil {
		return FileID{}, &fs.PathError{Op: "fstat", Path: d.name, Err: err}
	}

	return FileID{Dev: uint64(st.Dev), Ino: st.Ino}, nil //nolint:unconvert
}

// OpenDir opens the subdirectory name beneath d.
func (d *Dir) OpenDir(name string) (*Dir, error) {
	fd, err := d.open("openat", name, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, err
	}

	return d.derive(fd, filepath.Join(d.name, name)), nil
}

// Open opens the file name beneath d for reading.
func (d *Dir) Open(name string) (*os.File, error) {
	return d.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens the file name beneath d with the specified flags and permissions.
func (d *Dir) OpenFile(name string, flags int, perm fs.FileMode) (*os.File, error) {
	fd, err := d.open("openat", name, flags, uint32(perm.Perm()))
	if err != nil {
		return nil, err
	}

	return os.NewFile(uintptr(fd), filepath.Join(d.name, name)), nil
}

// CreateDir creates the directory name beneath d.
func (d *Dir) CreateDir(name string, perm fs.FileMode) error {
	return NewDirBuilder().Mode(uint32(perm.Perm())).Create(d, name)
}

// ReadDir reads the directory name beneath d and returns its entries sorted by name.
func (d *Dir) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := d.OpenFile(name, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, err
	}

	defer f.Close() //nolint:errcheck

	entries, err := f.ReadDir(-1)

	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})

	return entries, err
}

// Stat returns file information for name beneath d, following symlinks which stay inside d.
func (d *Dir) Stat(name string) (fs.FileInfo, error) {
	f, err := d.OpenFile(name, unix.O_PATH, 0)
	if err != nil {
		return nil, err
	}

	defer f.Close() //nolint:errcheck

	return f.Stat()
}

// RemoveFile removes the non-directory entry name beneath d.
func (d *Dir) RemoveFile(name string) error {
	return d.unlink("unlinkat", name, 0)
}

// RemoveDir removes the empty directory name beneath d.
func (d *Dir) RemoveDir(name string) error {
	return d.unlink("rmdirat", name, unix.AT_REMOVEDIR)
}

func (d *Dir) mkdir(name string, mode uint32) error {
	return d.atParent("mkdirat", name, func(parentfd int, base string) error {
		return unix.Mkdirat(parentfd, base, mode)
	})
}

func (d *Dir) unlink(op, name string, flags int) error {
	return d.atParent(op, name, func(parentfd int, base string) error {
		return unix.Unlinkat(parentfd, base, flags)
	})
}

// atParent resolves the parent of name beneath d and calls f with it and the final component.
func (d *Dir) atParent(op, name string, f func(parentfd int, base string) error) error {
	if err := d.checkValid(op); err != nil {
		return err
	}

	parent, base := splitParent(name)

	switch base {
	case "", ".", "..":
		return &fs.PathError{Op: op, Path: name, Err: unix.EINVAL}
	}

	parentfd, err := d.resolve(d.fd, parent, unix.O_PATH|unix.O_DIRECTORY, 0)
	if err != nil {
		return &fs.PathError{Op: op, Path: name, Err: err}
	}

	defer unix.Close(parentfd) //nolint:errcheck

	if err = f(parentfd, base); err != nil {
		return &fs.PathError{Op: op, Path: name, Err: err}
	}

	return nil
}

func (d *Dir) open(op, name string, flags int, mode uint32) (int, error) {
	if err := d.checkValid(op); err != nil {
		return -1, err
	}

	fd, err := d.resolve(d.fd, name, flags, mode)
	if err != nil {
		return -1, &fs.PathError{Op: op, Path: name, Err: err}
	}

	return fd, nil
}

func (d *Dir) checkValid(op string) error {
	if d == nil || d.fd < 0 {
		return &fs.PathError{Op: op, Path: d.nameOrEmpty(), Err: os.ErrClosed}
	}

	return nil
}

func (d *Dir) nameOrEmpty() string {
	if d == nil {
		return ""
	}

	return d.name
}

func ignoringEINTR(f func() (int, error)) (int, error) {
	for {
		fd, err := f()
		if !errors.Is(err, unix.EINTR) {
			return fd, err
		}
	}
}
