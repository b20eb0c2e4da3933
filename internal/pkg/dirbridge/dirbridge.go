// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

// Package dirbridge converts directory handles between capdir.Dir and xfs.Dir,
// and opens the parent directory of a path.
//
// Conversions never share a descriptor between two owners: the result always
// owns a freshly derived descriptor and the input stays owned by the caller.
package dirbridge

import (
	"errors"
	"strings"

	"github.com/siderolabs/gen/xerrors"
	"go.uber.org/zap"

	"github.com/siderolabs/capbridge/internal/pkg/capdir"
	"github.com/siderolabs/capbridge/internal/pkg/xfs"
)

// InvalidInput is an error tag for failures caused by the arguments rather than the filesystem.
type InvalidInput struct{}

// ErrNoFileName is returned by OpenDirOf when the path has no final component.
var ErrNoFileName = errors.New("the source path does not name a file")

// DirBuilderFromMode returns a directory builder which creates directories with mode m.
func DirBuilderFromMode(m uint32) *capdir.DirBuilder {
	return capdir.NewDirBuilder().Mode(m)
}

// FromXFS creates a new capdir.Dir from an xfs.Dir.
//
// The result owns its own descriptor and outlives o.
func FromXFS(o *xfs.Dir, opts ...Option) (*capdir.Dir, error) {
	cfg := newOptions(opts)

	r, err := capdir.ReopenDir(o.FileDescriptor())
	if err != nil {
		cfg.logger.Debug("failed to reopen xfs directory", zap.Int("fd", o.FileDescriptor()), zap.Error(err))

		return nil, err
	}

	cfg.logger.Debug("reopened xfs directory", zap.Int("fd", o.FileDescriptor()), zap.Int("new_fd", r.Fd()))

	return r, nil
}

// ToXFS creates a new xfs.Dir from a capdir.Dir.
//
// o is left open and owned by the caller.
func ToXFS(o *capdir.Dir, opts ...Option) (*xfs.Dir, error) {
	cfg := newOptions(opts)

	var r *xfs.Dir

	err := withBorrowedFd(o.Fd(), func(src *xfs.Dir) error {
		var err error

		r, err = src.SubDir(".")

		return err
	})
	if err != nil {
		cfg.logger.Debug("failed to reopen capdir directory", zap.Int("fd", o.Fd()), zap.Error(err))

		return nil, err
	}

	cfg.logger.Debug("reopened capdir directory", zap.Int("fd", o.Fd()), zap.Int("new_fd", r.FileDescriptor()))

	return r, nil
}

// withBorrowedFd wraps fd, which is owned elsewhere, into an xfs.Dir for the duration of f.
//
// The wrapper gives fd back on every return path, so it is never closed here.
func withBorrowedFd(fd int, f func(*xfs.Dir) error) error {
	src := xfs.FromRawFd(fd)
	defer src.IntoRawFd()

	return f(src)
}

// OpenDirOf opens the parent directory of a (possibly absolute) path and returns it with the final component.
//
// A path without a directory component is resolved against ".". The returned
// name is a substring of path.
func OpenDirOf(path string, authority capdir.AmbientAuthority, opts ...Option) (*capdir.Dir, string, error) {
	cfg := newOptions(opts)

	parent, name := splitPath(path)

	switch name {
	case "", ".", "..":
		return nil, "", xerrors.NewTagged[InvalidInput](ErrNoFileName)
	}

	dir, err := capdir.OpenAmbientDir(parent, authority)
	if err != nil {
		cfg.logger.Debug("failed to open parent directory", zap.String("path", path), zap.String("parent", parent), zap.Error(err))

		return nil, "", err
	}

	cfg.logger.Debug("opened parent directory", zap.String("parent", parent), zap.String("name", name), zap.Int("fd", dir.Fd()))

	return dir, name, nil
}

// splitPath splits path at the last separator; the parent defaults to ".".
func splitPath(path string) (parent, name string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ".", path
	}

	parent = strings.TrimRight(path[:i], "/")
	if parent == "" {
		parent = "/"
	}

	return parent, path[i+1:]
}
