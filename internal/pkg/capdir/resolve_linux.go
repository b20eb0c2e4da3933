// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package capdir

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// openat2 may return EAGAIN when a concurrent rename races the lookup.
const maxResolveAttempts = 16

var openat2Supported = sync.OnceValue(func() bool {
	fd, err := unix.Openat2(unix.AT_FDCWD, "/", &unix.OpenHow{
		Flags: unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC,
	})
	if err != nil {
		// ENOSYS on old kernels, EPERM under some seccomp profiles
		return false
	}

	unix.Close(fd) //nolint:errcheck

	return true
})

// resolver opens name relative to dirfd refusing to leave the subtree rooted at dirfd.
//
// O_CLOEXEC is always added to flags.
type resolver func(dirfd int, name string, flags int, mode uint32) (int, error)

func defaultResolver() resolver {
	if openat2Supported() {
		return openBeneath
	}

	return openBeneathLexical
}

// openBeneath confines the whole lookup in the kernel.
func openBeneath(dirfd int, name string, flags int, mode uint32) (int, error) {
	flags |= unix.O_CLOEXEC

	how := unix.OpenHow{
		Flags:   uint64(flags),
		Resolve: unix.RESOLVE_BENEATH | unix.RESOLVE_NO_MAGICLINKS,
	}

	// O_TMPFILE includes the O_DIRECTORY bit
	if flags&unix.O_CREAT != 0 || flags&unix.O_TMPFILE == unix.O_TMPFILE {
		how.Mode = uint64(mode)
	}

	var err error

	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		var fd int

		fd, err = unix.Openat2(dirfd, name, &how)
		if err == nil {
			return fd, nil
		}

		if !errors.Is(err, unix.EINTR) && !errors.Is(err, unix.EAGAIN) {
			break
		}
	}

	return -1, err
}

// openBeneathLexical is used on kernels without openat2 (< 5.6).
//
// It rejects names which escape lexically; symlinks inside the tree are not
// followed in the final component.
func openBeneathLexical(dirfd int, name string, flags int, mode uint32) (int, error) {
	if name != "." && !filepath.IsLocal(name) {
		return -1, unix.EXDEV
	}

	for {
		fd, err := unix.Openat(dirfd, name, flags|unix.O_NOFOLLOW|unix.O_CLOEXEC, mode)
		if errors.Is(err, unix.EINTR) {
			continue
		}

		return fd, err
	}
}

// splitParent splits name into the directory to resolve beneath the handle and the final component.
func splitParent(name string) (parent, base string) {
	name = strings.TrimRight(name, "/")

	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return ".", name
	}

	parent = strings.TrimRight(name[:i], "/")
	if parent == "" {
		// absolute name, the resolver rejects it
		parent = "/"
	}

	return parent, name[i+1:]
}
