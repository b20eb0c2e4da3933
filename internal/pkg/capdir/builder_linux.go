// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package capdir

import (
	"errors"
	"io/fs"
	"slices"
	"strings"
)

// DirBuilder configures how directories are created beneath a Dir.
type DirBuilder struct {
	mode      uint32
	recursive bool
}

// NewDirBuilder returns a builder creating directories with mode 0o777 (before umask).
func NewDirBuilder() *DirBuilder {
	return &DirBuilder{
		mode: 0o777,
	}
}

// Mode sets the permission bits passed to mkdirat.
func (b *DirBuilder) Mode(mode uint32) *DirBuilder {
	b.mode = mode

	return b
}

// Recursive makes Create create missing parents and accept an existing directory.
func (b *DirBuilder) Recursive(recursive bool) *DirBuilder {
	b.recursive = recursive

	return b
}

// Permissions returns the configured mode.
func (b *DirBuilder) Permissions() uint32 {
	return b.mode
}

// Create creates the directory name beneath d.
func (b *DirBuilder) Create(d *Dir, name string) error {
	if !b.recursive {
		return d.mkdir(name, b.mode)
	}

	prefix := ""
	if strings.HasPrefix(name, "/") {
		// kept so that the first mkdir is rejected as escaping
		prefix = "/"
	}

	components := slices.DeleteFunc(strings.Split(name, "/"), func(c string) bool {
		return c == "" || c == "."
	})
	if len(components) == 0 {
		return d.mkdir(name, b.mode)
	}

	for i := range components {
		dir := prefix + strings.Join(components[:i+1], "/")

		err := d.mkdir(dir, b.mode)
		if err == nil {
			continue
		}

		if !errors.Is(err, fs.ErrExist) {
			return err
		}

		info, statErr := d.Stat(dir)
		if statErr != nil {
			return statErr
		}

		if !info.IsDir() {
			return err
		}
	}

	return nil
}
