// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package capdir provides capability-scoped directory handles.
//
// A Dir grants access only to the subtree rooted at the directory it was
// opened on: every name passed to its methods is resolved beneath it, and
// names which would escape (absolute paths, "..", symlinks pointing outside)
// are rejected. The very first Dir has to be opened by path, which requires
// the AmbientAuthority token.
package capdir

// AmbientAuthority represents the process's inherent permission to reach the
// filesystem by path, as opposed to permission derived from an open Dir.
//
// Functions taking an AmbientAuthority are the only entry points into the
// filesystem namespace; everything else works from an existing handle.
type AmbientAuthority struct {
	_ struct{}
}

// Ambient returns the ambient authority token.
func Ambient() AmbientAuthority {
	return AmbientAuthority{}
}

// FileID identifies a filesystem object independently of the descriptor used to reach it.
type FileID struct {
	Dev uint64
	Ino uint64
}
