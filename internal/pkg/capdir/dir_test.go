// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package capdir_test

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/capbridge/internal/pkg/capdir"
)

func openTemp(t *testing.T) (*capdir.Dir, string) {
	t.Helper()

	root := t.TempDir()

	dir, err := capdir.OpenAmbientDir(root, capdir.Ambient())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, dir.Close())
	})

	return dir, root
}

func TestOpenAmbientDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), nil, 0o644))

	t.Run("Directory", func(t *testing.T) {
		t.Parallel()

		dir, err := capdir.OpenAmbientDir(root, capdir.Ambient())
		require.NoError(t, err)

		assert.Equal(t, root, dir.Name())
		assert.GreaterOrEqual(t, dir.Fd(), 0)

		require.NoError(t, dir.Close())
		assert.Equal(t, -1, dir.Fd())
		require.NoError(t, dir.Close())
	})

	t.Run("NotExist", func(t *testing.T) {
		t.Parallel()

		_, err := capdir.OpenAmbientDir(filepath.Join(root, "missing"), capdir.Ambient())
		require.ErrorIs(t, err, fs.ErrNotExist)
		require.ErrorIs(t, err, unix.ENOENT)
	})

	t.Run("NotDirectory", func(t *testing.T) {
		t.Parallel()

		_, err := capdir.OpenAmbientDir(filepath.Join(root, "file"), capdir.Ambient())
		require.ErrorIs(t, err, unix.ENOTDIR)
	})
}

func TestReopenDir(t *testing.T) {
	t.Parallel()

	dir, _ := openTemp(t)

	orig, err := dir.TryClone()
	require.NoError(t, err)

	reopened, err := capdir.ReopenDir(orig.Fd())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, reopened.Close())
	})

	assert.NotEqual(t, orig.Fd(), reopened.Fd())

	want, err := orig.Identity()
	require.NoError(t, err)

	// the reopened handle doesn't depend on the original staying open
	require.NoError(t, orig.Close())

	got, err := reopened.Identity()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = reopened.ReadDir(".")
	require.NoError(t, err)

	_, err = capdir.ReopenDir(-1)
	require.ErrorIs(t, err, unix.EBADF)
}

func TestTryClone(t *testing.T) {
	t.Parallel()

	dir, _ := openTemp(t)

	clone, err := dir.TryClone()
	require.NoError(t, err)

	assert.NotEqual(t, dir.Fd(), clone.Fd())
	assert.Equal(t, dir.Name(), clone.Name())

	want, err := dir.Identity()
	require.NoError(t, err)

	got, err := clone.Identity()
	require.NoError(t, err)

	assert.Equal(t, want, got)
	require.NoError(t, clone.Close())

	_, err = clone.TryClone()
	require.ErrorIs(t, err, os.ErrClosed)
}

func TestFiles(t *testing.T) {
	t.Parallel()

	dir, root := openTemp(t)

	f, err := dir.OpenFile("hello.txt", os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	require.NoError(t, err)

	_, err = f.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	contents, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(contents))

	f, err = dir.Open("hello.txt")
	require.NoError(t, err)

	contents, err = io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "hello", string(contents))

	info, err := dir.Stat("hello.txt")
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.EqualValues(t, 5, info.Size())

	require.NoError(t, dir.CreateDir("sub", 0o755))

	sub, err := dir.OpenDir("sub")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "sub"), sub.Name())
	require.NoError(t, sub.Close())

	entries, err := dir.ReadDir(".")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "hello.txt", entries[0].Name())
	assert.Equal(t, "sub", entries[1].Name())
	assert.True(t, entries[1].IsDir())

	require.ErrorIs(t, dir.RemoveDir("hello.txt"), unix.ENOTDIR)
	require.NoError(t, dir.RemoveFile("hello.txt"))
	require.NoError(t, dir.RemoveDir("sub"))

	entries, err = dir.ReadDir(".")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = dir.Stat("hello.txt")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestClosed(t *testing.T) {
	t.Parallel()

	dir, err := capdir.OpenAmbientDir(t.TempDir(), capdir.Ambient())
	require.NoError(t, err)
	require.NoError(t, dir.Close())

	_, err = dir.OpenDir(".")
	require.ErrorIs(t, err, os.ErrClosed)

	_, err = dir.Identity()
	require.ErrorIs(t, err, os.ErrClosed)

	require.ErrorIs(t, dir.CreateDir("x", 0o755), os.ErrClosed)
}
