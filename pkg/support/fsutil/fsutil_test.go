// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	for _, tc := range []struct{ path, want string }{
		{"", ""},
		{"/tmp/x", "/tmp/x"},
		{"relative/x", "relative/x"},
		{"~", usr.HomeDir},
		{"~/x/y", filepath.Join(usr.HomeDir, "x/y")},
	} {
		got, err := ExpandPath(tc.path)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "ExpandPath(%q)", tc.path)
	}

	_, err = ExpandPath("~no_such_user_for_fsutil_tests/x")
	require.Error(t, err)
	require.Panics(t, func() { MustExpandPath("~no_such_user_for_fsutil_tests") })
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.txt")
	exists, err := FileExists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	f, err := Create(path)
	require.NoError(t, err)
	_, err = f.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	exists, err = FileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = FileExists(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, exists)
}
