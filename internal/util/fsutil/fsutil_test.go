package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestCopyDirWithSkip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "b")
	writeFile(t, filepath.Join(src, "target", "junk"), "x")

	dst := filepath.Join(t.TempDir(), "out")
	err := CopyDir(src, dst, func(rel string, d fs.DirEntry) bool {
		return d.IsDir() && rel == "target"
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
	assert.True(t, Exists(filepath.Join(dst, "a.txt")))
	assert.False(t, Exists(filepath.Join(dst, "target")))
}

func TestMoveDirReplacesDestination(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "nested", "doc")
	dst := filepath.Join(root, "doc")
	writeFile(t, filepath.Join(src, "index.html"), "new")
	writeFile(t, filepath.Join(dst, "stale.html"), "old")

	require.NoError(t, MoveDir(src, dst))
	assert.True(t, IsDir(dst))
	assert.True(t, Exists(filepath.Join(dst, "index.html")))
	assert.False(t, Exists(filepath.Join(dst, "stale.html")))
	assert.False(t, Exists(src))
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f"), "")
	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(filepath.Join(dir, "f")))
	assert.False(t, IsDir(filepath.Join(dir, "missing")))
}
