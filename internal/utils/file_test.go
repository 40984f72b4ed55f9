package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.jpeg", "dir/d.PnG"} {
		assert.True(t, IsImageFile(name), name)
	}
	for _, name := range []string{"a.txt", "b.webp", "noext", "c.png.bak"} {
		assert.False(t, IsImageFile(name), name)
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "spec_001", BaseName("/data/images/spec_001.png"))
	assert.Equal(t, "a.b", BaseName("a.b.txt"))
	assert.Equal(t, "noext", BaseName("noext"))
}

func TestListFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "c.png"))
	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "b.txt"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0755))

	files, err := ListFiles(dir, ImageExtensions...)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "c.png")}, files)
}

func TestListFilesMissingDir(t *testing.T) {
	files, err := ListFiles(filepath.Join(t.TempDir(), "nope"), "txt")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0644))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	touch(t, file)

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(file))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename("a/b:c"))
	assert.Equal(t, "name", SanitizeFilename(" .name. "))
}
