package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/meterread/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, testutil.EnsureDir(filepath.Dir(path)))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func TestDiscoverImageFiles(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, filepath.Join(dir, "a.jpg"))
	b := touch(t, filepath.Join(dir, "B.PNG"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "a_display.jpg"))
	nested := touch(t, filepath.Join(dir, "sub", "d.jpeg"))

	files, err := discoverImageFiles([]string{dir}, false, DefaultIncludePatterns, DefaultExcludePatterns)
	require.NoError(t, err)
	assert.Equal(t, []string{b, a}, files)

	files, err = discoverImageFiles([]string{dir}, true, DefaultIncludePatterns, DefaultExcludePatterns)
	require.NoError(t, err)
	assert.Equal(t, []string{b, a, nested}, files)
}

func TestDiscoverImageFiles_ExplicitFilesAreDeduplicated(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, filepath.Join(dir, "a.jpg"))

	files, err := discoverImageFiles([]string{a, dir, a}, false, DefaultIncludePatterns, DefaultExcludePatterns)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, files)
}

func TestDiscoverImageFiles_MissingPath(t *testing.T) {
	_, err := discoverImageFiles([]string{filepath.Join(t.TempDir(), "nope")}, false, nil, nil)
	require.Error(t, err)
}

func TestShouldIncludeFile(t *testing.T) {
	assert.True(t, ShouldIncludeFile("x/IMG_1.JPG", DefaultIncludePatterns, DefaultExcludePatterns))
	assert.False(t, ShouldIncludeFile("x/IMG_1_display.jpg", DefaultIncludePatterns, DefaultExcludePatterns))
	assert.False(t, ShouldIncludeFile("x/readme.md", DefaultIncludePatterns, nil))
	assert.True(t, ShouldIncludeFile("x/readme.md", nil, nil))
}
