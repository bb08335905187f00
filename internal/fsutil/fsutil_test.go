package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "sub", "dst.txt")

	n, err := WriteFileAtomic(dst, strings.NewReader("hello world"), 0644)
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestWriteFileAtomic_Overwrites(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "dst.txt")
	require.NoError(t, os.WriteFile(dst, []byte("old content that is longer"), 0644))

	_, err := WriteFileAtomic(dst, strings.NewReader("new"), 0644)
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestWriteFileAtomic_ReaderFailureLeavesNoTrace(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(dst, []byte("keep me"), 0644))

	_, err := WriteFileAtomic(dst, failingReader{}, 0644)
	require.Error(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(got), "existing file must not change")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, IsTemp(e.Name()), "temp file %s left behind", e.Name())
	}
}

func TestIsTemp(t *testing.T) {
	assert.True(t, IsTemp(".packsync-tmp-12345"))
	assert.False(t, IsTemp("sodium-0.5.jar"))
}
