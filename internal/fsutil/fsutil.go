package fsutil

import (
	"io"
	"os"
	"path/filepath"
)

const tmpPattern = ".packsync-tmp-*"

// WriteFileAtomic streams r into dst through a temp file in dst's directory
// and renames it into place. Parent directories are created as needed and an
// existing dst is replaced.
func WriteFileAtomic(dst string, r io.Reader, perm os.FileMode) (int64, error) {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), tmpPattern)
	if err != nil {
		return 0, err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	n, err := io.Copy(tmpFile, r)
	if err != nil {
		_ = tmpFile.Close()
		return n, err
	}

	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return n, err
	}

	if err := tmpFile.Close(); err != nil {
		return n, err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, dst); err != nil {
		return n, err
	}

	return n, nil
}

// IsTemp reports whether name is a leftover temp file from WriteFileAtomic
func IsTemp(name string) bool {
	ok, _ := filepath.Match(tmpPattern, name)
	return ok
}
