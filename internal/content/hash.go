package content

import (
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"

	"github.com/schaermu/packsync/internal/syncerr"
)

const bufferSize = 8 * 1024

// Digest returns the lowercase hex SHA-512 of everything read from r
func Digest(r io.Reader) (string, error) {
	sum, err := digest(r)
	if err != nil {
		return "", syncerr.IO("hash", "", err)
	}
	return sum, nil
}

// FileDigest computes the SHA-512 hash of the file at path
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", syncerr.IO("open", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	sum, err := digest(f)
	if err != nil {
		return "", syncerr.IO("hash", path, err)
	}
	return sum, nil
}

func digest(r io.Reader) (string, error) {
	h := sha512.New()
	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(h, onlyReader{r}, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// onlyReader hides WriterTo so io.CopyBuffer actually uses the bounded buffer.
type onlyReader struct {
	r io.Reader
}

func (o onlyReader) Read(p []byte) (int, error) {
	return o.r.Read(p)
}
