// Package testutil builds release bundles and other fixtures for tests.
package testutil

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Member is one archive entry. A name ending in "/" is written as a directory.
type Member struct {
	Name string
	Data string
}

// Logger returns a logger that only prints errors
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Zip encodes members as a zip archive, in order
func Zip(t testing.TB, members ...Member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.Name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", m.Name, err)
		}
		if m.Data != "" {
			if _, err := w.Write([]byte(m.Data)); err != nil {
				t.Fatalf("failed to write %s: %v", m.Name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}
	return buf.Bytes()
}

// Bundle wraps a payload archive built from members into an outer bundle,
// next to an unrelated member.
func Bundle(t testing.TB, payload ...Member) []byte {
	t.Helper()
	return Zip(t,
		Member{Name: "README.txt", Data: "read me"},
		Member{Name: "The Pack 1.5.mrpack", Data: string(Zip(t, payload...))},
	)
}
