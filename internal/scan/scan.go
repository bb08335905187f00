// Package scan builds the inventory of files currently installed in a pack
// directory.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/schaermu/packsync/internal/content"
	"github.com/schaermu/packsync/internal/fsutil"
	"github.com/schaermu/packsync/internal/syncerr"
)

// Options configures a Scanner
type Options struct {
	// Workers bounds the number of files hashed concurrently. Zero means GOMAXPROCS.
	Workers int
	// CacheSize is the number of digests remembered between scans. Zero disables the cache.
	CacheSize int
}

// Scanner hashes the direct file children of a directory
type Scanner struct {
	workers int
	cache   *lru.Cache[string, cachedDigest]
	digest  func(path string) (string, error)
	logger  *slog.Logger
}

// cachedDigest is only trusted while size and mtime still match the file.
type cachedDigest struct {
	size    int64
	modTime int64
	hash    string
}

// New creates a scanner
func New(opts Options, logger *slog.Logger) (*Scanner, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	s := &Scanner{
		workers: workers,
		digest:  content.FileDigest,
		logger:  logger,
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New[string, cachedDigest](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create digest cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// Scan hashes every regular file directly inside dir. A missing dir yields an
// empty inventory. Files that cannot be hashed are logged and left out. The
// result is sorted by name.
func (s *Scanner) Scan(ctx context.Context, dir string) (content.Inventory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("content directory does not exist yet", "dir", dir)
			return content.Inventory{}, nil
		}
		return nil, syncerr.IO("read dir", dir, err)
	}

	var (
		mu  sync.Mutex
		inv = make(content.Inventory, 0, len(entries))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		path := filepath.Join(dir, name)

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			entry, ok := s.hashOne(path, name)
			if !ok {
				return nil
			}

			mu.Lock()
			inv = append(inv, entry)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("scanned content directory", "dir", dir, "files", len(inv))
	return inv.Sorted(), nil
}

// hashOne returns false for anything that should not appear in the inventory.
func (s *Scanner) hashOne(path, name string) (content.Entry, bool) {
	// Stat follows symlinks, so a link to a regular file counts as a file
	info, err := os.Stat(path)
	if err != nil {
		s.logger.Warn("skipping unreadable file", "path", path, "error", err)
		return content.Entry{}, false
	}
	if !info.Mode().IsRegular() {
		return content.Entry{}, false
	}

	// An interrupted write leaves a temp file behind. It is listed without a
	// hash, which no declared entry matches, so the diff removes it.
	if fsutil.IsTemp(name) {
		s.logger.Debug("found leftover temp file", "path", path)
		entry, err := content.NewEntry(name, "", "")
		return entry, err == nil
	}

	hash, err := s.cachedHash(path, info)
	if err != nil {
		s.logger.Warn("skipping file that could not be hashed", "path", path, "error", err)
		return content.Entry{}, false
	}

	entry, err := content.NewEntry(name, "", hash)
	if err != nil {
		s.logger.Warn("skipping file with unusable name", "path", path, "error", err)
		return content.Entry{}, false
	}
	return entry, true
}

func (s *Scanner) cachedHash(path string, info os.FileInfo) (string, error) {
	if s.cache == nil {
		return s.digest(path)
	}

	size, mod := info.Size(), info.ModTime().UnixNano()
	if c, ok := s.cache.Get(path); ok && c.size == size && c.modTime == mod {
		return c.hash, nil
	}

	hash, err := s.digest(path)
	if err != nil {
		s.cache.Remove(path)
		return "", err
	}
	s.cache.Add(path, cachedDigest{size: size, modTime: mod, hash: hash})
	return hash, nil
}
