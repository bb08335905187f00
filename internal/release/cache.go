package release

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/schaermu/packsync/internal/content"
	"github.com/schaermu/packsync/internal/fsutil"
	"github.com/schaermu/packsync/internal/syncerr"
)

// Opener opens a remote URL for reading
type Opener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Cache keeps downloaded bundles under a directory keyed by asset name
type Cache struct {
	dir    string
	opener Opener
	logger *slog.Logger
}

// NewCache creates a bundle cache rooted at dir
func NewCache(dir string, opener Opener, logger *slog.Logger) *Cache {
	return &Cache{dir: dir, opener: opener, logger: logger}
}

// Path returns where the asset is cached
func (c *Cache) Path(a Asset) (string, error) {
	if err := content.ValidateName(a.Name); err != nil {
		return "", fmt.Errorf("invalid asset name: %w", err)
	}
	return filepath.Join(c.dir, a.Name), nil
}

// Load returns the asset bytes from the cache, fetching and storing them on a miss
func (c *Cache) Load(ctx context.Context, a Asset) ([]byte, error) {
	path, err := c.Path(a)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err == nil {
		c.logger.Info("using cached bundle", "path", path, "size", humanize.Bytes(uint64(len(data))))
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, syncerr.IO("read", path, err)
	}

	if a.URL == "" {
		return nil, syncerr.MissingPayload("asset %s has no download URL", a.Name)
	}

	c.logger.Info("downloading bundle", "asset", a.Name, "url", a.URL)
	body, err := c.opener.Open(ctx, a.URL)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = body.Close()
	}()

	n, err := fsutil.WriteFileAtomic(path, body, 0644)
	if err != nil {
		return nil, syncerr.IO("write", path, err)
	}
	c.logger.Info("bundle cached", "path", path, "size", humanize.Bytes(uint64(n)))

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, syncerr.IO("read", path, err)
	}
	return data, nil
}

// Evict removes the cached copy of a. A missing copy is not an error.
func (c *Cache) Evict(a Asset) error {
	path, err := c.Path(a)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return syncerr.IO("remove", path, err)
	}
	return nil
}
