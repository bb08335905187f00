package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/schaermu/packsync/internal/content"
	"github.com/schaermu/packsync/internal/fsutil"
	"github.com/schaermu/packsync/internal/syncerr"
)

// DefaultUserAgent is sent when Options.UserAgent is empty
const DefaultUserAgent = "packsync"

// Options configures a Downloader
type Options struct {
	Workers   int
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

// Downloader fetches declared entries into a content directory
type Downloader struct {
	client    *http.Client
	userAgent string
	workers   int
	logger    *slog.Logger
}

// New creates a downloader
func New(opts Options, logger *slog.Logger) *Downloader {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Downloader{
		client:    client,
		userAgent: opts.UserAgent,
		workers:   opts.Workers,
		logger:    logger,
	}
}

// Report summarizes a Fetch
type Report struct {
	Written []string
	Bytes   int64
	Failed  []syncerr.FileFailure
}

// Fetch downloads every entry to destDir/<name>, replacing existing files.
// Downloads are independent: a failed one is recorded in the report and the
// rest continue. Files already written stay in place. The returned error is
// non-nil only when ctx is cancelled.
func (d *Downloader) Fetch(ctx context.Context, entries content.Inventory, destDir string) (*Report, error) {
	report := &Report{}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for _, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			dst := filepath.Join(destDir, e.Name())
			n, err := d.fetchOne(gctx, e, dst)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.logger.Warn("download failed", "name", e.Name(), "url", e.SourceURL(), "error", err)
				report.Failed = append(report.Failed, syncerr.FileFailure{Path: dst, Err: err})
				return nil
			}
			d.logger.Info("downloaded", "name", e.Name(), "size", humanize.Bytes(uint64(n)))
			report.Written = append(report.Written, dst)
			report.Bytes += n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	return report, nil
}

func (d *Downloader) fetchOne(ctx context.Context, e content.Entry, dst string) (int64, error) {
	if e.SourceURL() == "" {
		return 0, fmt.Errorf("entry %s has no download URL", e.Name())
	}

	body, err := d.Open(ctx, e.SourceURL())
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = body.Close()
	}()

	n, err := fsutil.WriteFileAtomic(dst, body, 0644)
	if err != nil {
		return n, syncerr.IO("write", dst, err)
	}
	return n, nil
}

// Open issues a GET for url and returns the response body. Transport
// failures and non-2xx statuses are NetworkErrors.
func (d *Downloader) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, syncerr.Network("GET", url, err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, syncerr.Network("GET", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, syncerr.Network("GET", url, fmt.Errorf("unexpected status %s", resp.Status))
	}

	return resp.Body, nil
}
