// Package archive unpacks release bundles: it finds the payload archive nested
// in the outer bundle and installs the payload's override content into a pack.
//
// Only three override categories are installable: mods, shaderpacks and
// resourcepacks. Everything else under overrides/ (config, options files and
// so on) is left alone on purpose.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"github.com/schaermu/packsync/internal/fsutil"
	"github.com/schaermu/packsync/internal/syncerr"
)

const (
	// DefaultPayloadExt is the extension of the payload archive inside a bundle
	DefaultPayloadExt = ".mrpack"
	// DefaultIndexName is the manifest member inside the payload
	DefaultIndexName = "modrinth.index.json"

	overridesDir = "overrides"
)

// OverrideSubdirs are the installable override categories, in match priority order
var OverrideSubdirs = []string{"mods", "shaderpacks", "resourcepacks"}

// Options configures a Resolver
type Options struct {
	PayloadExt string
	IndexName  string
	Workers    int
}

// Resolver opens bundles and extracts payload overrides
type Resolver struct {
	payloadExt string
	indexName  string
	workers    int
	logger     *slog.Logger
}

// NewResolver creates a resolver, filling unset options with defaults
func NewResolver(opts Options, logger *slog.Logger) *Resolver {
	if opts.PayloadExt == "" {
		opts.PayloadExt = DefaultPayloadExt
	}
	if opts.IndexName == "" {
		opts.IndexName = DefaultIndexName
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Resolver{
		payloadExt: opts.PayloadExt,
		indexName:  opts.IndexName,
		workers:    opts.Workers,
		logger:     logger,
	}
}

// Payload is an opened inner archive
type Payload struct {
	Name string
	Size int64
	zr   *zip.Reader
}

// OpenBundle locates the first member of bundle ending in the payload
// extension, reads it into memory and opens it as an archive.
func (r *Resolver) OpenBundle(bundle []byte) (*Payload, error) {
	outer, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	if err != nil {
		return nil, syncerr.MissingPayload("bundle is not a readable archive: %v", err)
	}

	for _, f := range outer.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, r.payloadExt) {
			continue
		}

		data, err := readMember(f)
		if err != nil {
			return nil, syncerr.IO("read payload", f.Name, err)
		}

		inner, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, syncerr.MissingPayload("payload %s is not a readable archive: %v", f.Name, err)
		}

		r.logger.Debug("found payload", "name", f.Name, "size", len(data))
		return &Payload{Name: f.Name, Size: int64(len(data)), zr: inner}, nil
	}

	return nil, syncerr.MissingPayload("no %s member in bundle", r.payloadExt)
}

// ReadIndex returns the raw manifest document stored in the payload
func (r *Resolver) ReadIndex(p *Payload) ([]byte, error) {
	for _, f := range p.zr.File {
		if f.Name != r.indexName {
			continue
		}
		data, err := readMember(f)
		if err != nil {
			return nil, syncerr.IO("read index", f.Name, err)
		}
		return data, nil
	}
	return nil, syncerr.MalformedManifest("read index", fmt.Errorf("%s not found in %s", r.indexName, p.Name))
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()
	return io.ReadAll(rc)
}

// Entry is a payload member classified into an override subdirectory
type Entry struct {
	Name    string // member name inside the payload
	Subdir  string // one of OverrideSubdirs
	RelPath string // slash-separated path below Subdir, empty for the subdir itself
	IsDir   bool
}

// Classify maps a payload member name to its override destination. The
// second result is false for members outside the installable categories and
// for names that would escape their destination.
func Classify(name string) (Entry, bool) {
	isDir := strings.HasSuffix(name, "/")

	var segments []string
	for _, s := range strings.Split(strings.ReplaceAll(name, `\`, "/"), "/") {
		if s == "" || s == "." {
			continue
		}
		segments = append(segments, s)
	}

	for _, subdir := range OverrideSubdirs {
		idx := windowIndex(segments, overridesDir, subdir)
		if idx < 0 {
			continue
		}

		rest := segments[idx+2:]
		for _, s := range rest {
			if s == ".." || filepath.VolumeName(s) != "" {
				return Entry{}, false
			}
		}
		if len(rest) == 0 && !isDir {
			return Entry{}, false
		}

		return Entry{
			Name:    name,
			Subdir:  subdir,
			RelPath: strings.Join(rest, "/"),
			IsDir:   isDir,
		}, true
	}

	return Entry{}, false
}

func windowIndex(segments []string, first, second string) int {
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == first && segments[i+1] == second {
			return i
		}
	}
	return -1
}

// Destination returns the absolute install path of e inside packDir
func (e Entry) Destination(packDir string) (string, error) {
	base := filepath.Join(packDir, e.Subdir)
	dst := filepath.Join(base, filepath.FromSlash(e.RelPath))
	if dst != base && !strings.HasPrefix(dst, base+string(filepath.Separator)) {
		return "", fmt.Errorf("member %s escapes %s", e.Name, base)
	}
	return dst, nil
}

// ExtractReport summarizes an extraction
type ExtractReport struct {
	Dirs    int
	Files   int
	Ignored int
	Failed  []syncerr.FileFailure
}

// Extract installs every override member of p below packDir. Directory
// members are created first; files are then written concurrently, each
// creating its own parent directory. Per-file failures are collected in the
// report and do not stop the extraction.
func (r *Resolver) Extract(ctx context.Context, p *Payload, packDir string) (*ExtractReport, error) {
	report := &ExtractReport{}

	type job struct {
		file *zip.File
		dst  string
	}
	var jobs []job

	for _, f := range p.zr.File {
		entry, ok := Classify(f.Name)
		if !ok {
			report.Ignored++
			continue
		}

		dst, err := entry.Destination(packDir)
		if err != nil {
			r.logger.Warn("skipping unsafe payload member", "name", f.Name, "error", err)
			report.Ignored++
			continue
		}

		if entry.IsDir || f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0755); err != nil {
				r.logger.Warn("failed to create directory", "path", dst, "error", err)
				report.Failed = append(report.Failed, syncerr.FileFailure{Path: dst, Err: syncerr.IO("mkdir", dst, err)})
				continue
			}
			report.Dirs++
			continue
		}

		jobs = append(jobs, job{file: f, dst: dst})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			err := extractFile(j.file, j.dst)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("failed to extract file", "name", j.file.Name, "dest", j.dst, "error", err)
				report.Failed = append(report.Failed, syncerr.FileFailure{Path: j.dst, Err: err})
				return nil
			}
			r.logger.Debug("extracted", "dest", j.dst)
			report.Files++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	return report, nil
}

func extractFile(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return syncerr.IO("open member", f.Name, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}

	if _, err := fsutil.WriteFileAtomic(dst, rc, perm); err != nil {
		return syncerr.IO("write", dst, err)
	}
	return nil
}
