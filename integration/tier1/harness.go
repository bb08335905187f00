//go:build integration

package tier1

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/schaermu/packsync/internal/archive"
	"github.com/schaermu/packsync/internal/content"
	"github.com/schaermu/packsync/internal/download"
	"github.com/schaermu/packsync/internal/packstate"
	"github.com/schaermu/packsync/internal/progress"
	"github.com/schaermu/packsync/internal/release"
	"github.com/schaermu/packsync/internal/scan"
	packsync "github.com/schaermu/packsync/internal/sync"
	"github.com/schaermu/packsync/internal/testutil"
)

// Harness runs the real engine against an in-process GitHub release API and
// mod file host.
type Harness struct {
	t        *testing.T
	server   *httptest.Server
	packDir  string
	cacheDir string
	store    *packstate.Store

	mu            sync.Mutex
	latest        []byte
	files         map[string][]byte
	bundleFetches atomic.Int32
	fileFetches   atomic.Int32
}

// Mod is one declared mod of a published release
type Mod struct {
	Name string
	Data string
}

// NewHarness creates a pack folder, a state file and the fake servers
func NewHarness(t *testing.T, installed string) *Harness {
	t.Helper()
	tmp := t.TempDir()

	h := &Harness{
		t:        t,
		packDir:  filepath.Join(tmp, "The Pack "+installed),
		cacheDir: filepath.Join(tmp, "cache"),
		store:    packstate.NewStore(filepath.Join(tmp, "state", "state.json")),
		files:    make(map[string][]byte),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(h.packDir, "mods"), 0755))
	require.NoError(t, h.store.Save(&packstate.State{PackLocation: h.packDir, InstalledVersion: installed}))

	h.server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.server.Close)
	return h
}

func (h *Harness) serve(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.URL.Path == "/repos/example/pack/releases/latest" {
		if h.latest == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(h.latest)
		return
	}

	data, ok := h.files[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if strings.HasSuffix(r.URL.Path, ".zip") {
		h.bundleFetches.Add(1)
	} else {
		h.fileFetches.Add(1)
	}
	_, _ = w.Write(data)
}

// Publish makes tag the latest release, declaring mods and shipping overrides
func (h *Harness) Publish(tag, versionID string, mods []Mod, overrides ...testutil.Member) {
	h.t.Helper()

	type descriptor struct {
		Path      string            `json:"path"`
		Downloads []string          `json:"downloads"`
		Hashes    map[string]string `json:"hashes"`
	}
	index := struct {
		FormatVersion int          `json:"formatVersion"`
		VersionID     string       `json:"versionId"`
		Name          string       `json:"name"`
		Files         []descriptor `json:"files"`
	}{FormatVersion: 1, VersionID: versionID, Name: "The Pack", Files: []descriptor{}}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, m := range mods {
		hash, err := content.Digest(strings.NewReader(m.Data))
		require.NoError(h.t, err, "hash %s", m.Name)
		urlPath := fmt.Sprintf("/cdn/%s/%s", tag, m.Name)
		h.files[urlPath] = []byte(m.Data)
		index.Files = append(index.Files, descriptor{
			Path:      "mods/" + m.Name,
			Downloads: []string{h.server.URL + urlPath},
			Hashes:    map[string]string{"sha512": hash},
		})
	}

	indexJSON, err := json.Marshal(index)
	require.NoError(h.t, err, "encode index")
	payload := append([]testutil.Member{{Name: "modrinth.index.json", Data: string(indexJSON)}}, overrides...)

	assetName := "The.Pack." + tag + ".zip"
	assetPath := "/download/" + assetName
	h.files[assetPath] = testutil.Bundle(h.t, payload...)

	h.latest, err = json.Marshal(release.Release{
		TagName: tag,
		Assets:  []release.Asset{{Name: assetName, URL: h.server.URL + assetPath}},
	})
	require.NoError(h.t, err, "encode release")
}

// Sync runs one engine pass and returns its result and the final progress event
func (h *Harness) Sync(ctx context.Context, opts packsync.Options) (*packsync.Result, progress.Event, error) {
	h.t.Helper()
	logger := slog.New(slog.NewTextHandler(&testWriter{t: h.t}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	scanner, err := scan.New(scan.Options{Workers: 4, CacheSize: 64}, logger)
	if err != nil {
		return nil, progress.Event{}, err
	}
	downloader := download.New(download.Options{Workers: 4, Timeout: 10 * time.Second}, logger)
	reporter := progress.NewReporter()

	engine := packsync.NewEngine(packsync.Deps{
		State:    h.store,
		Provider: release.NewGitHubProvider(h.server.URL+"/repos/example/pack/releases/latest", "packsync-it", "", 10*time.Second, logger),
		Bundles:  release.NewCache(h.cacheDir, downloader, logger),
		Resolver: archive.NewResolver(archive.Options{Workers: 4}, logger),
		Scanner:  scanner,
		Fetcher:  downloader,
		Progress: reporter,
	}, opts, logger)

	res, err := engine.Run(ctx)
	reporter.Close()

	var last progress.Event
	for ev := range reporter.Events() {
		last = ev
	}
	return res, last, err
}

// ModsDir returns the pack's mods directory
func (h *Harness) ModsDir() string {
	return filepath.Join(h.packDir, "mods")
}

// WriteMod places a file in the mods directory as if a user installed it
func (h *Harness) WriteMod(name, data string) {
	h.t.Helper()
	require.NoError(h.t, os.WriteFile(filepath.Join(h.ModsDir(), name), []byte(data), 0644))
}

// ModNames lists the mods directory
func (h *Harness) ModNames() []string {
	h.t.Helper()
	entries, err := os.ReadDir(h.ModsDir())
	require.NoError(h.t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// InstalledVersion returns the version recorded in the state file
func (h *Harness) InstalledVersion() string {
	h.t.Helper()
	state, err := h.store.Load()
	require.NoError(h.t, err)
	return state.InstalledVersion
}

// testWriter routes log output through t.Log
type testWriter struct {
	t *testing.T
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
