package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/schaermu/packsync/internal/archive"
	"github.com/schaermu/packsync/internal/content"
	"github.com/schaermu/packsync/internal/diff"
	"github.com/schaermu/packsync/internal/download"
	"github.com/schaermu/packsync/internal/manifest"
	"github.com/schaermu/packsync/internal/packstate"
	"github.com/schaermu/packsync/internal/progress"
	"github.com/schaermu/packsync/internal/release"
	"github.com/schaermu/packsync/internal/syncerr"
)

// Progress checkpoints reported after each phase
const (
	stepUpdateFound    = 0.1
	stepBundleSelected = 0.2
	stepBundleLoaded   = 0.3
	stepManifestParsed = 0.4
	stepInventoryBuilt = 0.5
	stepDiffComputed   = 0.6
	stepExtracted      = 0.7
	stepDownloaded     = 0.9
	stepCommitted      = 1.0
)

// BundleLoader returns the bytes of a release asset. Evict drops a stored
// copy so the next Load fetches it again.
type BundleLoader interface {
	Load(ctx context.Context, asset release.Asset) ([]byte, error)
	Evict(asset release.Asset) error
}

// Inventorier lists the files installed in a content directory
type Inventorier interface {
	Scan(ctx context.Context, dir string) (content.Inventory, error)
}

// Fetcher downloads declared entries into a content directory
type Fetcher interface {
	Fetch(ctx context.Context, entries content.Inventory, destDir string) (*download.Report, error)
}

// Deps are the collaborators of an Engine
type Deps struct {
	State    *packstate.Store
	Provider release.Provider
	Bundles  BundleLoader
	Resolver *archive.Resolver
	Scanner  Inventorier
	Fetcher  Fetcher
	// Progress may be nil.
	Progress *progress.Reporter
}

// Options tune a single Engine
type Options struct {
	// BundleExt selects the release asset to install
	BundleExt string
	DryRun    bool
	// Force runs a full resync even when the installed version is current
	Force bool
}

// Engine orchestrates the sync process
type Engine struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// NewEngine creates a new sync engine
func NewEngine(deps Deps, opts Options, logger *slog.Logger) *Engine {
	if opts.BundleExt == "" {
		opts.BundleExt = ".zip"
	}
	return &Engine{
		deps:   deps,
		opts:   opts,
		logger: logger,
	}
}

// Run executes the complete sync process. Errors returned before the apply
// phase leave the pack untouched. installed_version is written last and only
// when every per-file step succeeded, so an interrupted or partially failed
// run is retried in full next time.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	logger := e.logger.With("run_id", runID)
	report := e.deps.Progress

	state, err := e.deps.State.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load pack state: %w", err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pack state: %w", err)
	}

	force := e.opts.Force || state.ForceFullResync
	res := &Result{
		RunID:           runID,
		PreviousVersion: state.InstalledVersion,
		DryRun:          e.opts.DryRun,
		Forced:          force,
	}

	logger.Info("starting sync",
		"pack", state.PackLocation,
		"installed", state.InstalledVersion,
		"force", force,
		"dry_run", e.opts.DryRun)

	rel, err := e.deps.Provider.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	res.ReleaseTag = rel.TagName

	if !e.opts.Force && !packstate.NeedsUpdate(state.InstalledVersion, rel.TagName) {
		logger.Info("pack is up to date", "version", state.InstalledVersion, "release", rel.TagName)
		res.NotNeeded = true
		report.Report(stepCommitted, progress.StatusNotNeeded)
		return res, nil
	}
	logger.Info("update found", "installed", state.InstalledVersion, "release", rel.TagName)
	report.Report(stepUpdateFound, progress.StatusInProgress)

	asset, err := rel.FindAsset(e.opts.BundleExt)
	if err != nil {
		return nil, syncerr.MissingPayload("%v", err)
	}
	report.Report(stepBundleSelected, progress.StatusInProgress)

	bundle, err := e.deps.Bundles.Load(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle %s: %w", asset.Name, err)
	}
	report.Report(stepBundleLoaded, progress.StatusInProgress)

	payload, err := e.deps.Resolver.OpenBundle(bundle)
	if err != nil {
		e.evictBundle(logger, asset)
		return nil, fmt.Errorf("failed to open bundle %s: %w", asset.Name, err)
	}
	index, err := e.deps.Resolver.ReadIndex(payload)
	if err != nil {
		e.evictBundle(logger, asset)
		return nil, fmt.Errorf("failed to read pack index: %w", err)
	}

	mode := manifest.HashAware
	if force {
		mode = manifest.HashBlind
	}
	parsed, err := manifest.Parse(index, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pack index: %w", err)
	}
	res.Skipped = parsed.Skipped
	logger.Info("parsed pack index",
		"name", parsed.Name,
		"version", parsed.VersionID,
		"declared", len(parsed.Entries),
		"skipped", parsed.Skipped)
	report.Report(stepManifestParsed, progress.StatusInProgress)

	modsDir := state.ModsDir()
	var local content.Inventory
	if !force {
		local, err = e.deps.Scanner.Scan(ctx, modsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", modsDir, err)
		}
		logger.Info("scanned installed files", "dir", modsDir, "count", len(local))
	}
	report.Report(stepInventoryBuilt, progress.StatusInProgress)

	result := diff.Compute(local, parsed.Entries, force)
	res.Plan = buildPlan(result, modsDir)
	res.Kept = len(result.Keep)
	logger.Info("sync plan",
		"wipe_all", result.WipeAll,
		"keep", len(result.Keep),
		"delete", len(result.Delete),
		"download", len(result.Download))
	report.Report(stepDiffComputed, progress.StatusInProgress)

	if e.opts.DryRun {
		e.logPlanDetails(logger, res.Plan)
		logger.Info("dry-run complete, no changes applied")
		report.Report(stepCommitted, progress.StatusDone)
		return res, nil
	}

	res.Deleted, res.Failures = e.applyDeletions(logger, res.Plan, modsDir)

	extracted, err := e.deps.Resolver.Extract(ctx, payload, state.PackLocation)
	if extracted != nil {
		res.Extracted = extracted.Files
		res.Failures = append(res.Failures, extracted.Failed...)
	}
	if err != nil {
		return res, fmt.Errorf("extraction interrupted: %w", err)
	}
	logger.Info("extracted overrides", "files", extracted.Files, "dirs", extracted.Dirs, "ignored", extracted.Ignored)
	report.Report(stepExtracted, progress.StatusInProgress)

	fetched, err := e.deps.Fetcher.Fetch(ctx, result.Download, modsDir)
	if fetched != nil {
		res.Downloaded = len(fetched.Written)
		res.DownloadedBytes = fetched.Bytes
		res.Failures = append(res.Failures, fetched.Failed...)
	}
	if err != nil {
		return res, fmt.Errorf("downloads interrupted: %w", err)
	}
	report.Report(stepDownloaded, progress.StatusInProgress)

	if res.Failed() {
		logger.Warn("sync finished with failures, keeping previous version",
			"failures", len(res.Failures),
			"version", state.InstalledVersion)
		for _, f := range res.Failures {
			logger.Warn("file failed", "failure", f.String())
		}
		report.Report(stepCommitted, progress.StatusDone)
		return res, nil
	}

	version := parsed.VersionID
	if version == "" {
		version = rel.TagName
	}
	if err := e.deps.State.CommitVersion(version); err != nil {
		return res, fmt.Errorf("failed to save pack state: %w", err)
	}
	res.InstalledVersion = version
	res.Committed = true

	logger.Info("sync completed successfully",
		"version", version,
		"deleted", res.Deleted,
		"extracted", res.Extracted,
		"downloaded", res.Downloaded)
	report.Report(stepCommitted, progress.StatusDone)
	return res, nil
}

// evictBundle forgets an unusable bundle so a later run downloads it again
func (e *Engine) evictBundle(logger *slog.Logger, asset release.Asset) {
	if err := e.deps.Bundles.Evict(asset); err != nil {
		logger.Warn("failed to evict cached bundle", "asset", asset.Name, "error", err)
		return
	}
	logger.Info("evicted unusable bundle", "asset", asset.Name)
}

// buildPlan turns a diff into the concrete filesystem operations
func buildPlan(result diff.Result, modsDir string) *Plan {
	plan := &Plan{
		WipeAll:  result.WipeAll,
		Delete:   make([]string, 0, len(result.Delete)),
		Download: make([]string, 0, len(result.Download)),
		Keep:     len(result.Keep),
	}
	for _, entry := range result.Delete {
		plan.Delete = append(plan.Delete, filepath.Join(modsDir, entry.Name()))
	}
	for _, entry := range result.Download {
		plan.Download = append(plan.Download, entry.Name())
	}
	return plan
}

// applyDeletions removes stale files, or the whole mods directory for a
// full resync. Missing files are not failures.
func (e *Engine) applyDeletions(logger *slog.Logger, plan *Plan, modsDir string) (int, []syncerr.FileFailure) {
	if plan.WipeAll {
		logger.Info("removing content directory for full resync", "dir", modsDir)
		if err := os.RemoveAll(modsDir); err != nil {
			logger.Warn("failed to remove content directory", "dir", modsDir, "error", err)
			return 0, []syncerr.FileFailure{{Path: modsDir, Err: syncerr.IO("remove", modsDir, err)}}
		}
		return 0, nil
	}

	var (
		deleted  int
		failures []syncerr.FileFailure
	)
	for _, path := range plan.Delete {
		logger.Info("deleting file", "path", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to delete file", "path", path, "error", err)
			failures = append(failures, syncerr.FileFailure{Path: path, Err: syncerr.IO("remove", path, err)})
			continue
		}
		deleted++
	}
	return deleted, failures
}

// logPlanDetails logs detailed plan information for dry-run
func (e *Engine) logPlanDetails(logger *slog.Logger, plan *Plan) {
	if plan.WipeAll {
		logger.Info("[dry-run] would remove content directory")
	}
	for _, path := range plan.Delete {
		logger.Info("[dry-run] would delete", "path", path)
	}
	for _, name := range plan.Download {
		logger.Info("[dry-run] would download", "name", name)
	}
}
