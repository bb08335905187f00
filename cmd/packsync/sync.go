package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/schaermu/packsync/internal/archive"
	"github.com/schaermu/packsync/internal/config"
	"github.com/schaermu/packsync/internal/download"
	"github.com/schaermu/packsync/internal/packstate"
	"github.com/schaermu/packsync/internal/progress"
	"github.com/schaermu/packsync/internal/release"
	"github.com/schaermu/packsync/internal/scan"
	"github.com/schaermu/packsync/internal/sync"
	"github.com/schaermu/packsync/internal/ui"
	"github.com/schaermu/packsync/internal/webhook"
)

var (
	dryRun     bool
	forceSync  bool
	noProgress bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Update the pack once from the latest release",
	Long: `Sync checks the latest release, and when it is newer than the installed
version downloads the release bundle, removes files that are no longer part of
the pack, installs bundled overrides and downloads changed mods.

The installed version is only recorded after every file was handled, so a
cancelled or partially failed sync is simply retried by the next run.`,
	RunE: runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installed and the latest available version",
	RunE:  runStatus,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sync on GitHub release webhooks and on a poll interval",
	Long: `Serve performs an initial sync and then keeps running. Signed GitHub
release webhooks received on serve.listen_addr and, when serve.poll_interval
is set, a periodic timer trigger further syncs. At most one sync runs at a
time.`,
	RunE: runServe,
}

func init() {
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	syncCmd.Flags().BoolVar(&forceSync, "force", false, "wipe and re-download the mods directory even when up to date")
	syncCmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar")
}

// newEngine wires the engine's collaborators from cfg
func newEngine(cfg *config.Config, logger *slog.Logger, reporter *progress.Reporter, opts sync.Options) (*sync.Engine, error) {
	scanner, err := scan.New(scan.Options{
		Workers:   cfg.Sync.HashWorkers,
		CacheSize: cfg.Sync.DigestCacheSize,
	}, logger)
	if err != nil {
		return nil, err
	}

	downloader := download.New(download.Options{
		Workers:   cfg.Sync.DownloadWorkers,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.RequestTimeout(),
	}, logger)

	opts.BundleExt = cfg.Source.BundleExt

	return sync.NewEngine(sync.Deps{
		State: packstate.NewStore(cfg.Paths.StateFile),
		Provider: release.NewGitHubProvider(
			cfg.Source.ReleaseURL,
			cfg.Source.UserAgent,
			cfg.Source.TokenFile,
			cfg.RequestTimeout(),
			logger),
		Bundles: release.NewCache(cfg.Paths.CacheDir, downloader, logger),
		Resolver: archive.NewResolver(archive.Options{
			PayloadExt: cfg.Source.PayloadExt,
			IndexName:  cfg.Source.IndexName,
			Workers:    cfg.Sync.ExtractWorkers,
		}, logger),
		Scanner:  scanner,
		Fetcher:  downloader,
		Progress: reporter,
	}, opts, logger), nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reporter := progress.NewReporter()
	engine, err := newEngine(cfg, logger, reporter, sync.Options{DryRun: dryRun, Force: forceSync})
	if err != nil {
		return err
	}

	type outcome struct {
		res *sync.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := engine.Run(ctx)
		reporter.Close()
		done <- outcome{res: res, err: err}
	}()

	renderer := ui.NewRenderer(os.Stdout, !noProgress && ui.IsTerminal(os.Stdout))
	ui.Watch(reporter.Events(), renderer)

	out := <-done
	if out.err != nil {
		logger.Error("sync failed", "error", out.err)
		return out.err
	}

	ui.Summary(os.Stdout, out.res)
	if out.res.Failed() {
		return fmt.Errorf("%d file(s) failed to sync", len(out.res.Failures))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	state, err := packstate.NewStore(cfg.Paths.StateFile).Load()
	if err != nil {
		return err
	}

	provider := release.NewGitHubProvider(cfg.Source.ReleaseURL, cfg.Source.UserAgent, cfg.Source.TokenFile, cfg.RequestTimeout(), logger)
	rel, err := provider.Latest(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch latest release: %w", err)
	}

	fmt.Printf("pack:      %s\n", state.PackLocation)
	fmt.Printf("installed: %s\n", displayOr(state.InstalledVersion, "unknown"))
	fmt.Printf("latest:    %s\n", rel.TagName)
	if packstate.NeedsUpdate(state.InstalledVersion, rel.TagName) {
		fmt.Println("status:    update available")
	} else {
		fmt.Println("status:    up to date")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := newEngine(cfg, logger, nil, sync.Options{})
	if err != nil {
		return err
	}

	server, err := webhook.NewServer(cfg, engine, logger)
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}

	return server.Start(ctx)
}
