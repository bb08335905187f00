package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/schaermu/packsync/internal/config"
	"github.com/schaermu/packsync/internal/packstate"
)

var (
	initPack       string
	initVersion    string
	initReleaseURL string
	initForceFull  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Record which pack folder packsync manages",
	Long: `Init records the installed pack folder and its version in the state file.

Without --pack, init asks for the folder interactively. The installed version
defaults to the last space-separated word of the folder name, so a folder
called "The Pack 1.4" is recorded as version 1.4.

When no configuration file exists yet, pass --release-url to create one.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initPack, "pack", "", "pack folder (prompted for when omitted on a terminal)")
	initCmd.Flags().StringVar(&initVersion, "installed-version", "", "installed pack version (default: inferred from the folder name)")
	initCmd.Flags().StringVar(&initReleaseURL, "release-url", "", "GitHub releases/latest API URL, used to create a missing config file")
	initCmd.Flags().BoolVar(&initForceFull, "force-full-resync", false, "always wipe and re-download the mods directory")
}

func runInit(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	if err := ensureConfig(configPath(), initReleaseURL); err != nil {
		return err
	}
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pack, installed := initPack, initVersion
	if pack == "" {
		if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			return fmt.Errorf("--pack is required when stdin is not a terminal")
		}
		pack, installed, err = promptPack()
		if err != nil {
			return err
		}
	}

	state, err := newState(pack, installed, initForceFull)
	if err != nil {
		return err
	}

	store := packstate.NewStore(cfg.Paths.StateFile)
	if err := store.Save(state); err != nil {
		return err
	}

	logger.Info("pack state initialized",
		"state_file", store.Path(),
		"pack", state.PackLocation,
		"installed_version", state.InstalledVersion)
	fmt.Printf("Managing %s (version %s)\n", state.PackLocation, displayOr(state.InstalledVersion, "unknown"))
	return nil
}

// ensureConfig writes a default config for releaseURL when path does not exist
func ensureConfig(path, releaseURL string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	if releaseURL == "" {
		return fmt.Errorf("no config file at %s; pass --release-url to create one", path)
	}
	if err := config.Save(path, config.New(releaseURL)); err != nil {
		return err
	}
	fmt.Printf("Wrote configuration to %s\n", path)
	return nil
}

// newState validates the pack folder and fills in the version from its name
func newState(pack, installed string, forceFull bool) (*packstate.State, error) {
	abs, err := filepath.Abs(pack)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pack folder: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("pack folder not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pack location %s is not a directory", abs)
	}

	if installed == "" {
		installed = packstate.VersionFromFolder(abs)
	}

	state := &packstate.State{
		PackLocation:     abs,
		InstalledVersion: installed,
		ForceFullResync:  forceFull,
	}
	return state, state.Validate()
}

func promptPack() (string, string, error) {
	var pack string
	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Pack folder").
			Description("The instance folder that contains the mods directory.").
			Value(&pack).
			Validate(func(s string) error {
				s = strings.TrimSpace(s)
				if s == "" {
					return fmt.Errorf("pack folder cannot be empty")
				}
				info, err := os.Stat(s)
				if err != nil || !info.IsDir() {
					return fmt.Errorf("not a directory: %s", s)
				}
				return nil
			}),
	)).Run(); err != nil {
		return "", "", err
	}
	pack = strings.TrimSpace(pack)

	installed := packstate.VersionFromFolder(pack)
	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Installed version").
			Description("Leave empty to install the latest release on the next sync.").
			Value(&installed),
	)).Run(); err != nil {
		return "", "", err
	}

	return pack, strings.TrimSpace(installed), nil
}

func displayOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
