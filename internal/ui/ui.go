// Package ui renders sync progress and results for a terminal or a log file.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"

	"github.com/schaermu/packsync/internal/progress"
	packsync "github.com/schaermu/packsync/internal/sync"
)

// IsTerminal reports whether f is an interactive terminal and NO_COLOR is unset
func IsTerminal(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Renderer presents progress events
type Renderer interface {
	Update(ev progress.Event)
	Finish(ev progress.Event)
}

// NewRenderer returns a progress bar renderer for terminals and a line
// renderer otherwise.
func NewRenderer(w io.Writer, interactive bool) Renderer {
	if interactive {
		return &BarRenderer{}
	}
	return &PlainRenderer{w: w, lastPercent: -1}
}

// Watch feeds every event to r until events is closed and returns the last one
func Watch(events <-chan progress.Event, r Renderer) progress.Event {
	var last progress.Event
	for ev := range events {
		last = ev
		r.Update(ev)
	}
	r.Finish(last)
	return last
}

// StatusText is the user-facing wording of a status
func StatusText(s progress.Status) string {
	switch s {
	case progress.StatusNotNeeded:
		return "Pack is up to date"
	case progress.StatusInProgress:
		return "Updating pack"
	case progress.StatusDone:
		return "Update complete"
	default:
		return "Waiting"
	}
}

const barTotal = 100

// BarRenderer draws a pterm progress bar
type BarRenderer struct {
	bar *pterm.ProgressbarPrinter
}

func (r *BarRenderer) Update(ev progress.Event) {
	if r.bar == nil {
		bar, err := pterm.DefaultProgressbar.
			WithTotal(barTotal).
			WithTitle(StatusText(ev.Status)).
			WithRemoveWhenDone(false).
			Start()
		if err != nil {
			return
		}
		r.bar = bar
	}

	r.bar.UpdateTitle(StatusText(ev.Status))
	if delta := int(ev.Fraction*barTotal) - r.bar.Current; delta > 0 {
		r.bar.Add(delta)
	}
}

func (r *BarRenderer) Finish(ev progress.Event) {
	if r.bar == nil {
		return
	}
	r.Update(ev)
	_, _ = r.bar.Stop()
}

// PlainRenderer prints one line whenever the percentage or status changes
type PlainRenderer struct {
	w           io.Writer
	lastPercent int
	lastStatus  progress.Status
}

func (r *PlainRenderer) Update(ev progress.Event) {
	percent := int(ev.Fraction * 100)
	if percent == r.lastPercent && ev.Status == r.lastStatus {
		return
	}
	r.lastPercent = percent
	r.lastStatus = ev.Status
	_, _ = fmt.Fprintf(r.w, "[%3d%%] %s\n", percent, StatusText(ev.Status))
}

func (r *PlainRenderer) Finish(ev progress.Event) {}

// Summary writes a short, coloured report of a sync run
func Summary(w io.Writer, res *packsync.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	switch {
	case res.NotNeeded:
		_, _ = fmt.Fprintf(w, "%s %s (%s)\n", green("✓"), StatusText(progress.StatusNotNeeded), res.PreviousVersion)
		return
	case res.DryRun:
		_, _ = fmt.Fprintf(w, "%s dry run for %s -> %s\n", yellow("•"), displayVersion(res.PreviousVersion), bold(res.ReleaseTag))
		if res.Plan != nil {
			if res.Plan.WipeAll {
				_, _ = fmt.Fprintf(w, "  would remove the mods directory\n")
			}
			for _, p := range res.Plan.Delete {
				_, _ = fmt.Fprintf(w, "  %s %s\n", red("-"), p)
			}
			for _, n := range res.Plan.Download {
				_, _ = fmt.Fprintf(w, "  %s %s\n", green("+"), n)
			}
		}
		return
	}

	_, _ = fmt.Fprintf(w, "%s -> %s: kept %d, deleted %d, extracted %d, downloaded %d (%s)\n",
		displayVersion(res.PreviousVersion), bold(res.ReleaseTag),
		res.Kept, res.Deleted, res.Extracted, res.Downloaded,
		humanize.Bytes(uint64(res.DownloadedBytes)))

	if res.Failed() {
		_, _ = fmt.Fprintf(w, "%s %d file(s) failed, version left at %s so the next run retries:\n",
			red("✗"), len(res.Failures), displayVersion(res.PreviousVersion))
		for _, f := range res.Failures {
			_, _ = fmt.Fprintf(w, "  %s\n", f.String())
		}
		return
	}
	_, _ = fmt.Fprintf(w, "%s %s, installed %s\n", green("✓"), StatusText(progress.StatusDone), res.InstalledVersion)
}

func displayVersion(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
