package sync

import (
	"github.com/schaermu/packsync/internal/syncerr"
)

// Result summarizes one sync run
type Result struct {
	RunID string

	PreviousVersion  string // installed_version before the run
	ReleaseTag       string // tag of the latest release
	InstalledVersion string // version written back, empty unless Committed

	NotNeeded bool // installed version already matches the release
	DryRun    bool
	Forced    bool // full resync: hashes ignored and mods dir wiped

	Kept            int
	Deleted         int
	Extracted       int
	Downloaded      int
	DownloadedBytes int64
	Skipped         int // manifest descriptors dropped as malformed or unverifiable

	Plan      *Plan
	Failures  []syncerr.FileFailure
	Committed bool
}

// Failed reports whether any per-file operation failed
func (r *Result) Failed() bool {
	return len(r.Failures) > 0
}

// Plan is the set of changes a run would apply
type Plan struct {
	WipeAll  bool
	Delete   []string // absolute paths
	Download []string // entry names
	Keep     int
}
