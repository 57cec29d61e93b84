package cleanup

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// Summary aggregates one run's outcome. The executor fills the counters and
// failure sets; the CLI adds the run parameters and any dry-run action log.
type Summary struct {
	Tenant string
	Pool   string
	DryRun bool

	VolumesRemoved           int
	CloneSnapshotsRemoved    int
	InternalSnapshotsRemoved int
	TrashRemoved             int

	FailedRemovals     []string
	FailedRestorations []string
	// UnresolvedTrash lists failed restorations whose trash entry still
	// exists after retries: a dependency that was neither restored nor
	// purged, and the reason a run with "progress" can still fail.
	UnresolvedTrash []string

	PlannedActions []string
}

// Succeeded is the single overall verdict the exit code is derived from.
// A run succeeds when nothing failed to be removed and no trashed dependency
// target was left behind.
func (s *Summary) Succeeded() bool {
	return len(s.FailedRemovals) == 0 && len(s.UnresolvedTrash) == 0
}

// Render writes the run summary as a table plus failure details.
func (s *Summary) Render(w io.Writer) {
	mode := "live"
	if s.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(w, "\nCleanup summary for tenant %s (pool %s, %s):\n", s.Tenant, s.Pool, mode)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Count"})
	table.Append([]string{"Volumes removed", strconv.Itoa(s.VolumesRemoved)})
	table.Append([]string{"Clone snapshots removed", strconv.Itoa(s.CloneSnapshotsRemoved)})
	table.Append([]string{"Internal snapshots removed", strconv.Itoa(s.InternalSnapshotsRemoved)})
	table.Append([]string{"Trash items removed", strconv.Itoa(s.TrashRemoved)})
	table.Append([]string{"Failed removals", strconv.Itoa(len(s.FailedRemovals))})
	table.Append([]string{"Failed restorations", strconv.Itoa(len(s.FailedRestorations))})
	table.Render()

	for _, name := range s.FailedRemovals {
		fmt.Fprintf(w, "failed to remove: %s\n", name)
	}
	for _, name := range s.FailedRestorations {
		fmt.Fprintf(w, "failed to restore: %s\n", name)
	}
	for _, name := range s.UnresolvedTrash {
		fmt.Fprintf(w, "still in trash: %s\n", name)
	}

	if s.DryRun && len(s.PlannedActions) > 0 {
		fmt.Fprintf(w, "\nPlanned actions (%d):\n", len(s.PlannedActions))
		for _, a := range s.PlannedActions {
			fmt.Fprintf(w, "  - %s\n", a)
		}
	}

	if s.Succeeded() {
		fmt.Fprintln(w, "\nResult: SUCCESS")
	} else {
		fmt.Fprintln(w, "\nResult: FAILURE")
	}
}
