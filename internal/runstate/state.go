package runstate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/roach88/runtruth/internal/journal"
)

// RevisionPrefix versions the revision string format.
const RevisionPrefix = "rtv1-"

var revisionRE = regexp.MustCompile(`^rtv1-(\d+)$`)

// State is the materialized snapshot: the run map plus the journal
// checkpoint it was derived from and a monotonically increasing
// revision readers use to observe progress.
type State struct {
	Revision      string         `json:"revision"`
	GeneratedAtMs int64          `json:"generatedAtMs"`
	Checkpoint    journal.Cursor `json:"checkpoint"`
	Runs          RunMap         `json:"runs"`

	TerminalCount     int `json:"terminalCount"`
	DroppedStaleCount int `json:"droppedStaleCount"`
}

// NewState returns an empty snapshot with a zero revision.
func NewState() *State {
	return &State{
		Revision: FormatRevision(0),
		Runs:     RunMap{},
	}
}

// ActiveRecords returns the running records sorted by (startedAtMs,
// runKey) for deterministic output.
func (s *State) ActiveRecords() []*Record {
	var active []*Record
	for _, rec := range s.Runs {
		if rec.State == Running {
			active = append(active, rec)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].StartedAtMs != active[j].StartedAtMs {
			return active[i].StartedAtMs < active[j].StartedAtMs
		}
		return active[i].RunKey < active[j].RunKey
	})
	return active
}

// FormatRevision renders a revision number in the rtv1 format.
func FormatRevision(n int64) string {
	return fmt.Sprintf("%s%08d", RevisionPrefix, n)
}

// NextRevision increments a revision string. Unparseable revisions
// restart from 1 rather than failing; the revision only needs to be
// monotonic from the reader's perspective, not gap-free.
func NextRevision(prev string) string {
	return FormatRevision(RevisionNumber(prev) + 1)
}

// RevisionNumber extracts the numeric revision, 0 when unparseable.
func RevisionNumber(revision string) int64 {
	match := revisionRE.FindStringSubmatch(revision)
	if match == nil {
		return 0
	}
	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
