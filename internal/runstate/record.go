package runstate

import "github.com/roach88/runtruth/internal/event"

// Kind is the liveness state of a run record.
type Kind string

const (
	Running  Kind = "running"
	Terminal Kind = "terminal"
)

// ReasonStaleExpired marks runs demoted to terminal by TTL expiry
// rather than an observed terminal event.
const ReasonStaleExpired = "stale-orphan-expired"

// Record is the derived, mutable liveness record for one run. It is
// owned exclusively by the materializer/reconciler; everyone else reads
// snapshots.
type Record struct {
	RunKey         string `json:"runKey"`
	State          Kind   `json:"state"`
	StartedAtMs    int64  `json:"startedAtMs"`
	LastSeenAtMs   int64  `json:"lastSeenAtMs"`
	TerminalAtMs   int64  `json:"terminalAtMs,omitempty"`
	TerminalReason string `json:"terminalReason,omitempty"`

	JobID        string `json:"jobId,omitempty"`
	JobName      string `json:"jobName,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	SessionKey   string `json:"sessionKey,omitempty"`
	Summary      string `json:"summary,omitempty"`
	ActivityType string `json:"activityType,omitempty"`
	Model        string `json:"model,omitempty"`
	Thinking     string `json:"thinking,omitempty"`
}

// RunMap is the in-memory run table keyed by run key.
type RunMap map[string]*Record

// Apply folds one event into the run map under the transition rules:
//
//   - Terminal dominance: a terminal record absorbs everything. No
//     later-arriving event, whatever its timestamp, reopens it.
//   - A terminal event closes the record (creating one if the start was
//     never observed, so a finish-only run still leaves a tombstone).
//   - Running events merge: minimum start, maximum last-seen, first
//     non-empty metadata wins.
//
// Apply is idempotent: folding the same event twice leaves the record
// unchanged, because min/max/first-wins merges and the absorbing
// terminal state are all fixed points.
func (m RunMap) Apply(ev event.Event) {
	if ev.RunKey == "" {
		return
	}

	rec := m[ev.RunKey]
	if rec != nil && rec.State == Terminal {
		return
	}

	if ev.Type.Terminal() {
		if rec == nil {
			rec = &Record{
				RunKey:      ev.RunKey,
				StartedAtMs: ev.AtMs,
			}
			m[ev.RunKey] = rec
		}
		rec.State = Terminal
		rec.TerminalAtMs = ev.AtMs
		rec.TerminalReason = string(ev.Type)
		if rec.LastSeenAtMs < ev.AtMs {
			rec.LastSeenAtMs = ev.AtMs
		}
		return
	}

	if !ev.Type.Running() {
		return
	}

	startCandidate := ev.AtMs
	if ev.Payload.StartedAtMs > 0 {
		startCandidate = ev.Payload.StartedAtMs
	}
	seenCandidate := ev.AtMs
	if ev.Payload.LastSeenAtMs > 0 {
		seenCandidate = ev.Payload.LastSeenAtMs
	}

	if rec == nil {
		rec = &Record{
			RunKey:       ev.RunKey,
			State:        Running,
			StartedAtMs:  startCandidate,
			LastSeenAtMs: seenCandidate,
		}
		m[ev.RunKey] = rec
	} else {
		if startCandidate < rec.StartedAtMs {
			rec.StartedAtMs = startCandidate
		}
		if seenCandidate > rec.LastSeenAtMs {
			rec.LastSeenAtMs = seenCandidate
		}
	}

	mergeMeta(rec, ev.Payload)
}

// mergeMeta fills empty metadata fields; the first observed value wins.
func mergeMeta(rec *Record, p event.Payload) {
	if rec.JobID == "" {
		rec.JobID = p.JobID
	}
	if rec.JobName == "" {
		rec.JobName = p.JobName
	}
	if rec.SessionID == "" {
		rec.SessionID = p.SessionID
	}
	if rec.SessionKey == "" {
		rec.SessionKey = p.SessionKey
	}
	if rec.Summary == "" {
		rec.Summary = p.Summary
	}
	if rec.ActivityType == "" {
		rec.ActivityType = p.ActivityType
	}
	if rec.Model == "" {
		rec.Model = p.Model
	}
	if rec.Thinking == "" {
		rec.Thinking = p.Thinking
	}
}

// ExpireStale demotes running records with no signal newer than their
// TTL to terminal with reason stale-orphan-expired. This is the only
// path that closes a run whose producer crashed without a terminal
// event. Returns the number of runs expired.
func (m RunMap) ExpireStale(nowMs int64, ttlMs func(activityType string) int64) int {
	expired := 0
	for _, rec := range m {
		if rec.State != Running {
			continue
		}
		if nowMs-rec.LastSeenAtMs > ttlMs(rec.ActivityType) {
			rec.State = Terminal
			rec.TerminalAtMs = nowMs
			rec.TerminalReason = ReasonStaleExpired
			expired++
		}
	}
	return expired
}

// Prune drops terminal records older than the recency window so the
// snapshot stays bounded. Running records are never pruned. Returns the
// number of records removed.
func (m RunMap) Prune(nowMs, recencyWindowMs int64) int {
	pruned := 0
	for key, rec := range m {
		if rec.State != Terminal {
			continue
		}
		if nowMs-rec.TerminalAtMs > recencyWindowMs {
			delete(m, key)
			pruned++
		}
	}
	return pruned
}
