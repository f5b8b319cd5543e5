// Package truth chooses the best available answer to "what is running
// right now" and shapes it into the runtime payload the dashboard
// builder consumes.
//
// Selection order is materialized snapshot, then live reconciliation
// from raw sources, then a sanitized idle fallback. Every payload
// carries provenance so consumers can assert which path produced it
// instead of inferring.
package truth

// Provenance of a runtime payload.
const (
	SourceMaterialized = "materialized-ledger"
	SourceReconciler   = "live-reconciler"
	SourceFallback     = "fallback-static"
)

// Snapshot modes. Sanitized marks payloads whose run data was discarded
// because no trustworthy source was available.
const (
	SnapshotModeLive      = "live"
	SnapshotModeSanitized = "fallback-sanitized"
)

const (
	StatusIdle    = "idle"
	StatusRunning = "running"
)

// ReasonMaterializedStale is reported when the snapshot exists but its
// generatedAtMs is outside the freshness window.
const ReasonMaterializedStale = "materialized-state-stale"

// ActiveRun is one currently-executing run as shown to the dashboard.
type ActiveRun struct {
	RunKey         string `json:"runKey,omitempty"`
	JobID          string `json:"jobId"`
	JobName        string `json:"jobName"`
	SessionID      string `json:"sessionId"`
	SessionKey     string `json:"sessionKey"`
	Summary        string `json:"summary"`
	StartedAtMs    int64  `json:"startedAtMs"`
	StartedAtLocal string `json:"startedAtLocal"`
	RunningForMs   int64  `json:"runningForMs"`
	LastSeenAtMs   int64  `json:"lastSeenAtMs,omitempty"`
	ActivityType   string `json:"activityType"`
	Model          string `json:"model,omitempty"`
	Thinking       string `json:"thinking,omitempty"`
}

// Runtime is the payload contract with the dashboard builder.
// ActiveRuns is always a list, never null, so consumers can iterate
// without a presence check.
type Runtime struct {
	Status               string      `json:"status"`
	IsIdle               bool        `json:"isIdle"`
	ActiveCount          int         `json:"activeCount"`
	ActiveRuns           []ActiveRun `json:"activeRuns"`
	CheckedAtMs          int64       `json:"checkedAtMs"`
	Source               string      `json:"source"`
	Revision             string      `json:"revision"`
	SnapshotMode         string      `json:"snapshotMode"`
	DegradedReason       string      `json:"degradedReason,omitempty"`
	DroppedTerminalCount int         `json:"droppedTerminalCount,omitempty"`
	DroppedStaleCount    int         `json:"droppedStaleCount,omitempty"`
}
