package event

import "strings"

// Type is a lifecycle event type.
type Type string

// Lifecycle event types. The terminal set collapses to boolean liveness
// plus a reason code for display; StaleExpired is synthesized by the
// materializer/reconciler when a running record goes quiet past its TTL,
// it is never produced by an external source.
const (
	TypeStarted      Type = "started"
	TypeHeartbeat    Type = "heartbeat"
	TypeFinished     Type = "finished"
	TypeFailed       Type = "failed"
	TypeCancelled    Type = "cancelled"
	TypeTimedOut     Type = "timed_out"
	TypeStaleExpired Type = "stale_expired"
)

// Terminal reports whether t closes a run. Terminal is absorbing: once a
// run reaches a terminal state no later event may reopen it.
func (t Type) Terminal() bool {
	switch t {
	case TypeFinished, TypeFailed, TypeCancelled, TypeTimedOut, TypeStaleExpired:
		return true
	}
	return false
}

// Running reports whether t indicates a live run.
func (t Type) Running() bool {
	return t == TypeStarted || t == TypeHeartbeat
}

// NormalizeTerminal maps heterogeneous terminal labels from external
// sources ("ok", "success", "timeout", "canceled", ...) to canonical
// event types. Unknown labels default to finished.
func NormalizeTerminal(value string) Type {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")

	switch normalized {
	case "finished", "failed", "cancelled", "timed_out", "stale_expired":
		return Type(normalized)
	case "ok", "success", "succeeded", "complete", "completed", "done":
		return TypeFinished
	case "timeout", "timedout":
		return TypeTimedOut
	case "error", "errored", "failure":
		return TypeFailed
	case "canceled":
		return TypeCancelled
	}
	return TypeFinished
}

// Source names for the external signals that produce events.
const (
	SourceCronRuns         = "cron-runs"
	SourceSubagentRegistry = "subagent-registry"
	SourceSessionsStore    = "sessions-store"
)

// SourcePriority orders events from different sources that share a
// timestamp. Cron run logs are the most authoritative signal, the
// sessions store the least. Unknown sources sort last.
func SourcePriority(source string) int {
	switch source {
	case SourceCronRuns:
		return 0
	case SourceSubagentRegistry:
		return 1
	case SourceSessionsStore:
		return 2
	}
	return 50
}

// Payload carries display metadata through the journal unchanged. All
// fields are optional; the materializer merges them first-wins.
type Payload struct {
	JobID        string `json:"jobId,omitempty"`
	JobName      string `json:"jobName,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	SessionKey   string `json:"sessionKey,omitempty"`
	Summary      string `json:"summary,omitempty"`
	StartedAtMs  int64  `json:"startedAtMs,omitempty"`
	LastSeenAtMs int64  `json:"lastSeenAtMs,omitempty"`
	ActivityType string `json:"activityType,omitempty"`
	Model        string `json:"model,omitempty"`
	Thinking     string `json:"thinking,omitempty"`
	Status       string `json:"status,omitempty"`
}

// Event is one immutable lifecycle fact, serialized as a single JSON
// line in the journal.
type Event struct {
	EventID      string  `json:"eventId"`
	RunKey       string  `json:"runKey"`
	Type         Type    `json:"eventType"`
	AtMs         int64   `json:"eventAtMs"`
	Source       string  `json:"source"`
	SourceOffset string  `json:"sourceOffset"`
	Payload      Payload `json:"payload"`
}

// New builds a canonical event with a deterministic id. Terminal labels
// are normalized; running types pass through unchanged.
func New(runKey string, typ Type, atMs int64, source, sourceOffset string, payload Payload) Event {
	if !typ.Running() {
		typ = NormalizeTerminal(string(typ))
	}
	return Event{
		EventID:      ID(runKey, typ, atMs, source, sourceOffset),
		RunKey:       runKey,
		Type:         typ,
		AtMs:         atMs,
		Source:       source,
		SourceOffset: sourceOffset,
		Payload:      payload,
	}
}
