// Package event defines the immutable runtime lifecycle event model.
//
// Events are facts: a run started, heartbeated, or reached a terminal
// state. They are identified by a deterministic content hash so that
// overlapping collector passes can re-derive the same fact and have it
// deduplicate cleanly. Events are never mutated or deleted; the journal
// they land in is append-only.
package event
