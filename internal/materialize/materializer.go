// Package materialize replays the journal into the persisted runtime
// state snapshot.
//
// Each pass resumes from the previous snapshot's checkpoint, applies
// new events in the canonical deterministic order, expires orphans,
// prunes old terminal records, and atomically replaces the snapshot
// with an incremented revision. Running it repeatedly with no new
// events still advances the revision so readers can observe freshness.
package materialize

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/runtruth/internal/config"
	"github.com/roach88/runtruth/internal/event"
	"github.com/roach88/runtruth/internal/journal"
	"github.com/roach88/runtruth/internal/runstate"
)

// Materializer folds journal events into the runtime state file. It
// only reads the journal, so it is safe to run concurrently with the
// collector.
type Materializer struct {
	JournalPath string
	StatePath   string
	Policy      config.Policy
	Log         *slog.Logger
}

// Materialize runs one replay pass at the given wall time and persists
// the resulting snapshot. The returned state is the persisted value.
func (m *Materializer) Materialize(nowMs int64) (*runstate.State, error) {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("pass", uuid.Must(uuid.NewV7()).String())

	prior, err := runstate.LoadState(m.StatePath)
	if err != nil {
		if !errors.Is(err, runstate.ErrStateMissing) {
			log.Warn("prior state unreadable, rebuilding from journal start", "error", err)
		}
		prior = runstate.NewState()
	}

	events, checkpoint, err := journal.Read(m.JournalPath, prior.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}
	event.Sort(events)

	runs := prior.Runs
	if runs == nil {
		runs = runstate.RunMap{}
	}
	for _, ev := range events {
		runs.Apply(ev)
	}

	expired := runs.ExpireStale(nowMs, m.Policy.StaleTTLMs)
	pruned := runs.Prune(nowMs, m.Policy.RecencyWindowMs)

	terminalCount := 0
	for _, rec := range runs {
		if rec.State == runstate.Terminal {
			terminalCount++
		}
	}

	state := &runstate.State{
		Revision:          runstate.NextRevision(prior.Revision),
		GeneratedAtMs:     nowMs,
		Checkpoint:        checkpoint,
		Runs:              runs,
		TerminalCount:     terminalCount,
		DroppedStaleCount: expired,
	}

	if err := runstate.WriteState(m.StatePath, state); err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}

	log.Info("materialized runtime state",
		"revision", state.Revision,
		"applied", len(events),
		"active", len(state.ActiveRecords()),
		"terminal", terminalCount,
		"expired", expired,
		"pruned", pruned,
	)
	return state, nil
}
