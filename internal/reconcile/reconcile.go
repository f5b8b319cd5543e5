// Package reconcile recomputes a live run snapshot directly from raw
// source observations, with no journal history.
//
// It is the degraded-path sibling of the materializer: where the
// materializer replays an ordered event log, the reconciler diffs
// "currently known started" against "currently known finished" in a
// single pass. It applies the same terminal-dominance and stale-TTL
// rules, biased toward terminal when in doubt so a completed run can
// never get stuck as a false "running".
package reconcile

import (
	"sort"

	"github.com/roach88/runtruth/internal/event"
	"github.com/roach88/runtruth/internal/runstate"
	"github.com/roach88/runtruth/internal/source"
)

// Candidate is a run currently observed as started or heartbeating.
type Candidate struct {
	RunKey       string
	StartedAtMs  int64
	LastSeenAtMs int64
	Payload      event.Payload
}

// Terminal is an observed completion for a run key.
type Terminal struct {
	RunKey string
	AtMs   int64
	Reason string
}

// Outcome is one reconciliation pass over the current observations.
type Outcome struct {
	// Active is sorted by (StartedAtMs, RunKey).
	Active []*runstate.Record

	DroppedTerminalCount int
	DroppedStaleCount    int
	TerminalCount        int
}

// FromObservations splits raw observations into running candidates and
// terminal facts.
func FromObservations(obs []source.Observation) ([]Candidate, []Terminal) {
	var candidates []Candidate
	var terminals []Terminal
	for _, o := range obs {
		if o.RunKey == "" {
			continue
		}
		switch {
		case o.Type.Terminal():
			terminals = append(terminals, Terminal{
				RunKey: o.RunKey,
				AtMs:   o.AtMs,
				Reason: string(o.Type),
			})
		case o.Type.Running():
			c := Candidate{
				RunKey:       o.RunKey,
				StartedAtMs:  o.AtMs,
				LastSeenAtMs: o.AtMs,
				Payload:      o.Payload,
			}
			if o.Payload.StartedAtMs > 0 {
				c.StartedAtMs = o.Payload.StartedAtMs
			}
			if o.Payload.LastSeenAtMs > 0 {
				c.LastSeenAtMs = o.Payload.LastSeenAtMs
			}
			candidates = append(candidates, c)
		}
	}
	return candidates, terminals
}

// Reconcile diffs candidates against terminals at the given wall time.
// A candidate is dropped when any terminal for its run key carries a
// timestamp at or after the candidate's start, and expired when its
// last signal is older than the TTL for its activity type. Survivors
// come back as running records in deterministic order.
func Reconcile(nowMs int64, candidates []Candidate, terminals []Terminal, ttlMs func(activityType string) int64) Outcome {
	merged := mergeCandidates(candidates)

	latestTerminal := make(map[string]Terminal, len(terminals))
	for _, t := range terminals {
		if prev, ok := latestTerminal[t.RunKey]; !ok || t.AtMs > prev.AtMs {
			latestTerminal[t.RunKey] = t
		}
	}

	out := Outcome{TerminalCount: len(latestTerminal)}
	for _, rec := range merged {
		if t, ok := latestTerminal[rec.RunKey]; ok && t.AtMs >= rec.StartedAtMs {
			out.DroppedTerminalCount++
			continue
		}
		if nowMs-rec.LastSeenAtMs > ttlMs(rec.ActivityType) {
			out.DroppedStaleCount++
			continue
		}
		out.Active = append(out.Active, rec)
	}

	sort.Slice(out.Active, func(i, j int) bool {
		a, b := out.Active[i], out.Active[j]
		if a.StartedAtMs != b.StartedAtMs {
			return a.StartedAtMs < b.StartedAtMs
		}
		return a.RunKey < b.RunKey
	})
	return out
}

// mergeCandidates folds duplicate sightings of one run key into a
// single record: minimum start, maximum last-seen, first non-empty
// metadata wins. Input order decides which sighting is "first", so
// callers pass observations in source-priority order.
func mergeCandidates(candidates []Candidate) []*runstate.Record {
	byKey := make(map[string]*runstate.Record, len(candidates))
	var order []string
	for _, c := range candidates {
		rec := byKey[c.RunKey]
		if rec == nil {
			rec = &runstate.Record{
				RunKey:       c.RunKey,
				State:        runstate.Running,
				StartedAtMs:  c.StartedAtMs,
				LastSeenAtMs: c.LastSeenAtMs,
			}
			byKey[c.RunKey] = rec
			order = append(order, c.RunKey)
		} else {
			if c.StartedAtMs < rec.StartedAtMs {
				rec.StartedAtMs = c.StartedAtMs
			}
			if c.LastSeenAtMs > rec.LastSeenAtMs {
				rec.LastSeenAtMs = c.LastSeenAtMs
			}
		}
		fillMeta(rec, c.Payload)
	}

	recs := make([]*runstate.Record, 0, len(order))
	for _, key := range order {
		recs = append(recs, byKey[key])
	}
	return recs
}

func fillMeta(rec *runstate.Record, p event.Payload) {
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
