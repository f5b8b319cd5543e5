package truth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/runtruth/internal/config"
	"github.com/roach88/runtruth/internal/reconcile"
	"github.com/roach88/runtruth/internal/runstate"
	"github.com/roach88/runtruth/internal/source"
)

// Selector produces the runtime payload. Location controls the
// rendering of startedAtLocal and defaults to the process-local zone.
type Selector struct {
	StatePath string
	Paths     config.Paths
	Policy    config.Policy
	Log       *slog.Logger
	Location  *time.Location
}

// Runtime answers "what is running now" at the given wall time. It
// never fails: every path, including total source unavailability,
// yields a payload with provenance attached.
func (s *Selector) Runtime(ctx context.Context, nowMs int64) Runtime {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	state, err := runstate.LoadState(s.StatePath)
	if err == nil {
		age := nowMs - state.GeneratedAtMs
		if age <= s.Policy.MaterializedMaxAgeMs {
			return s.fromState(state, nowMs)
		}
		err = errors.New(ReasonMaterializedStale)
		log.Debug("materialized snapshot too old", "ageMs", age, "revision", state.Revision)
	}
	materializedReason := stateReason(err)

	rt, ok := s.reconcileRuntime(ctx, nowMs, materializedReason)
	if ok {
		return rt
	}

	log.Warn("all runtime sources unavailable", "reason", rt.DegradedReason)
	return Fallback(nowMs, rt.DegradedReason)
}

// fromState shapes a fresh materialized snapshot.
func (s *Selector) fromState(state *runstate.State, nowMs int64) Runtime {
	runs := make([]ActiveRun, 0)
	for _, rec := range state.ActiveRecords() {
		if s.excluded(rec.JobName) {
			continue
		}
		runs = append(runs, s.activeRun(rec, nowMs))
	}
	return s.payload(runs, nowMs, SourceMaterialized, state.Revision, "", Runtime{
		DroppedStaleCount: state.DroppedStaleCount,
	})
}

// reconcileRuntime recomputes the payload directly from raw sources.
// The second return value is false only when every source failed, in
// which case the returned payload carries the joined reasons for the
// caller to surface.
func (s *Selector) reconcileRuntime(ctx context.Context, nowMs int64, materializedReason string) (Runtime, bool) {
	jobs := source.LoadJobs(s.Paths.JobsFile)
	sources := []source.Source{
		&source.CronRunsSource{Dir: s.Paths.RunsDir},
		&source.SubagentSource{Path: s.Paths.SubagentFile},
		&source.SessionsSource{Path: s.Paths.SessionsFile, Jobs: jobs},
	}

	reasons := []string{materializedReason}
	var observations []source.Observation
	succeeded := 0
	for _, src := range sources {
		obs, err := s.observe(ctx, src)
		if err != nil {
			reasons = append(reasons, sourceReason(src, err))
			continue
		}
		succeeded++
		observations = append(observations, obs...)
	}

	// The interactive probe piggybacks on the session store and never
	// fails on its own.
	if doc, reason := source.LoadSessionsDoc(s.Paths.SessionsFile); reason == "" {
		probe := source.ObserveMainSession(s.Paths.SessionsFile, doc, nowMs, source.MainSessionPolicy{
			MaxAgeMs:            s.Policy.MainSessionMaxAgeMs,
			PendingCallMaxAgeMs: s.Policy.MainSessionPendingCallMaxAgeMs,
			LockStaleMs:         s.Policy.MainSessionLockStaleMs,
		})
		if probe != nil {
			observations = append(observations, *probe)
		}
	}

	degraded := strings.Join(reasons, ", ")
	if succeeded == 0 {
		return Runtime{DegradedReason: degraded}, false
	}

	candidates, terminals := reconcile.FromObservations(observations)
	outcome := reconcile.Reconcile(nowMs, candidates, terminals, s.Policy.StaleTTLMs)

	runs := make([]ActiveRun, 0, len(outcome.Active))
	for _, rec := range outcome.Active {
		if s.excluded(rec.JobName) {
			continue
		}
		runs = append(runs, s.activeRun(rec, nowMs))
	}
	return s.payload(runs, nowMs, SourceReconciler, runstate.FormatRevision(nowMs), degraded, Runtime{
		DroppedTerminalCount: outcome.DroppedTerminalCount,
		DroppedStaleCount:    outcome.DroppedStaleCount,
	}), true
}

func (s *Selector) observe(ctx context.Context, src source.Source) ([]source.Observation, error) {
	timeout := s.Policy.SourceTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return src.Observe(ctx)
}

func (s *Selector) payload(runs []ActiveRun, nowMs int64, src, revision, degraded string, counts Runtime) Runtime {
	status := StatusIdle
	if len(runs) > 0 {
		status = StatusRunning
	}
	return Runtime{
		Status:               status,
		IsIdle:               len(runs) == 0,
		ActiveCount:          len(runs),
		ActiveRuns:           runs,
		CheckedAtMs:          nowMs,
		Source:               src,
		Revision:             revision,
		SnapshotMode:         SnapshotModeLive,
		DegradedReason:       degraded,
		DroppedTerminalCount: counts.DroppedTerminalCount,
		DroppedStaleCount:    counts.DroppedStaleCount,
	}
}

func (s *Selector) activeRun(rec *runstate.Record, nowMs int64) ActiveRun {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	runningFor := nowMs - rec.StartedAtMs
	if runningFor < 0 {
		runningFor = 0
	}
	return ActiveRun{
		RunKey:         rec.RunKey,
		JobID:          rec.JobID,
		JobName:        rec.JobName,
		SessionID:      rec.SessionID,
		SessionKey:     rec.SessionKey,
		Summary:        rec.Summary,
		StartedAtMs:    rec.StartedAtMs,
		StartedAtLocal: time.UnixMilli(rec.StartedAtMs).In(loc).Format("2006-01-02 15:04:05"),
		RunningForMs:   runningFor,
		LastSeenAtMs:   rec.LastSeenAtMs,
		ActivityType:   rec.ActivityType,
		Model:          rec.Model,
		Thinking:       rec.Thinking,
	}
}

func (s *Selector) excluded(jobName string) bool {
	if jobName == "" {
		return false
	}
	name := strings.ToLower(jobName)
	for _, sub := range s.Policy.ExcludedJobNameSubstrings {
		if sub != "" && strings.Contains(name, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// Fallback is the hard-coded sanitized idle payload emitted when
// neither the snapshot nor the raw sources are usable.
func Fallback(nowMs int64, reason string) Runtime {
	if reason == "" {
		reason = "runtime sources unavailable"
	}
	return Runtime{
		Status:         StatusIdle,
		IsIdle:         true,
		ActiveCount:    0,
		ActiveRuns:     []ActiveRun{},
		CheckedAtMs:    nowMs,
		Source:         SourceFallback,
		Revision:       runstate.FormatRevision(0),
		SnapshotMode:   SnapshotModeSanitized,
		DegradedReason: reason,
	}
}

// stateReason maps a snapshot load failure to its stable reason code.
func stateReason(err error) string {
	switch {
	case errors.Is(err, runstate.ErrStateMissing):
		return runstate.ErrStateMissing.Error()
	case errors.Is(err, runstate.ErrStateUnexpectedShape):
		return runstate.ErrStateUnexpectedShape.Error()
	case errors.Is(err, runstate.ErrStateMissingTimestamp):
		return runstate.ErrStateMissingTimestamp.Error()
	case errors.Is(err, runstate.ErrStateInvalid):
		return runstate.ErrStateInvalid.Error()
	default:
		return err.Error()
	}
}

// sourceReason prefers a source's stable reason code over its raw
// error text.
func sourceReason(src source.Source, err error) string {
	var re *source.ReasonError
	if errors.As(err, &re) {
		return re.Reason
	}
	return src.Name() + "-unreadable"
}
