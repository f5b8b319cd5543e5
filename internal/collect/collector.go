// Package collect polls the raw external sources and appends derived
// lifecycle events to the journal.
//
// Collection is idempotent end to end: event ids are deterministic
// functions of what was observed, and the journal silently drops
// duplicates, so overlapping collector passes need no coordination. A
// failure reading one source never blocks the others; partial
// collection is success.
package collect

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/runtruth/internal/config"
	"github.com/roach88/runtruth/internal/event"
	"github.com/roach88/runtruth/internal/journal"
	"github.com/roach88/runtruth/internal/source"
)

// SourceResult reports one source's contribution to a pass.
type SourceResult struct {
	Observed int    `json:"observed"`
	Skipped  int    `json:"skipped"`
	Appended int    `json:"appended"`
	Err      string `json:"error,omitempty"`
}

// Result summarizes a collection pass.
type Result struct {
	PassID    string                  `json:"passId"`
	Collected int                     `json:"collected"`
	Appended  int                     `json:"appended"`
	Sources   map[string]SourceResult `json:"sources"`
}

// Collector derives events from sources and appends them to the
// journal. It is the journal's only writer role.
type Collector struct {
	Journal *journal.Journal
	Index   *journal.Index
	Sources []source.Source
	Policy  config.Policy
	Log     *slog.Logger
}

// Collect runs one pass over every source. Returns an error only when
// the journal itself is unwritable; source failures are recorded
// per-source in the result and logged.
func (c *Collector) Collect(ctx context.Context, nowMs int64) (Result, error) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	passID := uuid.Must(uuid.NewV7()).String()
	log = log.With("pass", passID)

	result := Result{
		PassID:  passID,
		Sources: make(map[string]SourceResult, len(c.Sources)),
	}

	for _, src := range c.Sources {
		res, srcErr, fatal := c.collectSource(ctx, log, src, nowMs)
		if srcErr != nil {
			res.Err = srcErr.Error()
			log.Warn("source collection failed", "source", src.Name(), "error", srcErr)
		}
		result.Sources[src.Name()] = res
		result.Collected += res.Observed
		result.Appended += res.Appended

		// A journal or index failure is fatal for the pass; a source
		// read failure is not.
		if fatal != nil {
			return result, fatal
		}
	}

	log.Info("collection pass complete",
		"collected", result.Collected, "appended", result.Appended)
	return result, nil
}

func (c *Collector) collectSource(ctx context.Context, log *slog.Logger, src source.Source, nowMs int64) (res SourceResult, srcErr, fatal error) {
	timeout := c.Policy.SourceTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	srcCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	observations, err := src.Observe(srcCtx)
	if err != nil {
		return res, err, nil
	}
	res.Observed = len(observations)

	watermark, err := c.Index.Watermark(ctx, src.Name())
	if err != nil {
		return res, err, err
	}

	events := make([]event.Event, 0, len(observations))
	maxSeen := watermark
	for _, obs := range observations {
		if obs.AtMs > maxSeen {
			maxSeen = obs.AtMs
		}
		// Heartbeats already consumed in an earlier pass are skipped
		// outright; starts and terminals always pass through since the
		// journal dedupes them by id anyway and a late observation of
		// an old transition is still a fact worth recording.
		if obs.Type == event.TypeHeartbeat && obs.AtMs <= watermark {
			res.Skipped++
			continue
		}
		events = append(events, c.deriveEvent(obs))
	}

	appended, err := c.Journal.AppendAll(ctx, events, nowMs)
	res.Appended = appended
	if err != nil {
		return res, err, err
	}

	if maxSeen > watermark {
		if err := c.Index.SetWatermark(ctx, src.Name(), maxSeen, nowMs); err != nil {
			return res, err, err
		}
	}

	log.Debug("source collected", "source", src.Name(),
		"observed", res.Observed, "skipped", res.Skipped, "appended", res.Appended)
	return res, nil, nil
}

// deriveEvent turns an observation into a journal event. Heartbeat ids
// are computed over a coarse time bucket so a fast-updating heartbeat
// produces at most one journal entry per bucket; the event itself keeps
// the precise timestamp.
func (c *Collector) deriveEvent(obs source.Observation) event.Event {
	ev := event.New(obs.RunKey, obs.Type, obs.AtMs, obs.Source, obs.Offset, obs.Payload)
	if obs.Type == event.TypeHeartbeat && c.Policy.HeartbeatBucketMs > 0 {
		bucketed := event.BucketMs(obs.AtMs, c.Policy.HeartbeatBucketMs)
		ev.EventID = event.ID(obs.RunKey, obs.Type, bucketed, obs.Source, obs.Offset)
	}
	return ev
}
