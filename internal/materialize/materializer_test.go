package materialize

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runtruth/internal/config"
	"github.com/roach88/runtruth/internal/event"
	"github.com/roach88/runtruth/internal/journal"
	"github.com/roach88/runtruth/internal/runstate"
	"github.com/roach88/runtruth/internal/testutil"
)

type fixture struct {
	journal *journal.Journal
	m       *Materializer
}

func newFixture(t *testing.T, policy config.Policy) *fixture {
	t.Helper()
	dir := t.TempDir()
	idx, err := journal.OpenIndex(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	journalPath := filepath.Join(dir, "events.jsonl")
	return &fixture{
		journal: journal.Open(journalPath, idx),
		m: &Materializer{
			JournalPath: journalPath,
			StatePath:   filepath.Join(dir, "runtime-state.json"),
			Policy:      policy,
		},
	}
}

func (f *fixture) append(t *testing.T, events ...event.Event) {
	t.Helper()
	_, err := f.journal.AppendAll(context.Background(), events, 0)
	require.NoError(t, err)
}

func sessionStarted(session string, atMs int64) event.Event {
	return event.New("cron:job:"+session, event.TypeStarted, atMs, event.SourceSessionsStore,
		"sessions:"+session, event.Payload{SessionID: session, ActivityType: "cron"})
}

func sessionFinished(session string, atMs int64) event.Event {
	return event.New("cron:job:"+session, event.TypeFinished, atMs, event.SourceCronRuns,
		"job.jsonl:"+session, event.Payload{SessionID: session})
}

func TestMaterialize_FinishedRunIsTerminal(t *testing.T) {
	// Journal: started(S1,1000), started(S2,1005), finished(S1,1500).
	// At t=1600 with TTL=120000 only S2 is running.
	policy := config.DefaultPolicy()
	policy.CronStaleTTLMs = 120_000
	policy.SubagentStaleTTLMs = 120_000
	f := newFixture(t, policy)
	f.append(t,
		sessionStarted("S1", 1000),
		sessionStarted("S2", 1005),
		sessionFinished("S1", 1500),
	)

	state, err := f.m.Materialize(1600)
	require.NoError(t, err)

	active := state.ActiveRecords()
	require.Len(t, active, 1)
	assert.Equal(t, "cron:job:S2", active[0].RunKey)
	assert.Equal(t, int64(1005), active[0].StartedAtMs)

	s1 := state.Runs["cron:job:S1"]
	require.NotNil(t, s1)
	assert.Equal(t, runstate.Terminal, s1.State)
	assert.Equal(t, "finished", s1.TerminalReason)
}

func TestMaterialize_OrphanExpires(t *testing.T) {
	// Journal: only started(S3,1000); TTL=500. At t=2000 S3 is terminal
	// with reason stale-orphan-expired and nothing is active.
	policy := config.DefaultPolicy()
	policy.CronStaleTTLMs = 500
	policy.SubagentStaleTTLMs = 500
	f := newFixture(t, policy)
	f.append(t, sessionStarted("S3", 1000))

	state, err := f.m.Materialize(2000)
	require.NoError(t, err)

	assert.Empty(t, state.ActiveRecords())
	s3 := state.Runs["cron:job:S3"]
	require.NotNil(t, s3)
	assert.Equal(t, runstate.Terminal, s3.State)
	assert.Equal(t, runstate.ReasonStaleExpired, s3.TerminalReason)
	assert.Equal(t, 1, state.DroppedStaleCount)
}

func TestMaterialize_TerminalDominanceUnderAppendOrder(t *testing.T) {
	// started@t0, finished@t2, heartbeat@t1 in every append order: the
	// run must end terminal at t2.
	base := []event.Event{
		sessionStarted("S1", 1000),
		sessionFinished("S1", 2000),
		event.New("cron:job:S1", event.TypeHeartbeat, 1500, event.SourceSessionsStore,
			"sessions:S1:hb", event.Payload{}),
	}

	for seed := int64(0); seed < 6; seed++ {
		shuffled := make([]event.Event, len(base))
		copy(shuffled, base)
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		policy := config.DefaultPolicy()
		f := newFixture(t, policy)
		f.append(t, shuffled...)

		state, err := f.m.Materialize(2100)
		require.NoError(t, err)

		rec := state.Runs["cron:job:S1"]
		require.NotNil(t, rec, "seed %d", seed)
		assert.Equal(t, runstate.Terminal, rec.State, "seed %d", seed)
		assert.Equal(t, int64(2000), rec.TerminalAtMs, "seed %d", seed)
	}
}

func TestMaterialize_RevisionAdvancesWithoutNewEvents(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	f.append(t, sessionStarted("S1", 1000))

	clock := testutil.NewMillisClock(2000)
	first, err := f.m.Materialize(clock.NowMs())
	require.NoError(t, err)
	second, err := f.m.Materialize(clock.Advance(1000))
	require.NoError(t, err)

	assert.Greater(t, runstate.RevisionNumber(second.Revision), runstate.RevisionNumber(first.Revision),
		"revision must advance even with no new events so freshness is observable")
	assert.Equal(t, first.Checkpoint, second.Checkpoint)
}

func TestMaterialize_ResumesFromCheckpoint(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	f.append(t, sessionStarted("S1", 1000))

	first, err := f.m.Materialize(2000)
	require.NoError(t, err)
	require.NotZero(t, first.Checkpoint.Offset)

	f.append(t, sessionFinished("S1", 2500))
	second, err := f.m.Materialize(3000)
	require.NoError(t, err)

	assert.Greater(t, second.Checkpoint.Offset, first.Checkpoint.Offset)
	rec := second.Runs["cron:job:S1"]
	require.NotNil(t, rec)
	assert.Equal(t, runstate.Terminal, rec.State, "event after checkpoint must be applied on top of prior state")
}

func TestMaterialize_DeterministicReplay(t *testing.T) {
	events := []event.Event{
		sessionStarted("S1", 1000),
		sessionStarted("S2", 1005),
		sessionFinished("S1", 1500),
		event.New("subagent:r1", event.TypeStarted, 1200, event.SourceSubagentRegistry,
			"subagent:r1:started", event.Payload{ActivityType: "subagent", JobName: "bg"}),
	}

	var reference runstate.RunMap
	for i := 0; i < 3; i++ {
		f := newFixture(t, config.DefaultPolicy())
		f.append(t, events...)
		state, err := f.m.Materialize(1600)
		require.NoError(t, err)

		if reference == nil {
			reference = state.Runs
			continue
		}
		require.Equal(t, len(reference), len(state.Runs))
		for key, want := range reference {
			got := state.Runs[key]
			require.NotNil(t, got, "missing run %s", key)
			assert.Equal(t, *want, *got, "replay diverged for %s", key)
		}
	}
}

func TestMaterialize_PrunesOldTerminals(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.RecencyWindowMs = 1000
	f := newFixture(t, policy)
	f.append(t,
		sessionStarted("S1", 1000),
		sessionFinished("S1", 1100),
	)

	state, err := f.m.Materialize(10_000)
	require.NoError(t, err)
	assert.NotContains(t, state.Runs, "cron:job:S1", "terminal record beyond the recency window is pruned")
}

func TestMaterialize_MissingJournalYieldsEmptyState(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())

	state, err := f.m.Materialize(1000)
	require.NoError(t, err)
	assert.Empty(t, state.Runs)
	assert.Equal(t, "rtv1-00000001", state.Revision)

	// And the state file is readable afterwards.
	loaded, err := runstate.LoadState(f.m.StatePath)
	require.NoError(t, err)
	assert.Equal(t, state.Revision, loaded.Revision)
}
