package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runtruth/internal/event"
)

func TestSubagentSource_StartedAndHeartbeat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runs.json", `{
		"runs": {
			"run-1": {
				"label": "Index refresh",
				"task": "Refresh the search index\nacross all shards",
				"startedAt": 1700000000000,
				"updatedAt": 1700000030000,
				"childSessionKey": "agent:main:subagent:xyz",
				"model": "gpt-5.3-codex"
			}
		}
	}`)

	src := &SubagentSource{Path: path}
	obs, err := src.Observe(context.Background())
	require.NoError(t, err)
	require.Len(t, obs, 2)

	started, heartbeat := obs[0], obs[1]
	assert.Equal(t, event.TypeStarted, started.Type)
	assert.Equal(t, "subagent:run-1", started.RunKey)
	assert.Equal(t, int64(1700000000000), started.AtMs)
	assert.Equal(t, "subagent:run-1:started", started.Offset)
	assert.Equal(t, "Index refresh", started.Payload.JobName)
	assert.Equal(t, "Refresh the search index across all shards", started.Payload.Summary)
	assert.Equal(t, "agent:main:subagent:xyz", started.Payload.SessionKey)
	assert.Equal(t, "openai-codex/gpt-5.3-codex", started.Payload.Model)

	assert.Equal(t, event.TypeHeartbeat, heartbeat.Type)
	assert.Equal(t, int64(1700000030000), heartbeat.AtMs)
}

func TestSubagentSource_TerminalWhenEnded(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runs.json", `{
		"runs": {
			"run-2": {
				"startedAt": 1700000000000,
				"endedAt": 1700000099000,
				"status": "timeout"
			}
		}
	}`)

	src := &SubagentSource{Path: path}
	obs, err := src.Observe(context.Background())
	require.NoError(t, err)
	require.Len(t, obs, 3)

	terminal := obs[2]
	assert.Equal(t, event.TypeTimedOut, terminal.Type)
	assert.Equal(t, int64(1700000099000), terminal.AtMs)
	assert.Equal(t, "subagent:run-2:ended", terminal.Offset)
	// No childSessionKey: falls back to the synthetic run session.
	assert.Equal(t, "subagent:run-2", terminal.Payload.SessionID)
}

func TestSubagentSource_ReasonCodes(t *testing.T) {
	dir := t.TempDir()

	var reasonErr *ReasonError
	src := &SubagentSource{Path: dir + "/absent.json"}
	_, err := src.Observe(context.Background())
	require.ErrorAs(t, err, &reasonErr)
	assert.Equal(t, ReasonSubagentMissing, reasonErr.Reason)

	src = &SubagentSource{Path: writeFile(t, dir, "bad.json", "{broken")}
	_, err = src.Observe(context.Background())
	require.ErrorAs(t, err, &reasonErr)
	assert.Equal(t, ReasonSubagentInvalid, reasonErr.Reason)

	src = &SubagentSource{Path: writeFile(t, dir, "shape.json", `{"noRuns": true}`)}
	_, err = src.Observe(context.Background())
	require.ErrorAs(t, err, &reasonErr)
	assert.Equal(t, ReasonSubagentUnexpectedShape, reasonErr.Reason)
}

func TestSubagentSource_SkipsEntriesWithoutStart(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "runs.json", `{"runs": {"run-3": {"label": "no timestamps"}}}`)

	src := &SubagentSource{Path: path}
	obs, err := src.Observe(context.Background())
	require.NoError(t, err)
	assert.Empty(t, obs)
}
