package source

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() MainSessionPolicy {
	return MainSessionPolicy{
		MaxAgeMs:            2 * 60 * 1000,
		PendingCallMaxAgeMs: 10 * 60 * 1000,
		LockStaleMs:         30 * 60 * 1000,
	}
}

func writeTranscript(t *testing.T, dir string, lines string) (string, map[string]map[string]any) {
	t.Helper()
	sessionFile := filepath.Join(dir, "main-session.jsonl")
	require.NoError(t, os.WriteFile(sessionFile, []byte(lines), 0o644))

	sessionsPath := filepath.Join(dir, "sessions.json")
	doc := map[string]map[string]any{
		MainSessionKey: {"sessionFile": sessionFile},
	}
	return sessionsPath, doc
}

func TestObserveMainSession_ToolActivityAfterUserMessage(t *testing.T) {
	nowMs := int64(1_000_000)
	lines := `{"timestamp":940000,"message":{"role":"user","timestamp":940000,"content":"refactor the parser"}}
{"timestamp":950000,"message":{"role":"assistant","content":[{"type":"toolCall","name":"read_file","id":"call_1"}]}}
{"timestamp":960000,"message":{"role":"toolResult","toolName":"read_file","toolCallId":"call_1"}}
`
	sessionsPath, doc := writeTranscript(t, t.TempDir(), lines)

	obs := ObserveMainSession(sessionsPath, doc, nowMs, testPolicy())
	require.NotNil(t, obs)
	assert.Equal(t, "interactive:main-session", obs.RunKey)
	assert.Equal(t, int64(950000), obs.Payload.StartedAtMs)
	assert.Equal(t, int64(960000), obs.Payload.LastSeenAtMs)
	assert.Equal(t, "interactive", obs.Payload.ActivityType)
	assert.Contains(t, obs.Payload.Summary, "refactor the parser")
	assert.Contains(t, obs.Payload.Summary, "read_file")
}

func TestObserveMainSession_ChatWithoutToolsIsIdle(t *testing.T) {
	nowMs := int64(1_000_000)
	lines := `{"timestamp":990000,"message":{"role":"user","timestamp":990000,"content":"hello"}}
{"timestamp":995000,"message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}
`
	sessionsPath, doc := writeTranscript(t, t.TempDir(), lines)

	assert.Nil(t, ObserveMainSession(sessionsPath, doc, nowMs, testPolicy()))
}

func TestObserveMainSession_OldToolActivityExpires(t *testing.T) {
	nowMs := int64(10_000_000)
	lines := `{"timestamp":940000,"message":{"role":"user","timestamp":940000,"content":"task"}}
{"timestamp":960000,"message":{"role":"toolResult","toolName":"bash","toolCallId":"call_1"}}
`
	sessionsPath, doc := writeTranscript(t, t.TempDir(), lines)

	assert.Nil(t, ObserveMainSession(sessionsPath, doc, nowMs, testPolicy()))
}

func TestObserveMainSession_PendingCallsExtendWindow(t *testing.T) {
	// 5 minutes after the last tool event: past MaxAgeMs but inside
	// PendingCallMaxAgeMs. Without a lock the run is not reported; with
	// a live lock it is.
	lastToolMs := int64(1_000_000)
	nowMs := lastToolMs + 5*60*1000
	lines := `{"timestamp":990000,"message":{"role":"user","timestamp":990000,"content":"long build"}}
{"timestamp":1000000,"message":{"role":"assistant","content":[{"type":"toolCall","name":"bash","id":"call_9"}]}}
`
	dir := t.TempDir()
	sessionsPath, doc := writeTranscript(t, dir, lines)

	assert.Nil(t, ObserveMainSession(sessionsPath, doc, nowMs, testPolicy()),
		"pending call without lock past max age should be idle")

	// Lock file with our own (live) pid keeps the run visible.
	lockPath := filepath.Join(dir, "main-session.jsonl.lock")
	lock := `{"createdAt":` + "1000000" + `,"pid":` + strconv.Itoa(os.Getpid()) + `}`
	require.NoError(t, os.WriteFile(lockPath, []byte(lock), 0o644))

	obs := ObserveMainSession(sessionsPath, doc, nowMs, testPolicy())
	require.NotNil(t, obs)
	assert.Equal(t, int64(1000000), obs.Payload.LastSeenAtMs)
}

func TestObserveMainSession_ResolvedToolCallsDoNotExtend(t *testing.T) {
	lastToolMs := int64(1_000_000)
	nowMs := lastToolMs + 5*60*1000
	lines := `{"timestamp":990000,"message":{"role":"user","timestamp":990000,"content":"task"}}
{"timestamp":995000,"message":{"role":"assistant","content":[{"type":"toolCall","name":"bash","id":"call_9"}]}}
{"timestamp":1000000,"message":{"role":"toolResult","toolName":"bash","toolCallId":"call_9|fc_9"}}
`
	sessionsPath, doc := writeTranscript(t, t.TempDir(), lines)

	// No pending calls: the 2-minute window applies and has elapsed.
	assert.Nil(t, ObserveMainSession(sessionsPath, doc, nowMs, testPolicy()))
}

func TestObserveMainSession_MissingMeta(t *testing.T) {
	assert.Nil(t, ObserveMainSession("sessions.json", map[string]map[string]any{}, 1000, testPolicy()))
	assert.Nil(t, ObserveMainSession("sessions.json", map[string]map[string]any{
		MainSessionKey: {},
	}, 1000, testPolicy()))
}

