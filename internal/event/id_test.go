package event

import "testing"

func TestID_Deterministic(t *testing.T) {
	a := ID("cron:j:s", TypeStarted, 1000, SourceCronRuns, "j.jsonl:1")
	b := ID("cron:j:s", TypeStarted, 1000, SourceCronRuns, "j.jsonl:1")
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("id length = %d, want 64 hex chars", len(a))
	}
}

func TestID_SensitiveToEveryComponent(t *testing.T) {
	base := ID("cron:j:s", TypeStarted, 1000, SourceCronRuns, "off:1")
	variants := []string{
		ID("cron:j:t", TypeStarted, 1000, SourceCronRuns, "off:1"),
		ID("cron:j:s", TypeHeartbeat, 1000, SourceCronRuns, "off:1"),
		ID("cron:j:s", TypeStarted, 1001, SourceCronRuns, "off:1"),
		ID("cron:j:s", TypeStarted, 1000, SourceSessionsStore, "off:1"),
		ID("cron:j:s", TypeStarted, 1000, SourceCronRuns, "off:2"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with base id", i)
		}
	}
}

func TestID_UnicodeNormalization(t *testing.T) {
	// "é" composed (U+00E9) vs decomposed (e + U+0301) must hash the same.
	composed := ID("cron:café:s", TypeStarted, 1000, SourceCronRuns, "off")
	decomposed := ID("cron:café:s", TypeStarted, 1000, SourceCronRuns, "off")
	if composed != decomposed {
		t.Error("NFC-equivalent run keys produced different ids")
	}
}

func TestBucketMs(t *testing.T) {
	if got := BucketMs(125_500, 60_000); got != 120_000 {
		t.Errorf("BucketMs = %d, want 120000", got)
	}
	if got := BucketMs(125_500, 0); got != 125_500 {
		t.Errorf("BucketMs with zero bucket = %d, want passthrough", got)
	}
	// Two polls of the same heartbeat within one bucket share an id.
	a := ID("subagent:r", TypeHeartbeat, BucketMs(61_000, 60_000), SourceSubagentRegistry, "subagent:r:heartbeat")
	b := ID("subagent:r", TypeHeartbeat, BucketMs(119_999, 60_000), SourceSubagentRegistry, "subagent:r:heartbeat")
	if a != b {
		t.Error("heartbeats in the same bucket should share an id")
	}
}
