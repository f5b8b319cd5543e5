package event

import (
	"math/rand"
	"testing"
)

func TestSort_TimestampFirst(t *testing.T) {
	events := []Event{
		New("k1", TypeHeartbeat, 3000, SourceSessionsStore, "s:1", Payload{}),
		New("k2", TypeStarted, 1000, SourceSubagentRegistry, "sub:k2:started", Payload{}),
		New("k3", TypeFinished, 2000, SourceCronRuns, "j.jsonl:1", Payload{}),
	}
	Sort(events)
	if events[0].AtMs != 1000 || events[1].AtMs != 2000 || events[2].AtMs != 3000 {
		t.Errorf("events not ordered by timestamp: %v", []int64{events[0].AtMs, events[1].AtMs, events[2].AtMs})
	}
}

func TestSort_SourcePriorityBreaksTies(t *testing.T) {
	events := []Event{
		New("k", TypeHeartbeat, 1000, SourceSessionsStore, "s:1", Payload{}),
		New("k", TypeStarted, 1000, SourceSubagentRegistry, "sub:k:started", Payload{}),
		New("k", TypeFinished, 1000, SourceCronRuns, "j.jsonl:1", Payload{}),
	}
	Sort(events)
	want := []string{SourceCronRuns, SourceSubagentRegistry, SourceSessionsStore}
	for i, source := range want {
		if events[i].Source != source {
			t.Errorf("position %d = %s, want %s", i, events[i].Source, source)
		}
	}
}

func TestSort_DeterministicUnderShuffle(t *testing.T) {
	base := []Event{
		New("k1", TypeStarted, 1000, SourceSubagentRegistry, "sub:k1:started", Payload{}),
		New("k1", TypeHeartbeat, 1000, SourceSessionsStore, "s:k1", Payload{}),
		New("k2", TypeStarted, 1000, SourceSubagentRegistry, "sub:k2:started", Payload{}),
		New("k1", TypeFinished, 1500, SourceCronRuns, "j.jsonl:1", Payload{}),
		New("k2", TypeHeartbeat, 1500, SourceSessionsStore, "s:k2", Payload{}),
	}

	Sort(base)
	reference := make([]string, len(base))
	for i, ev := range base {
		reference[i] = ev.EventID
	}

	for seed := int64(0); seed < 10; seed++ {
		shuffled := make([]Event, len(base))
		copy(shuffled, base)
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		Sort(shuffled)
		for i, ev := range shuffled {
			if ev.EventID != reference[i] {
				t.Fatalf("seed %d: order diverged at position %d", seed, i)
			}
		}
	}
}
