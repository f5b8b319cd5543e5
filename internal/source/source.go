package source

import (
	"context"

	"github.com/roach88/runtruth/internal/event"
)

// Observation is one normalized fact read from a raw source: a run was
// seen starting, heartbeating, or finishing. Observations carry the
// identity tuple the collector needs to derive a deterministic event.
type Observation struct {
	RunKey  string
	Type    event.Type
	AtMs    int64
	Source  string
	Offset  string
	Payload event.Payload
}

// Source reads one external signal. Observe returns every observation
// currently derivable from the source; deduplication against previous
// passes is the collector's job, not the source's.
type Source interface {
	Name() string
	Observe(ctx context.Context) ([]Observation, error)
}
