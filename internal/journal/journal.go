package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/runtruth/internal/event"
)

// Journal appends runtime events to the JSONL log, deduplicating by
// event id through the index.
//
// Append order is: check index, write line, mark seen. A crash between
// the write and the mark leaves the id unrecorded and the next pass
// appends the line again; replay tolerates that because applying the
// same event twice is a no-op on the run map. The reverse order would
// risk marking an id whose line was never written, losing the event
// permanently.
type Journal struct {
	path string
	idx  *Index
}

// Open binds a journal file to its index. The file is created lazily on
// first append.
func Open(path string, idx *Index) *Journal {
	return &Journal{path: path, idx: idx}
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Append writes one event to the journal unless its id was already
// seen. A duplicate is a silent no-op, not an error; this is what makes
// the collector safe to run at short, overlapping intervals without
// coordination. Returns true when the event was appended.
func (j *Journal) Append(ctx context.Context, ev event.Event, nowMs int64) (bool, error) {
	if ev.EventID == "" {
		return false, fmt.Errorf("append: event has no id")
	}

	seen, err := j.idx.Seen(ctx, ev.EventID)
	if err != nil {
		return false, fmt.Errorf("append: %w", err)
	}
	if seen {
		return false, nil
	}

	if err := j.writeLine(ev); err != nil {
		return false, fmt.Errorf("append: %w", err)
	}

	if _, err := j.idx.MarkSeen(ctx, ev.EventID, nowMs); err != nil {
		return true, fmt.Errorf("append: %w", err)
	}
	return true, nil
}

// AppendAll appends a batch of events, skipping duplicates. Returns the
// number of events actually written.
func (j *Journal) AppendAll(ctx context.Context, events []event.Event, nowMs int64) (int, error) {
	appended := 0
	for _, ev := range events {
		ok, err := j.Append(ctx, ev, nowMs)
		if err != nil {
			return appended, err
		}
		if ok {
			appended++
		}
	}
	return appended, nil
}

// writeLine appends one complete JSON line with a single write call so
// concurrent readers never see a partial record mid-line.
func (j *Journal) writeLine(ev event.Event) (err error) {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
