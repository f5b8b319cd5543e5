package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/roach88/runtruth/internal/event"
)

// Cursor marks a resume position in the journal file. Offset is a byte
// offset at a line boundary; LastEventID is the id of the last record
// consumed before that offset, kept for diagnostics.
type Cursor struct {
	Offset      int64  `json:"offset"`
	LastEventID string `json:"lastEventId,omitempty"`
}

// Read returns all complete events after the cursor, plus the new
// cursor. A missing journal yields no events and the original cursor.
//
// Malformed lines are skipped but still advance the cursor: a corrupt
// mid-file line will never become readable, so stalling on it would
// wedge replay forever. A final line with no trailing newline is a torn
// write in progress; it is left unconsumed so the next read picks it up
// once the append completes.
func Read(path string, from Cursor) ([]event.Event, Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, from, nil
		}
		return nil, from, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if from.Offset > 0 {
		if _, err := f.Seek(from.Offset, io.SeekStart); err != nil {
			return nil, from, fmt.Errorf("seek journal: %w", err)
		}
	}

	var (
		events []event.Event
		cursor = from
	)

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// No trailing newline: torn write, leave for the next read.
			break
		}
		if err != nil {
			return events, cursor, fmt.Errorf("read journal: %w", err)
		}

		cursor.Offset += int64(len(line))

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}

		var ev event.Event
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			// Treat a malformed line as if it were never fully written.
			continue
		}
		if ev.EventID == "" || ev.RunKey == "" {
			continue
		}

		cursor.LastEventID = ev.EventID
		events = append(events, ev)
	}

	return events, cursor, nil
}

// ReadAll returns every complete event in the journal from the start.
func ReadAll(path string) ([]event.Event, Cursor, error) {
	return Read(path, Cursor{})
}
