package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/runtruth/internal/event"
)

// CronRunsSource derives terminal observations from the scheduler's
// per-job run logs: <jobId>.jsonl files of action rows, where an
// action=finished row closes the matching run.
type CronRunsSource struct {
	Dir string
}

func (s *CronRunsSource) Name() string {
	return event.SourceCronRuns
}

func (s *CronRunsSource) Observe(ctx context.Context) ([]Observation, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var observations []Observation
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return observations, err
		}
		jobID := strings.TrimSuffix(name, ".jsonl")
		obs, err := s.observeRunFile(filepath.Join(s.Dir, name), name, jobID)
		if err != nil {
			// One unreadable run file must not hide the others.
			continue
		}
		observations = append(observations, obs...)
	}

	return observations, nil
}

func (s *CronRunsSource) observeRunFile(path, fileName, jobID string) ([]Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var observations []Observation
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineIndex := 0
	for scanner.Scan() {
		lineIndex++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		if action, _ := row["action"].(string); action != "finished" {
			continue
		}
		sessionID, _ := row["sessionId"].(string)
		if sessionID == "" {
			continue
		}

		atMs, ok := firstTimestamp(row, "finishedAtMs", "finishedAt", "endedAt", "timestamp", "ts")
		if !ok {
			continue
		}
		runKey, ok := event.CronRunKey(jobID, sessionID)
		if !ok {
			continue
		}

		label, _ := row["status"].(string)
		if label == "" {
			label, _ = row["result"].(string)
		}
		terminalType := event.NormalizeTerminal(label)

		observations = append(observations, Observation{
			RunKey: runKey,
			Type:   terminalType,
			AtMs:   atMs,
			Source: event.SourceCronRuns,
			Offset: fmt.Sprintf("%s:%d", fileName, lineIndex),
			Payload: event.Payload{
				JobID:     jobID,
				SessionID: sessionID,
				Status:    string(terminalType),
			},
		})
	}
	if err := scanner.Err(); err != nil {
		return observations, err
	}
	return observations, nil
}

func firstTimestamp(row map[string]any, keys ...string) (int64, bool) {
	for _, key := range keys {
		if ms, ok := ParseTimestampMs(row[key]); ok {
			return ms, true
		}
	}
	return 0, false
}
