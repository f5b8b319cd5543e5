package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/roach88/runtruth/internal/event"
)

// SubagentSource derives observations from the background-worker
// registry. Every registry entry yields a started and a heartbeat
// observation (the registry has no explicit start event, so the entry's
// presence synthesizes one, keeping the timeline self-consistent), plus
// a terminal observation once endedAt is set.
type SubagentSource struct {
	Path string
}

func (s *SubagentSource) Name() string {
	return event.SourceSubagentRegistry
}

func (s *SubagentSource) Observe(ctx context.Context) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ReasonError{Reason: ReasonSubagentMissing}
		}
		return nil, fmt.Errorf("read subagent registry: %w", err)
	}

	var doc struct {
		Runs map[string]map[string]any `json:"runs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ReasonError{Reason: ReasonSubagentInvalid}
	}
	if doc.Runs == nil {
		return nil, &ReasonError{Reason: ReasonSubagentUnexpectedShape}
	}

	runIDs := make([]string, 0, len(doc.Runs))
	for runID := range doc.Runs {
		runIDs = append(runIDs, runID)
	}
	sort.Strings(runIDs)

	var observations []Observation
	for _, runID := range runIDs {
		entry := doc.Runs[runID]
		runKey, ok := event.SubagentRunKey(runID)
		if !ok {
			continue
		}

		startedAtMs, ok := firstTimestamp(entry, "startedAt", "createdAt")
		if !ok {
			continue
		}

		label := stringField(entry, "label")
		if label == "" {
			label = "Background task"
		}
		summary := summarizeTask(stringField(entry, "task"))
		if summary == "" {
			summary = label
		}
		sessionKey := stringField(entry, "childSessionKey")
		if sessionKey == "" {
			sessionKey = "subagent:" + runID
		}
		model := NormalizeModel(stringField(entry, "model"))
		if model == "" {
			model = NormalizeModel(stringField(entry, "agentModel"))
		}
		thinking := NormalizeThinking(stringField(entry, "thinking"))

		lastSeenAtMs, ok := ParseTimestampMs(entry["updatedAt"])
		if !ok {
			lastSeenAtMs = startedAtMs
		}

		payload := event.Payload{
			JobID:        "subagent:" + runID,
			JobName:      label,
			SessionID:    sessionKey,
			SessionKey:   sessionKey,
			Summary:      summary,
			StartedAtMs:  startedAtMs,
			LastSeenAtMs: lastSeenAtMs,
			ActivityType: event.ActivitySubagent,
			Model:        model,
			Thinking:     thinking,
		}

		observations = append(observations,
			Observation{
				RunKey:  runKey,
				Type:    event.TypeStarted,
				AtMs:    startedAtMs,
				Source:  event.SourceSubagentRegistry,
				Offset:  fmt.Sprintf("subagent:%s:started", runID),
				Payload: payload,
			},
			Observation{
				RunKey:  runKey,
				Type:    event.TypeHeartbeat,
				AtMs:    lastSeenAtMs,
				Source:  event.SourceSubagentRegistry,
				Offset:  fmt.Sprintf("subagent:%s:heartbeat", runID),
				Payload: payload,
			},
		)

		if endedAtMs, ok := ParseTimestampMs(entry["endedAt"]); ok {
			label := stringField(entry, "status")
			if label == "" {
				label = stringField(entry, "endStatus")
			}
			terminalType := event.NormalizeTerminal(label)
			observations = append(observations, Observation{
				RunKey: runKey,
				Type:   terminalType,
				AtMs:   endedAtMs,
				Source: event.SourceSubagentRegistry,
				Offset: fmt.Sprintf("subagent:%s:ended", runID),
				Payload: event.Payload{
					JobID:     "subagent:" + runID,
					SessionID: sessionKey,
					Status:    string(terminalType),
				},
			})
		}
	}

	return observations, nil
}

// summarizeTask compacts a multi-line task description into a single
// display line, truncated to keep payloads bounded.
func summarizeTask(task string) string {
	var parts []string
	for _, line := range strings.Split(task, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	compact := strings.Join(parts, " ")
	if runes := []rune(compact); len(runes) > 140 {
		return string(runes[:140]) + "…"
	}
	return compact
}
