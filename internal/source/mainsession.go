package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/roach88/runtruth/internal/event"
)

// MainSessionPolicy holds the detection windows for interactive work.
type MainSessionPolicy struct {
	// MaxAgeMs is how recent the last tool activity must be.
	MaxAgeMs int64
	// PendingCallMaxAgeMs extends the window while tool calls are still
	// awaiting results.
	PendingCallMaxAgeMs int64
	// LockStaleMs is how old a session lock may be before it is ignored.
	LockStaleMs int64
}

// tailLimit bounds how much of the session transcript the probe reads.
const tailLimit = 400

// ObserveMainSession detects active interactive work in the main
// session: tool activity after the last user message, with pending tool
// calls and a live lock file extending the detection window. Plain
// user/assistant chat with no tool activity is intentionally excluded.
//
// Returns nil when the main session is idle or undetectable; the probe
// is best-effort and never fails collection.
func ObserveMainSession(sessionsPath string, doc map[string]map[string]any, nowMs int64, policy MainSessionPolicy) *Observation {
	meta := doc[MainSessionKey]
	if meta == nil {
		return nil
	}

	sessionFile := stringField(meta, "sessionFile")
	if sessionFile == "" {
		sessionID := stringField(meta, "sessionId")
		if sessionID == "" {
			return nil
		}
		sessionFile = filepath.Join(filepath.Dir(sessionsPath), sessionID+".jsonl")
	}

	transcript := readJSONLTail(sessionFile, tailLimit)
	if len(transcript) == 0 {
		return nil
	}

	lastUserMs, lastUserText, ok := latestUserMessage(transcript)
	if !ok {
		return nil
	}

	toolEvents, pendingCalls := collectToolEvents(transcript, lastUserMs)
	if len(toolEvents) == 0 {
		return nil
	}

	lastToolMs := int64(0)
	startedAtMs := toolEvents[0].atMs
	for _, te := range toolEvents {
		if te.atMs > lastToolMs {
			lastToolMs = te.atMs
		}
		if te.atMs < startedAtMs {
			startedAtMs = te.atMs
		}
	}

	if pendingCalls > 0 {
		if nowMs-lastToolMs > policy.PendingCallMaxAgeMs {
			return nil
		}
		// With the lock gone, only very recent activity still counts.
		if !lockActive(sessionFile, nowMs, policy.LockStaleMs) && nowMs-lastToolMs > policy.MaxAgeMs {
			return nil
		}
	} else if nowMs-lastToolMs > policy.MaxAgeMs {
		return nil
	}

	task := summarizeTask(lastUserText)
	if task == "" {
		task = "Main session task"
	}
	summary := task
	if tools := toolNames(toolEvents); tools != "" {
		summary = fmt.Sprintf("%s (tools: %s)", task, tools)
	}

	return &Observation{
		RunKey: "interactive:main-session",
		Type:   event.TypeHeartbeat,
		AtMs:   lastToolMs,
		Source: event.SourceSessionsStore,
		Offset: "sessions:" + MainSessionKey,
		Payload: event.Payload{
			JobID:        "interactive:main-session",
			JobName:      task,
			SessionID:    MainSessionKey,
			SessionKey:   MainSessionKey,
			Summary:      summary,
			StartedAtMs:  startedAtMs,
			LastSeenAtMs: lastToolMs,
			ActivityType: event.ActivityInteractive,
		},
	}
}

type toolEvent struct {
	atMs int64
	name string
}

func latestUserMessage(transcript []map[string]any) (int64, string, bool) {
	for i := len(transcript) - 1; i >= 0; i-- {
		message, ok := transcript[i]["message"].(map[string]any)
		if !ok || message["role"] != "user" {
			continue
		}
		atMs, ok := ParseTimestampMs(message["timestamp"])
		if !ok {
			atMs, ok = ParseTimestampMs(transcript[i]["timestamp"])
		}
		if !ok {
			return 0, "", false
		}
		return atMs, extractUserText(message["content"]), true
	}
	return 0, "", false
}

func collectToolEvents(transcript []map[string]any, sinceMs int64) ([]toolEvent, int) {
	var events []toolEvent
	pending := map[string]bool{}

	for _, row := range transcript {
		atMs, ok := ParseTimestampMs(row["timestamp"])
		if !ok || atMs < sinceMs {
			continue
		}
		message, ok := row["message"].(map[string]any)
		if !ok {
			continue
		}

		switch message["role"] {
		case "toolResult":
			name := strings.TrimSpace(stringField(message, "toolName"))
			if name == "" {
				name = "tool"
			}
			events = append(events, toolEvent{atMs: atMs, name: name})
			if id := normalizeToolCallID(stringField(message, "toolCallId")); id != "" {
				delete(pending, id)
			}
		case "assistant":
			content, ok := message["content"].([]any)
			if !ok {
				continue
			}
			for _, item := range content {
				call, ok := item.(map[string]any)
				if !ok || call["type"] != "toolCall" {
					continue
				}
				name := strings.TrimSpace(stringField(call, "name"))
				if name == "" {
					name = strings.TrimSpace(stringField(call, "toolName"))
				}
				if name == "" {
					name = "tool"
				}
				events = append(events, toolEvent{atMs: atMs, name: name})

				id := normalizeToolCallID(stringField(call, "id"))
				if id == "" {
					id = normalizeToolCallID(stringField(call, "toolCallId"))
				}
				if id != "" {
					pending[id] = true
				}
			}
		}
	}

	return events, len(pending)
}

// normalizeToolCallID strips suffix metadata like "call_x|fc_x".
func normalizeToolCallID(value string) string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return ""
	}
	if i := strings.Index(cleaned, "|"); i >= 0 {
		return cleaned[:i]
	}
	return cleaned
}

func extractUserText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var parts []string
		for _, item := range v {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if text := stringField(block, "text"); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func toolNames(events []toolEvent) string {
	seen := map[string]bool{}
	for _, te := range events {
		seen[te.name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 3 {
		return fmt.Sprintf("%s, +%d more", strings.Join(names[:3], ", "), len(names)-3)
	}
	return strings.Join(names, ", ")
}

// lockActive reports whether the session lock file indicates live
// in-flight work: fresh enough and, when it carries a pid, that pid is
// still alive.
func lockActive(sessionFile string, nowMs, lockStaleMs int64) bool {
	lockFile := sessionFile + ".lock"
	data, err := os.ReadFile(lockFile)
	if err != nil {
		return false
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}

	createdAtMs, hasCreated := ParseTimestampMs(doc["createdAt"])
	if hasCreated && nowMs-createdAtMs > lockStaleMs {
		return false
	}

	if pid, ok := doc["pid"].(float64); ok {
		return isLivePid(int(pid))
	}
	return hasCreated && nowMs-createdAtMs <= lockStaleMs
}

func isLivePid(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 probes existence without delivering anything.
	return syscall.Kill(pid, 0) == nil
}

// readJSONLTail reads up to maxLines trailing records from a JSONL
// transcript, skipping malformed lines.
func readJSONLTail(path string, maxLines int) []map[string]any {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var rows []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		rows = append(rows, row)
		if len(rows) > maxLines {
			rows = rows[1:]
		}
	}
	return rows
}
