package source

import (
	"context"
	"encoding/json"
	"os"
	"regexp"
	"sort"

	"github.com/roach88/runtruth/internal/event"
)

// Stable reason codes surfaced in degradedReason when a source fails.
const (
	ReasonSessionsMissing         = "sessions-store-missing"
	ReasonSessionsInvalid         = "sessions-store-invalid"
	ReasonSessionsUnexpectedShape = "sessions-store-unexpected-shape"
	ReasonSubagentMissing         = "subagent-registry-missing"
	ReasonSubagentInvalid         = "subagent-registry-invalid"
	ReasonSubagentUnexpectedShape = "subagent-registry-unexpected-shape"
)

// ReasonError tags a source failure with its stable reason code so the
// truth selector can report it verbatim in degradedReason.
type ReasonError struct {
	Reason string
}

func (e *ReasonError) Error() string {
	return e.Reason
}

// cronRunSessionKeyRE matches session keys that belong to cron job runs.
var cronRunSessionKeyRE = regexp.MustCompile(`^agent:main:cron:([^:]+):run:([^:]+)$`)

// MainSessionKey is the session-store key of the interactive main session.
const MainSessionKey = "agent:main:main"

// LoadSessionsDoc reads the session store. The second return value is a
// reason code, empty on success.
func LoadSessionsDoc(path string) (map[string]map[string]any, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ReasonSessionsMissing
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Either not JSON at all, or JSON of the wrong top-level shape.
		var probe any
		if json.Unmarshal(data, &probe) != nil {
			return nil, ReasonSessionsInvalid
		}
		return nil, ReasonSessionsUnexpectedShape
	}

	doc := make(map[string]map[string]any, len(raw))
	for key, msg := range raw {
		var meta map[string]any
		if err := json.Unmarshal(msg, &meta); err != nil {
			continue
		}
		doc[key] = meta
	}
	return doc, ""
}

// SessionsSource derives heartbeat observations for cron-run sessions
// from the session store. Each matching session key yields one
// heartbeat at the session's updatedAt timestamp.
type SessionsSource struct {
	Path string
	Jobs map[string]JobMeta
}

func (s *SessionsSource) Name() string {
	return event.SourceSessionsStore
}

func (s *SessionsSource) Observe(ctx context.Context) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, reason := LoadSessionsDoc(s.Path)
	if reason != "" {
		return nil, &ReasonError{Reason: reason}
	}

	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var observations []Observation
	for _, sessionKey := range keys {
		meta := doc[sessionKey]
		match := cronRunSessionKeyRE.FindStringSubmatch(sessionKey)
		if match == nil {
			continue
		}
		jobID, sessionID := match[1], match[2]

		runKey, ok := event.CronRunKey(jobID, sessionID)
		if !ok {
			continue
		}
		atMs, ok := ParseTimestampMs(meta["updatedAt"])
		if !ok {
			continue
		}

		jobMeta := s.Jobs[jobID]
		jobName := DisplayName(jobMeta, jobID)
		model := NormalizeModel(stringField(meta, "model"))
		if model == "" {
			model = jobMeta.Model
		}
		thinking := NormalizeThinking(stringField(meta, "thinking"))
		if thinking == "" {
			thinking = jobMeta.Thinking
		}

		observations = append(observations, Observation{
			RunKey: runKey,
			Type:   event.TypeHeartbeat,
			AtMs:   atMs,
			Source: event.SourceSessionsStore,
			Offset: "sessions:" + sessionKey,
			Payload: event.Payload{
				JobID:        jobID,
				JobName:      jobName,
				SessionID:    sessionID,
				SessionKey:   sessionKey,
				Summary:      jobName,
				StartedAtMs:  atMs,
				LastSeenAtMs: atMs,
				ActivityType: event.ActivityCron,
				Model:        model,
				Thinking:     thinking,
			},
		})
	}

	return observations, nil
}

func stringField(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
