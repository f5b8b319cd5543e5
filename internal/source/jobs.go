package source

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// JobMeta is the display metadata for a scheduled job.
type JobMeta struct {
	Name     string
	Model    string
	Thinking string
}

// DisplayName falls back to a truncated job id when the job has no name.
func DisplayName(meta JobMeta, jobID string) string {
	if meta.Name != "" {
		return meta.Name
	}
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("Unknown job (%s)", short)
}

// LoadJobs reads the jobs file into an id-keyed metadata map. A missing
// or malformed file yields an empty map; jobs metadata is cosmetic and
// must never block collection.
func LoadJobs(path string) map[string]JobMeta {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]JobMeta{}
	}

	var doc struct {
		Jobs []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Payload struct {
				Model    string `json:"model"`
				Thinking string `json:"thinking"`
			} `json:"payload"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return map[string]JobMeta{}
	}

	jobs := make(map[string]JobMeta, len(doc.Jobs))
	for _, row := range doc.Jobs {
		if row.ID == "" {
			continue
		}
		jobs[row.ID] = JobMeta{
			Name:     row.Name,
			Model:    NormalizeModel(row.Payload.Model),
			Thinking: NormalizeThinking(row.Payload.Thinking),
		}
	}
	return jobs
}

// NormalizeModel canonicalizes model identifiers. Bare gpt-* names get
// their provider prefix restored.
func NormalizeModel(value string) string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return ""
	}
	if !strings.Contains(cleaned, "/") && strings.HasPrefix(cleaned, "gpt-") {
		return "openai-codex/" + cleaned
	}
	return cleaned
}

// NormalizeThinking canonicalizes thinking-level labels, collapsing the
// aliases the scheduler has used over time.
func NormalizeThinking(value string) string {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	cleaned = strings.ReplaceAll(cleaned, "-", "_")
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	if cleaned == "" {
		return ""
	}

	switch cleaned {
	case "min":
		return "minimal"
	case "very_high", "maximum", "max":
		return "extra_high"
	}
	return cleaned
}
