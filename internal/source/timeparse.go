package source

import (
	"encoding/json"
	"strings"
	"time"
)

// msThreshold separates unix seconds from unix milliseconds: any value
// above it is already milliseconds.
const msThreshold = 10_000_000_000

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestampMs normalizes the timestamp shapes the sources emit:
// unix seconds or milliseconds (numeric), or ISO-8601 strings with or
// without a zone. Naive strings are interpreted as UTC. Returns false
// when the value is absent or unparseable.
func ParseTimestampMs(value any) (int64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case int64:
		return normalizeNumeric(v)
	case int:
		return normalizeNumeric(int64(v))
	case float64:
		return normalizeNumeric(int64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return normalizeNumeric(int64(f))
	case string:
		return parseISO(v)
	}
	return 0, false
}

func normalizeNumeric(n int64) (int64, bool) {
	if n > msThreshold {
		return n, true
	}
	if n > 0 {
		return n * 1000, true
	}
	return 0, false
}

func parseISO(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	// time.Parse treats zone-less layouts as UTC, which matches how the
	// producers write naive timestamps.
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}
