package event

import "sort"

// Less defines the canonical replay order: timestamp, then source
// priority, then source offset, then event id. Two replays of the same
// journal prefix always apply events in the same order, so materialized
// state is deterministic.
func Less(a, b Event) bool {
	if a.AtMs != b.AtMs {
		return a.AtMs < b.AtMs
	}
	ap, bp := SourcePriority(a.Source), SourcePriority(b.Source)
	if ap != bp {
		return ap < bp
	}
	if a.SourceOffset != b.SourceOffset {
		return a.SourceOffset < b.SourceOffset
	}
	return a.EventID < b.EventID
}

// Sort orders events in-place using the canonical replay order.
func Sort(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return Less(events[i], events[j])
	})
}
