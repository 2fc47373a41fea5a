package search

import (
	"slices"
	"time"

	"github.com/Iron-Ham/taskscope/internal/task"
)

// dateLayouts are the accepted DateRange formats, most specific first.
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, time.DateOnly}

// MatchesFilter reports whether t satisfies every constraint in f. A bound
// that cannot be parsed is treated as satisfied, so the result errs towards
// "could match".
func MatchesFilter(f TaskFilter, t task.Task) bool {
	if len(f.Status) > 0 && !slices.Contains(f.Status, t.Status) {
		return false
	}
	if len(f.Priority) > 0 && !slices.Contains(f.Priority, t.Priority) {
		return false
	}
	if len(f.Assignee) > 0 && !slices.Contains(f.Assignee, t.Assignee) {
		return false
	}
	if f.DateRange.IsZero() {
		return true
	}
	if from, ok := parseDate(f.DateRange.From); ok && t.UpdatedAt.Before(from) {
		return false
	}
	if to, ok := parseDate(f.DateRange.To); ok {
		// A date-only upper bound includes the whole day.
		if len(f.DateRange.To) == len(time.DateOnly) {
			to = to.Add(24 * time.Hour)
			return t.UpdatedAt.Before(to)
		}
		return !t.UpdatedAt.After(to)
	}
	return true
}

// affects reports whether a cached result for q could change because of ch.
// Free-text results are always affected: the server's text matching is
// opaque to the client.
func affects(q Query, ch task.Change) bool {
	if q.Text != "" {
		return true
	}
	if MatchesFilter(q.Filter, ch.Current) {
		return true
	}
	return !ch.Inserted && MatchesFilter(q.Filter, ch.Previous)
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
