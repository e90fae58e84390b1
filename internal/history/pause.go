package history

import "time"

const day = 24 * time.Hour

// wholeDays floors a duration to whole days, never negative.
func wholeDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / day)
}

// DaysBetween returns whole days from a to b, clamped at zero when b
// precedes a.
func DaysBetween(a, b time.Time) int {
	return wholeDays(b.Sub(a))
}

// FirstIndex returns the index of the first entry matching the predicate,
// or -1. Callers that want the canonical "first entry into a status" pass
// a bounce-filtered timeline here, never the raw one.
func FirstIndex(entries []Entry, match func(Entry) bool) int {
	for i, e := range entries {
		if match(e) {
			return i
		}
	}
	return -1
}

// CountEntrances counts transitions into the matched status set: entries
// that match while their predecessor does not.
func CountEntrances(entries []Entry, match func(Entry) bool) int {
	n := 0
	for i, e := range entries {
		if match(e) && (i == 0 || !match(entries[i-1])) {
			n++
		}
	}
	return n
}

// pauseSpans collapses runs of consecutive pause entries into spans. A span
// runs from the first pause entry's start until the start of the next
// non-pause entry, or until horizon when the timeline ends inside the pause.
// Using the next entry's start rather than the pause interval's own end means
// gaps left by the bounce filter still count as paused time.
func pauseSpans(entries []Entry, isPause func(Entry) bool, horizon time.Time) [][2]time.Time {
	var spans [][2]time.Time
	for i := 0; i < len(entries); {
		if !isPause(entries[i]) {
			i++
			continue
		}
		start := entries[i].Start
		j := i + 1
		for j < len(entries) && isPause(entries[j]) {
			j++
		}
		end := horizon
		if j < len(entries) {
			end = entries[j].Start
		}
		if end.After(start) {
			spans = append(spans, [2]time.Time{start, end})
		}
		i = j
	}
	return spans
}

// PauseDaysUpTo returns whole days spent paused before cutoff. Spans that
// cross the cutoff count only the portion before it. Each span is floored
// to days individually before summing.
func PauseDaysUpTo(entries []Entry, isPause func(Entry) bool, cutoff time.Time) int {
	total := 0
	for _, s := range pauseSpans(entries, isPause, cutoff) {
		start, end := s[0], s[1]
		if !start.Before(cutoff) {
			continue
		}
		if end.After(cutoff) {
			end = cutoff
		}
		total += wholeDays(end.Sub(start))
	}
	return total
}

// PauseDaysBetween returns whole days of paused time overlapping [from, to].
func PauseDaysBetween(entries []Entry, isPause func(Entry) bool, from, to time.Time) int {
	total := 0
	for _, s := range pauseSpans(entries, isPause, to) {
		start, end := s[0], s[1]
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		if end.After(start) {
			total += wholeDays(end.Sub(start))
		}
	}
	return total
}

// SumDays totals whole days across every interval matching the predicate,
// floored per interval. Open intervals run until asOf.
func SumDays(entries []Entry, match func(Entry) bool, asOf time.Time) int {
	total := 0
	for _, e := range entries {
		if match(e) {
			total += wholeDays(e.Duration(asOf))
		}
	}
	return total
}
