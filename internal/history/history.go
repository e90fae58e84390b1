// Package history owns the pure transformations over status timelines:
// rebuilding intervals from changelog events, the short-transition (bounce)
// filter, the as-of cutoff, and pause/day arithmetic. Everything here is
// deterministic; "now" is always an argument, never the clock.
package history

import (
	"time"
)

// Entry is one interval during which a task held one status. End nil means
// the interval is still open.
type Entry struct {
	Status  string // system name ("readyForDev")
	Display string // localized name ("Готова к разработке"); metrics match on this
	Start   time.Time
	End     *time.Time
}

// Duration returns the interval length, with open intervals running to asOf.
func (e Entry) Duration(asOf time.Time) time.Duration {
	end := asOf
	if e.End != nil {
		end = *e.End
	}
	if end.Before(e.Start) {
		return 0
	}
	return end.Sub(e.Start)
}

// StatusChange is one status transition extracted from a changelog event.
type StatusChange struct {
	At          time.Time
	FromKey     string
	FromDisplay string
	ToKey       string
	ToDisplay   string
}

// Reconstruct replays status changes into a closed sequence of intervals,
// the last one open. The initial interval starts at the task's creation time
// with the status the first event transitioned away from (falling back to
// the current status when the changelog carries no usable transitions).
//
// Malformed changes (zero timestamp or empty target) are skipped and counted;
// duplicates on (status, start) keep the first occurrence. Zero-duration
// intervals are kept: storage stays faithful, filtering is metric-side.
func Reconstruct(changes []StatusChange, createdAt time.Time, currentKey, currentDisplay string) (entries []Entry, skipped int) {
	type seenKey struct {
		status string
		start  time.Time
	}
	seen := make(map[seenKey]bool)

	for _, ch := range changes {
		if ch.At.IsZero() || (ch.ToKey == "" && ch.ToDisplay == "") {
			skipped++
			continue
		}

		next := Entry{Status: ch.ToKey, Display: ch.ToDisplay, Start: ch.At}
		k := seenKey{next.Status, next.Start}
		if seen[k] {
			// Duplicate event; the previous interval stays open until a
			// genuinely new transition closes it.
			continue
		}
		seen[k] = true

		at := ch.At
		if len(entries) == 0 {
			first := Entry{Status: ch.FromKey, Display: ch.FromDisplay, Start: createdAt, End: &at}
			if first.Status == "" && first.Display == "" {
				first.Status, first.Display = currentKey, currentDisplay
			}
			seen[seenKey{first.Status, first.Start}] = true
			entries = append(entries, first)
		} else {
			entries[len(entries)-1].End = &at
		}
		entries = append(entries, next)
	}

	if len(entries) == 0 {
		if currentKey == "" && currentDisplay == "" {
			return nil, skipped
		}
		return []Entry{{Status: currentKey, Display: currentDisplay, Start: createdAt}}, skipped
	}

	entries[len(entries)-1].End = nil
	return entries, skipped
}
