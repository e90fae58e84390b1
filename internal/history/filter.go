package history

import "time"

// FilterShort drops accidental status flips: middle entries whose successor
// starts less than threshold after them. The first and last entries always
// survive, so the filter never invents a different initial or current status.
// Consecutive same-status entries left behind by a drop are merged into one
// interval spanning from the earlier start to the later end.
//
// The input is not modified; timelines coming out of here may have gaps where
// entries were dropped, which is fine because all downstream arithmetic works
// from entry starts.
func FilterShort(entries []Entry, threshold time.Duration) []Entry {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) <= 2 || threshold <= 0 {
		out := make([]Entry, len(entries))
		copy(out, entries)
		return out
	}

	kept := make([]Entry, 0, len(entries))
	kept = append(kept, entries[0])
	for i := 1; i < len(entries)-1; i++ {
		if entries[i+1].Start.Sub(entries[i].Start) < threshold {
			continue
		}
		kept = append(kept, entries[i])
	}
	kept = append(kept, entries[len(entries)-1])

	merged := make([]Entry, 0, len(kept))
	for _, e := range kept {
		if n := len(merged); n > 0 && sameStatus(merged[n-1], e) {
			merged[n-1].End = e.End
			continue
		}
		merged = append(merged, e)
	}
	return merged
}

func sameStatus(a, b Entry) bool {
	if a.Display != "" || b.Display != "" {
		return a.Display == b.Display
	}
	return a.Status == b.Status
}

// CutAsOf rewinds a timeline to how it looked at asOf: entries starting later
// are dropped and intervals still running at asOf are reopened. Returns a
// fresh slice; the input is untouched.
func CutAsOf(entries []Entry, asOf time.Time) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Start.After(asOf) {
			continue
		}
		if e.End != nil && e.End.After(asOf) {
			e.End = nil
		}
		out = append(out, e)
	}
	return out
}
