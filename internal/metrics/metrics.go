// Package metrics computes the per-task delivery metrics from filtered
// status history. Everything is pure arithmetic over intervals: history
// comes in, whole-day numbers come out. Negative results clamp to zero.
//
// Open intervals need a "now"; the Calculator carries one explicitly. An
// optional as-of date replaces it for historical reports, but only in
// open-interval handling: anchors that already happened never move, so a
// finished task reports the same numbers whatever the as-of date says.
package metrics

import (
	"time"

	"github.com/vporoshin/flowtime/internal/config"
	"github.com/vporoshin/flowtime/internal/history"
)

// Calculator evaluates delivery metrics against one status mapping and
// quarter calendar. Entries handed to its methods must be sorted by start
// and already bounce-filtered.
type Calculator struct {
	Statuses *config.StatusMapping
	Quarters []config.Quarter
	Now      time.Time
	AsOf     *time.Time
}

// Values is the metric vector of one task. Nil means the metric is not
// defined for the task (for example TTM before the first done status).
type Values struct {
	TTD   *int
	TTM   *int
	DevLT *int
	Tail  *int

	Pause    int
	TTDPause int

	DiscoveryBacklogDays int
	ReadyForDevDays      int

	QuarterTTD string
	QuarterTTM string
}

// Evaluate computes the full metric vector for one task's history.
func (c *Calculator) Evaluate(h []history.Entry) Values {
	return Values{
		TTD:                  c.TTD(h),
		TTM:                  c.TTM(h),
		DevLT:                c.DevLT(h),
		Tail:                 c.Tail(h),
		Pause:                c.PauseDays(h),
		TTDPause:             c.TTDPause(h),
		DiscoveryBacklogDays: c.DiscoveryBacklogDays(h),
		ReadyForDevDays:      c.ReadyForDevDays(h),
		QuarterTTD:           c.QuarterTTD(h),
		QuarterTTM:           c.QuarterTTM(h),
	}
}

func (c *Calculator) isReady(e history.Entry) bool     { return e.Display == c.Statuses.ReadyForDev }
func (c *Calculator) isInWork(e history.Entry) bool    { return e.Display == c.Statuses.InWork }
func (c *Calculator) isDone(e history.Entry) bool      { return c.Statuses.IsDone(e.Display) }
func (c *Calculator) isPause(e history.Entry) bool     { return c.Statuses.IsPause(e.Display) }
func (c *Calculator) isExternal(e history.Entry) bool  { return c.Statuses.IsExternalTest(e.Display) }
func (c *Calculator) isDiscovery(e history.Entry) bool { return c.Statuses.IsDiscovery(e.Display) }

// cutoff is the moment open intervals run to: the as-of date when one was
// requested, the wall clock otherwise.
func (c *Calculator) cutoff() time.Time {
	if c.AsOf != nil {
		return *c.AsOf
	}
	return c.Now
}

// ttdEnd is the anchor the TTD measures to: the first entry into the
// ready-for-dev status. While the task still sits there (open interval) an
// explicit as-of date takes over, which is what makes as-of TTD reports grow
// day by day for work stuck in ready-for-dev.
func (c *Calculator) ttdEnd(h []history.Entry) (time.Time, bool) {
	i := history.FirstIndex(h, c.isReady)
	if i < 0 {
		return time.Time{}, false
	}
	if h[i].End == nil && c.AsOf != nil {
		return *c.AsOf, true
	}
	return h[i].Start, true
}

// ttmEnd is the first entry into any done status.
func (c *Calculator) ttmEnd(h []history.Entry) (time.Time, bool) {
	i := history.FirstIndex(h, c.isDone)
	if i < 0 {
		return time.Time{}, false
	}
	return h[i].Start, true
}

// TTD is whole days from task creation to the first entry into
// ready-for-dev, pause time before that moment excluded. Nil when the task
// never reached ready-for-dev.
func (c *Calculator) TTD(h []history.Entry) *int {
	if len(h) == 0 {
		return nil
	}
	end, ok := c.ttdEnd(h)
	if !ok {
		return nil
	}
	d := history.DaysBetween(h[0].Start, end) - history.PauseDaysUpTo(h, c.isPause, end)
	return clamp(d)
}

// TTM is whole days from task creation to the first entry into any done
// status, pause time excluded. Nil for unfinished work; a done anchor in the
// past is final, so as-of dates do not move it.
func (c *Calculator) TTM(h []history.Entry) *int {
	if len(h) == 0 {
		return nil
	}
	end, ok := c.ttmEnd(h)
	if !ok {
		return nil
	}
	d := history.DaysBetween(h[0].Start, end) - history.PauseDaysUpTo(h, c.isPause, end)
	return clamp(d)
}

// DevLT is whole days from the first entry into the in-work status to the
// first entry into external test, pauses in between excluded. Work that
// never reached external test measures to the cutoff while still in flight,
// and is nil once finished without an external test phase.
func (c *Calculator) DevLT(h []history.Entry) *int {
	s := history.FirstIndex(h, c.isInWork)
	if s < 0 {
		return nil
	}
	start := h[s].Start

	var end time.Time
	if e := history.FirstIndex(h, c.isExternal); e >= 0 {
		end = h[e].Start
		if h[e].End == nil && c.AsOf != nil {
			end = *c.AsOf
		}
	} else {
		if history.FirstIndex(h, c.isDone) >= 0 {
			return nil
		}
		end = c.cutoff()
	}

	d := history.DaysBetween(start, end) - history.PauseDaysBetween(h, c.isPause, start, end)
	return clamp(d)
}

// Tail is whole days from the first exit out of external test to the first
// done status at or after that exit. A task that left external test but is
// not done yet, or that is still sitting in its first external-test run,
// only gets a tail on as-of reports, measured to the as-of date.
func (c *Calculator) Tail(h []history.Entry) *int {
	x := history.FirstIndex(h, c.isExternal)
	if x < 0 {
		return nil
	}

	// Skip the consecutive external-test run; the exit is the start of the
	// first interval after it.
	j := x
	for j < len(h) && c.isExternal(h[j]) {
		j++
	}

	var start, end time.Time
	if j == len(h) {
		if c.AsOf == nil {
			return nil
		}
		start, end = h[x].Start, *c.AsOf
	} else {
		start = h[j].Start
		if d := c.firstDoneAtOrAfter(h, start); d >= 0 {
			end = h[d].Start
		} else if c.AsOf != nil {
			end = *c.AsOf
		} else {
			return nil
		}
	}

	d := history.DaysBetween(start, end) - history.PauseDaysBetween(h, c.isPause, start, end)
	return clamp(d)
}

func (c *Calculator) firstDoneAtOrAfter(h []history.Entry, at time.Time) int {
	for i, e := range h {
		if c.isDone(e) && !e.Start.Before(at) {
			return i
		}
	}
	return -1
}

// PauseDays is the pause time deducted from TTM: whole days paused up to the
// first done status, or up to the cutoff for unfinished work.
func (c *Calculator) PauseDays(h []history.Entry) int {
	end, ok := c.ttmEnd(h)
	if !ok {
		end = c.cutoff()
	}
	return history.PauseDaysUpTo(h, c.isPause, end)
}

// TTDPause is the pause time deducted from TTD: whole days paused up to the
// TTD anchor, or up to the cutoff when the task never reached ready-for-dev.
func (c *Calculator) TTDPause(h []history.Entry) int {
	end, ok := c.ttdEnd(h)
	if !ok {
		end = c.cutoff()
	}
	return history.PauseDaysUpTo(h, c.isPause, end)
}

// DiscoveryBacklogDays sums whole days across all discovery-block intervals.
func (c *Calculator) DiscoveryBacklogDays(h []history.Entry) int {
	return history.SumDays(h, c.isDiscovery, c.cutoff())
}

// ReadyForDevDays sums whole days across all ready-for-dev intervals.
func (c *Calculator) ReadyForDevDays(h []history.Entry) int {
	return history.SumDays(h, c.isReady, c.cutoff())
}

// QuarterTTD names the quarter containing the TTD anchor, "" when the task
// has no TTD or the anchor falls outside the calendar.
func (c *Calculator) QuarterTTD(h []history.Entry) string {
	end, ok := c.ttdEnd(h)
	if !ok {
		return ""
	}
	if q := config.QuarterFor(c.Quarters, end); q != nil {
		return q.Name
	}
	return ""
}

// QuarterTTM names the quarter containing the TTM anchor.
func (c *Calculator) QuarterTTM(h []history.Entry) string {
	end, ok := c.ttmEnd(h)
	if !ok {
		return ""
	}
	if q := config.QuarterFor(c.Quarters, end); q != nil {
		return q.Name
	}
	return ""
}

func clamp(d int) *int {
	if d < 0 {
		d = 0
	}
	return &d
}
