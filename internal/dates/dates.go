// Package dates parses the date-valued CLI flags. Flags accept either
// YYYY-MM-DD or a natural-language phrase ("today", "2 weeks ago").
package dates

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// Parse resolves s to a UTC midnight date. now anchors relative phrases.
func Parse(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d.UTC(), nil
	}

	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q (want YYYY-MM-DD or a phrase like \"2 weeks ago\")", s)
	}
	return Midnight(r.Time), nil
}

// Midnight truncates t to 00:00:00 UTC of its calendar day.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
