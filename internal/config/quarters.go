package config

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/vporoshin/flowtime/internal/logging"
)

// Quarter is one reporting bucket from the quarter calendar.
type Quarter struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls inside the quarter, boundaries included.
func (q Quarter) Contains(d time.Time) bool {
	return !d.Before(q.Start) && !d.After(q.End)
}

// LoadQuarters parses the quarter calendar file. Lines look like
//
//	Q1 2025;2025-01-01;2025-03-31
//
// Blank lines and #-comments are skipped; malformed lines are logged and
// skipped. The result is sorted by start date.
func LoadQuarters(path string) ([]Quarter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open quarters file: %w", err)
	}
	defer f.Close()

	log := logging.WithComponent("config")

	var quarters []Quarter
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ";")
		if len(parts) != 3 {
			log.Warn().Str("file", path).Int("line", lineNo).Msg("skipping malformed quarter line")
			continue
		}
		start, err1 := time.Parse("2006-01-02", strings.TrimSpace(parts[1]))
		end, err2 := time.Parse("2006-01-02", strings.TrimSpace(parts[2]))
		if err1 != nil || err2 != nil {
			log.Warn().Str("file", path).Int("line", lineNo).Msg("skipping quarter line with bad date")
			continue
		}
		name := strings.TrimSpace(parts[0])
		if name == "" || end.Before(start) {
			log.Warn().Str("file", path).Int("line", lineNo).Msg("skipping invalid quarter line")
			continue
		}
		quarters = append(quarters, Quarter{Name: name, Start: start, End: endOfDay(end)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read quarters file: %w", err)
	}
	if len(quarters) == 0 {
		return nil, fmt.Errorf("quarters file %s contains no usable quarters", path)
	}

	sort.Slice(quarters, func(i, j int) bool { return quarters[i].Start.Before(quarters[j].Start) })

	for i := 1; i < len(quarters); i++ {
		if quarters[i].Start.Before(quarters[i-1].End) {
			log.Warn().
				Str("a", quarters[i-1].Name).
				Str("b", quarters[i].Name).
				Msg("quarters overlap; bucketing uses the earlier one")
		}
	}
	return quarters, nil
}

// QuarterFor returns the quarter containing d, or nil when none does.
func QuarterFor(quarters []Quarter, d time.Time) *Quarter {
	for i := range quarters {
		if quarters[i].Contains(d) {
			return &quarters[i]
		}
	}
	return nil
}

// endOfDay pushes an end boundary to 23:59:59 so a date-only calendar covers
// events that happen during its final day.
func endOfDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, d.Location())
}
