package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vporoshin/flowtime/internal/config"
	"github.com/vporoshin/flowtime/internal/history"
)

func testMapping() *config.StatusMapping {
	return &config.StatusMapping{
		Discovery:    map[string]bool{"Discovery backlog": true, "Discovery": true},
		Done:         map[string]bool{"Готово": true},
		Pause:        map[string]bool{"Приостановлено": true},
		ExternalTest: map[string]bool{"МП / Внешний тест": true},
		ReadyForDev:  "Готова к разработке",
		InWork:       "МП / В работе",
	}
}

func newCalc(asOf *time.Time) *Calculator {
	return &Calculator{
		Statuses: testMapping(),
		Now:      time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		AsOf:     asOf,
	}
}

func d(month, day int) time.Time {
	return time.Date(2025, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func closed(status string, start, end time.Time) history.Entry {
	return history.Entry{Status: status, Display: status, Start: start, End: &end}
}

func open(status string, start time.Time) history.Entry {
	return history.Entry{Status: status, Display: status, Start: start}
}

func TestTTDBasic(t *testing.T) {
	h := []history.Entry{
		closed("Открыт", d(1, 1), d(1, 5)),
		closed("Discovery", d(1, 5), d(1, 15)),
		open("Готова к разработке", d(1, 15)),
	}

	got := newCalc(nil).TTD(h)
	require.NotNil(t, got)
	assert.Equal(t, 14, *got)
}

func TestTTDDeductsPause(t *testing.T) {
	h := []history.Entry{
		closed("Открыт", d(1, 1), d(1, 5)),
		closed("Discovery", d(1, 5), d(1, 8)),
		closed("Приостановлено", d(1, 8), d(1, 10)),
		closed("Discovery", d(1, 10), d(1, 15)),
		open("Готова к разработке", d(1, 15)),
	}

	got := newCalc(nil).TTD(h)
	require.NotNil(t, got)
	assert.Equal(t, 12, *got)
}

func TestTTDSurvivesBounceFilter(t *testing.T) {
	blipEnd := d(1, 6).Add(2 * time.Minute)
	h := []history.Entry{
		closed("Открыт", d(1, 1), d(1, 5)),
		closed("Discovery", d(1, 5), d(1, 6)),
		closed("Готова к разработке", d(1, 6), blipEnd),
		closed("Discovery", blipEnd, d(1, 15)),
		open("Готова к разработке", d(1, 15)),
	}

	filtered := history.FilterShort(h, 5*time.Minute)
	got := newCalc(nil).TTD(filtered)
	require.NotNil(t, got)
	assert.Equal(t, 14, *got)
}

func TestTTDNilWithoutReadyForDev(t *testing.T) {
	h := []history.Entry{
		closed("Открыт", d(1, 1), d(1, 5)),
		open("Discovery", d(1, 5)),
	}
	assert.Nil(t, newCalc(nil).TTD(h))
	assert.Nil(t, newCalc(nil).TTD(nil))
}

func TestTTDAsOfGrowsWhileSittingInReadyForDev(t *testing.T) {
	created := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)
	h := []history.Entry{open("Готова к разработке", created)}

	jan18 := time.Date(2026, time.January, 18, 0, 0, 0, 0, time.UTC)
	got := newCalc(&jan18).TTD(h)
	require.NotNil(t, got)
	assert.Equal(t, 48, *got)

	feb6 := time.Date(2026, time.February, 6, 0, 0, 0, 0, time.UTC)
	later := newCalc(&feb6).TTD(h)
	require.NotNil(t, later)
	assert.Greater(t, *later, *got)

	// Without an as-of date the anchor is the entry moment itself.
	fixed := newCalc(nil).TTD(h)
	require.NotNil(t, fixed)
	assert.Zero(t, *fixed)
}

func TestTTDAsOfDoesNotMoveClosedAnchor(t *testing.T) {
	h := []history.Entry{
		closed("Открыт", d(1, 1), d(1, 15)),
		closed("Готова к разработке", d(1, 15), d(1, 20)),
		open("МП / В работе", d(1, 20)),
	}

	asOf := d(3, 1)
	got := newCalc(&asOf).TTD(h)
	require.NotNil(t, got)
	assert.Equal(t, 14, *got)
}

func TestTTM(t *testing.T) {
	h := []history.Entry{
		closed("Открыт", d(1, 1), d(1, 10)),
		closed("МП / В работе", d(1, 10), d(1, 20)),
		open("Готово", d(1, 20)),
	}

	got := newCalc(nil).TTM(h)
	require.NotNil(t, got)
	assert.Equal(t, 19, *got)

	// Finished work ignores as-of dates entirely.
	asOf := d(1, 12)
	same := newCalc(&asOf).TTM(h)
	require.NotNil(t, same)
	assert.Equal(t, 19, *same)
}

func TestTTMNilWhileUnfinished(t *testing.T) {
	h := []history.Entry{open("МП / В работе", d(1, 1))}
	assert.Nil(t, newCalc(nil).TTM(h))
}

func TestDevLTMeasuresToExternalTest(t *testing.T) {
	h := []history.Entry{
		closed("МП / В работе", d(2, 1), d(2, 11)),
		closed("МП / Внешний тест", d(2, 11), d(2, 16)),
	}

	got := newCalc(nil).DevLT(h)
	require.NotNil(t, got)
	assert.Equal(t, 10, *got)

	// The anchor already happened, so as-of dates cannot move it.
	asOf := d(2, 5)
	same := newCalc(&asOf).DevLT(h)
	require.NotNil(t, same)
	assert.Equal(t, 10, *same)
}

func TestDevLTOpenWorkGrowsWithAsOf(t *testing.T) {
	h := []history.Entry{
		closed("Открыт", d(2, 1), d(2, 2)),
		open("МП / В работе", d(2, 2)),
	}

	asOf := d(2, 10)
	got := newCalc(&asOf).DevLT(h)
	require.NotNil(t, got)
	assert.Equal(t, 8, *got)

	later := d(2, 20)
	more := newCalc(&later).DevLT(h)
	require.NotNil(t, more)
	assert.Equal(t, 18, *more)
}

func TestDevLTOpenWorkWithoutAsOfUsesNow(t *testing.T) {
	h := []history.Entry{open("МП / В работе", d(2, 1))}

	got := newCalc(nil).DevLT(h)
	require.NotNil(t, got)
	// Calculator clock is pinned to 2025-06-01.
	assert.Equal(t, 120, *got)
}

func TestDevLTNilWhenFinishedWithoutExternalTest(t *testing.T) {
	h := []history.Entry{
		closed("МП / В работе", d(2, 1), d(2, 11)),
		open("Готово", d(2, 11)),
	}
	assert.Nil(t, newCalc(nil).DevLT(h))
}

func TestDevLTNilWithoutInWork(t *testing.T) {
	h := []history.Entry{open("Discovery", d(2, 1))}
	assert.Nil(t, newCalc(nil).DevLT(h))
}

func TestTailExitToDone(t *testing.T) {
	h := []history.Entry{
		closed("МП / В работе", d(3, 1), d(3, 10)),
		closed("МП / Внешний тест", d(3, 10), d(3, 15)),
		closed("Регресс-тест", d(3, 15), d(3, 18)),
		open("Готово", d(3, 18)),
	}

	got := newCalc(nil).Tail(h)
	require.NotNil(t, got)
	assert.Equal(t, 3, *got)
}

func TestTailStillInExternalTest(t *testing.T) {
	h := []history.Entry{
		closed("МП / В работе", d(3, 1), d(3, 10)),
		open("МП / Внешний тест", d(3, 10)),
	}

	assert.Nil(t, newCalc(nil).Tail(h))

	asOf := d(3, 20)
	got := newCalc(&asOf).Tail(h)
	require.NotNil(t, got)
	assert.Equal(t, 10, *got)
}

func TestTailExitedButNotDone(t *testing.T) {
	h := []history.Entry{
		closed("МП / Внешний тест", d(3, 10), d(3, 15)),
		open("Апрув", d(3, 15)),
	}

	assert.Nil(t, newCalc(nil).Tail(h))

	asOf := d(3, 25)
	got := newCalc(&asOf).Tail(h)
	require.NotNil(t, got)
	assert.Equal(t, 10, *got)
}

func TestTailNilWithoutExternalTest(t *testing.T) {
	h := []history.Entry{open("МП / В работе", d(3, 1))}
	assert.Nil(t, newCalc(nil).Tail(h))
}

func TestPausePairsWithAnchors(t *testing.T) {
	h := []history.Entry{
		closed("Открыт", d(1, 1), d(1, 5)),
		closed("Приостановлено", d(1, 5), d(1, 8)),
		closed("Готова к разработке", d(1, 8), d(1, 10)),
		closed("МП / В работе", d(1, 10), d(1, 12)),
		closed("Приостановлено", d(1, 12), d(1, 16)),
		open("Готово", d(1, 16)),
	}
	c := newCalc(nil)

	// Up to the done anchor both pauses count; up to the ready-for-dev
	// anchor only the first does.
	assert.Equal(t, 7, c.PauseDays(h))
	assert.Equal(t, 3, c.TTDPause(h))
}

func TestPauseOpenTaskRunsToCutoff(t *testing.T) {
	h := []history.Entry{
		closed("Открыт", d(1, 1), d(1, 5)),
		open("Приостановлено", d(1, 5)),
	}
	asOf := d(1, 9)
	assert.Equal(t, 4, newCalc(&asOf).PauseDays(h))
}

func TestStatusDaySums(t *testing.T) {
	h := []history.Entry{
		closed("Discovery backlog", d(1, 1), d(1, 4)),
		closed("Discovery", d(1, 4), d(1, 6)),
		closed("Готова к разработке", d(1, 6), d(1, 9)),
		open("Готова к разработке", d(1, 9)),
	}
	asOf := d(1, 11)
	c := newCalc(&asOf)

	assert.Equal(t, 5, c.DiscoveryBacklogDays(h))
	assert.Equal(t, 5, c.ReadyForDevDays(h))
}

func TestQuarterBucketsFollowAnchors(t *testing.T) {
	quarters := []config.Quarter{
		{Name: "Q1 2025", Start: d(1, 1), End: d(3, 31)},
		{Name: "Q2 2025", Start: d(4, 1), End: d(6, 30)},
	}
	c := newCalc(nil)
	c.Quarters = quarters

	h := []history.Entry{
		closed("Открыт", d(1, 1), d(1, 15)),
		closed("Готова к разработке", d(1, 15), d(4, 10)),
		open("Готово", d(4, 10)),
	}

	v := c.Evaluate(h)
	assert.Equal(t, "Q1 2025", v.QuarterTTD)
	assert.Equal(t, "Q2 2025", v.QuarterTTM)

	noCal := newCalc(nil)
	bare := noCal.Evaluate(h)
	assert.Empty(t, bare.QuarterTTD)
	assert.Empty(t, bare.QuarterTTM)
}

func TestEvaluateFillsEveryField(t *testing.T) {
	h := []history.Entry{
		closed("Открыт", d(1, 1), d(1, 5)),
		closed("Готова к разработке", d(1, 5), d(1, 10)),
		closed("МП / В работе", d(1, 10), d(1, 20)),
		closed("МП / Внешний тест", d(1, 20), d(1, 25)),
		open("Готово", d(1, 25)),
	}

	v := newCalc(nil).Evaluate(h)
	require.NotNil(t, v.TTD)
	require.NotNil(t, v.TTM)
	require.NotNil(t, v.DevLT)
	require.NotNil(t, v.Tail)
	assert.Equal(t, 4, *v.TTD)
	assert.Equal(t, 24, *v.TTM)
	assert.Equal(t, 10, *v.DevLT)
	assert.Equal(t, 0, *v.Tail)
	assert.Equal(t, 5, v.ReadyForDevDays)
}

func TestCountReturns(t *testing.T) {
	histories := map[string][]history.Entry{
		"FULLSTACK-2": {
			closed("In Progress", d(1, 1), d(1, 3)),
			closed("Testing", d(1, 3), d(1, 5)),
			closed("In Progress", d(1, 5), d(1, 7)),
			closed("Testing", d(1, 7), d(1, 9)),
			open("Внешний тест", d(1, 9)),
		},
		"FULLSTACK-3": {
			closed("In Progress", d(1, 1), d(1, 4)),
			open("Testing", d(1, 4)),
		},
	}

	got := CountReturns(histories, []string{"FULLSTACK-2", "FULLSTACK-3", "FULLSTACK-4"}, DefaultReturnStatuses())
	assert.Equal(t, 3, got.Testing)
	assert.Equal(t, 1, got.ExternalTest)

	none := CountReturns(histories, nil, DefaultReturnStatuses())
	assert.Zero(t, none.Testing)
	assert.Zero(t, none.ExternalTest)
}

func TestSummarize(t *testing.T) {
	assert.Nil(t, Summarize(nil))

	one := Summarize([]int{10})
	require.NotNil(t, one)
	assert.Equal(t, 1, one.Count)
	assert.Equal(t, 10.0, one.Mean)
	assert.Equal(t, 10, one.P85)

	ten := Summarize([]int{10, 1, 9, 2, 8, 3, 7, 4, 6, 5})
	require.NotNil(t, ten)
	assert.Equal(t, 10, ten.Count)
	assert.Equal(t, 5.5, ten.Mean)
	assert.Equal(t, 9, ten.P85)

	twenty := make([]int, 20)
	for i := range twenty {
		twenty[i] = i + 1
	}
	assert.Equal(t, 17, Summarize(twenty).P85)
}
