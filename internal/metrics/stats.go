package metrics

import (
	"sort"
)

// Summary aggregates one metric series for a (quarter, group) cell.
type Summary struct {
	Count int
	Mean  float64
	P85   int
}

// Summarize computes count, mean and the nearest-rank 85th percentile.
// Nearest-rank means the value at position ceil(0.85 * n) of the sorted
// series, so the percentile is always a value that actually occurred.
// Returns nil for an empty series.
func Summarize(values []int) *Summary {
	n := len(values)
	if n == 0 {
		return nil
	}

	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	sum := 0
	for _, v := range sorted {
		sum += v
	}

	// Integer ceil of n*85/100; float math here would misrank exact
	// multiples.
	rank := (n*85 + 99) / 100
	if rank < 1 {
		rank = 1
	}

	return &Summary{
		Count: n,
		Mean:  float64(sum) / float64(n),
		P85:   sorted[rank-1],
	}
}
