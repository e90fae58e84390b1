package metrics

import (
	"github.com/vporoshin/flowtime/internal/history"
)

// Downstream queues run their own workflow, so return counting matches
// their status names rather than the upstream mapping.
var (
	defaultTestingStatuses      = []string{"Testing"}
	defaultExternalTestStatuses = []string{"Внешний тест"}
)

// ReturnStatuses names the downstream statuses whose entries count as
// testing and external-test returns.
type ReturnStatuses struct {
	Testing      []string
	ExternalTest []string
}

// DefaultReturnStatuses returns the downstream workflow names this tool was
// built against.
func DefaultReturnStatuses() ReturnStatuses {
	return ReturnStatuses{
		Testing:      defaultTestingStatuses,
		ExternalTest: defaultExternalTestStatuses,
	}
}

// Returns holds the entrance counts for one upstream task's downstream
// hierarchy.
type Returns struct {
	Testing      int
	ExternalTest int
}

func matchAny(names []string) func(history.Entry) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(e history.Entry) bool { return set[e.Display] }
}

// CountReturns sums transitions into the return statuses across the given
// downstream task histories. Every entrance counts: a task that went through
// testing twice contributes two testing returns.
func CountReturns(histories map[string][]history.Entry, keys []string, rs ReturnStatuses) Returns {
	isTesting := matchAny(rs.Testing)
	isExternal := matchAny(rs.ExternalTest)

	var out Returns
	for _, key := range keys {
		h := histories[key]
		if len(h) == 0 {
			continue
		}
		out.Testing += history.CountEntrances(h, isTesting)
		out.ExternalTest += history.CountEntrances(h, isExternal)
	}
	return out
}
