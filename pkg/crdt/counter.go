package crdt

import "github.com/synckit/replicate/pkg/types"

// CounterValue sums every entry in a Counter field's append-only log.
func CounterValue(state *types.CounterState) float64 {
	if state == nil {
		return 0
	}
	var sum float64
	for _, e := range state.Entries {
		sum += e.Delta
	}
	return sum
}
