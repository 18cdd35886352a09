package crdt

import (
	"encoding/json"
	"sort"

	"github.com/synckit/replicate/pkg/types"
)

// SetMembers returns the live members of a Set field as their JSON-encoded
// keys (not decoded), sorted, for convenient read-out.
func SetMembers(state *types.SetState) []string {
	if state == nil {
		return nil
	}
	members := make([]string, 0, len(state.Entries))
	for m := range state.Entries {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// SetContains reports whether value (marshaled to its canonical JSON form)
// is currently a live member of the set.
func SetContains(state *types.SetState, value any) (bool, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	if state == nil {
		return false, nil
	}
	_, ok := state.Entries[string(encoded)]
	return ok, nil
}
