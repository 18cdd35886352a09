package crdt

import "github.com/synckit/replicate/pkg/types"

// Resolver picks a Register field's winning value from its per-client
// entries. entries is never mutated by a resolver.
type Resolver func(entries map[string]types.RegisterEntry) any

// DefaultResolver picks the entry with the highest ts, ties broken by the
// lexicographically smallest client id — matching §4.4's default register
// semantics.
func DefaultResolver(entries map[string]types.RegisterEntry) any {
	var bestClient string
	var best *types.RegisterEntry
	for client, entry := range entries {
		e := entry
		switch {
		case best == nil:
			bestClient, best = client, &e
		case e.TS > best.TS:
			bestClient, best = client, &e
		case e.TS == best.TS && client < bestClient:
			bestClient, best = client, &e
		}
	}
	if best == nil {
		return nil
	}
	return best.Value
}

// RegisterValue resolves a Register field's current value using resolver,
// or DefaultResolver if resolver is nil.
func RegisterValue(state *types.RegisterState, resolver Resolver) any {
	if state == nil {
		return nil
	}
	if resolver == nil {
		resolver = DefaultResolver
	}
	return resolver(state.Entries)
}
