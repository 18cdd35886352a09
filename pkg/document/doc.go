/*
Package document implements the Document Manager: the owning map from
(collection, document) to a live CRDT document handle, the only place
pkg/crdt.Doc values are constructed or torn down.

# Architecture

	┌──────────────────────── Manager ────────────────────────┐
	│  collections map[string]map[string]*entry                │
	│  each entry: *crdt.Doc + pendingFlush counter             │
	│                                                            │
	│  getOrCreate(collection, id)                              │
	│    memory hit  → return                                   │
	│    memory miss → persistence.Load → replay tagged "load"  │
	│                                                            │
	│  applyUpdate(collection, id, bytes, origin)                │
	│  transactWithDelta(collection, id, fn, origin)             │
	│    both: mutate doc, then persistence.Append unless        │
	│    origin == "load" (loaded history is already durable)    │
	└────────────────────────────────────────────────────────────┘

A Manager never writes to the authority and never schedules a sync
flush itself — it is the single place that owns CRDT state, and it
publishes document.* events for anything layered on top (Sync Actor,
Replicator, UI) to react to.
*/
package document
