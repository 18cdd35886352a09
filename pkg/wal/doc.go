/*
Package wal implements the WAL + Snapshot component: the durable delta
log backing every document, plus the compaction that keeps it bounded.

# Architecture

	┌───────────────────────── WAL ─────────────────────────┐
	│  Append(collection, document, delta, origin)           │
	│    → INSERT INTO deltas                                │
	│    → count rows for (collection, document)             │
	│    → ≥ threshold? compact()                            │
	│                                                          │
	│  compact(collection, document)                          │
	│    → replay snapshot + deltas into a scratch crdt.Doc   │
	│    → write the result as the new snapshot row           │
	│    → delete only the delta rows folded into it          │
	│                                                          │
	│  Load(collection, document)                             │
	│    → snapshot row (if any) + every delta since it        │
	└──────────────────────────────────────────────────────────┘

WAL implements pkg/document's Persistence interface structurally — it
never imports pkg/document, keeping the dependency one-directional.
Compaction never needs to run atomically with the delete that follows
it: every CRDT op is idempotent, so replaying a delta already folded
into a newer snapshot is a no-op. A crash between the two leaves the
delta row for next time's compaction to fold in again, at worst.
*/
package wal
