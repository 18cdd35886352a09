/*
Package storage implements the Storage Adapter: the only component that
touches disk. Every other component goes through it for durable state —
CRDT snapshots and deltas, replication cursors, the client identity, and
the migrator's schema ledger.

# Architecture

	┌──────────────────── STORAGE ADAPTER ──────────────────────┐
	│                                                             │
	│  ┌──────────────────────────────────────────────┐         │
	│  │                 Adapter                        │         │
	│  │  - single-writer queue (goroutine + channel)   │         │
	│  │  - fault → closed, fails all pending w/ IO err │         │
	│  └───────────────┬──────────────────┬────────────┘         │
	│                  │                  │                       │
	│       ┌──────────▼──────┐  ┌────────▼─────────┐            │
	│       │   Blob KV face   │  │    SQL face       │            │
	│       │  (bbolt, single  │  │ (modernc.org/     │            │
	│       │   "kv" bucket)   │  │  sqlite, no cgo)  │            │
	│       │                  │  │                   │            │
	│       │  get/set/delete/ │  │ exec/run/get/all  │            │
	│       │  listKeys(prefix)│  │                   │            │
	│       └──────────────────┘  └───────────────────┘            │
	│                                       │                       │
	│                          ┌────────────▼────────────┐         │
	│                          │  snapshots, deltas, kv,  │         │
	│                          │  __replicate_schema       │         │
	│                          └──────────────────────────┘         │
	└─────────────────────────────────────────────────────────────┘

The blob KV face holds small fixed-shape values addressed by a flat key
space (replication cursor, last-sync timestamp, the process's client id,
the encrypted vault envelope). The SQL face holds the rows the WAL and
Migrator operate on — append-only deltas, point-in-time snapshots, and a
stringified mirror under "kv" for hosts that want to query cursor/version
state with SQL instead of the blob face.

Both faces share one Adapter and one underlying single-writer queue: SQLite
in rollback-journal mode serializes writers anyway, and bbolt takes a
process-wide write lock per transaction, so funneling every mutation
through one goroutine avoids lock-contention retries and gives the fault
path (see below) a single place to drain pending work.

# Fault handling

A failed write marks the Adapter closed. Every request already queued, and
every request submitted afterward, fails with a StorageIOError rather than
silently wedging — matching §G's "propagated, no retry, host decides"
policy for storage faults.
*/
package storage
