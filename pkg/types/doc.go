/*
Package types defines the core data structures shared across the
replication engine.

This package contains the domain model the rest of the engine is built on:
collections, documents, fields, deltas, snapshots, state vectors, schema
descriptors, and transactions. These types carry no behavior of their own
beyond small helpers — the CRDT merge semantics live in pkg/crdt, the wire
codec lives alongside it, and persistence lives in pkg/storage and pkg/wal.

# Architecture

	┌─────────────────────── DATA MODEL ───────────────────────┐
	│                                                            │
	│  Collection                                               │
	│    - name, SchemaDescriptor, Cursor                       │
	│                                                            │
	│  Document                                                 │
	│    - ID, Fields map[string]*FieldState, Meta              │
	│                                                            │
	│  FieldState (tagged variant)                              │
	│    - Kind: Scalar | Counter | Register | Set | Prose       │
	│                                                            │
	│  Delta / Snapshot                                         │
	│    - bounded, self-describing, length-prefixed op stream  │
	│                                                            │
	│  StateVector                                              │
	│    - per-client highest observed op clock                 │
	│                                                            │
	│  SchemaDescriptor                                         │
	│    - version, shape, defaults, history                    │
	│                                                            │
	│  Transaction                                              │
	│    - ephemeral staged-change list, pending→committed       │
	└────────────────────────────────────────────────────────────┘

# Field kinds

  - Scalar: last-writer-wins register (single value + timestamp)
  - Counter: append-only (client, delta, ts) log, value = sum
  - Register: per-client (value, ts) map, resolver picks the winner
  - Set: add-wins map from JSON(member) to (addedBy, addedAt)
  - Prose: sequence CRDT of block/inline atoms forming a tree

All five kinds share one op log per document; see pkg/crdt for merge rules
and pkg/crdt's codec for the wire format.
*/
package types
