/*
Package rplerr defines the error kinds the replication engine raises and the
policy each kind implies for its caller.

	┌───────────────── ERROR KIND → POLICY ─────────────────┐
	│                                                        │
	│  NetworkError       → retried (backoff+jitter, capped) │
	│  StorageIOError     → propagated, no retry             │
	│  DecryptionError    → locked/no-data on read, surfaced │
	│                       on write                         │
	│  SchemaMismatch     → routed to onMigrationError        │
	│  ProtocolMismatch   → fatal, sync disabled until restart│
	│  NonRetriable       → bubbled to Transaction Coordinator│
	│  ReconciliationError→ logged, next stream batch retries │
	│  DocumentNotRegistered,                                │
	│  ActorShutdown      → internal, caller-visible error   │
	└────────────────────────────────────────────────────────┘

Callers branch on kind with errors.Is/errors.As rather than string
matching, so a kind can be wrapped with fmt.Errorf("...: %w", err) at any
layer without losing its classification.
*/
package rplerr
