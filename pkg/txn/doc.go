/*
Package txn implements the Transaction Coordinator: a staged-commit
wrapper around the Document Manager so a multi-document mutation either
lands in full or not at all from the caller's point of view.

	┌──────────────── Coordinator.Run(fn) ────────────────┐
	│ fn(handle) stages Insert/Update/Delete calls,         │
	│   each capturing the document's prior encoded state   │
	│   for rollback — nothing touches the Document Manager  │
	│   yet.                                                 │
	│                                                         │
	│ fn returns error -> propagate, nothing was ever applied │
	│ fn returns nil   -> commit: apply staged changes in    │
	│   order via TransactWithDelta (which itself appends    │
	│   to the WAL). First failure triggers rollback of       │
	│   every change already applied, in reverse order, by    │
	│   resetting the document and replaying its prior state. │
	└────────────────────────────────────────────────────┘

While a transaction's fn is running (and while rollback is unwinding),
IsDocumentBeingDeleted/IsDocumentBeingModified report pending stages so
the Replicator can skip applying a transient remote update to a
document the caller is mid-way through deleting.
*/
package txn
