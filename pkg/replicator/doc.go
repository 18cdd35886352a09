/*
Package replicator implements the Replicator: the per-collection cursor
stream consumer that pulls committed changes from the authority,
applies them to the Document Manager, and notifies the Sync Actor so it
never re-pushes ops it didn't originate.

	┌────────────────── Replicator(collection) ──────────────────┐
	│ loop:                                                        │
	│   batch := authority.Stream(cursor, limit)                  │
	│   for change in batch.Changes:                              │
	│     snapshot -> ResetDocument, ApplyUpdate(bytes, "snapshot")│
	│     delta    -> ApplyUpdate(bytes, "remote")                 │
	│     notifier.NotifyExternalUpdate(document, newVector)      │
	│   if batch.Cursor < cursor: drop batch, recover()            │
	│   else: persist cursor, cursor = batch.Cursor                │
	│   if batch.Compact: recover()                                │
	│   if batch.LiveDocuments: reconcile(batch.LiveDocuments)     │
	└──────────────────────────────────────────────────────────┘

recover() asks the authority for a diff against the collection's
current aggregate state vector and applies it before resuming the
stream at the authority-returned cursor. reconcile() soft-deletes any
locally-known document absent from a server-reported materialization
pass, correcting phantoms left by a missed deletion delta.
*/
package replicator
