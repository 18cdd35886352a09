/*
Package syncer implements the Sync Actor: one mailbox goroutine per
document that debounces local changes, pushes them to the authority,
and retries transient failures with bounded exponential backoff.

	┌─────────────────── Actor(doc) ────────────────────┐
	│ inbox: LocalChange | ExternalUpdate | Shutdown     │
	│                                                     │
	│ batch-receive (2ms accumulation window)            │
	│   ExternalUpdate -> advance vector                 │
	│   LocalChange    -> (re)arm 200ms debounce timer    │
	│   Shutdown       -> cancel debounce, signal done    │
	│                                                     │
	│ debounce fires -> encodeUpdateFrom(vector)          │
	│   empty delta           -> skip                    │
	│   authority.Replicate   -> success: advance vector  │
	│                         -> non-retriable: bubble out│
	│                         -> retriable: backoff retry │
	└──────────────────────────────────────────────────┘

A Manager owns one Actor per document within a collection, creating it
lazily on first touch and tearing every actor down on Shutdown. Flushes
for a single document are strictly serialized by construction — the
actor's mailbox goroutine is the only writer to the authority for that
document.
*/
package syncer
