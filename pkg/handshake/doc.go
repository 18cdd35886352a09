/*
Package handshake implements the Protocol Handshake: the one RPC every
replica must complete, successfully, before any other sync traffic is
allowed to leave the process.

	┌────────────────── Handshake ──────────────────┐
	│ once.Do:                                        │
	│   authority.Protocol(ctx) -> {version}          │
	│   version in [minSupported, maxSupported]? ---- │
	│     yes -> result{ok: true}, cached forever      │
	│     no  -> result{ok: false, err}, cached forever│
	└─────────────────────────────────────────────────┘

The query runs at most once per process: concurrent callers block on
the same sync.Once and all observe the same cached outcome, matching
the "process-wide cached result, single in-flight request" rule. A
mismatch is fatal — Check keeps returning the same ProtocolMismatch
error on every subsequent call, and the first caller to observe it is
expected to surface it to the host; it is never retried within the
process lifetime.
*/
package handshake
