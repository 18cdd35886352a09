/*
Package identity implements Identity & Session: the stable client id
every CRDT op, counter entry, and register entry is stamped with, plus
the process-lifetime session id used for presence.

# Architecture

	┌──────────────────── Identity ────────────────────┐
	│  ClientID   — 128-bit uuid, persisted in blob KV   │
	│               on first run, stable across restarts │
	│  SessionID  — fresh uuid per process, never stored │
	│  Profile    — optional {id, name, avatar, color}    │
	│               supplied by the host, not derived     │
	└──────────────────────────────────────────────────┘

The client id is the identity CRDT ops use to order concurrent writes
(see pkg/crdt's opID); the session id exists only for presence and
debugging and is never written to the op log.
*/
package identity
