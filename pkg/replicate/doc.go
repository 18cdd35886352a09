/*
Package replicate is the top-level entrypoint a host embeds: it wires the
Storage Adapter, Document Manager, WAL, Sync Actor, Replicator,
Transaction Coordinator, Migrator, Protocol Handshake, and Identity &
Session into one Collection handle, the way cmd/replicate's subcommands
wire the same packages by hand for inspection. The Encryption Wrapper
(pkg/security) is not wired in: a Collection stores document bytes
unencrypted.

	Open("tasks", WithDataDir(dir), WithAuthority(auth))
		│
		├─ pkg/storage   (BoltKV + SQLite behind one Adapter)
		├─ pkg/identity  (stable client id)
		├─ pkg/wal       (Persistence for pkg/document)
		├─ pkg/document  (CRDT handle ownership)
		├─ pkg/txn       (staged, all-or-nothing transactions)
		├─ pkg/migrator  (schema version tracking)
		└─ when an Authority is supplied:
		   ├─ pkg/syncer     (per-document flush actor)
		   ├─ pkg/replicator (cursor stream consumer)
		   └─ pkg/handshake  (protocol version gate)

A Collection with no Authority is a valid offline-only handle: reads and
writes work, nothing ever leaves the local adapter.
*/
package replicate
