/*
Package migrator reconciles a collection's on-disk SQL shape with the
schema version the Document Manager is about to start using.

	┌──────────────────── Migrator.Migrate ────────────────────┐
	│ diff(history[from], history[to])                          │
	│   add_column   -> always allowed, needs a default          │
	│   remove_column -> always allowed                           │
	│   change_type   -> flagged, requires a custom migration      │
	│                                                               │
	│ backwards-compatible iff every op is add_column with default  │
	│                                                                 │
	│ custom migration provided? -> run it                           │
	│ else                        -> generated ALTER TABLE statements │
	│                                 applied in diff order            │
	│                                                                   │
	│ upsert __replicate_schema(collection, version, shape)             │
	└─────────────────────────────────────────────────────────────────┘

Any failure along that path is handed to a caller-supplied onFailure
handler together with enough context (the error, whether resetting the
local copy is safe, how many unsynced local changes would be lost, and
the last successful sync time) to pick one of four outcomes: reset the
local schema, keep the old schema and skip the migration, retry, or run
a caller-supplied recovery handler.

RenameLegacyDeltaTable is a separate, one-shot step that replicate.Open
runs right after opening the SQL store, before the WAL opens (the
cmd/replicate-migrate tool runs it too): older deployments called the
delta table "updates"; this engine canonically calls it "deltas".
*/
package migrator
