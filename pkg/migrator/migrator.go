package migrator

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/synckit/replicate/pkg/log"
	"github.com/synckit/replicate/pkg/rplerr"
	"github.com/synckit/replicate/pkg/types"
)

// Op identifies one kind of schema diff operation.
type Op string

const (
	OpAddColumn    Op = "add_column"
	OpRemoveColumn Op = "remove_column"
	OpChangeType   Op = "change_type"
)

// Change is one detected difference between a collection's old and new
// field shapes.
type Change struct {
	Op       Op
	Field    types.FieldShape
	Previous *types.FieldShape // set only for OpChangeType
}

// Diff compares a collection's prior field shape against its target
// shape and returns the ordered set of operations needed to reconcile
// them: the target shape's fields in their own order (add_column for a
// new field, change_type for a field whose kind changed), then removed
// fields in the prior shape's order.
func Diff(from, to []types.FieldShape) []Change {
	fromByName := make(map[string]types.FieldShape, len(from))
	for _, f := range from {
		fromByName[f.Name] = f
	}
	toByName := make(map[string]types.FieldShape, len(to))
	for _, f := range to {
		toByName[f.Name] = f
	}

	var changes []Change
	for _, f := range to {
		prev, existed := fromByName[f.Name]
		if !existed {
			changes = append(changes, Change{Op: OpAddColumn, Field: f})
			continue
		}
		if prev.Kind != f.Kind {
			previous := prev
			changes = append(changes, Change{Op: OpChangeType, Field: f, Previous: &previous})
		}
	}
	for _, f := range from {
		if _, stillPresent := toByName[f.Name]; !stillPresent {
			changes = append(changes, Change{Op: OpRemoveColumn, Field: f})
		}
	}
	return changes
}

// BackwardsCompatible reports whether every change in a diff is an
// add_column with a defined default, meaning readers on the old schema
// version are unaffected.
func BackwardsCompatible(changes []Change) bool {
	for _, c := range changes {
		if c.Op != OpAddColumn || c.Field.Default == nil {
			return false
		}
	}
	return true
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateIdentifier rejects any collection or field name that isn't a
// plain ASCII identifier, before it is ever interpolated into SQL.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must match %s", name, identifierPattern.String())
	}
	return nil
}

// EscapeLiteral escapes a string for safe interpolation inside a single-
// quoted SQL literal.
func EscapeLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func sqlType(kind types.FieldKind) string {
	if kind == types.FieldKindCounter {
		return "INTEGER"
	}
	return "TEXT"
}

// defaultLiteral renders a field's default value as the SQL literal that
// belongs after DEFAULT in a generated ALTER TABLE statement. Counters
// get a bare numeric literal; everything else is JSON-encoded and quoted,
// since registers, sets, and prose fields all carry structured defaults.
func defaultLiteral(field types.FieldShape) (string, error) {
	if field.Default == nil {
		return "NULL", nil
	}
	if field.Kind == types.FieldKindCounter {
		return fmt.Sprintf("%v", field.Default), nil
	}
	encoded, err := json.Marshal(field.Default)
	if err != nil {
		return "", fmt.Errorf("encode default for field %q: %w", field.Name, err)
	}
	return "'" + EscapeLiteral(string(encoded)) + "'", nil
}

// GenerateSQL renders the ALTER TABLE statements for a diff against
// table, in diff order. change_type ops produce no statement — they
// require a custom migration and Migrate refuses to proceed with one
// pending unless a custom migration was supplied.
func GenerateSQL(table string, changes []Change) ([]string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	var stmts []string
	for _, c := range changes {
		if err := ValidateIdentifier(c.Field.Name); err != nil {
			return nil, err
		}
		switch c.Op {
		case OpAddColumn:
			lit, err := defaultLiteral(c.Field)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, fmt.Sprintf(`ALTER TABLE "%s" ADD COLUMN "%s" %s DEFAULT %s`,
				table, c.Field.Name, sqlType(c.Field.Kind), lit))
		case OpRemoveColumn:
			stmts = append(stmts, fmt.Sprintf(`ALTER TABLE "%s" DROP COLUMN "%s"`, table, c.Field.Name))
		case OpChangeType:
			// handled by a custom migration, never generated.
		}
	}
	return stmts, nil
}

// SQLExecutor is the subset of storage.SQLStore the Migrator needs.
// *storage.SQLite satisfies it structurally.
type SQLExecutor interface {
	Exec(query string, args ...any) error
	Get(query string, args ...any) (map[string]any, error)
	All(query string, args ...any) ([]map[string]any, error)
}

// CustomMigration performs a hand-written migration for a collection
// whose diff includes a change_type op, or whose target version simply
// needs bespoke logic. It runs with the collection lock already held.
type CustomMigration func(sql SQLExecutor, collection string, changes []Change) error

// Outcome is the disposition a FailureHandler picks after a migration
// fails.
type Outcome string

const (
	OutcomeReset          Outcome = "reset"
	OutcomeKeepOldSchema  Outcome = "keep_old_schema"
	OutcomeRetry          Outcome = "retry"
	OutcomeCustom         Outcome = "custom"
)

// FailureContext is handed to a FailureHandler when a migration fails.
type FailureContext struct {
	Error          error
	CanResetSafely bool
	PendingChanges int
	LastSyncedAt   time.Time
}

// FailureDecision is a FailureHandler's response. Handler is consulted
// only when Outcome is OutcomeCustom.
type FailureDecision struct {
	Outcome Outcome
	Handler func(sql SQLExecutor, collection string) error
}

// FailureHandler decides what happens after a migration attempt fails.
type FailureHandler func(FailureContext) FailureDecision

const schemaTableDDL = `CREATE TABLE IF NOT EXISTS __replicate_schema (
	collection  TEXT PRIMARY KEY,
	version     INTEGER NOT NULL,
	shape       TEXT NOT NULL,
	migratedAt  TEXT NOT NULL
)`

// Migrator reconciles a collection's SQL table shape with a target
// schema version, recording the applied version in __replicate_schema.
type Migrator struct {
	sql       SQLExecutor
	onFailure FailureHandler
	logger    zerolog.Logger
}

// New builds a Migrator over sql. onFailure may be nil, in which case a
// failed migration simply propagates its error to the caller.
func New(sql SQLExecutor, onFailure FailureHandler) *Migrator {
	return &Migrator{sql: sql, onFailure: onFailure, logger: log.WithComponent("migrator")}
}

func (m *Migrator) ensureSchemaTable() error {
	if err := m.sql.Exec(schemaTableDDL); err != nil {
		return fmt.Errorf("ensure schema table: %w", err)
	}
	return nil
}

// StoredVersion returns the version __replicate_schema records for
// collection, or (0, false) if the collection has never been migrated.
func (m *Migrator) StoredVersion(collection string) (int, bool, error) {
	if err := m.ensureSchemaTable(); err != nil {
		return 0, false, err
	}
	row, err := m.sql.Get(`SELECT version FROM __replicate_schema WHERE collection = ?`, collection)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load stored schema version: %w", err)
	}
	version, _ := row["version"].(int64)
	return int(version), true, nil
}

// Migrate brings collection from fromVersion up to schema.Version. If the
// two versions already match, no migration SQL runs; only the
// __replicate_schema row is upserted. pendingChanges and
// lastSyncedAt feed the FailureContext passed to onFailure if the
// migration fails; canResetSafely should be false whenever local writes
// are still unsynced.
func (m *Migrator) Migrate(collection string, schema *types.SchemaDescriptor, fromVersion int, custom CustomMigration, pendingChanges int, lastSyncedAt time.Time, canResetSafely bool) error {
	if err := ValidateIdentifier(collection); err != nil {
		return rplerr.New(rplerr.KindSchemaMismatch, "migrator.migrate", collection, "", err)
	}
	if fromVersion == schema.Version {
		return m.upsertSchema(collection, schema)
	}

	from, ok := schema.History[fromVersion]
	if !ok {
		err := fmt.Errorf("no recorded shape for version %d", fromVersion)
		return m.handleFailure(collection, schema, fromVersion, custom, pendingChanges, lastSyncedAt, canResetSafely, err)
	}
	changes := Diff(from, schema.Shape)

	if err := m.apply(collection, changes, custom); err != nil {
		return m.handleFailure(collection, schema, fromVersion, custom, pendingChanges, lastSyncedAt, canResetSafely, err)
	}
	return m.upsertSchema(collection, schema)
}

func (m *Migrator) apply(collection string, changes []Change, custom CustomMigration) error {
	needsCustom := false
	for _, c := range changes {
		if c.Op == OpChangeType {
			needsCustom = true
			break
		}
	}
	if needsCustom {
		if custom == nil {
			return fmt.Errorf("collection %q has a change_type migration with no custom handler", collection)
		}
		return custom(m.sql, collection, changes)
	}
	if custom != nil {
		return custom(m.sql, collection, changes)
	}
	stmts, err := GenerateSQL(collection, changes)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := m.sql.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (m *Migrator) handleFailure(collection string, schema *types.SchemaDescriptor, fromVersion int, custom CustomMigration, pendingChanges int, lastSyncedAt time.Time, canResetSafely bool, cause error) error {
	if m.onFailure == nil {
		return rplerr.New(rplerr.KindSchemaMismatch, "migrator.migrate", collection, "", cause)
	}

	decision := m.onFailure(FailureContext{
		Error:          cause,
		CanResetSafely: canResetSafely,
		PendingChanges: pendingChanges,
		LastSyncedAt:   lastSyncedAt,
	})

	switch decision.Outcome {
	case OutcomeReset:
		if err := m.resetCollection(collection); err != nil {
			return rplerr.New(rplerr.KindSchemaMismatch, "migrator.reset", collection, "", err)
		}
		return m.upsertSchema(collection, schema)
	case OutcomeKeepOldSchema:
		m.logger.Warn().Str("collection", collection).Err(cause).Msg("migration failed, keeping old schema")
		return nil
	case OutcomeRetry:
		if err := m.apply(collection, Diff(schema.History[fromVersion], schema.Shape), custom); err != nil {
			return rplerr.New(rplerr.KindSchemaMismatch, "migrator.retry", collection, "", err)
		}
		return m.upsertSchema(collection, schema)
	case OutcomeCustom:
		if decision.Handler == nil {
			return rplerr.New(rplerr.KindSchemaMismatch, "migrator.migrate", collection, "", cause)
		}
		if err := decision.Handler(m.sql, collection); err != nil {
			return rplerr.New(rplerr.KindSchemaMismatch, "migrator.custom", collection, "", err)
		}
		return m.upsertSchema(collection, schema)
	default:
		return rplerr.New(rplerr.KindSchemaMismatch, "migrator.migrate", collection, "", cause)
	}
}

func (m *Migrator) resetCollection(collection string) error {
	if err := ValidateIdentifier(collection); err != nil {
		return err
	}
	if err := m.sql.Exec(`DELETE FROM snapshots WHERE collection = ?`, collection); err != nil {
		return err
	}
	if err := m.sql.Exec(`DELETE FROM deltas WHERE collection = ?`, collection); err != nil {
		return err
	}
	return m.sql.Exec(`DELETE FROM kv WHERE key LIKE ?`, collection+":%")
}

func (m *Migrator) upsertSchema(collection string, schema *types.SchemaDescriptor) error {
	if err := m.ensureSchemaTable(); err != nil {
		return err
	}
	shape, err := json.Marshal(schema.Shape)
	if err != nil {
		return fmt.Errorf("encode schema shape: %w", err)
	}
	return m.sql.Exec(
		`INSERT INTO __replicate_schema (collection, version, shape, migratedAt) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection) DO UPDATE SET version = excluded.version, shape = excluded.shape, migratedAt = excluded.migratedAt`,
		collection, schema.Version, string(shape), time.Now().UTC().Format(time.RFC3339),
	)
}

// RenameLegacyDeltaTable checks for a table named "updates" left over
// from an older deployment and, if found, copies its rows into "deltas"
// and drops it. The canonical deltas table already exists by the time
// this runs (the Storage Adapter creates it unconditionally on open), so
// this is a merge-then-drop rather than a rename.
func RenameLegacyDeltaTable(sqlExec SQLExecutor) error {
	row, err := sqlExec.Get(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'updates'`)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check for legacy updates table: %w", err)
	}
	if row == nil {
		return nil
	}

	if err := sqlExec.Exec(`INSERT INTO deltas (collection, document, before, bytes)
		SELECT collection, document, before, bytes FROM updates`); err != nil {
		return fmt.Errorf("copy legacy updates rows into deltas: %w", err)
	}
	if err := sqlExec.Exec(`DROP TABLE updates`); err != nil {
		return fmt.Errorf("drop legacy updates table: %w", err)
	}
	return nil
}
