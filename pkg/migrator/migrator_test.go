package migrator

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/synckit/replicate/pkg/types"
)

type fakeSQL struct {
	execs []string
	rows  map[string]map[string]any // query -> row, keyed loosely for Get
	fail  map[string]bool           // exec substring -> force error
}

func newFakeSQL() *fakeSQL {
	return &fakeSQL{rows: make(map[string]map[string]any), fail: make(map[string]bool)}
}

func (f *fakeSQL) Exec(query string, args ...any) error {
	for bad := range f.fail {
		if bad == query {
			return sql.ErrConnDone
		}
	}
	f.execs = append(f.execs, query)
	return nil
}

func (f *fakeSQL) Get(query string, args ...any) (map[string]any, error) {
	row, ok := f.rows[query]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return row, nil
}

func (f *fakeSQL) All(query string, args ...any) ([]map[string]any, error) {
	return nil, nil
}

func schemaWith(version int, history map[int][]types.FieldShape) *types.SchemaDescriptor {
	return &types.SchemaDescriptor{Version: version, Shape: history[version], History: history}
}

func TestDiff_DetectsAddRemoveAndChangeType(t *testing.T) {
	from := []types.FieldShape{
		{Name: "title", Kind: types.FieldKindScalar},
		{Name: "priority", Kind: types.FieldKindRegister},
	}
	to := []types.FieldShape{
		{Name: "title", Kind: types.FieldKindProse},
		{Name: "description", Kind: types.FieldKindProse, Default: map[string]any{"type": "doc", "content": []any{}}},
	}

	changes := Diff(from, to)
	require.Len(t, changes, 3)

	byOp := map[Op][]Change{}
	for _, c := range changes {
		byOp[c.Op] = append(byOp[c.Op], c)
	}
	require.Len(t, byOp[OpAddColumn], 1)
	require.Equal(t, "description", byOp[OpAddColumn][0].Field.Name)
	require.Len(t, byOp[OpChangeType], 1)
	require.Equal(t, "title", byOp[OpChangeType][0].Field.Name)
	require.Len(t, byOp[OpRemoveColumn], 1)
	require.Equal(t, "priority", byOp[OpRemoveColumn][0].Field.Name)
}

func TestBackwardsCompatible_TrueOnlyForDefaultedAddColumns(t *testing.T) {
	require.True(t, BackwardsCompatible([]Change{
		{Op: OpAddColumn, Field: types.FieldShape{Name: "x", Default: "ok"}},
	}))
	require.False(t, BackwardsCompatible([]Change{
		{Op: OpAddColumn, Field: types.FieldShape{Name: "x"}}, // no default
	}))
	require.False(t, BackwardsCompatible([]Change{
		{Op: OpRemoveColumn, Field: types.FieldShape{Name: "x"}},
	}))
}

func TestValidateIdentifier_RejectsInjectionAttempts(t *testing.T) {
	require.NoError(t, ValidateIdentifier("intervals"))
	require.NoError(t, ValidateIdentifier("_private"))
	require.Error(t, ValidateIdentifier("intervals; DROP TABLE kv"))
	require.Error(t, ValidateIdentifier("has space"))
	require.Error(t, ValidateIdentifier(""))
}

func TestGenerateSQL_MatchesLiteralExampleFromSpec(t *testing.T) {
	changes := []Change{{
		Op: OpAddColumn,
		Field: types.FieldShape{
			Name:    "description",
			Kind:    types.FieldKindProse,
			Default: map[string]any{"type": "doc", "content": []any{}},
		},
	}}
	stmts, err := GenerateSQL("intervals", changes)
	require.NoError(t, err)
	require.Equal(t, []string{
		`ALTER TABLE "intervals" ADD COLUMN "description" TEXT DEFAULT '{"content":[],"type":"doc"}'`,
	}, stmts)
}

func TestGenerateSQL_RejectsInvalidTableOrColumnName(t *testing.T) {
	_, err := GenerateSQL("bad; table", []Change{{Op: OpAddColumn, Field: types.FieldShape{Name: "x"}}})
	require.Error(t, err)

	_, err = GenerateSQL("ok", []Change{{Op: OpAddColumn, Field: types.FieldShape{Name: "bad col"}}})
	require.Error(t, err)
}

func TestMigrator_NoOpWhenAlreadyAtTargetVersion(t *testing.T) {
	sqlStore := newFakeSQL()
	m := New(sqlStore, nil)

	schema := schemaWith(2, map[int][]types.FieldShape{
		2: {{Name: "title", Kind: types.FieldKindScalar}},
	})
	require.NoError(t, m.Migrate("intervals", schema, 2, nil, 0, time.Time{}, true))

	found := false
	for _, e := range sqlStore.execs {
		if e == `INSERT INTO __replicate_schema (collection, version, shape, migratedAt) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection) DO UPDATE SET version = excluded.version, shape = excluded.shape, migratedAt = excluded.migratedAt` {
			found = true
		}
	}
	require.True(t, found)
}

func TestMigrator_GeneratesAndAppliesSQLThenUpsertsVersion(t *testing.T) {
	sqlStore := newFakeSQL()
	m := New(sqlStore, nil)

	schema := schemaWith(2, map[int][]types.FieldShape{
		1: {{Name: "title", Kind: types.FieldKindScalar}},
		2: {
			{Name: "title", Kind: types.FieldKindScalar},
			{Name: "description", Kind: types.FieldKindProse, Default: map[string]any{"type": "doc", "content": []any{}}},
		},
	})

	require.NoError(t, m.Migrate("intervals", schema, 1, nil, 0, time.Time{}, true))

	require.Contains(t, sqlStore.execs, `ALTER TABLE "intervals" ADD COLUMN "description" TEXT DEFAULT '{"content":[],"type":"doc"}'`)
}

func TestMigrator_ChangeTypeWithoutCustomHandlerFails(t *testing.T) {
	sqlStore := newFakeSQL()
	m := New(sqlStore, nil)

	schema := schemaWith(2, map[int][]types.FieldShape{
		1: {{Name: "status", Kind: types.FieldKindRegister}},
		2: {{Name: "status", Kind: types.FieldKindProse}},
	})

	err := m.Migrate("intervals", schema, 1, nil, 0, time.Time{}, true)
	require.Error(t, err)
}

func TestMigrator_ChangeTypeRunsCustomMigration(t *testing.T) {
	sqlStore := newFakeSQL()
	m := New(sqlStore, nil)

	schema := schemaWith(2, map[int][]types.FieldShape{
		1: {{Name: "status", Kind: types.FieldKindRegister}},
		2: {{Name: "status", Kind: types.FieldKindProse}},
	})

	var ranWith []Change
	custom := func(sql SQLExecutor, collection string, changes []Change) error {
		ranWith = changes
		return nil
	}

	require.NoError(t, m.Migrate("intervals", schema, 1, custom, 0, time.Time{}, true))
	require.Len(t, ranWith, 1)
	require.Equal(t, OpChangeType, ranWith[0].Op)
}

func TestMigrator_FailureHandlerReset(t *testing.T) {
	sqlStore := newFakeSQL()
	sqlStore.fail[`ALTER TABLE "intervals" ADD COLUMN "description" TEXT DEFAULT '{"content":[],"type":"doc"}'`] = true

	var gotCtx FailureContext
	m := New(sqlStore, func(ctx FailureContext) FailureDecision {
		gotCtx = ctx
		return FailureDecision{Outcome: OutcomeReset}
	})

	schema := schemaWith(2, map[int][]types.FieldShape{
		1: {{Name: "title", Kind: types.FieldKindScalar}},
		2: {
			{Name: "title", Kind: types.FieldKindScalar},
			{Name: "description", Kind: types.FieldKindProse, Default: map[string]any{"type": "doc", "content": []any{}}},
		},
	})

	err := m.Migrate("intervals", schema, 1, nil, 3, time.Unix(1000, 0), false)
	require.NoError(t, err)
	require.Equal(t, 3, gotCtx.PendingChanges)
	require.False(t, gotCtx.CanResetSafely)
	require.Contains(t, sqlStore.execs, `DELETE FROM snapshots WHERE collection = ?`)
}

func TestMigrator_FailureHandlerKeepOldSchemaSwallowsError(t *testing.T) {
	sqlStore := newFakeSQL()
	sqlStore.fail[`ALTER TABLE "intervals" ADD COLUMN "description" TEXT DEFAULT '{"content":[],"type":"doc"}'`] = true

	m := New(sqlStore, func(ctx FailureContext) FailureDecision {
		return FailureDecision{Outcome: OutcomeKeepOldSchema}
	})

	schema := schemaWith(2, map[int][]types.FieldShape{
		1: {{Name: "title", Kind: types.FieldKindScalar}},
		2: {
			{Name: "title", Kind: types.FieldKindScalar},
			{Name: "description", Kind: types.FieldKindProse, Default: map[string]any{"type": "doc", "content": []any{}}},
		},
	})

	require.NoError(t, m.Migrate("intervals", schema, 1, nil, 0, time.Time{}, true))
}

func TestMigrator_NoFailureHandlerPropagatesSchemaMismatch(t *testing.T) {
	sqlStore := newFakeSQL()
	sqlStore.fail[`ALTER TABLE "intervals" ADD COLUMN "description" TEXT DEFAULT '{"content":[],"type":"doc"}'`] = true

	m := New(sqlStore, nil)

	schema := schemaWith(2, map[int][]types.FieldShape{
		1: {{Name: "title", Kind: types.FieldKindScalar}},
		2: {
			{Name: "title", Kind: types.FieldKindScalar},
			{Name: "description", Kind: types.FieldKindProse, Default: map[string]any{"type": "doc", "content": []any{}}},
		},
	})

	err := m.Migrate("intervals", schema, 1, nil, 0, time.Time{}, true)
	require.Error(t, err)
}

func TestRenameLegacyDeltaTable_NoOpWhenAbsent(t *testing.T) {
	sqlStore := newFakeSQL()
	require.NoError(t, RenameLegacyDeltaTable(sqlStore))
	require.Empty(t, sqlStore.execs)
}

func TestRenameLegacyDeltaTable_MergesAndDrops(t *testing.T) {
	sqlStore := newFakeSQL()
	sqlStore.rows[`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'updates'`] = map[string]any{"name": "updates"}

	require.NoError(t, RenameLegacyDeltaTable(sqlStore))
	require.Contains(t, sqlStore.execs, `INSERT INTO deltas (collection, document, before, bytes)
		SELECT collection, document, before, bytes FROM updates`)
	require.Contains(t, sqlStore.execs, `DROP TABLE updates`)
}
