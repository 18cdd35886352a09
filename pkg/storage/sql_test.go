package storage

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLite_DeltaRowsRoundTrip(t *testing.T) {
	store, err := NewSQLite(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Exec(
		`INSERT INTO deltas (collection, document, before, bytes) VALUES (?, ?, ?, ?)`,
		"notes", "doc-1", "{}", []byte("delta-bytes"),
	))

	row, err := store.Get(`SELECT collection, document, bytes FROM deltas WHERE document = ?`, "doc-1")
	require.NoError(t, err)
	require.Equal(t, "notes", row["collection"])
	require.Equal(t, "doc-1", row["document"])
	require.Equal(t, []byte("delta-bytes"), row["bytes"])

	_, err = store.Get(`SELECT * FROM deltas WHERE document = ?`, "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSQLite_All(t *testing.T) {
	store, err := NewSQLite(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Exec(
			`INSERT INTO deltas (collection, document, before, bytes) VALUES (?, ?, '{}', ?)`,
			"notes", "doc-1", []byte{byte(i)},
		))
	}

	rows, err := store.All(`SELECT bytes FROM deltas WHERE document = ? ORDER BY id`, "doc-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestSQLite_Run(t *testing.T) {
	store, err := NewSQLite(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	result, err := store.Run(
		`INSERT INTO deltas (collection, document, before, bytes) VALUES (?, ?, '{}', ?)`,
		"notes", "doc-1", []byte("x"),
	)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	require.Greater(t, id, int64(0))
}
