package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dir := t.TempDir()
	kv, err := NewBoltKV(dir)
	require.NoError(t, err)
	sqlStore, err := NewSQLite(dir)
	require.NoError(t, err)
	return NewAdapter(kv, sqlStore)
}

func TestAdapter_KVRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	defer a.Close()

	require.NoError(t, a.KVSet("client_id", []byte("c-1")))
	got, err := a.KVGet("client_id")
	require.NoError(t, err)
	require.Equal(t, []byte("c-1"), got)
}

func TestAdapter_SQLRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	defer a.Close()

	require.NoError(t, a.SQLExec(
		`INSERT INTO snapshots (collection, document, seq, vector, bytes) VALUES (?, ?, ?, ?, ?)`,
		"notes", "doc-1", 1, "{}", []byte("snap"),
	))

	row, err := a.SQLGet(`SELECT bytes FROM snapshots WHERE document = ?`, "doc-1")
	require.NoError(t, err)
	require.Equal(t, []byte("snap"), row["bytes"])
}

func TestAdapter_FaultClosesAdapter(t *testing.T) {
	a := newTestAdapter(t)
	defer a.Close()

	err := a.submit(func() error { return errors.New("disk full") })
	require.Error(t, err)
	require.True(t, a.Closed())

	_, err = a.KVGet("anything")
	require.Error(t, err)
}

func TestAdapter_NoRowsDoesNotFault(t *testing.T) {
	a := newTestAdapter(t)
	defer a.Close()

	_, err := a.SQLGet(`SELECT * FROM snapshots WHERE document = ?`, "missing")
	require.Error(t, err)
	require.False(t, a.Closed())
}
