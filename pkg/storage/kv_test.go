package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoltKV_SetGetDelete(t *testing.T) {
	kv, err := NewBoltKV(t.TempDir())
	require.NoError(t, err)
	defer kv.Close()

	got, err := kv.Get("missing")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, kv.Set("cursor", []byte("42")))
	got, err = kv.Get("cursor")
	require.NoError(t, err)
	require.Equal(t, []byte("42"), got)

	require.NoError(t, kv.Delete("cursor"))
	got, err = kv.Get("cursor")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestBoltKV_ListKeysPrefix(t *testing.T) {
	kv, err := NewBoltKV(t.TempDir())
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set("cursor:notes", []byte("1")))
	require.NoError(t, kv.Set("cursor:todos", []byte("2")))
	require.NoError(t, kv.Set("client_id", []byte("c1")))

	keys, err := kv.ListKeys("cursor:")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"cursor:notes", "cursor:todos"}, keys)
}
