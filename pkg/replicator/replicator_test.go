package replicator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/synckit/replicate/pkg/rpc"
	"github.com/synckit/replicate/pkg/types"
)

type fakeDocs struct {
	applied   []string // "kind:document"
	resets    []string
	deleted   []string
	documents []string
	vector    types.StateVector
}

func (f *fakeDocs) ApplyUpdate(collection, id string, bytes []byte, origin string) error {
	f.applied = append(f.applied, origin+":"+id)
	return nil
}
func (f *fakeDocs) ResetDocument(collection, id string) error {
	f.resets = append(f.resets, id)
	return nil
}
func (f *fakeDocs) EncodeStateVector(collection, id string) (types.StateVector, error) {
	return f.vector, nil
}
func (f *fakeDocs) AggregateStateVector(collection string) types.StateVector { return f.vector }
func (f *fakeDocs) ListDocuments(collection string) []string                { return f.documents }
func (f *fakeDocs) Delete(collection, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeNotifier struct {
	notified []string
}

func (f *fakeNotifier) NotifyExternalUpdate(document string, vector types.StateVector) {
	f.notified = append(f.notified, document)
}

type memCursorStore struct{ data map[string][]byte }

func newMemCursorStore() *memCursorStore { return &memCursorStore{data: make(map[string][]byte)} }
func (m *memCursorStore) KVGet(key string) ([]byte, error) { return m.data[key], nil }
func (m *memCursorStore) KVSet(key string, value []byte) error {
	m.data[key] = value
	return nil
}

type scriptedAuthority struct {
	rpc.Authority
	streamResp   *rpc.StreamBatch
	recoveryResp *rpc.RecoveryResponse
	recoveryCalls int
}

func (s *scriptedAuthority) Stream(ctx context.Context, collection string, cursor int64, limit int) (*rpc.StreamBatch, error) {
	return s.streamResp, nil
}
func (s *scriptedAuthority) Recovery(ctx context.Context, collection string, vector types.StateVector) (*rpc.RecoveryResponse, error) {
	s.recoveryCalls++
	return s.recoveryResp, nil
}

func TestReplicator_AppliesDeltaAndPersistsCursor(t *testing.T) {
	authority := &scriptedAuthority{streamResp: &rpc.StreamBatch{
		Changes: []rpc.Change{{Document: "doc-1", Kind: "delta", Bytes: []byte("d")}},
		Cursor:  5,
	}}
	docs := &fakeDocs{vector: types.StateVector{"client-a": 1}}
	notifier := &fakeNotifier{}
	kv := newMemCursorStore()

	r := New("notes", authority, docs, notifier, kv)
	require.NoError(t, r.pollOnce(context.Background()))

	require.Equal(t, []string{"remote:doc-1"}, docs.applied)
	require.Equal(t, []string{"doc-1"}, notifier.notified)
	require.Equal(t, int64(5), r.Cursor())

	raw, _ := kv.KVGet(cursorKey("notes"))
	require.Equal(t, "5", string(raw))
}

func TestReplicator_SnapshotChangeResetsBeforeApply(t *testing.T) {
	authority := &scriptedAuthority{streamResp: &rpc.StreamBatch{
		Changes: []rpc.Change{{Document: "doc-1", Kind: "snapshot", Bytes: []byte("s")}},
		Cursor:  1,
	}}
	docs := &fakeDocs{vector: types.StateVector{}}
	notifier := &fakeNotifier{}
	kv := newMemCursorStore()

	r := New("notes", authority, docs, notifier, kv)
	require.NoError(t, r.pollOnce(context.Background()))

	require.Equal(t, []string{"doc-1"}, docs.resets)
	require.Equal(t, []string{"snapshot:doc-1"}, docs.applied)
}

func TestReplicator_CursorRegressionTriggersRecovery(t *testing.T) {
	authority := &scriptedAuthority{
		streamResp:   &rpc.StreamBatch{Cursor: 2},
		recoveryResp: &rpc.RecoveryResponse{Cursor: 10},
	}
	docs := &fakeDocs{vector: types.StateVector{}}
	notifier := &fakeNotifier{}
	kv := newMemCursorStore()

	r := New("notes", authority, docs, notifier, kv)
	r.mu.Lock()
	r.cursor = 7
	r.mu.Unlock()

	require.NoError(t, r.pollOnce(context.Background()))
	require.Equal(t, 1, authority.recoveryCalls)
	require.Equal(t, int64(10), r.Cursor())
}

func TestReplicator_CompactTriggersRecovery(t *testing.T) {
	authority := &scriptedAuthority{
		streamResp:   &rpc.StreamBatch{Cursor: 3, Compact: []string{"doc-1"}},
		recoveryResp: &rpc.RecoveryResponse{Cursor: 3},
	}
	docs := &fakeDocs{vector: types.StateVector{}}
	notifier := &fakeNotifier{}
	kv := newMemCursorStore()

	r := New("notes", authority, docs, notifier, kv)
	require.NoError(t, r.pollOnce(context.Background()))
	require.Equal(t, 1, authority.recoveryCalls)
}

func TestReplicator_ReconcileSoftDeletesPhantomDocuments(t *testing.T) {
	authority := &scriptedAuthority{streamResp: &rpc.StreamBatch{
		Cursor:        4,
		LiveDocuments: []string{"doc-1"},
	}}
	docs := &fakeDocs{
		vector:    types.StateVector{},
		documents: []string{"doc-1", "doc-2-phantom"},
	}
	notifier := &fakeNotifier{}
	kv := newMemCursorStore()

	r := New("notes", authority, docs, notifier, kv)
	require.NoError(t, r.pollOnce(context.Background()))

	require.Equal(t, []string{"doc-2-phantom"}, docs.deleted)
}

func TestReplicator_StartLoadsPersistedCursor(t *testing.T) {
	authority := &scriptedAuthority{streamResp: &rpc.StreamBatch{Cursor: 0}}
	docs := &fakeDocs{vector: types.StateVector{}}
	notifier := &fakeNotifier{}
	kv := newMemCursorStore()
	kv.data[cursorKey("notes")] = []byte("42")

	r := New("notes", authority, docs, notifier, kv, WithPollInterval(time.Hour))
	require.NoError(t, r.Start())
	defer r.Stop()

	require.Equal(t, int64(42), r.Cursor())
}
