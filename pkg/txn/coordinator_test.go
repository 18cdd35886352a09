package txn

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/synckit/replicate/pkg/crdt"
	"github.com/synckit/replicate/pkg/document"
	"github.com/synckit/replicate/pkg/types"
)

type memPersistence struct {
	mu    sync.Mutex
	rows  map[string][]*types.Delta
	gone  map[string]bool
}

func newMemPersistence() *memPersistence {
	return &memPersistence{rows: make(map[string][]*types.Delta), gone: make(map[string]bool)}
}

func memKey(collection, document string) string { return collection + "/" + document }

func (m *memPersistence) Append(collection, document string, delta *types.Delta, origin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey(collection, document)
	m.rows[k] = append(m.rows[k], delta)
	return nil
}

func (m *memPersistence) Load(collection, document string) (*types.Snapshot, []*types.Delta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.rows[memKey(collection, document)], nil
}

func (m *memPersistence) Delete(collection, document string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, memKey(collection, document))
	m.gone[memKey(collection, document)] = true
	return nil
}

func newCoordinator() (*Coordinator, *document.Manager) {
	docs := document.New("client-a", newMemPersistence(), nil)
	return New(docs), docs
}

func TestCoordinator_CommitAppliesAllStagedChangesInOrder(t *testing.T) {
	c, docs := newCoordinator()

	err := c.Run(func(h *Handle) error {
		h.Insert("notes", "doc-1", func(txn *crdt.Txn) { txn.SetScalar("title", "hello", 1) })
		h.Update("notes", "doc-2", func(txn *crdt.Txn) { txn.SetScalar("title", "world", 1) })
		return nil
	})
	require.NoError(t, err)

	doc1, err := docs.GetOrCreate("notes", "doc-1")
	require.NoError(t, err)
	require.Equal(t, "hello", doc1.Snapshot().Fields["title"].Scalar.Value)

	doc2, err := docs.GetOrCreate("notes", "doc-2")
	require.NoError(t, err)
	require.Equal(t, "world", doc2.Snapshot().Fields["title"].Scalar.Value)
}

func TestCoordinator_FnErrorAppliesNothing(t *testing.T) {
	c, docs := newCoordinator()

	sentinel := errors.New("validation failed")
	err := c.Run(func(h *Handle) error {
		h.Insert("notes", "doc-1", func(txn *crdt.Txn) { txn.SetScalar("title", "hello", 1) })
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	doc1, err := docs.GetOrCreate("notes", "doc-1")
	require.NoError(t, err)
	require.Nil(t, doc1.Snapshot().Fields["title"])
}

func TestCoordinator_RollsBackAppliedChangesOnLaterFailure(t *testing.T) {
	// doc-1 commits cleanly; doc-2's persistence layer always fails its
	// Append, so the transaction must roll doc-1 back to its pre-commit
	// value once doc-2's commit errors.
	failing := &failingPersistence{document: "doc-2", mem: newMemPersistence()}
	docsWithFailure := document.New("client-a", failing, nil)
	_, err := docsWithFailure.TransactWithDelta("notes", "doc-1", func(txn *crdt.Txn) {
		txn.SetScalar("title", "original", 1)
	}, "local")
	require.NoError(t, err)

	c2 := New(docsWithFailure)
	err = c2.Run(func(h *Handle) error {
		h.Update("notes", "doc-1", func(txn *crdt.Txn) { txn.SetScalar("title", "changed", 2) })
		h.Update("notes", "doc-2", func(txn *crdt.Txn) { txn.SetScalar("title", "boom", 2) })
		return nil
	})
	require.Error(t, err)

	doc1, err := docsWithFailure.GetOrCreate("notes", "doc-1")
	require.NoError(t, err)
	require.Equal(t, "original", doc1.Snapshot().Fields["title"].Scalar.Value)
}

func TestCoordinator_PendingObservabilityDuringFn(t *testing.T) {
	c, _ := newCoordinator()

	var sawModified, sawDeleted bool
	err := c.Run(func(h *Handle) error {
		h.Update("notes", "doc-1", func(txn *crdt.Txn) { txn.SetScalar("title", "x", 1) })
		h.Delete("notes", "doc-2", 123)
		sawModified = c.IsDocumentBeingModified("notes", "doc-1")
		sawDeleted = c.IsDocumentBeingDeleted("notes", "doc-2")
		return nil
	})
	require.NoError(t, err)
	require.True(t, sawModified)
	require.True(t, sawDeleted)

	require.False(t, c.IsDocumentBeingModified("notes", "doc-1"))
	require.False(t, c.IsDocumentBeingDeleted("notes", "doc-2"))
}

// failingPersistence fails Append for one specific document, to exercise
// commit-time rollback.
type failingPersistence struct {
	document string
	mem      *memPersistence
}

func (f *failingPersistence) Append(collection, document string, delta *types.Delta, origin string) error {
	if document == f.document {
		return errors.New("simulated storage failure")
	}
	return f.mem.Append(collection, document, delta, origin)
}

func (f *failingPersistence) Load(collection, document string) (*types.Snapshot, []*types.Delta, error) {
	return f.mem.Load(collection, document)
}

func (f *failingPersistence) Delete(collection, document string) error {
	return f.mem.Delete(collection, document)
}
