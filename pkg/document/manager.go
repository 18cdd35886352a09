package document

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/synckit/replicate/pkg/crdt"
	"github.com/synckit/replicate/pkg/events"
	"github.com/synckit/replicate/pkg/log"
	"github.com/synckit/replicate/pkg/metrics"
	"github.com/synckit/replicate/pkg/rplerr"
	"github.com/synckit/replicate/pkg/types"
)

// originLoad is reserved: ops applied with this origin are replayed
// history already durable in the WAL and must never be re-appended.
const originLoad = "load"

// Persistence is the per-document durability provider a Manager wires
// into the WAL. pkg/wal's WAL type implements this.
type Persistence interface {
	// Append records a non-"load" delta for (collection, document).
	Append(collection, document string, delta *types.Delta, origin string) error
	// Load returns the most recent snapshot (nil if none) plus every
	// delta row recorded since it, in causal order.
	Load(collection, document string) (*types.Snapshot, []*types.Delta, error)
	// Delete removes all persisted rows for (collection, document).
	Delete(collection, document string) error
}

type entry struct {
	doc          *crdt.Doc
	pendingFlush int
}

// Manager is the Document Manager: the sole owner of live CRDT document
// handles. Safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	clientID    string
	persistence Persistence
	broker      *events.Broker
	logger      zerolog.Logger

	collections map[string]map[string]*entry
}

// New creates a Manager. clientID identifies this replica's ops in every
// document it materializes (see pkg/identity).
func New(clientID string, persistence Persistence, broker *events.Broker) *Manager {
	return &Manager{
		clientID:    clientID,
		persistence: persistence,
		broker:      broker,
		logger:      log.WithComponent("document"),
		collections: make(map[string]map[string]*entry),
	}
}

// getOrCreate returns the live handle for (collection, id), loading it
// from persistence on first touch in this process.
func (m *Manager) getOrCreate(collection, id string) (*entry, error) {
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]*entry)
		m.collections[collection] = docs
	}

	if e, ok := docs[id]; ok {
		return e, nil
	}

	doc := crdt.NewDoc(m.clientID)
	e := &entry{doc: doc}
	docs[id] = e

	snapshot, deltas, err := m.persistence.Load(collection, id)
	if err != nil {
		return nil, rplerr.New(rplerr.KindStorageIO, "getOrCreate", collection, id, err)
	}
	if snapshot != nil {
		if err := doc.Apply(snapshot.Bytes); err != nil {
			return nil, fmt.Errorf("document: replay snapshot %s/%s: %w", collection, id, err)
		}
	}
	for _, delta := range deltas {
		if err := doc.Apply(delta.Bytes); err != nil {
			return nil, fmt.Errorf("document: replay delta %s/%s: %w", collection, id, err)
		}
	}

	m.logger.Debug().Str("collection", collection).Str("document", id).
		Int("replayed_deltas", len(deltas)).Bool("had_snapshot", snapshot != nil).
		Msg("materialized document")

	return e, nil
}

// GetOrCreate is getOrCreate's exported form, returning only the document
// handle.
func (m *Manager) GetOrCreate(collection, id string) (*crdt.Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.getOrCreate(collection, id)
	if err != nil {
		return nil, err
	}
	return e.doc, nil
}

// ApplyUpdate merges bytes (a delta or snapshot) into (collection, id),
// persisting it unless origin is the reserved "load" tag.
func (m *Manager) ApplyUpdate(collection, id string, bytes []byte, origin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.getOrCreate(collection, id)
	if err != nil {
		return err
	}

	before := e.doc.StateVector()
	if err := e.doc.Apply(bytes); err != nil {
		return fmt.Errorf("document: apply update %s/%s: %w", collection, id, err)
	}

	if origin != originLoad {
		delta := &types.Delta{Collection: collection, Document: id, Before: before, Bytes: bytes}
		if err := m.persistence.Append(collection, id, delta, origin); err != nil {
			return rplerr.New(rplerr.KindStorageIO, "applyUpdate", collection, id, err)
		}
		e.pendingFlush++
		m.publish(events.EventDocumentUpdated, collection, id)
	}

	return nil
}

// TransactWithDelta runs fn against a fresh transaction on (collection,
// id), persists the resulting delta unless origin is "load", and returns
// it.
func (m *Manager) TransactWithDelta(collection, id string, fn func(*crdt.Txn), origin string) (*types.Delta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.getOrCreate(collection, id)
	if err != nil {
		return nil, err
	}

	delta := e.doc.Transact(fn)
	delta.Collection = collection
	delta.Document = id

	if origin != originLoad && !delta.IsEmpty() {
		if err := m.persistence.Append(collection, id, delta, origin); err != nil {
			return nil, rplerr.New(rplerr.KindStorageIO, "transactWithDelta", collection, id, err)
		}
		e.pendingFlush++
		m.publish(events.EventDocumentUpdated, collection, id)
	}

	return delta, nil
}

// EncodeState returns (collection, id)'s full op log, sufficient to
// reconstruct the document from empty.
func (m *Manager) EncodeState(collection, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.getOrCreate(collection, id)
	if err != nil {
		return nil, err
	}
	return e.doc.EncodeState(), nil
}

// EncodeStateVector returns (collection, id)'s current state vector.
func (m *Manager) EncodeStateVector(collection, id string) (types.StateVector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.getOrCreate(collection, id)
	if err != nil {
		return nil, err
	}
	return e.doc.StateVector(), nil
}

// ResetDocument clears (collection, id)'s in-memory CRDT state back to
// empty, for the Replicator's snapshot-clear step: the document is then
// expected to be repopulated by an immediate ApplyUpdate(bytes, "snapshot").
func (m *Manager) ResetDocument(collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.getOrCreate(collection, id)
	if err != nil {
		return err
	}
	e.doc.Reset()
	return nil
}

// AggregateStateVector folds the state vectors of every document of
// collection currently materialized in memory into one vector holding,
// per client, the highest op count observed across them. Used by the
// Replicator to build the vector a recovery() call reports as stale;
// documents never touched this process don't contribute, which is safe
// since the authority still has their full history to diff against.
func (m *Manager) AggregateStateVector(collection string) types.StateVector {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg := make(types.StateVector)
	for _, e := range m.collections[collection] {
		for client, seq := range e.doc.StateVector() {
			if seq > agg[client] {
				agg[client] = seq
			}
		}
	}
	return agg
}

// ListDocuments returns the ids of every document of collection currently
// materialized in memory.
func (m *Manager) ListDocuments(collection string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	return ids
}

// Delete soft-deletes (collection, id): marks its _meta._deleted
// tombstone via a transaction, leaving CRDT history intact until
// compaction.
func (m *Manager) Delete(collection, id string) error {
	_, err := m.TransactWithDelta(collection, id, func(txn *crdt.Txn) {
		txn.MarkDeleted(time.Now().UnixMilli())
	}, "local")
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.publish(events.EventDocumentDeleted, collection, id)
	return nil
}

// Destroy physically removes (collection, id) from memory and
// persistence. Unlike Delete, there is no tombstone left behind —
// intended for reconciliation's phantom cleanup and test teardown, not
// ordinary user deletes.
func (m *Manager) Destroy(collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if docs, ok := m.collections[collection]; ok {
		delete(docs, id)
	}
	if err := m.persistence.Delete(collection, id); err != nil {
		return rplerr.New(rplerr.KindStorageIO, "destroy", collection, id, err)
	}
	return nil
}

// Stats reports per-collection counters for the metrics Collector.
func (m *Manager) Stats() []metrics.CollectionStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]metrics.CollectionStats, 0, len(m.collections))
	for collection, docs := range m.collections {
		pending := 0
		for _, e := range docs {
			pending += e.pendingFlush
		}
		out = append(out, metrics.CollectionStats{
			Collection:   collection,
			Documents:    len(docs),
			PendingFlush: pending,
		})
	}
	return out
}

// ClearPending resets (collection, id)'s pending-flush counter, called by
// the Sync Actor once a flush succeeds.
func (m *Manager) ClearPending(collection, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if docs, ok := m.collections[collection]; ok {
		if e, ok := docs[id]; ok {
			e.pendingFlush = 0
		}
	}
}

func (m *Manager) publish(eventType events.EventType, collection, id string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{Type: eventType, Collection: collection, Document: id})
}
