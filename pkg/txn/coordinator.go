package txn

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/synckit/replicate/pkg/crdt"
	"github.com/synckit/replicate/pkg/log"
	"github.com/synckit/replicate/pkg/rplerr"
	"github.com/synckit/replicate/pkg/types"
)

// Kind tags a staged change the same way the spec's staged-change tuple
// (kind, documentId, delta, previousState) does.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// DocumentManager is the subset of pkg/document's Manager the
// Coordinator needs; *document.Manager satisfies it structurally.
type DocumentManager interface {
	TransactWithDelta(collection, id string, fn func(*crdt.Txn), origin string) (*types.Delta, error)
	EncodeState(collection, id string) ([]byte, error)
	ResetDocument(collection, id string) error
	ApplyUpdate(collection, id string, bytes []byte, origin string) error
}

type stagedChange struct {
	kind          Kind
	collection    string
	document      string
	mutate        func(*crdt.Txn)
	previousState []byte
}

// Handle is passed to a transaction's fn for staging changes.
type Handle struct {
	coordinator *Coordinator
	staged      []*stagedChange
}

// Insert stages a new document creation against collection/document.
func (h *Handle) Insert(collection, document string, mutate func(*crdt.Txn)) {
	h.stage(KindInsert, collection, document, mutate)
}

// Update stages a mutation of an existing document.
func (h *Handle) Update(collection, document string, mutate func(*crdt.Txn)) {
	h.stage(KindUpdate, collection, document, mutate)
}

// Delete stages a soft-delete (tombstone) of a document.
func (h *Handle) Delete(collection, document string, deletedAtUnixMilli int64) {
	h.stage(KindDelete, collection, document, func(t *crdt.Txn) {
		t.MarkDeleted(deletedAtUnixMilli)
	})
}

func (h *Handle) stage(kind Kind, collection, document string, mutate func(*crdt.Txn)) {
	previous, _ := h.coordinator.docs.EncodeState(collection, document)
	sc := &stagedChange{
		kind:          kind,
		collection:    collection,
		document:      document,
		mutate:        mutate,
		previousState: previous,
	}
	h.staged = append(h.staged, sc)
	h.coordinator.markPending(sc)
}

// Coordinator runs staged, all-or-nothing transactions against a
// DocumentManager.
type Coordinator struct {
	docs   DocumentManager
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string][]Kind
}

// New builds a Coordinator over docs.
func New(docs DocumentManager) *Coordinator {
	return &Coordinator{
		docs:    docs,
		logger:  log.WithComponent("txn"),
		pending: make(map[string][]Kind),
	}
}

// Run executes fn against a fresh transaction handle. If fn returns an
// error, nothing staged is ever applied. Otherwise Run commits every
// staged change in order, rolling back everything already applied on
// the first failure.
func (c *Coordinator) Run(fn func(*Handle) error) error {
	h := &Handle{coordinator: c}
	defer c.clearPending(h)

	if err := fn(h); err != nil {
		return err
	}
	return c.commit(h)
}

func (c *Coordinator) commit(h *Handle) error {
	applied := make([]*stagedChange, 0, len(h.staged))
	for _, sc := range h.staged {
		if _, err := c.docs.TransactWithDelta(sc.collection, sc.document, sc.mutate, "local"); err != nil {
			c.rollback(applied)
			return rplerr.New(rplerr.KindStorageIO, "txn.commit", sc.collection, sc.document, err)
		}
		applied = append(applied, sc)
	}
	return nil
}

func (c *Coordinator) rollback(applied []*stagedChange) {
	for i := len(applied) - 1; i >= 0; i-- {
		sc := applied[i]
		if err := c.docs.ResetDocument(sc.collection, sc.document); err != nil {
			c.logger.Error().Err(err).Str("collection", sc.collection).Str("document", sc.document).
				Msg("txn rollback: failed to reset document")
			continue
		}
		if len(sc.previousState) == 0 {
			continue
		}
		if err := c.docs.ApplyUpdate(sc.collection, sc.document, sc.previousState, "rollback"); err != nil {
			c.logger.Error().Err(err).Str("collection", sc.collection).Str("document", sc.document).
				Msg("txn rollback: failed to restore prior state")
		}
	}
}

func (c *Coordinator) markPending(sc *stagedChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := pendingKey(sc.collection, sc.document)
	c.pending[key] = append(c.pending[key], sc.kind)
}

func (c *Coordinator) clearPending(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sc := range h.staged {
		key := pendingKey(sc.collection, sc.document)
		kinds := c.pending[key]
		for i, k := range kinds {
			if k == sc.kind {
				kinds = append(kinds[:i:i], kinds[i+1:]...)
				break
			}
		}
		if len(kinds) == 0 {
			delete(c.pending, key)
		} else {
			c.pending[key] = kinds
		}
	}
}

// IsDocumentBeingDeleted reports whether an in-flight transaction has
// staged a delete against (collection, document).
func (c *Coordinator) IsDocumentBeingDeleted(collection, document string) bool {
	return c.hasPendingKind(collection, document, KindDelete)
}

// IsDocumentBeingModified reports whether any in-flight transaction has
// a pending stage of any kind against (collection, document).
func (c *Coordinator) IsDocumentBeingModified(collection, document string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[pendingKey(collection, document)]) > 0
}

func (c *Coordinator) hasPendingKind(collection, document string, kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.pending[pendingKey(collection, document)] {
		if k == kind {
			return true
		}
	}
	return false
}

func pendingKey(collection, document string) string {
	return collection + "/" + document
}
