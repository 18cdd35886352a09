package replicator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/synckit/replicate/pkg/log"
	"github.com/synckit/replicate/pkg/rpc"
	"github.com/synckit/replicate/pkg/rplerr"
	"github.com/synckit/replicate/pkg/types"
)

const (
	DefaultPollInterval = 200 * time.Millisecond
	DefaultBatchLimit   = 100

	changeKindSnapshot = "snapshot"
)

// DocumentManager is the subset of pkg/document's Manager the
// Replicator needs; *document.Manager satisfies it structurally.
type DocumentManager interface {
	ApplyUpdate(collection, id string, bytes []byte, origin string) error
	ResetDocument(collection, id string) error
	EncodeStateVector(collection, id string) (types.StateVector, error)
	AggregateStateVector(collection string) types.StateVector
	ListDocuments(collection string) []string
	Delete(collection, id string) error
}

// ExternalNotifier tells a document's Sync Actor that the Replicator has
// already merged a remote change; *syncer.Manager satisfies it via
// NotifyExternalUpdate.
type ExternalNotifier interface {
	NotifyExternalUpdate(document string, vector types.StateVector)
}

// CursorStore is the minimal blob KV the Replicator needs to persist its
// cursor; *storage.Adapter satisfies it structurally.
type CursorStore interface {
	KVGet(key string) ([]byte, error)
	KVSet(key string, value []byte) error
}

// Replicator is the cursor stream consumer for one collection.
type Replicator struct {
	collection string
	authority  rpc.Authority
	docs       DocumentManager
	notifier   ExternalNotifier
	cursorKV   CursorStore

	pollInterval time.Duration
	batchLimit   int
	logger       zerolog.Logger

	mu     sync.Mutex
	cursor int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option customizes a newly constructed Replicator.
type Option func(*Replicator)

// WithPollInterval overrides the default 200ms stream poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(r *Replicator) { r.pollInterval = d }
}

// WithBatchLimit overrides the default page size requested per Stream call.
func WithBatchLimit(n int) Option {
	return func(r *Replicator) { r.batchLimit = n }
}

// New builds a Replicator for collection.
func New(collection string, authority rpc.Authority, docs DocumentManager, notifier ExternalNotifier, cursorKV CursorStore, opts ...Option) *Replicator {
	r := &Replicator{
		collection:   collection,
		authority:    authority,
		docs:         docs,
		notifier:     notifier,
		cursorKV:     cursorKV,
		pollInterval: DefaultPollInterval,
		batchLimit:   DefaultBatchLimit,
		logger:       log.WithComponent("replicator"),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func cursorKey(collection string) string { return "cursor:" + collection }

// Start loads the persisted cursor and begins polling the authority's
// stream endpoint in a background goroutine.
func (r *Replicator) Start() error {
	cursor, err := r.loadCursor()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cursor = cursor
	r.mu.Unlock()

	go r.run()
	return nil
}

// Stop ends the poll loop and blocks until it has exited.
func (r *Replicator) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// Cursor returns the last cursor position this replicator has durably
// persisted.
func (r *Replicator) Cursor() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

func (r *Replicator) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.pollOnce(context.Background()); err != nil {
				r.logger.Error().Err(err).Str("collection", r.collection).Msg("replicator poll failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// pollOnce runs one stream/apply/persist cycle. It is kept separate from
// run so that code inside this package, tests included, can drive a
// single step deterministically instead of waiting on the ticker.
func (r *Replicator) pollOnce(ctx context.Context) error {
	current := r.Cursor()

	batch, err := r.authority.Stream(ctx, r.collection, current, r.batchLimit)
	if err != nil {
		return fmt.Errorf("replicator: stream %s: %w", r.collection, err)
	}

	if batch.Cursor < current {
		r.logger.Warn().Str("collection", r.collection).
			Int64("server_cursor", batch.Cursor).Int64("local_cursor", current).
			Msg("cursor regression, requesting recovery")
		return r.recover(ctx)
	}

	for _, change := range batch.Changes {
		if err := r.applyChange(change); err != nil {
			return err
		}
	}

	if err := r.persistCursor(batch.Cursor); err != nil {
		return err
	}

	if len(batch.Compact) > 0 {
		if err := r.recover(ctx); err != nil {
			return err
		}
	}
	if batch.LiveDocuments != nil {
		r.reconcile(batch.LiveDocuments)
	}
	return nil
}

func (r *Replicator) applyChange(change rpc.Change) error {
	if change.Kind == changeKindSnapshot {
		if err := r.docs.ResetDocument(r.collection, change.Document); err != nil {
			return rplerr.New(rplerr.KindStorageIO, "replicator.snapshot-clear", r.collection, change.Document, err)
		}
		if err := r.docs.ApplyUpdate(r.collection, change.Document, change.Bytes, "snapshot"); err != nil {
			return err
		}
	} else {
		if err := r.docs.ApplyUpdate(r.collection, change.Document, change.Bytes, "remote"); err != nil {
			return err
		}
	}

	vector, err := r.docs.EncodeStateVector(r.collection, change.Document)
	if err != nil {
		return err
	}
	r.notifier.NotifyExternalUpdate(change.Document, vector)
	return nil
}

// recover fetches a catch-up diff from the authority against this
// collection's current aggregate state vector and applies it, resuming
// the stream at the authority-returned cursor.
func (r *Replicator) recover(ctx context.Context) error {
	vector := r.docs.AggregateStateVector(r.collection)

	resp, err := r.authority.Recovery(ctx, r.collection, vector)
	if err != nil {
		return fmt.Errorf("replicator: recovery %s: %w", r.collection, err)
	}

	for _, change := range resp.Changes {
		if err := r.applyChange(change); err != nil {
			return err
		}
	}
	return r.persistCursor(resp.Cursor)
}

// reconcile soft-deletes every locally known document absent from
// serverIDs, a full materialization pass the authority reported.
func (r *Replicator) reconcile(serverIDs []string) {
	live := make(map[string]struct{}, len(serverIDs))
	for _, id := range serverIDs {
		live[id] = struct{}{}
	}

	for _, id := range r.docs.ListDocuments(r.collection) {
		if _, ok := live[id]; ok {
			continue
		}
		if err := r.docs.Delete(r.collection, id); err != nil {
			r.logger.Error().Err(err).Str("collection", r.collection).Str("document", id).
				Msg("reconciliation: failed to soft-delete phantom document")
		}
	}
}

func (r *Replicator) loadCursor() (int64, error) {
	raw, err := r.cursorKV.KVGet(cursorKey(r.collection))
	if err != nil {
		return 0, rplerr.New(rplerr.KindStorageIO, "replicator.loadCursor", r.collection, "", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("replicator: parse cursor for %s: %w", r.collection, err)
	}
	return n, nil
}

func (r *Replicator) persistCursor(cursor int64) error {
	if err := r.cursorKV.KVSet(cursorKey(r.collection), []byte(strconv.FormatInt(cursor, 10))); err != nil {
		return rplerr.New(rplerr.KindStorageIO, "replicator.persistCursor", r.collection, "", err)
	}
	r.mu.Lock()
	r.cursor = cursor
	r.mu.Unlock()
	return nil
}
