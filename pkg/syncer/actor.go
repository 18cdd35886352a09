package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/synckit/replicate/pkg/crdt"
	"github.com/synckit/replicate/pkg/log"
	"github.com/synckit/replicate/pkg/rpc"
	"github.com/synckit/replicate/pkg/rplerr"
	"github.com/synckit/replicate/pkg/types"
)

const (
	batchWindow        = 2 * time.Millisecond
	DefaultDebounce    = 200 * time.Millisecond
	DefaultMaxRetries  = 3
	retryBaseInterval  = 100 * time.Millisecond
	retryMultiplier    = 2.0
)

// Message is one of LocalChange, ExternalUpdate, or Shutdown.
type Message interface{ isMessage() }

// LocalChange announces that fn produced new local ops on the actor's
// document; it arms (or re-arms) the debounce timer.
type LocalChange struct{}

func (LocalChange) isMessage() {}

// ExternalUpdate announces that the Replicator has already merged a
// remote delta into the document; the actor advances its own notion of
// "last pushed vector" to match so it never re-sends ops it didn't
// originate.
type ExternalUpdate struct{ Vector types.StateVector }

func (ExternalUpdate) isMessage() {}

// Shutdown asks the actor to cancel any outstanding debounce and exit,
// closing Done once it has.
type Shutdown struct{ Done chan struct{} }

func (Shutdown) isMessage() {}

// Actor is the single authority writer for one document.
type Actor struct {
	collection string
	document   string
	clientID   string
	doc        *crdt.Doc
	authority  rpc.Authority
	onFatal    func(err error)
	debounce   time.Duration
	maxRetries uint64
	logger     zerolog.Logger

	inbox chan Message

	mu      sync.Mutex
	vector  types.StateVector
	retries int
	pending bool
	lastErr error
}

// Option customizes a newly constructed Actor.
type Option func(*Actor)

// WithDebounce overrides the default 200ms debounce window.
func WithDebounce(d time.Duration) Option {
	return func(a *Actor) { a.debounce = d }
}

// WithMaxRetries overrides the default retry budget of 3.
func WithMaxRetries(n int) Option {
	return func(a *Actor) { a.maxRetries = uint64(n) }
}

// New builds an Actor for document within collection. onFatal is called,
// synchronously from the actor's own goroutine, whenever a flush fails
// with a non-retriable error — callers typically forward it to the
// Transaction Coordinator.
func New(collection, document, clientID string, doc *crdt.Doc, authority rpc.Authority, onFatal func(err error), opts ...Option) *Actor {
	a := &Actor{
		collection: collection,
		document:   document,
		clientID:   clientID,
		doc:        doc,
		authority:  authority,
		onFatal:    onFatal,
		debounce:   DefaultDebounce,
		maxRetries: DefaultMaxRetries,
		logger:     log.WithComponent("syncer"),
		vector:     doc.StateVector(),
		inbox:      make(chan Message, 64),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the actor's mailbox goroutine. Callers must Shutdown
// it when done.
func (a *Actor) Start() { go a.run() }

// Send enqueues a message. Safe to call from any goroutine.
func (a *Actor) Send(msg Message) { a.inbox <- msg }

// Shutdown drains the mailbox and stops the actor, blocking until its
// goroutine has exited.
func (a *Actor) Shutdown() {
	done := make(chan struct{})
	a.inbox <- Shutdown{Done: done}
	<-done
}

// Pending reports whether a local change is waiting to be (or is being)
// flushed to the authority.
func (a *Actor) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// LastError is the most recent flush failure, or nil.
func (a *Actor) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *Actor) setPending(v bool) {
	a.mu.Lock()
	a.pending = v
	a.mu.Unlock()
}

func (a *Actor) run() {
	var debounceTimer *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case msg := <-a.inbox:
			batch := a.drainBatch(msg)

			var shutdown *Shutdown
			for _, m := range batch {
				switch v := m.(type) {
				case Shutdown:
					shutdown = &v
				case ExternalUpdate:
					a.mu.Lock()
					a.vector = v.Vector
					a.mu.Unlock()
				case LocalChange:
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.NewTimer(a.debounce)
					debounceC = debounceTimer.C
					a.setPending(true)
				}
			}

			if shutdown != nil {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				close(shutdown.Done)
				return
			}

		case <-debounceC:
			debounceC = nil
			a.flush()
		}
	}
}

// drainBatch collects first plus any further messages already queued
// within batchWindow, matching the actor's 2ms accumulation rule.
func (a *Actor) drainBatch(first Message) []Message {
	batch := []Message{first}
	timer := time.NewTimer(batchWindow)
	defer timer.Stop()

	for {
		select {
		case m := <-a.inbox:
			batch = append(batch, m)
		case <-timer.C:
			return batch
		}
	}
}

func (a *Actor) flush() {
	a.mu.Lock()
	vector := a.vector.Clone()
	a.mu.Unlock()

	delta := a.doc.EncodeUpdateFrom(vector)
	if delta.IsEmpty() {
		a.setPending(false)
		return
	}
	delta.Collection = a.collection
	delta.Document = a.document

	err := a.attemptWithBackoff(delta)
	a.setPending(false)

	if err == nil {
		a.mu.Lock()
		a.vector = a.doc.StateVector()
		a.retries = 0
		a.lastErr = nil
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()

	if rplerr.KindOf(err) == rplerr.KindNonRetriable {
		if a.onFatal != nil {
			a.onFatal(err)
		}
		return
	}

	a.logger.Error().Err(err).Str("collection", a.collection).Str("document", a.document).
		Msg("sync actor exhausted retries")
}

func (a *Actor) attemptWithBackoff(delta *types.Delta) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = retryBaseInterval
	eb.Multiplier = retryMultiplier
	policy := backoff.WithMaxRetries(eb, a.maxRetries)

	return backoff.Retry(func() error {
		sendErr := a.send(delta)
		if sendErr == nil {
			return nil
		}
		if rplerr.KindOf(sendErr) == rplerr.KindNonRetriable {
			return backoff.Permanent(sendErr)
		}
		a.mu.Lock()
		a.retries++
		a.mu.Unlock()
		return sendErr
	}, policy)
}

func (a *Actor) send(delta *types.Delta) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := a.authority.Replicate(ctx, &rpc.ReplicateRequest{
		Collection: a.collection,
		Document:   a.document,
		Op:         "update",
		Delta:      delta.Bytes,
		Before:     delta.Before,
		ClientID:   a.clientID,
	})
	return err
}
