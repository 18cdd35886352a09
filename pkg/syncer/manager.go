package syncer

import (
	"sync"

	"github.com/synckit/replicate/pkg/types"
)

// Manager supervises one Actor per document within a single collection,
// creating actors lazily on first touch.
type Manager struct {
	mu      sync.Mutex
	actors  map[string]*Actor
	factory func(document string) *Actor
}

// NewManager builds a Manager that constructs actors on demand via
// factory, which is expected to close over the collection, client id,
// and authority connection the actors should share.
func NewManager(factory func(document string) *Actor) *Manager {
	return &Manager{
		actors:  make(map[string]*Actor),
		factory: factory,
	}
}

// Actor returns the actor for document, creating and starting it on
// first call.
func (m *Manager) Actor(document string) *Actor {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actors[document]
	if ok {
		return a
	}
	a = m.factory(document)
	a.Start()
	m.actors[document] = a
	return a
}

// NotifyExternalUpdate tells document's actor that the Replicator has
// already merged a remote change, so the actor advances vector without
// re-pushing ops it never originated.
func (m *Manager) NotifyExternalUpdate(document string, vector types.StateVector) {
	m.Actor(document).Send(ExternalUpdate{Vector: vector})
}

// Shutdown tears down every actor this manager has created, blocking
// until each has drained its mailbox and exited.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	actors := make([]*Actor, 0, len(m.actors))
	for _, a := range m.actors {
		actors = append(actors, a)
	}
	m.actors = make(map[string]*Actor)
	m.mu.Unlock()

	for _, a := range actors {
		a.Shutdown()
	}
}
