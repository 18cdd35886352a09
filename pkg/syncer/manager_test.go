package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/synckit/replicate/pkg/crdt"
)

func TestManager_CreatesOneActorPerDocumentLazily(t *testing.T) {
	authority := &fakeAuthority{}
	docs := map[string]*crdt.Doc{
		"doc-1": crdt.NewDoc("client-a"),
		"doc-2": crdt.NewDoc("client-a"),
	}

	m := NewManager(func(document string) *Actor {
		return New("notes", document, "client-a", docs[document], authority, nil, WithDebounce(10*time.Millisecond))
	})
	defer m.Shutdown()

	a1 := m.Actor("doc-1")
	a1Again := m.Actor("doc-1")
	a2 := m.Actor("doc-2")

	require.Same(t, a1, a1Again)
	require.NotSame(t, a1, a2)
}

func TestManager_ShutdownTearsDownAllActors(t *testing.T) {
	authority := &fakeAuthority{}
	doc := crdt.NewDoc("client-a")

	m := NewManager(func(document string) *Actor {
		return New("notes", document, "client-a", doc, authority, nil, WithDebounce(10*time.Millisecond))
	})

	m.Actor("doc-1")
	m.Actor("doc-2")
	m.Shutdown()
}
