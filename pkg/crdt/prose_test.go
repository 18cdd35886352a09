package crdt

import (
	"encoding/json"
	"testing"
)

// TestProseRoundTrip: serialize to ProseMirror JSON, rebuild the fragment,
// re-serialize — the two JSON encodings must be identical.
func TestProseRoundTrip(t *testing.T) {
	original := &ProseNode{
		Type: "doc",
		Content: []*ProseNode{
			{Type: "paragraph", Content: []*ProseNode{
				{Type: "text", Text: "hello "},
				{Type: "text", Text: "world", Attrs: map[string]any{"bold": true}},
			}},
		},
	}

	atoms := FromTree(original, "A", 0)
	doc := NewDoc("A")
	doc.Transact(func(tx *Txn) {
		var last *ProseRef
		for _, atom := range atoms {
			ref := tx.InsertProseAtom("body", last, atom.Kind, atom.Value, atom.Attrs)
			last = &ref
		}
	})

	rebuilt := ToTree(doc.Snapshot().Fields["body"].Prose)

	wantJSON, err := json.Marshal(original)
	if err != nil {
		t.Fatal(err)
	}
	gotJSON, err := json.Marshal(rebuilt)
	if err != nil {
		t.Fatal(err)
	}
	if string(wantJSON) != string(gotJSON) {
		t.Errorf("prose round-trip mismatch:\nwant: %s\ngot:  %s", wantJSON, gotJSON)
	}
}

// TestProseConcurrentInsertConverges: two replicas insert at the same
// origin concurrently; after exchange both must materialize the same
// order, deterministically tie-broken by (clock, client).
func TestProseConcurrentInsertConverges(t *testing.T) {
	a := NewDoc("A")
	b := NewDoc("B")

	seed := a.Transact(func(tx *Txn) {
		tx.InsertProseAtom("body", nil, "text", "base", nil)
	})
	if err := b.Apply(seed.Bytes); err != nil {
		t.Fatal(err)
	}

	// Both insert right after the same "base" atom concurrently.
	var baseRef ProseRef
	for _, atom := range a.Snapshot().Fields["body"].Prose.Atoms {
		baseRef = ProseRef{id: opID{Client: atom.ID.Client, Clock: atom.ID.Clock}}
	}

	da := a.Transact(func(tx *Txn) { tx.InsertProseAtom("body", &baseRef, "text", "from-a", nil) })
	db := b.Transact(func(tx *Txn) { tx.InsertProseAtom("body", &baseRef, "text", "from-b", nil) })

	if err := a.Apply(db.Bytes); err != nil {
		t.Fatal(err)
	}
	if err := b.Apply(da.Bytes); err != nil {
		t.Fatal(err)
	}

	aJSON, _ := json.Marshal(ToTree(a.Snapshot().Fields["body"].Prose))
	bJSON, _ := json.Marshal(ToTree(b.Snapshot().Fields["body"].Prose))
	if string(aJSON) != string(bJSON) {
		t.Errorf("concurrent prose inserts diverged:\na: %s\nb: %s", aJSON, bJSON)
	}
}
