package crdt

import (
	"testing"

	"github.com/synckit/replicate/pkg/types"
)

// TestCounterConvergence reproduces spec.md §8 scenario 2: client A and B
// concurrently increment "views" by +1 and +2 before exchange; after merge
// both replicas must report views=3.
func TestCounterConvergence(t *testing.T) {
	a := NewDoc("A")
	b := NewDoc("B")

	deltaA := a.Transact(func(tx *Txn) { tx.IncCounter("views", 1, 100) })
	deltaB := b.Transact(func(tx *Txn) { tx.IncCounter("views", 2, 100) })

	if err := a.Apply(deltaB.Bytes); err != nil {
		t.Fatalf("a.Apply(deltaB): %v", err)
	}
	if err := b.Apply(deltaA.Bytes); err != nil {
		t.Fatalf("b.Apply(deltaA): %v", err)
	}

	wantViews := func(d *Doc) float64 {
		return CounterValue(d.Snapshot().Fields["views"].Counter)
	}
	if got := wantViews(a); got != 3 {
		t.Errorf("a views = %v, want 3", got)
	}
	if got := wantViews(b); got != 3 {
		t.Errorf("b views = %v, want 3", got)
	}
}

// TestSetAddWins reproduces spec.md §8 scenario 3: A removes "urgent" at
// t=10, B adds "urgent" at t=20 concurrently; after exchange the final set
// must still contain "urgent" (add-wins).
func TestSetAddWins(t *testing.T) {
	a := NewDoc("A")
	b := NewDoc("B")

	// Seed both replicas with the same initial add so the remove has
	// something to race against.
	seed := a.Transact(func(tx *Txn) { tx.AddSet("tags", `"urgent"`, 1) })
	if err := b.Apply(seed.Bytes); err != nil {
		t.Fatal(err)
	}

	removeDelta := a.Transact(func(tx *Txn) { tx.RemoveSet("tags", `"urgent"`, 10) })
	addDelta := b.Transact(func(tx *Txn) { tx.AddSet("tags", `"urgent"`, 20) })

	if err := a.Apply(addDelta.Bytes); err != nil {
		t.Fatal(err)
	}
	if err := b.Apply(removeDelta.Bytes); err != nil {
		t.Fatal(err)
	}

	for name, d := range map[string]*Doc{"a": a, "b": b} {
		ok, err := SetContains(d.Snapshot().Fields["tags"].Set, "urgent")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("%s: expected tags to still contain urgent (add-wins)", name)
		}
	}
}

// TestRegisterLatestWins reproduces spec.md §8 scenario 4: A writes "todo"
// at t=5, B writes "done" at t=7; with the default resolver both replicas
// must observe status="done".
func TestRegisterLatestWins(t *testing.T) {
	a := NewDoc("A")
	b := NewDoc("B")

	deltaA := a.Transact(func(tx *Txn) { tx.SetRegister("status", "todo", 5) })
	deltaB := b.Transact(func(tx *Txn) { tx.SetRegister("status", "done", 7) })

	if err := a.Apply(deltaB.Bytes); err != nil {
		t.Fatal(err)
	}
	if err := b.Apply(deltaA.Bytes); err != nil {
		t.Fatal(err)
	}

	for name, d := range map[string]*Doc{"a": a, "b": b} {
		got := RegisterValue(d.Snapshot().Fields["status"].Register, nil)
		if got != "done" {
			t.Errorf("%s: status = %v, want done", name, got)
		}
	}
}

// TestIdempotence: applying the same delta twice leaves the document
// byte-equal to applying it once.
func TestIdempotence(t *testing.T) {
	a := NewDoc("A")
	delta := a.Transact(func(tx *Txn) {
		tx.SetScalar("title", "Hi", 1)
		tx.IncCounter("views", 1, 1)
	})

	b := NewDoc("B")
	if err := b.Apply(delta.Bytes); err != nil {
		t.Fatal(err)
	}
	once := b.EncodeState()

	if err := b.Apply(delta.Bytes); err != nil {
		t.Fatal(err)
	}
	twice := b.EncodeState()

	if string(once) != string(twice) {
		t.Errorf("applying delta twice changed encoded state:\nonce:  %s\ntwice: %s", once, twice)
	}
}

// TestConvergence: two replicas that exchange every delta either produced
// converge to a byte-identical snapshot after a final no-op merge.
func TestConvergence(t *testing.T) {
	a := NewDoc("A")
	b := NewDoc("B")

	d1 := a.Transact(func(tx *Txn) { tx.SetScalar("title", "Hi", 1) })
	d2 := b.Transact(func(tx *Txn) { tx.IncCounter("views", 1, 2) })
	d3 := a.Transact(func(tx *Txn) { tx.AddSet("tags", `"x"`, 3) })

	for _, d := range []*types.Delta{d2, d3} {
		if err := a.Apply(d.Bytes); err != nil {
			t.Fatal(err)
		}
	}
	for _, d := range []*types.Delta{d1, d3} {
		if err := b.Apply(d.Bytes); err != nil {
			t.Fatal(err)
		}
	}
	// a already has d3 locally (it produced it); re-applying is a no-op.
	if err := a.Apply(d3.Bytes); err != nil {
		t.Fatal(err)
	}

	if string(a.EncodeState()) != string(b.EncodeState()) {
		t.Errorf("replicas diverged after exchanging all deltas")
	}
}

func TestDeltaEmptyFraming(t *testing.T) {
	a := NewDoc("A")
	empty := a.Transact(func(tx *Txn) {})
	if !empty.IsEmpty() {
		t.Errorf("expected a no-op transaction to produce an empty delta, got %d bytes", len(empty.Bytes))
	}

	nonEmpty := a.Transact(func(tx *Txn) { tx.SetScalar("x", 1, 1) })
	if nonEmpty.IsEmpty() {
		t.Errorf("expected a real mutation to produce a non-empty delta")
	}
}
