/*
Package crdt implements the four CRDT field kinds from the data model
(Counter, Register, Set, Prose) over one shared per-document op log, plus
the delta/snapshot wire codec that bounds and frames that log.

# Architecture

	┌────────────────────────── Doc ───────────────────────────┐
	│                                                            │
	│   log []opEnvelope          — causal history, append-only │
	│   vector types.StateVector  — highest clock seen per client│
	│   seen map[opID]struct{}    — dedup, makes Apply idempotent│
	│   fields map[string]*types.FieldState — materialized read  │
	│                               state, kept in sync with log │
	│                                                            │
	│   Transact(fn)   → assigns fresh local ops, returns Delta  │
	│   Apply(delta)   → merges foreign ops, skips ones seen     │
	│   EncodeState()  → full op log, reloadable from empty      │
	│   EncodeUpdateFrom(vector) → ops the vector hasn't seen    │
	└────────────────────────────────────────────────────────────┘

Dispatch over field kind is an exhaustively typed switch (see ops.go); there
is no runtime type introspection on field values.
*/
package crdt

import (
	"fmt"
	"sync"

	"github.com/synckit/replicate/pkg/types"
)

// opID totally orders one client's ops against another's.
type opID struct {
	Client string
	Clock  uint64
}

func (id opID) String() string { return fmt.Sprintf("%s:%d", id.Client, id.Clock) }

// greater implements the deterministic tie-break used for concurrent Prose
// inserts at the same origin: highest clock wins, ties broken by client id.
func (id opID) greater(other opID) bool {
	if id.Clock != other.Clock {
		return id.Clock > other.Clock
	}
	return id.Client > other.Client
}

type opEnvelope struct {
	ID      opID
	Field   string
	Kind    string
	Payload []byte // kind-specific, see ops.go
}

// Doc is one document's CRDT state: the shared op log plus the fields map
// materialized from it. Doc is owned exclusively by pkg/document's
// Document Manager entry; callers reach it only through that owner.
type Doc struct {
	mu     sync.Mutex
	client string
	clock  uint64

	log    []opEnvelope
	vector types.StateVector
	seen   map[opID]struct{}
	fields map[string]*types.FieldState
	meta   types.Meta
}

// NewDoc creates an empty document. client identifies this replica's ops
// in the shared log (see pkg/identity).
func NewDoc(client string) *Doc {
	return &Doc{
		client: client,
		vector: types.StateVector{},
		seen:   map[opID]struct{}{},
		fields: map[string]*types.FieldState{},
	}
}

// Snapshot materializes the document's current read state. The returned
// value is a copy; mutating it has no effect on the Doc.
func (d *Doc) Snapshot() *types.Document {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := &types.Document{
		Fields: make(map[string]*types.FieldState, len(d.fields)),
		Meta:   d.meta,
	}
	for name, fs := range d.fields {
		out.Fields[name] = cloneFieldState(fs)
	}
	return out
}

// StateVector returns a copy of the document's current state vector.
func (d *Doc) StateVector() types.StateVector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vector.Clone()
}

// Txn is the mutation handle passed to a Transact callback. Every method
// appends exactly one op to the document's local, not-yet-committed batch.
type Txn struct {
	doc *Doc
	ops []opEnvelope
}

func (t *Txn) nextID() opID {
	t.doc.clock++
	return opID{Client: t.doc.client, Clock: t.doc.clock}
}

// SetScalar overwrites a last-writer-wins scalar field.
func (t *Txn) SetScalar(field string, value any, ts int64) {
	t.emit(field, kindScalarSet, scalarSetPayload{Value: value, TS: ts})
}

// IncCounter appends a (possibly negative) delta to a Counter field.
func (t *Txn) IncCounter(field string, delta float64, ts int64) {
	t.emit(field, kindCounterInc, counterIncPayload{Delta: delta, TS: ts})
}

// SetRegister records this client's value for a Register field.
func (t *Txn) SetRegister(field string, value any, ts int64) {
	t.emit(field, kindRegisterSet, registerSetPayload{Value: value, TS: ts})
}

// AddSet adds member (already JSON-encoded) to a Set field.
func (t *Txn) AddSet(field string, memberJSON string, ts int64) {
	t.emit(field, kindSetAdd, setOpPayload{Member: memberJSON, TS: ts})
}

// RemoveSet removes member from a Set field; the remove only takes effect
// once merged if its ts is strictly later than the entry's addedAt.
func (t *Txn) RemoveSet(field string, memberJSON string, ts int64) {
	t.emit(field, kindSetRemove, setOpPayload{Member: memberJSON, TS: ts})
}

// InsertProseAtom inserts one atom of a Prose field after the atom that
// after refers to (a nil after means "at the start of the sequence").
func (t *Txn) InsertProseAtom(field string, after *ProseRef, kind, value string, attrs map[string]any) ProseRef {
	id := t.nextID()
	origin := opID{}
	if after != nil {
		origin = after.id
	}
	t.appendPayload(field, kindProseInsert, id, proseInsertPayload{
		Origin: origin,
		Kind:   kind,
		Value:  value,
		Attrs:  attrs,
	})
	return ProseRef{id: id}
}

// DeleteProseAtom tombstones a previously inserted atom.
func (t *Txn) DeleteProseAtom(field string, target ProseRef) {
	t.emit(field, kindProseDelete, proseDeletePayload{Target: target.id})
}

// MarkDeleted sets the document's _meta._deleted tombstone.
func (t *Txn) MarkDeleted(ts int64) {
	t.doc.meta.Deleted = true
}

func (t *Txn) emit(field, kind string, payload any) {
	t.appendPayload(field, kind, t.nextID(), payload)
}

func (t *Txn) appendPayload(field, kind string, id opID, payload any) {
	data, err := encodePayload(payload)
	if err != nil {
		panic(fmt.Sprintf("crdt: encode %s payload: %v", kind, err))
	}
	t.ops = append(t.ops, opEnvelope{ID: id, Field: field, Kind: kind, Payload: data})
}

// ProseRef is an opaque handle to a previously inserted Prose atom, used to
// insert-after or delete it.
type ProseRef struct{ id opID }

// Transact runs fn against a fresh Txn, applies every op it emitted to the
// document, and returns the delta covering exactly those ops — mirroring
// pkg/document's transactWithDelta.
func (d *Doc) Transact(fn func(*Txn)) *types.Delta {
	d.mu.Lock()
	before := d.vector.Clone()
	txn := &Txn{doc: d}
	d.mu.Unlock()

	fn(txn)
	if len(txn.ops) == 0 {
		return &types.Delta{Before: before, Bytes: encodeOps(nil)}
	}

	d.mu.Lock()
	for _, op := range txn.ops {
		d.applyLocked(op)
	}
	d.mu.Unlock()

	return &types.Delta{Before: before, Bytes: encodeOps(txn.ops)}
}

// Apply merges a foreign delta or snapshot's ops into the document. It takes
// no origin tag: callers keep their own ("remote", "snapshot", "load", ...)
// for bookkeeping, and Apply treats every op identically and is always
// idempotent and commutative.
func (d *Doc) Apply(bytes []byte) error {
	ops, err := decodeOps(bytes)
	if err != nil {
		return fmt.Errorf("crdt: decode ops: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, op := range ops {
		d.applyLocked(op)
	}
	return nil
}

// applyLocked appends op to the log and materializes it, unless its id has
// already been seen (idempotence).
func (d *Doc) applyLocked(op opEnvelope) {
	if _, ok := d.seen[op.ID]; ok {
		return
	}
	d.seen[op.ID] = struct{}{}
	d.log = append(d.log, op)
	if op.ID.Clock > d.vector[op.ID.Client] {
		d.vector[op.ID.Client] = op.ID.Clock
	}
	d.materialize(op)
}

// EncodeState returns the full op log, sufficient to reconstruct the
// document from empty — a snapshot is semantically equivalent to replaying
// every delta in causal order.
func (d *Doc) EncodeState() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return encodeOps(d.log)
}

// EncodeUpdateFrom returns a delta covering every op this document has
// seen that `vector` has not, bounded by vector as the "before" state.
func (d *Doc) EncodeUpdateFrom(vector types.StateVector) *types.Delta {
	d.mu.Lock()
	defer d.mu.Unlock()

	var missing []opEnvelope
	for _, op := range d.log {
		if op.ID.Clock > vector[op.ID.Client] {
			missing = append(missing, op)
		}
	}
	return &types.Delta{Before: vector.Clone(), Bytes: encodeOps(missing)}
}

// Reset clears all materialized and logged state, used by the Replicator
// before applying a "snapshot" change (§4.7, tagged "snapshot-clear").
func (d *Doc) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = nil
	d.vector = types.StateVector{}
	d.seen = map[opID]struct{}{}
	d.fields = map[string]*types.FieldState{}
	d.meta = types.Meta{}
}

func cloneFieldState(fs *types.FieldState) *types.FieldState {
	out := &types.FieldState{Kind: fs.Kind}
	switch fs.Kind {
	case types.FieldKindScalar:
		if fs.Scalar != nil {
			v := *fs.Scalar
			out.Scalar = &v
		}
	case types.FieldKindCounter:
		if fs.Counter != nil {
			entries := make([]types.CounterEntry, len(fs.Counter.Entries))
			copy(entries, fs.Counter.Entries)
			out.Counter = &types.CounterState{Entries: entries}
		}
	case types.FieldKindRegister:
		if fs.Register != nil {
			entries := make(map[string]types.RegisterEntry, len(fs.Register.Entries))
			for k, v := range fs.Register.Entries {
				entries[k] = v
			}
			out.Register = &types.RegisterState{Entries: entries}
		}
	case types.FieldKindSet:
		if fs.Set != nil {
			entries := make(map[string]types.SetEntry, len(fs.Set.Entries))
			for k, v := range fs.Set.Entries {
				entries[k] = v
			}
			out.Set = &types.SetState{Entries: entries}
		}
	case types.FieldKindProse:
		if fs.Prose != nil {
			atoms := make([]types.ProseAtom, len(fs.Prose.Atoms))
			copy(atoms, fs.Prose.Atoms)
			out.Prose = &types.ProseState{Atoms: atoms}
		}
	}
	return out
}
