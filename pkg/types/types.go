package types

import "time"

// FieldKind identifies which CRDT semantics a field follows.
type FieldKind string

const (
	FieldKindScalar   FieldKind = "scalar"
	FieldKindCounter  FieldKind = "counter"
	FieldKindRegister FieldKind = "register"
	FieldKindSet      FieldKind = "set"
	FieldKindProse    FieldKind = "prose"
)

// Collection is a named set of entities sharing one schema version.
type Collection struct {
	Name   string
	Schema *SchemaDescriptor
	Cursor int64
}

// Meta carries a document's creation/deletion tombstone state.
//
// _meta._deleted shadows all field state for read-out but never destroys
// underlying CRDT history until compaction — concurrent edits to a deleted
// document must not resurrect it.
type Meta struct {
	CreatedAt time.Time
	Deleted   bool
	DeletedAt time.Time
}

// Document is one entity in a collection: a CRDT graph of named fields
// plus meta tombstone state. It is created when the first insert delta is
// applied (local or remote), and is never physically removed locally until
// compaction.
type Document struct {
	ID     string
	Fields map[string]*FieldState
	Meta   Meta
}

// IsDeleted reports whether the document is soft-deleted.
func (d *Document) IsDeleted() bool {
	return d.Meta.Deleted
}

// FieldState is the tagged-variant container for a field's CRDT state.
// Exactly one of the typed fields below is meaningful, selected by Kind —
// field-kind dispatch is exhaustive, never based on runtime type
// introspection of the value itself.
type FieldState struct {
	Kind     FieldKind
	Scalar   *ScalarState
	Counter  *CounterState
	Register *RegisterState
	Set      *SetState
	Prose    *ProseState
}

// ScalarState is a last-writer-wins register: a single value with the
// timestamp and writer of the write that produced it. Client is kept
// alongside TS so a later concurrent write with an equal timestamp can be
// ordered deterministically instead of by apply order.
type ScalarState struct {
	Value  any
	TS     int64
	Client string
}

// CounterEntry is one append to a Counter's op log.
type CounterEntry struct {
	Client string
	Delta  float64
	TS     int64
}

// CounterState is an append-only log of (client, delta, ts) entries; its
// read value is the sum of all deltas. Entries are never rewritten by
// anything but compaction, which may sum-and-replace a stable prefix.
type CounterState struct {
	Entries []CounterEntry
}

// RegisterEntry is one client's last-known write to a Register field.
type RegisterEntry struct {
	Value any
	TS    int64
}

// RegisterState is a map from client id to (value, ts). Reading calls a
// schema-provided Resolver; the default resolver picks the entry with the
// highest TS, ties broken by lexicographically smallest client id.
type RegisterState struct {
	Entries map[string]RegisterEntry
}

// SetEntry records who added a Set member and when.
type SetEntry struct {
	AddedBy string
	AddedAt int64
}

// SetState is an add-wins set: a map from JSON-encoded member to
// (addedBy, addedAt). A concurrent remove is effective only when its
// timestamp strictly exceeds the last add.
type SetState struct {
	Entries map[string]SetEntry
}

// ProseAtomID totally orders inserted atoms. Concurrent inserts at the same
// position are ordered by (Clock, Client): higher Clock first, ties broken
// by Client.
type ProseAtomID struct {
	Client string
	Clock  uint64
}

// ProseAtom is one node (block or inline/character) of the sequence CRDT
// backing a Prose field.
type ProseAtom struct {
	ID        ProseAtomID
	OriginID  ProseAtomID // the atom this one was inserted after, at creation time
	Deleted   bool
	Kind      string // "block" | "text" | "char"
	Value     string
	Attrs     map[string]any
}

// ProseState is the sequence CRDT for one Prose field: an ordered atom log
// plus tombstones for deletions.
type ProseState struct {
	Atoms []ProseAtom
}

// StateVector summarizes, per client, the highest op clock a document has
// observed. Recovery uses it to request only missing ops from the
// authority.
type StateVector map[string]uint64

// Clone returns an independent copy of the state vector.
func (sv StateVector) Clone() StateVector {
	out := make(StateVector, len(sv))
	for k, v := range sv {
		out[k] = v
	}
	return out
}

// GreaterOrEqual reports whether sv has observed at least as much as other
// for every client other has an entry for.
func (sv StateVector) GreaterOrEqual(other StateVector) bool {
	for client, clock := range other {
		if sv[client] < clock {
			return false
		}
	}
	return true
}

// Delta is a binary, self-describing incremental CRDT update bounded by a
// "before" state vector. Idempotent when applied to a document whose state
// vector is at or past the delta's origin; commutative with concurrent
// deltas.
type Delta struct {
	Collection string
	Document   string
	Before     StateVector
	Bytes      []byte
}

// IsEmpty reports whether the delta carries no real payload beyond
// framing — the wire format guarantees a non-empty delta occupies more
// than 2 bytes.
func (d *Delta) IsEmpty() bool {
	return len(d.Bytes) <= 2
}

// Snapshot is the full encoded state of a document at a point in time,
// semantically equivalent to applying every delta in causal order from the
// empty document.
type Snapshot struct {
	Collection string
	Document   string
	Bytes      []byte
	Vector     StateVector
	Seq        int64
}

// FieldShape describes one field in a schema: its name, CRDT kind, and
// (for Register fields) which resolver to use.
type FieldShape struct {
	Name     string
	Kind     FieldKind
	Default  any
	Resolver string // empty means the default "latest wins" resolver
}

// SchemaDescriptor is the versioned shape of a collection's documents.
type SchemaDescriptor struct {
	Version  int
	Shape    []FieldShape
	Defaults map[string]any
	History  map[int][]FieldShape
}

// FieldByName returns the shape for a named field, or nil.
func (s *SchemaDescriptor) FieldByName(name string) *FieldShape {
	for i := range s.Shape {
		if s.Shape[i].Name == name {
			return &s.Shape[i]
		}
	}
	return nil
}

// TransactionState is the lifecycle state of an in-flight Transaction.
type TransactionState string

const (
	TransactionPending    TransactionState = "pending"
	TransactionCommitting TransactionState = "committing"
	TransactionCommitted  TransactionState = "committed"
	TransactionRolledBack TransactionState = "rolledback"
	TransactionFailed     TransactionState = "failed"
)

// StagedChangeKind identifies the kind of operation a staged change
// represents.
type StagedChangeKind string

const (
	StagedInsert StagedChangeKind = "insert"
	StagedUpdate StagedChangeKind = "update"
	StagedDelete StagedChangeKind = "delete"
)

// StagedChange is one pending mutation inside a Transaction: the delta to
// apply plus enough of the previous state to roll back.
type StagedChange struct {
	Kind          StagedChangeKind
	DocumentID    string
	Delta         *Delta
	PreviousState *Snapshot // nil if the document did not exist before staging
}

// Transaction is ephemeral: an ordered list of staged changes plus the
// lifecycle state in TransactionState.
type Transaction struct {
	ID      string
	State   TransactionState
	Staged  []StagedChange
	Created time.Time
}
