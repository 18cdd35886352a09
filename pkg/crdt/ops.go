package crdt

import (
	"encoding/json"

	"github.com/synckit/replicate/pkg/types"
)

// Op kind tags. These are the only values opEnvelope.Kind ever takes; the
// materialize switch below is exhaustive over them.
const (
	kindScalarSet    = "scalar_set"
	kindCounterInc   = "counter_inc"
	kindRegisterSet  = "register_set"
	kindSetAdd       = "set_add"
	kindSetRemove    = "set_remove"
	kindProseInsert  = "prose_insert"
	kindProseDelete  = "prose_delete"
)

type scalarSetPayload struct {
	Value any   `json:"v"`
	TS    int64 `json:"ts"`
}

type counterIncPayload struct {
	Delta float64 `json:"d"`
	TS    int64   `json:"ts"`
}

type registerSetPayload struct {
	Value any   `json:"v"`
	TS    int64 `json:"ts"`
}

type setOpPayload struct {
	Member string `json:"m"`
	TS     int64  `json:"ts"`
}

type proseInsertPayload struct {
	Origin opID           `json:"origin"`
	Kind   string         `json:"kind"`
	Value  string         `json:"value"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

type proseDeletePayload struct {
	Target opID `json:"target"`
}

func encodePayload(v any) ([]byte, error) { return json.Marshal(v) }

// materialize folds one op into d.fields. It is the single place field-kind
// dispatch happens; every Kind constant above must be handled here.
func (d *Doc) materialize(op opEnvelope) {
	switch op.Kind {
	case kindScalarSet:
		var p scalarSetPayload
		mustDecode(op.Payload, &p)
		fs := d.fieldOrCreate(op.Field, types.FieldKindScalar)
		if fs.Scalar == nil || wins(p.TS, op.ID.Client, fs.Scalar.TS, fs.Scalar.Client) {
			fs.Scalar = &types.ScalarState{Value: p.Value, TS: p.TS, Client: op.ID.Client}
		}

	case kindCounterInc:
		var p counterIncPayload
		mustDecode(op.Payload, &p)
		fs := d.fieldOrCreate(op.Field, types.FieldKindCounter)
		if fs.Counter == nil {
			fs.Counter = &types.CounterState{}
		}
		fs.Counter.Entries = append(fs.Counter.Entries, types.CounterEntry{
			Client: op.ID.Client, Delta: p.Delta, TS: p.TS,
		})

	case kindRegisterSet:
		var p registerSetPayload
		mustDecode(op.Payload, &p)
		fs := d.fieldOrCreate(op.Field, types.FieldKindRegister)
		if fs.Register == nil {
			fs.Register = &types.RegisterState{Entries: map[string]types.RegisterEntry{}}
		}
		fs.Register.Entries[op.ID.Client] = types.RegisterEntry{Value: p.Value, TS: p.TS}

	case kindSetAdd:
		var p setOpPayload
		mustDecode(op.Payload, &p)
		fs := d.fieldOrCreate(op.Field, types.FieldKindSet)
		if fs.Set == nil {
			fs.Set = &types.SetState{Entries: map[string]types.SetEntry{}}
		}
		existing, ok := fs.Set.Entries[p.Member]
		if !ok || wins(p.TS, op.ID.Client, existing.AddedAt, existing.AddedBy) {
			fs.Set.Entries[p.Member] = types.SetEntry{AddedBy: op.ID.Client, AddedAt: p.TS}
		}

	case kindSetRemove:
		var p setOpPayload
		mustDecode(op.Payload, &p)
		fs := d.fieldOrCreate(op.Field, types.FieldKindSet)
		if fs.Set == nil {
			return
		}
		// Add-wins: a remove only takes effect when strictly later than the
		// last add it is racing against.
		if existing, ok := fs.Set.Entries[p.Member]; ok && p.TS > existing.AddedAt {
			delete(fs.Set.Entries, p.Member)
		}

	case kindProseInsert:
		var p proseInsertPayload
		mustDecode(op.Payload, &p)
		fs := d.fieldOrCreate(op.Field, types.FieldKindProse)
		if fs.Prose == nil {
			fs.Prose = &types.ProseState{}
		}
		insertProseAtom(fs.Prose, types.ProseAtom{
			ID:       types.ProseAtomID{Client: op.ID.Client, Clock: op.ID.Clock},
			OriginID: types.ProseAtomID{Client: p.Origin.Client, Clock: p.Origin.Clock},
			Kind:     p.Kind,
			Value:    p.Value,
			Attrs:    p.Attrs,
		})

	case kindProseDelete:
		var p proseDeletePayload
		mustDecode(op.Payload, &p)
		fs := d.fieldOrCreate(op.Field, types.FieldKindProse)
		if fs.Prose == nil {
			return
		}
		for i := range fs.Prose.Atoms {
			a := &fs.Prose.Atoms[i]
			if a.ID.Client == p.Target.Client && a.ID.Clock == p.Target.Clock {
				a.Deleted = true
				break
			}
		}
	}
}

// wins reports whether a candidate write (ts, client) should replace an
// existing one (existingTS, existingClient): higher ts wins outright, and a
// tied ts is broken by lexicographically smallest client id — the same
// deterministic rule DefaultResolver applies to Register fields, so that
// replicas applying the same concurrent writes in different orders still
// converge on the same materialized value.
func wins(ts int64, client string, existingTS int64, existingClient string) bool {
	if ts != existingTS {
		return ts > existingTS
	}
	return client < existingClient
}

func (d *Doc) fieldOrCreate(name string, kind types.FieldKind) *types.FieldState {
	fs, ok := d.fields[name]
	if !ok {
		fs = &types.FieldState{Kind: kind}
		d.fields[name] = fs
	}
	return fs
}

func mustDecode(data []byte, v any) {
	if err := json.Unmarshal(data, v); err != nil {
		panic("crdt: corrupt op payload: " + err.Error())
	}
}
