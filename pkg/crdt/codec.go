package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
)

// wireHeader prefixes every encoded delta/snapshot: a magic byte and a
// format version. A delta with zero ops encodes to exactly these two
// bytes, which is how callers detect "nothing to send" — the smallest
// possible non-empty delta always exceeds two bytes.
var wireHeader = [2]byte{0xCD, 0x01}

type opWire struct {
	Client  string          `json:"c"`
	Clock   uint64          `json:"k"`
	Field   string          `json:"f"`
	Kind    string          `json:"op"`
	Payload json.RawMessage `json:"p"`
}

// encodeOps frames a sequence of ops as a self-describing byte string:
// header + JSON array. Real production wire formats in this family use a
// packed binary op stream; JSON keeps this implementation's encode/decode
// pair trivially inspectable while preserving the same framing contract
// (≤2 bytes ⇔ empty).
//
// Ops are sorted by (Client, Clock) before encoding so that two replicas
// holding the same set of ops always produce byte-identical output,
// regardless of the order those ops arrived or were appended in.
func encodeOps(ops []opEnvelope) []byte {
	if len(ops) == 0 {
		return wireHeader[:]
	}

	sorted := make([]opEnvelope, len(ops))
	copy(sorted, ops)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ID.Client != sorted[j].ID.Client {
			return sorted[i].ID.Client < sorted[j].ID.Client
		}
		return sorted[i].ID.Clock < sorted[j].ID.Clock
	})

	wire := make([]opWire, len(sorted))
	for i, op := range sorted {
		wire[i] = opWire{
			Client: op.ID.Client, Clock: op.ID.Clock,
			Field: op.Field, Kind: op.Kind, Payload: op.Payload,
		}
	}
	body, err := json.Marshal(wire)
	if err != nil {
		panic("crdt: encode op stream: " + err.Error())
	}

	out := make([]byte, 0, 2+len(body))
	out = append(out, wireHeader[:]...)
	out = append(out, body...)
	return out
}

func decodeOps(data []byte) ([]opEnvelope, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("crdt: truncated op stream (%d bytes)", len(data))
	}
	if data[0] != wireHeader[0] || data[1] != wireHeader[1] {
		return nil, fmt.Errorf("crdt: unrecognized wire header %x%x", data[0], data[1])
	}
	if len(data) == 2 {
		return nil, nil
	}

	var wire []opWire
	if err := json.Unmarshal(data[2:], &wire); err != nil {
		return nil, fmt.Errorf("crdt: decode op stream: %w", err)
	}

	ops := make([]opEnvelope, len(wire))
	for i, w := range wire {
		ops[i] = opEnvelope{
			ID:      opID{Client: w.Client, Clock: w.Clock},
			Field:   w.Field,
			Kind:    w.Kind,
			Payload: w.Payload,
		}
	}
	return ops, nil
}
