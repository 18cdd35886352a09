package wal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/synckit/replicate/pkg/crdt"
	"github.com/synckit/replicate/pkg/log"
	"github.com/synckit/replicate/pkg/storage"
	"github.com/synckit/replicate/pkg/types"
)

// DefaultCompactionThreshold is the delta row count, per document, that
// triggers compaction.
const DefaultCompactionThreshold = 50

// WAL is the write-ahead log: every non-"load" document change lands here
// before it is considered durable, and compaction folds old deltas back
// into a single snapshot row once the log for a document reaches
// threshold rows.
type WAL struct {
	adapter   *storage.Adapter
	threshold int
}

// New creates a WAL over adapter using DefaultCompactionThreshold.
func New(adapter *storage.Adapter) *WAL {
	return &WAL{adapter: adapter, threshold: DefaultCompactionThreshold}
}

// WithThreshold overrides the compaction row threshold, returning w for
// chaining.
func (w *WAL) WithThreshold(rows int) *WAL {
	w.threshold = rows
	return w
}

// Append records delta for (collection, document) and compacts once its
// delta row count crosses the threshold.
func (w *WAL) Append(collection, document string, delta *types.Delta, origin string) error {
	beforeJSON, err := json.Marshal(delta.Before)
	if err != nil {
		return fmt.Errorf("wal: marshal before vector: %w", err)
	}

	if err := w.adapter.SQLExec(
		`INSERT INTO deltas (collection, document, before, bytes) VALUES (?, ?, ?, ?)`,
		collection, document, string(beforeJSON), delta.Bytes,
	); err != nil {
		return fmt.Errorf("wal: append delta %s/%s: %w", collection, document, err)
	}

	count, err := w.countDeltas(collection, document)
	if err != nil {
		return fmt.Errorf("wal: count deltas %s/%s: %w", collection, document, err)
	}
	if count < w.threshold {
		return nil
	}

	if err := w.compact(collection, document); err != nil {
		return fmt.Errorf("wal: compact %s/%s: %w", collection, document, err)
	}
	return nil
}

func (w *WAL) countDeltas(collection, document string) (int, error) {
	row, err := w.adapter.SQLGet(
		`SELECT COUNT(*) AS n FROM deltas WHERE collection = ? AND document = ?`,
		collection, document,
	)
	if err != nil {
		return 0, err
	}
	return int(toInt64(row["n"])), nil
}

// Load returns (collection, document)'s most recent snapshot, if any, and
// every delta row recorded since it, in causal order. The caller (the
// Document Manager) is responsible for tagging the replay with the
// reserved "load" origin so it is never re-appended here.
func (w *WAL) Load(collection, document string) (*types.Snapshot, []*types.Delta, error) {
	snapshot, err := w.loadSnapshot(collection, document)
	if err != nil {
		return nil, nil, err
	}

	rows, err := w.adapter.SQLAll(
		`SELECT before, bytes FROM deltas WHERE collection = ? AND document = ? ORDER BY id ASC`,
		collection, document,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("wal: load deltas %s/%s: %w", collection, document, err)
	}

	deltas := make([]*types.Delta, 0, len(rows))
	for _, r := range rows {
		before, err := decodeVector(r["before"])
		if err != nil {
			return nil, nil, fmt.Errorf("wal: decode delta before vector: %w", err)
		}
		deltas = append(deltas, &types.Delta{
			Collection: collection,
			Document:   document,
			Before:     before,
			Bytes:      asBytes(r["bytes"]),
		})
	}
	return snapshot, deltas, nil
}

func (w *WAL) loadSnapshot(collection, document string) (*types.Snapshot, error) {
	row, err := w.adapter.SQLGet(
		`SELECT seq, vector, bytes FROM snapshots WHERE collection = ? AND document = ?`,
		collection, document,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: load snapshot %s/%s: %w", collection, document, err)
	}

	vector, err := decodeVector(row["vector"])
	if err != nil {
		return nil, fmt.Errorf("wal: decode snapshot vector: %w", err)
	}
	return &types.Snapshot{
		Collection: collection,
		Document:   document,
		Bytes:      asBytes(row["bytes"]),
		Vector:     vector,
		Seq:        toInt64(row["seq"]),
	}, nil
}

// Delete removes every persisted row for (collection, document).
func (w *WAL) Delete(collection, document string) error {
	if err := w.adapter.SQLExec(`DELETE FROM snapshots WHERE collection = ? AND document = ?`, collection, document); err != nil {
		return fmt.Errorf("wal: delete snapshot %s/%s: %w", collection, document, err)
	}
	if err := w.adapter.SQLExec(`DELETE FROM deltas WHERE collection = ? AND document = ?`, collection, document); err != nil {
		return fmt.Errorf("wal: delete deltas %s/%s: %w", collection, document, err)
	}
	return nil
}

// compact replays the document's current snapshot plus every pending
// delta into a scratch CRDT handle, writes the result as the new
// snapshot, and deletes only the delta rows folded into it. Any row
// appended after maxID (by a concurrent Append) survives untouched.
func (w *WAL) compact(collection, document string) error {
	snapshot, err := w.loadSnapshot(collection, document)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	deltaRows, err := w.adapter.SQLAll(
		`SELECT id, bytes FROM deltas WHERE collection = ? AND document = ? ORDER BY id ASC`,
		collection, document,
	)
	if err != nil {
		return fmt.Errorf("read deltas: %w", err)
	}
	if len(deltaRows) == 0 {
		return nil
	}

	scratch := crdt.NewDoc("compactor")
	seq := int64(0)
	if snapshot != nil {
		seq = snapshot.Seq
		if err := scratch.Apply(snapshot.Bytes); err != nil {
			return fmt.Errorf("replay snapshot: %w", err)
		}
	}

	var maxID int64
	for _, row := range deltaRows {
		if err := scratch.Apply(asBytes(row["bytes"])); err != nil {
			return fmt.Errorf("replay delta: %w", err)
		}
		if id := toInt64(row["id"]); id > maxID {
			maxID = id
		}
	}

	vectorJSON, err := json.Marshal(scratch.StateVector())
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}
	newSeq := seq + 1

	if err := w.adapter.SQLExec(
		`INSERT INTO snapshots (collection, document, seq, vector, bytes) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection, document) DO UPDATE SET seq = excluded.seq, vector = excluded.vector, bytes = excluded.bytes`,
		collection, document, newSeq, string(vectorJSON), scratch.EncodeState(),
	); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := w.adapter.SQLExec(
		`DELETE FROM deltas WHERE collection = ? AND document = ? AND id <= ?`,
		collection, document, maxID,
	); err != nil {
		return fmt.Errorf("delete compacted deltas: %w", err)
	}

	log.Debug(fmt.Sprintf("wal: compacted %s/%s: %d deltas folded into snapshot seq %d", collection, document, len(deltaRows), newSeq))
	return nil
}

func decodeVector(v any) (types.StateVector, error) {
	s, ok := v.(string)
	if !ok {
		return types.StateVector{}, fmt.Errorf("vector column is not a string")
	}
	var vector types.StateVector
	if err := json.Unmarshal([]byte(s), &vector); err != nil {
		return nil, err
	}
	return vector, nil
}

func asBytes(v any) []byte {
	b, _ := v.([]byte)
	return b
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
