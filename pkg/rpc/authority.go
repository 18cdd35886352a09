package rpc

import (
	"context"

	"github.com/synckit/replicate/pkg/types"
)

// ProtocolInfo is the authority's answer to a protocol handshake query.
type ProtocolInfo struct {
	Version int `json:"version"`
}

// Change is one entry in a Stream response: either a full snapshot or an
// incremental delta for a single document.
type Change struct {
	Collection string           `json:"collection"`
	Document   string           `json:"document"`
	Kind       string           `json:"kind"` // "snapshot" | "delta"
	Bytes      []byte           `json:"bytes"`
	Vector     types.StateVector `json:"vector,omitempty"`
}

// StreamBatch is the result of one Stream call: a page of changes plus
// the cursor to resume from on the next call. Compact names documents
// whose history was truncated server-side and need a recovery() call
// instead of further incremental deltas. LiveDocuments, when present, is
// a full materialization pass used to reconcile phantom local documents.
type StreamBatch struct {
	Changes       []Change `json:"changes"`
	Cursor        int64    `json:"cursor"`
	Compact       []string `json:"compact,omitempty"`
	LiveDocuments []string `json:"liveDocuments,omitempty"`
}

// ReplicateRequest pushes a local change to the authority.
type ReplicateRequest struct {
	Collection string            `json:"collection"`
	Document   string            `json:"document"`
	Op         string            `json:"op"` // "insert" | "update" | "delete"
	Delta      []byte            `json:"delta"`
	Before     types.StateVector `json:"before"`
	ClientID   string            `json:"clientId"`
}

// ReplicateResponse carries the cursor position the authority assigned
// to the accepted write.
type ReplicateResponse struct {
	Cursor int64 `json:"cursor"`
}

// RecoveryResponse is the catch-up diff computed from a state vector
// this replica reported as stale, expressed as the same per-document
// Change entries a Stream batch carries.
type RecoveryResponse struct {
	Changes []Change `json:"changes"`
	Cursor  int64    `json:"cursor"`
}

// MarkRequest acknowledges that a cursor position has been durably
// applied locally, letting the authority release retained history.
type MarkRequest struct {
	Collection string `json:"collection"`
	Document   string `json:"document"`
	Cursor     int64  `json:"cursor"`
}

// PresenceRequest announces this client/session to other peers.
type PresenceRequest struct {
	ClientID  string            `json:"clientId"`
	SessionID string            `json:"sessionId"`
	Profile   map[string]string `json:"profile,omitempty"`
}

// SessionEvent is one message on the Session subscription stream —
// peers joining, leaving, or updating presence.
type SessionEvent struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

// Authority is the remote peer a replica replicates against. All
// methods are safe for concurrent use by multiple callers sharing one
// underlying connection.
type Authority interface {
	Protocol(ctx context.Context) (*ProtocolInfo, error)
	Stream(ctx context.Context, collection string, cursor int64, limit int) (*StreamBatch, error)
	Replicate(ctx context.Context, req *ReplicateRequest) (*ReplicateResponse, error)
	Recovery(ctx context.Context, collection string, vector types.StateVector) (*RecoveryResponse, error)
	Mark(ctx context.Context, req *MarkRequest) error
	Compact(ctx context.Context, collection string) error
	Presence(ctx context.Context, req *PresenceRequest) error
	Session(ctx context.Context) (<-chan *SessionEvent, error)
}
