package rplerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry/routing policy, independent of its
// message text.
type Kind string

const (
	KindNetwork         Kind = "network"          // retriable RPC transport failure
	KindStorageIO       Kind = "storage_io"        // adapter read/write failure
	KindDecryption      Kind = "decryption"        // wrapper failed to open ciphertext
	KindSchemaMismatch  Kind = "schema_mismatch"   // migrator detected a shape conflict
	KindProtocolMismatch Kind = "protocol_mismatch" // handshake version out of range
	KindNonRetriable    Kind = "non_retriable"      // authority rejected (auth/validation)
	KindReconciliation  Kind = "reconciliation"      // replicator cursor/set repair failed
	KindDocumentNotRegistered Kind = "document_not_registered"
	KindActorShutdown   Kind = "actor_shutdown" // sync actor mailbox closed
)

// Error wraps an underlying cause with a Kind and the identifiers a caller
// needs to build a toast or a retry decision: the collection/document it
// happened to, and whether retrying is ever appropriate.
type Error struct {
	Kind       Kind
	Collection string
	Document   string
	Op         string
	Retriable  bool
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Collection != "" {
		msg = fmt.Sprintf("%s collection=%s", msg, e.Collection)
	}
	if e.Document != "" {
		msg = fmt.Sprintf("%s document=%s", msg, e.Document)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, rplerr.Network) match any *Error of that kind,
// regardless of collection/document/cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind != "" && t.Kind == e.Kind
}

// Sentinel kind markers for use with errors.Is — e.g. errors.Is(err, rplerr.Network).
var (
	Network              = &Error{Kind: KindNetwork}
	StorageIO            = &Error{Kind: KindStorageIO}
	Decryption           = &Error{Kind: KindDecryption}
	SchemaMismatch       = &Error{Kind: KindSchemaMismatch}
	ProtocolMismatch     = &Error{Kind: KindProtocolMismatch}
	NonRetriable         = &Error{Kind: KindNonRetriable}
	Reconciliation       = &Error{Kind: KindReconciliation}
	DocumentNotRegistered = &Error{Kind: KindDocumentNotRegistered}
	ActorShutdown        = &Error{Kind: KindActorShutdown}
)

// New builds an *Error for op against collection/document, wrapping cause.
func New(kind Kind, op, collection, document string, cause error) *Error {
	return &Error{
		Kind:       kind,
		Collection: collection,
		Document:   document,
		Op:         op,
		Retriable:  kind == KindNetwork,
		Cause:      cause,
	}
}

// IsRetriable reports whether err (or something it wraps) is a retriable
// NetworkError.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retriable
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
