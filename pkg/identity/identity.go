package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// clientIDKey is the reserved blob KV key under which the stable client
// id is persisted.
const clientIDKey = "replicate:sessionClientId"

// KV is the minimal blob store Identity needs — pkg/storage's BoltKV
// satisfies this directly, since client id resolution happens once at
// startup before the Storage Adapter's queue is in the picture.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// Profile is the optional, host-supplied display identity embedded
// alongside the client id in presence data. Identity never derives any
// of these fields itself.
type Profile struct {
	ID     string
	Name   string
	Avatar string
	Color  string
}

// ProfileGetter lets the host supply a Profile lazily (e.g. after the
// user signs in), rather than fixing it at Load time.
type ProfileGetter func() *Profile

// Identity holds this process's stable client id and ephemeral session
// id, and the host's optional display profile.
type Identity struct {
	clientID  string
	sessionID string
	profile   ProfileGetter
}

// Load resolves the stable client id from kv, generating and persisting
// a fresh 128-bit uuid on first run, and mints a new session id for this
// process. profile may be nil.
func Load(kv KV, profile ProfileGetter) (*Identity, error) {
	clientID, err := loadOrCreateClientID(kv)
	if err != nil {
		return nil, err
	}

	return &Identity{
		clientID:  clientID,
		sessionID: uuid.NewString(),
		profile:   profile,
	}, nil
}

func loadOrCreateClientID(kv KV) (string, error) {
	existing, err := kv.Get(clientIDKey)
	if err != nil {
		return "", fmt.Errorf("identity: read client id: %w", err)
	}
	if len(existing) > 0 {
		return string(existing), nil
	}

	id := uuid.NewString()
	if err := kv.Set(clientIDKey, []byte(id)); err != nil {
		return "", fmt.Errorf("identity: persist client id: %w", err)
	}
	return id, nil
}

// ClientID is this replica's stable identity, embedded in every CRDT op
// this process produces.
func (i *Identity) ClientID() string { return i.clientID }

// SessionID is unique to this process's lifetime; never persisted, never
// embedded in CRDT ops.
func (i *Identity) SessionID() string { return i.sessionID }

// Profile returns the host's current display profile, or nil if none was
// supplied.
func (i *Identity) Profile() *Profile {
	if i.profile == nil {
		return nil
	}
	return i.profile()
}
