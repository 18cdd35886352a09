package security

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/synckit/replicate/pkg/rplerr"
)

// State is one of the Encryption Wrapper's lifecycle states.
type State string

const (
	StateDisabled State = "disabled"
	StateSetup    State = "setup"
	StateUnlocked State = "unlocked"
	StateLocked   State = "locked"
)

const (
	umkSize        = 32 // AES-256 key size
	saltSize       = 16
	recoveryKeySize = 20
	pbkdf2Rounds   = 100_000
)

// Envelope is the durable, storable form of a Vault's wrapped keys. A
// host persists this under a reserved Storage Adapter KV key and passes
// it to Load on the next process start.
type Envelope struct {
	Salt              []byte
	WrappedByPassword []byte
	WrappedByRecovery []byte
}

// Vault implements the Encryption Wrapper: Setup moves it from disabled
// straight to unlocked, after which it alternates between unlocked and
// locked. While unlocked, Encrypt/Decrypt operate on the in-memory UMK;
// an idle timer re-locks automatically after a period of inactivity.
// Reads while locked return (nil, nil) — "no data" — rather than an
// error; writes while locked surface a DecryptionError.
type Vault struct {
	mu       sync.Mutex
	state    State
	umk      []byte // present only while unlocked
	envelope *Envelope

	idleTimeout time.Duration
	idleTimer   *time.Timer
}

// NewVault creates a Vault in the disabled state. idleTimeout of 0
// disables automatic re-locking.
func NewVault(idleTimeout time.Duration) *Vault {
	return &Vault{state: StateDisabled, idleTimeout: idleTimeout}
}

// State reports the vault's current lifecycle state.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Setup initializes a new vault from a passphrase, generating a fresh UMK
// and a human-presentable recovery key. It returns the Envelope to
// persist and the recovery key formatted as 4-char groups
// ("XXXX-XXXX-..."); the recovery key is shown to the user exactly once
// and never stored in plaintext.
func (v *Vault) Setup(passphrase string) (*Envelope, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateDisabled {
		return nil, "", fmt.Errorf("vault already initialized (state=%s)", v.state)
	}

	umk := make([]byte, umkSize)
	if _, err := rand.Read(umk); err != nil {
		return nil, "", fmt.Errorf("generate umk: %w", err)
	}

	recoveryKey := make([]byte, recoveryKeySize)
	if _, err := rand.Read(recoveryKey); err != nil {
		return nil, "", fmt.Errorf("generate recovery key: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, "", fmt.Errorf("generate salt: %w", err)
	}

	formattedRecoveryKey := formatRecoveryKey(recoveryKey)
	passwordKEK := deriveKEK(passphrase, salt)
	recoveryKEK := deriveKEK(formattedRecoveryKey, salt)

	wrappedByPassword, err := encryptBytes(passwordKEK, umk)
	if err != nil {
		return nil, "", fmt.Errorf("wrap umk with passphrase: %w", err)
	}
	wrappedByRecovery, err := encryptBytes(recoveryKEK, umk)
	if err != nil {
		return nil, "", fmt.Errorf("wrap umk with recovery key: %w", err)
	}

	env := &Envelope{
		Salt:              salt,
		WrappedByPassword: wrappedByPassword,
		WrappedByRecovery: wrappedByRecovery,
	}

	v.umk = umk
	v.envelope = env
	v.state = StateUnlocked
	v.resetIdleTimerLocked()

	return env, formattedRecoveryKey, nil
}

// Load restores a previously persisted Envelope, leaving the vault in
// the locked state — the caller must still Unlock with a passphrase or
// recovery key before Encrypt/Decrypt of writes will succeed.
func (v *Vault) Load(env *Envelope) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.envelope = env
	v.state = StateLocked
}

// Unlock derives the passphrase KEK and unwraps the UMK. Wrong
// passphrases fail with a DecryptionError.
func (v *Vault) Unlock(passphrase string) error {
	return v.unlockWith(v.envelope, passphrase, false)
}

// UnlockWithRecoveryKey unwraps the UMK using the recovery key instead
// of the passphrase, for when the passphrase is lost.
func (v *Vault) UnlockWithRecoveryKey(recoveryKey string) error {
	return v.unlockWith(v.envelope, recoveryKey, true)
}

func (v *Vault) unlockWith(env *Envelope, secret string, recovery bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if env == nil {
		return fmt.Errorf("no envelope loaded")
	}
	if v.state != StateLocked && v.state != StateUnlocked {
		return fmt.Errorf("vault not set up (state=%s)", v.state)
	}

	wrapped := env.WrappedByPassword
	if recovery {
		wrapped = env.WrappedByRecovery
	}

	kek := deriveKEK(secret, env.Salt)
	umk, err := decryptBytes(kek, wrapped)
	if err != nil {
		return rplerr.New(rplerr.KindDecryption, "unlock", "", "", err)
	}

	v.umk = umk
	v.state = StateUnlocked
	v.resetIdleTimerLocked()
	return nil
}

// Lock discards the in-memory UMK. Reads return "no data" until Unlock
// is called again.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockLocked()
}

func (v *Vault) lockLocked() {
	for i := range v.umk {
		v.umk[i] = 0
	}
	v.umk = nil
	if v.state == StateUnlocked {
		v.state = StateLocked
	}
	if v.idleTimer != nil {
		v.idleTimer.Stop()
	}
}

// Disable wipes the vault entirely. Only valid when no encrypted blobs
// remain under this vault's UMK — enforced by the caller, since the
// vault itself has no visibility into document storage.
func (v *Vault) Disable() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockLocked()
	v.envelope = nil
	v.state = StateDisabled
}

// Encrypt seals plaintext under the live UMK. Called while locked, it
// surfaces a DecryptionError rather than silently succeeding, per §G:
// writes to a locked vault are an error, reads are "no data".
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateUnlocked {
		return nil, rplerr.New(rplerr.KindDecryption, "encrypt", "", "", fmt.Errorf("vault is %s", v.state))
	}
	v.resetIdleTimerLocked()
	return encryptBytes(v.umk, plaintext)
}

// Decrypt opens ciphertext sealed under the live UMK. While locked it
// returns (nil, nil) rather than an error, matching the "no data" read
// semantics for a locked vault.
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateUnlocked {
		return nil, nil
	}
	v.resetIdleTimerLocked()
	return decryptBytes(v.umk, ciphertext)
}

func (v *Vault) resetIdleTimerLocked() {
	if v.idleTimeout <= 0 {
		return
	}
	if v.idleTimer != nil {
		v.idleTimer.Stop()
	}
	v.idleTimer = time.AfterFunc(v.idleTimeout, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.lockLocked()
	})
}

func deriveKEK(secret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(secret), salt, pbkdf2Rounds, umkSize, sha256.New)
}

// formatRecoveryKey renders raw recovery-key bytes as hex, grouped into
// 4-character blocks separated by hyphens.
func formatRecoveryKey(key []byte) string {
	hex := fmt.Sprintf("%x", key)
	var groups []string
	for i := 0; i < len(hex); i += 4 {
		end := i + 4
		if end > len(hex) {
			end = len(hex)
		}
		groups = append(groups, strings.ToUpper(hex[i:end]))
	}
	return strings.Join(groups, "-")
}
