/*
Package security implements the Encryption Wrapper: an at-rest envelope
around every document and WAL row before it reaches the Storage Adapter.

# Architecture

	┌────────────────────────────────────────────────────────┐
	│                        Vault                            │
	│                                                          │
	│   disabled ──Setup()──▶ unlocked ⇄ locked               │
	│                 │           ▲   Lock()/idle timeout      │
	│                 ▼           │                            │
	│            Envelope    Unlock(passphrase)                │
	│         (persisted)    UnlockWithRecoveryKey(key)        │
	└────────────────────────────────────────────────────────┘

A Vault holds a 32-byte User Master Key (UMK) only while unlocked. The
UMK itself never touches disk: Setup wraps it twice, once under a key
derived from the user's passphrase and once under a key derived from a
20-byte recovery key shown to the user exactly once. Both wrapped forms
live in the Envelope, which the caller persists via the Storage Adapter
and passes back into Load on the next process start.

# States

  - disabled — no UMK exists yet; Encrypt fails and Decrypt returns
    (nil, nil).
  - setup — declared as a State value but never entered: Setup moves the
    vault from disabled straight to unlocked.
  - unlocked — UMK resident in memory; Encrypt/Decrypt both work.
  - locked — UMK discarded; Decrypt returns "no data" (nil, nil) rather
    than an error, matching a host that wants to show document metadata
    without exposing contents. Encrypt surfaces a DecryptionError: a
    write under a locked vault is always a caller mistake.

An idle timer, if configured, re-locks the vault automatically after a
period with no Encrypt/Decrypt call — Unlock and every subsequent
operation reset it.

# Key derivation

Both the passphrase path and the recovery-key path run through the same
KEK derivation:

	kek = PBKDF2-SHA256(secret, salt, 100000 iterations, 32 bytes)

with a 16-byte random salt generated once at Setup and stored in the
Envelope. The UMK itself is wrapped with AES-256-GCM under the derived
KEK, nonce prepended to ciphertext — the same envelope shape Encrypt
uses for document bytes under the UMK.

# Usage

	vault := security.NewVault(15 * time.Minute)
	env, recoveryKey, err := vault.Setup(passphrase)
	// show recoveryKey to the user once; persist env via the Storage Adapter

	// next process start:
	vault.Load(env)
	if err := vault.Unlock(passphrase); err != nil {
		// try vault.UnlockWithRecoveryKey(recoveryKey) instead
	}

	ciphertext, err := vault.Encrypt(documentBytes)
	plaintext, err := vault.Decrypt(ciphertext) // nil, nil while locked
*/
package security
