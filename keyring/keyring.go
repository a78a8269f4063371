// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/BurntSushi/toml"

	"github.com/placer-foundation/placer/lib/secret"
)

// RequiredFilePermissions is the mandatory mode for plaintext keyring
// files. They may contain encryption secrets, so anything more
// permissive than owner read/write is rejected at load.
const RequiredFilePermissions = os.FileMode(0600)

// SealedSuffix marks a keyring file that is age-encrypted to the
// machine's identity. Sealed keyrings are decrypted in memory at load;
// the plaintext never touches disk.
const SealedSuffix = ".age"

// Keyring maps key fingerprints to key handles. Construct with New
// plus Add, or load a keyring file with Load/LoadSealed. After
// construction the keyring is read-only and safe for concurrent
// resolution.
type Keyring struct {
	keys map[string]KeyHandle
}

// New returns an empty keyring.
func New() *Keyring {
	return &Keyring{keys: make(map[string]KeyHandle)}
}

// Add registers a handle under its fingerprint. Returns an error on a
// duplicate fingerprint: two keyring entries resolving to the same key
// is always an operator mistake.
func (k *Keyring) Add(handle KeyHandle) error {
	fingerprint := handle.Fingerprint()
	if _, exists := k.keys[fingerprint]; exists {
		return fmt.Errorf("keyring: duplicate key %s", fingerprint)
	}
	k.keys[fingerprint] = handle
	return nil
}

// Resolve returns the handle for a fingerprint. Fails with
// *KeyNotFoundError if the keyring has no such entry.
func (k *Keyring) Resolve(fingerprint string) (KeyHandle, error) {
	handle, ok := k.keys[fingerprint]
	if !ok {
		return nil, &KeyNotFoundError{Fingerprint: fingerprint}
	}
	return handle, nil
}

// Len returns the number of registered keys.
func (k *Keyring) Len() int { return len(k.keys) }

// Close releases every handle's key material. The keyring must not be
// used afterwards.
func (k *Keyring) Close() error {
	var firstError error
	for _, handle := range k.keys {
		if err := handle.Close(); err != nil && firstError == nil {
			firstError = err
		}
	}
	k.keys = nil
	return firstError
}

// fileSchema is the on-disk keyring definition. Both sections map an
// operator-chosen label to a KeyURI; the label exists only for
// operator diagnostics, resolution is always by fingerprint.
type fileSchema struct {
	Signing    map[string]string `toml:"signing"`
	Encryption map[string]string `toml:"encryption"`
}

// Load reads a plaintext TOML keyring file. The file must have mode
// 0600. Signing entries may be public verify keys (target machines) or
// secret signing seeds (producers); encryption entries are master
// encryption secrets.
func Load(path string) (*Keyring, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("keyring file %s: %w", path, err)
	}
	if info.Mode().Perm() != RequiredFilePermissions {
		return nil, fmt.Errorf("keyring file %s has mode %04o, must be %04o",
			path, info.Mode().Perm(), RequiredFilePermissions)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyring file %s: %w", path, err)
	}
	defer secret.Zero(data)

	return parse(data, path)
}

// LoadSealed reads an age-encrypted keyring file, decrypting it with
// the x25519 identity at identityPath. Use this when the keyring is
// provisioned by an operator who only ever handles the ciphertext.
func LoadSealed(path, identityPath string) (*Keyring, error) {
	identityData, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return nil, fmt.Errorf("keyring identity %s: %w", identityPath, err)
	}
	defer identityData.Close()

	identity, err := age.ParseX25519Identity(identityData.String())
	if err != nil {
		return nil, fmt.Errorf("keyring identity %s: %w", identityPath, err)
	}

	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyring file %s: %w", path, err)
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting keyring %s: %w", path, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decrypting keyring %s: %w", path, err)
	}
	defer secret.Zero(plaintext)

	return parse(plaintext, path)
}

// LoadAuto dispatches on the file suffix: sealed keyrings end in
// ".age" and need an identity, plaintext keyrings must be mode 0600.
func LoadAuto(path, identityPath string) (*Keyring, error) {
	if strings.HasSuffix(path, SealedSuffix) {
		if identityPath == "" {
			return nil, fmt.Errorf("keyring %s is sealed but no identity path is configured", path)
		}
		return LoadSealed(path, identityPath)
	}
	return Load(path)
}

func parse(data []byte, path string) (*Keyring, error) {
	var schema fileSchema
	if err := toml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parsing keyring %s: %w", path, err)
	}

	ring := New()

	for label, uri := range schema.Signing {
		handle, err := handleFromKeyURI(uri)
		if err != nil {
			ring.Close()
			return nil, fmt.Errorf("signing key %q: %w", label, err)
		}
		if err := ring.Add(handle); err != nil {
			handle.Close()
			ring.Close()
			return nil, fmt.Errorf("signing key %q: %w", label, err)
		}
	}

	for label, uri := range schema.Encryption {
		prefix, raw, err := DecodeKeyURI(uri)
		if err != nil {
			ring.Close()
			return nil, fmt.Errorf("encryption key %q: %w", label, err)
		}
		if prefix != EncryptionKeyPrefix {
			secret.Zero(raw)
			ring.Close()
			return nil, fmt.Errorf("encryption key %q: unexpected key type %q", label, prefix)
		}
		handle, err := NewSoftwareEncryptionKey(raw)
		if err != nil {
			ring.Close()
			return nil, fmt.Errorf("encryption key %q: %w", label, err)
		}
		if err := ring.Add(handle); err != nil {
			handle.Close()
			ring.Close()
			return nil, fmt.Errorf("encryption key %q: %w", label, err)
		}
	}

	return ring, nil
}

// handleFromKeyURI constructs the right signing-section handle for a
// KeyURI: verify-only for public keys, sign+verify for secret seeds.
func handleFromKeyURI(uri string) (KeyHandle, error) {
	prefix, raw, err := DecodeKeyURI(uri)
	if err != nil {
		return nil, err
	}

	switch prefix {
	case VerifyKeyPrefix:
		return NewSoftwareVerifyKey(raw)
	case SigningKeyPrefix:
		return NewSoftwareSigningKey(raw)
	default:
		secret.Zero(raw)
		return nil, fmt.Errorf("unexpected key type %q in signing section", prefix)
	}
}
