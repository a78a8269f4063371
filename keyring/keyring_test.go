// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func generateSeed(t *testing.T) []byte {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("generating seed: %v", err)
	}
	return seed
}

func TestKeyURIRoundTrip(t *testing.T) {
	key := []byte{0x01, 0x02, 0xFE, 0xFF}
	uri := EncodeKeyURI(VerifyKeyPrefix, key)

	prefix, decoded, err := DecodeKeyURI(uri)
	if err != nil {
		t.Fatalf("DecodeKeyURI() error: %v", err)
	}
	if prefix != VerifyKeyPrefix {
		t.Errorf("prefix = %q, want %q", prefix, VerifyKeyPrefix)
	}
	if string(decoded) != string(key) {
		t.Errorf("decoded key = %x, want %x", decoded, key)
	}
}

func TestDecodeKeyURI_Malformed(t *testing.T) {
	for _, uri := range []string{"", "no-body", "public.key:ed25519:", "public.key:ed25519:UPPER!"} {
		if _, _, err := DecodeKeyURI(uri); err == nil {
			t.Errorf("DecodeKeyURI(%q) succeeded, want error", uri)
		}
	}
}

func TestFingerprint_Stable(t *testing.T) {
	uri := EncodeKeyURI(EncryptionKeyPrefix, make([]byte, 32))
	first := Fingerprint(uri)
	second := Fingerprint(uri)

	if first != second {
		t.Error("fingerprints of the same URI differ")
	}
	if !strings.HasPrefix(first, FingerprintPrefix+":") {
		t.Errorf("fingerprint %q missing prefix %q", first, FingerprintPrefix)
	}
}

func TestResolve_Missing(t *testing.T) {
	ring := New()
	_, err := ring.Resolve("public.fingerprint:sha-256:missing")

	var notFound *KeyNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Resolve() error = %v, want *KeyNotFoundError", err)
	}
	if notFound.Fingerprint != "public.fingerprint:sha-256:missing" {
		t.Errorf("error fingerprint = %q", notFound.Fingerprint)
	}
}

func TestSigningKey_SignVerify(t *testing.T) {
	handle, err := NewSoftwareSigningKey(generateSeed(t))
	if err != nil {
		t.Fatalf("NewSoftwareSigningKey() error: %v", err)
	}
	defer handle.Close()

	message := []byte("canonical pack header bytes")
	signature, err := handle.Sign(message)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if err := handle.Verify(message, signature); err != nil {
		t.Errorf("Verify() of own signature error: %v", err)
	}

	signature[0] ^= 0x01
	if err := handle.Verify(message, signature); err == nil {
		t.Error("Verify() of corrupted signature succeeded")
	}
}

func TestSigningAndVerifyKey_AgreeOnFingerprint(t *testing.T) {
	seed := generateSeed(t)
	seedCopy := append([]byte(nil), seed...)

	signer, err := NewSoftwareSigningKey(seed)
	if err != nil {
		t.Fatalf("NewSoftwareSigningKey() error: %v", err)
	}
	defer signer.Close()

	privateKey := ed25519.NewKeyFromSeed(seedCopy)
	verifier, err := NewSoftwareVerifyKey(privateKey.Public().(ed25519.PublicKey))
	if err != nil {
		t.Fatalf("NewSoftwareVerifyKey() error: %v", err)
	}

	if signer.Fingerprint() != verifier.Fingerprint() {
		t.Errorf("signer fingerprint %q != verifier fingerprint %q",
			signer.Fingerprint(), verifier.Fingerprint())
	}

	// The verifier accepts the signer's signatures.
	message := []byte("cross-handle verification")
	signature, err := signer.Sign(message)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if err := verifier.Verify(message, signature); err != nil {
		t.Errorf("verifier.Verify() error: %v", err)
	}
}

func TestVerifyKey_CannotSign(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	handle, err := NewSoftwareVerifyKey(publicKey)
	if err != nil {
		t.Fatalf("NewSoftwareVerifyKey() error: %v", err)
	}

	_, err = handle.Sign([]byte("message"))
	var capabilityError *CapabilityError
	if !errors.As(err, &capabilityError) {
		t.Fatalf("Sign() error = %v, want *CapabilityError", err)
	}
	if capabilityError.Capability != CapabilitySign {
		t.Errorf("error capability = %v, want sign", capabilityError.Capability)
	}
}

func TestEncryptionKey_DerivationBoundToContext(t *testing.T) {
	master := make([]byte, EncryptionKeySize)
	if _, err := rand.Read(master); err != nil {
		t.Fatalf("generating master secret: %v", err)
	}
	handle, err := NewSoftwareEncryptionKey(master)
	if err != nil {
		t.Fatalf("NewSoftwareEncryptionKey() error: %v", err)
	}
	defer handle.Close()

	first, err := handle.DeriveEncryptionKey([]byte("uuid-one"))
	if err != nil {
		t.Fatalf("DeriveEncryptionKey() error: %v", err)
	}
	defer first.Close()

	firstAgain, err := handle.DeriveEncryptionKey([]byte("uuid-one"))
	if err != nil {
		t.Fatalf("DeriveEncryptionKey() error: %v", err)
	}
	defer firstAgain.Close()

	second, err := handle.DeriveEncryptionKey([]byte("uuid-two"))
	if err != nil {
		t.Fatalf("DeriveEncryptionKey() error: %v", err)
	}
	defer second.Close()

	if string(first.Bytes()) != string(firstAgain.Bytes()) {
		t.Error("same context derived different keys")
	}
	if string(first.Bytes()) == string(second.Bytes()) {
		t.Error("different contexts derived identical keys")
	}
	if first.Len() != DerivedKeySize {
		t.Errorf("derived key is %d bytes, want %d", first.Len(), DerivedKeySize)
	}
}

func TestLoad_RejectsLooseMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.toml")
	if err := os.WriteFile(path, []byte("[signing]\n[encryption]\n"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() of 0644 keyring succeeded, want error")
	}
}

func TestLoad_FullKeyring(t *testing.T) {
	seed := generateSeed(t)
	privateKey := ed25519.NewKeyFromSeed(seed)
	publicURI := EncodeKeyURI(VerifyKeyPrefix, privateKey.Public().(ed25519.PublicKey))
	secretURI := EncodeKeyURI(EncryptionKeyPrefix, make([]byte, EncryptionKeySize))

	content := "[signing]\nops = \"" + publicURI + "\"\n\n[encryption]\nprod = \"" + secretURI + "\"\n"
	path := filepath.Join(t.TempDir(), "keyring.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	ring, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	defer ring.Close()

	if ring.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ring.Len())
	}

	verify, err := ring.Resolve(Fingerprint(publicURI))
	if err != nil {
		t.Fatalf("Resolve(verify fingerprint) error: %v", err)
	}
	if !verify.Capabilities().Has(CapabilityVerify) {
		t.Error("signing-section key lacks verify capability")
	}

	encrypt, err := ring.Resolve(Fingerprint(secretURI))
	if err != nil {
		t.Fatalf("Resolve(encryption fingerprint) error: %v", err)
	}
	if !encrypt.Capabilities().Has(CapabilityDeriveEncryptionKey) {
		t.Error("encryption key lacks derive capability")
	}
}

func TestLoad_RejectsWrongSectionType(t *testing.T) {
	// An encryption secret in the signing section must be rejected.
	secretURI := EncodeKeyURI(EncryptionKeyPrefix, make([]byte, EncryptionKeySize))
	content := "[signing]\noops = \"" + secretURI + "\"\n"
	path := filepath.Join(t.TempDir(), "keyring.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() accepted an encryption secret in the signing section")
	}
}

// recordingModule is a fake security module that logs operation order.
type recordingModule struct {
	operations []string
}

func (m *recordingModule) Verify(keyLabel string, message, signature []byte) error {
	m.operations = append(m.operations, "verify:"+keyLabel)
	return nil
}

func (m *recordingModule) Sign(keyLabel string, message []byte) ([]byte, error) {
	m.operations = append(m.operations, "sign:"+keyLabel)
	return make([]byte, ed25519.SignatureSize), nil
}

func (m *recordingModule) DeriveKey(keyLabel string, context []byte, length int) ([]byte, error) {
	m.operations = append(m.operations, "derive:"+keyLabel)
	return make([]byte, length), nil
}

func TestModuleKey_Delegates(t *testing.T) {
	module := &recordingModule{}
	handle, err := NewModuleKey(module, "slot-1", "public.fingerprint:sha-256:module",
		CapabilitySet(CapabilityVerify|CapabilitySign|CapabilityDeriveEncryptionKey))
	if err != nil {
		t.Fatalf("NewModuleKey() error: %v", err)
	}

	if err := handle.Verify([]byte("m"), []byte("s")); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if _, err := handle.Sign([]byte("m")); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	derived, err := handle.DeriveEncryptionKey([]byte("uuid"))
	if err != nil {
		t.Fatalf("DeriveEncryptionKey() error: %v", err)
	}
	derived.Close()

	want := []string{"verify:slot-1", "sign:slot-1", "derive:slot-1"}
	if len(module.operations) != len(want) {
		t.Fatalf("operations = %v, want %v", module.operations, want)
	}
	for index, operation := range want {
		if module.operations[index] != operation {
			t.Errorf("operations[%d] = %q, want %q", index, module.operations[index], operation)
		}
	}
}

func TestModuleKey_CapabilityEnforced(t *testing.T) {
	module := &recordingModule{}
	handle, err := NewModuleKey(module, "slot-2", "public.fingerprint:sha-256:verify-only",
		CapabilitySet(CapabilityVerify))
	if err != nil {
		t.Fatalf("NewModuleKey() error: %v", err)
	}

	if _, err := handle.Sign([]byte("m")); err == nil {
		t.Error("Sign() on verify-only module key succeeded")
	}
	if len(module.operations) != 0 {
		t.Errorf("module was invoked for a refused capability: %v", module.operations)
	}
}
