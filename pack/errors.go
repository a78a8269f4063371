// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import "fmt"

// MalformedPackError reports structurally invalid pack bytes: bad
// magic, truncated buffer, missing required field, unparseable uuid,
// or a timestamp too far in the future. The raw bytes should be
// quarantined, never retried.
type MalformedPackError struct {
	Reason string
	Err    error
}

func (e *MalformedPackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed pack: %s: %v", e.Reason, e.Err)
	}
	return "malformed pack: " + e.Reason
}

func (e *MalformedPackError) Unwrap() error { return e.Err }

// SignatureInvalidError reports a signature that does not verify over
// the pack's canonical header bytes.
type SignatureInvalidError struct {
	Fingerprint string
	Err         error
}

func (e *SignatureInvalidError) Error() string {
	return fmt.Sprintf("pack signature invalid (signing key %s): %v", e.Fingerprint, e.Err)
}

func (e *SignatureInvalidError) Unwrap() error { return e.Err }

// DecryptionFailedError reports an authentication-tag mismatch or
// other failure opening the ciphertext of a signature-verified pack.
type DecryptionFailedError struct {
	UUID string
	Err  error
}

func (e *DecryptionFailedError) Error() string {
	return fmt.Sprintf("pack %s decryption failed: %v", e.UUID, e.Err)
}

func (e *DecryptionFailedError) Unwrap() error { return e.Err }

// MalformedPayloadError reports a structural error in the decrypted
// plaintext of a pack.
type MalformedPayloadError struct {
	UUID string
	Err  error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("pack %s payload malformed: %v", e.UUID, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }
