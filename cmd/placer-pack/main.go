// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

// placer-pack is the producer-side companion of the placer daemon:
// it generates key material, seals packs, and inspects pack headers.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/placer-foundation/placer/keyring"
	"github.com/placer-foundation/placer/lib/clock"
	"github.com/placer-foundation/placer/lib/secret"
	"github.com/placer-foundation/placer/lib/tai64"
	"github.com/placer-foundation/placer/lib/version"
	"github.com/placer-foundation/placer/pack"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch os.Args[1] {
	case "keygen":
		return runKeygen()
	case "seal":
		return runSeal(os.Args[2:])
	case "inspect":
		return runInspect(os.Args[2:])
	case "version":
		fmt.Printf("placer-pack %s\n", version.Info())
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: placer-pack <subcommand> [flags]

Subcommands:
  keygen    Generate a signing key pair and an encryption secret
  seal      Build a signed, encrypted pack from input files
  inspect   Print the header of an encoded pack (no keys needed)
  version   Print version information

Run 'placer-pack <subcommand> --help' for subcommand flags.
`)
}

// runKeygen generates an Ed25519 signing pair and a 256-bit master
// encryption secret. Secret KeyURIs go to stderr for safekeeping; the
// material a target machine needs (public verify KeyURI, encryption
// secret KeyURI, fingerprints) is labelled so the operator can build
// both keyrings.
func runKeygen() error {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("generating signing seed: %w", err)
	}
	publicKey := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	signingURI := keyring.EncodeKeyURI(keyring.SigningKeyPrefix, seed)
	verifyURI := keyring.EncodeKeyURI(keyring.VerifyKeyPrefix, publicKey)
	secret.Zero(seed)

	master := make([]byte, keyring.EncryptionKeySize)
	if _, err := rand.Read(master); err != nil {
		return fmt.Errorf("generating encryption secret: %w", err)
	}
	encryptionURI := keyring.EncodeKeyURI(keyring.EncryptionKeyPrefix, master)
	secret.Zero(master)

	fmt.Fprintf(os.Stderr, "# Producer secrets (store securely, never on target machines):\n")
	fmt.Fprintf(os.Stderr, "%s\n", signingURI)
	fmt.Fprintf(os.Stderr, "# Shared encryption secret (producer and every target machine):\n")
	fmt.Fprintf(os.Stderr, "%s\n", encryptionURI)

	fmt.Printf("# Verify key (target machine keyrings):\n")
	fmt.Printf("%s\n", verifyURI)
	fmt.Printf("# Fingerprints:\n")
	fmt.Printf("signing:    %s\n", keyring.Fingerprint(verifyURI))
	fmt.Printf("encryption: %s\n", keyring.Fingerprint(encryptionURI))
	return nil
}

func runSeal(args []string) error {
	flags := flag.NewFlagSet("seal", flag.ContinueOnError)
	signingKeyPath := flags.String("signing-key", "",
		"path of a file holding the secret signing KeyURI, or - for stdin (required)")
	encryptionKeyPath := flags.String("encryption-key", "",
		"path of a file holding the secret encryption KeyURI (required)")
	outputPath := flags.String("output", "-",
		"where to write the encoded pack, - for stdout")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *signingKeyPath == "" || *encryptionKeyPath == "" {
		return fmt.Errorf("--signing-key and --encryption-key are required")
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("at least one input file is required")
	}

	signer, err := loadKeyHandle(*signingKeyPath, keyring.SigningKeyPrefix)
	if err != nil {
		return err
	}
	defer signer.Close()
	encrypter, err := loadKeyHandle(*encryptionKeyPath, keyring.EncryptionKeyPrefix)
	if err != nil {
		return err
	}
	defer encrypter.Close()

	payload := &pack.Payload{}
	for _, inputPath := range flags.Args() {
		body, err := os.ReadFile(inputPath)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		info, err := os.Stat(inputPath)
		if err != nil {
			return fmt.Errorf("stat input: %w", err)
		}
		payload.Files = append(payload.Files, pack.File{
			Filename:   filepath.Base(inputPath),
			ModifiedAt: tai64.FromTime(info.ModTime()),
			Body:       body,
		})
	}
	defer payload.Close()

	sealed, err := pack.Seal(payload, signer, encrypter, clock.Real())
	if err != nil {
		return err
	}
	encoded, err := sealed.Encode()
	if err != nil {
		return err
	}

	if *outputPath == "-" {
		_, err = os.Stdout.Write(encoded)
		return err
	}
	if err := os.WriteFile(*outputPath, encoded, 0600); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "sealed pack %s (%d files, %d bytes)\n",
		sealed.UUID, len(payload.Files), len(encoded))
	return nil
}

// runInspect decodes a pack and prints its header. The ciphertext is
// never touched, so no keys are involved and nothing printed is
// authenticated.
func runInspect(args []string) error {
	flags := flag.NewFlagSet("inspect", flag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("exactly one pack file is required")
	}

	encoded, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		return err
	}
	decoded, err := pack.Decode(encoded)
	if err != nil {
		return err
	}

	fmt.Printf("uuid:                   %s\n", decoded.UUID)
	fmt.Printf("date:                   %s (%s)\n", decoded.Date, decoded.Date.Time().UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Printf("signing fingerprint:    %s\n", decoded.SigningKeyFingerprint)
	fmt.Printf("encryption fingerprint: %s\n", decoded.EncryptionKeyFingerprint)
	fmt.Printf("signature:              %d bytes\n", len(decoded.Signature))
	fmt.Printf("ciphertext:             %d bytes\n", len(decoded.Ciphertext))
	fmt.Printf("(header values are unauthenticated)\n")
	return nil
}

// loadKeyHandle reads a secret KeyURI from a file and builds the
// matching software key handle.
func loadKeyHandle(path, wantPrefix string) (keyring.KeyHandle, error) {
	buffer, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("reading key from %s: %w", path, err)
	}
	defer buffer.Close()

	prefix, key, err := keyring.DecodeKeyURI(buffer.String())
	if err != nil {
		return nil, fmt.Errorf("parsing key from %s: %w", path, err)
	}
	if prefix != wantPrefix {
		secret.Zero(key)
		return nil, fmt.Errorf("key in %s is %q, want %q", path, prefix, wantPrefix)
	}

	switch prefix {
	case keyring.SigningKeyPrefix:
		return keyring.NewSoftwareSigningKey(key)
	case keyring.EncryptionKeyPrefix:
		return keyring.NewSoftwareEncryptionKey(key)
	default:
		secret.Zero(key)
		return nil, fmt.Errorf("key in %s cannot seal packs", path)
	}
}
