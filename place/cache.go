// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package place

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/placer-foundation/placer/lib/codec"
	"github.com/placer-foundation/placer/lib/tai64"
)

// Cache persists the last accepted pack per (source, pack name). It
// is an optimization: a source re-emitting bytes whose BLAKE3 token
// matches the cached record is suppressed without re-verification.
// Correctness never depends on a cache hit; a cold or corrupt cache
// just means the pack is verified again.
type Cache struct {
	dir string
}

// cacheRecord is the on-disk form of a cache entry.
type cacheRecord struct {
	UUID             string         `cbor:"1,keyasint"`
	Date             tai64.N        `cbor:"2,keyasint"`
	Token            []byte         `cbor:"3,keyasint"`
	Compression      CompressionTag `cbor:"4,keyasint"`
	UncompressedSize uint32         `cbor:"5,keyasint"`
	Raw              []byte         `cbor:"6,keyasint"`
}

// Record is a decoded cache entry.
type Record struct {
	// UUID of the accepted pack.
	UUID string

	// Date of the accepted pack.
	Date tai64.N

	// Token is the BLAKE3 hash of the raw encoded pack.
	Token [32]byte

	// Raw is the encoded pack as delivered.
	Raw []byte
}

// NewCache opens (creating if needed) a cache directory.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("cache: creating %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

// path returns the record file for a (source, pack name) pair. Both
// components come from validated configuration, never from the wire.
func (c *Cache) path(sourceName, packName string) string {
	return filepath.Join(c.dir, sourceName+"--"+packName)
}

// Put stores the accepted pack for a (source, pack name) pair,
// replacing any previous record. The write is temp-then-rename so a
// crash never leaves a truncated record.
func (c *Cache) Put(sourceName, packName, uuid string, date tai64.N, raw []byte) error {
	token := blake3.Sum256(raw)

	compressed, tag := raw, CompressionZstd
	if shrunk, err := compress(raw, CompressionZstd); err == nil {
		compressed = shrunk
	} else if err == errIncompressible {
		tag = CompressionNone
	} else {
		return fmt.Errorf("cache: compressing record: %w", err)
	}

	encoded, err := codec.Marshal(cacheRecord{
		UUID:             uuid,
		Date:             date,
		Token:            token[:],
		Compression:      tag,
		UncompressedSize: uint32(len(raw)),
		Raw:              compressed,
	})
	if err != nil {
		return fmt.Errorf("cache: encoding record: %w", err)
	}

	target := c.path(sourceName, packName)
	temp, err := os.CreateTemp(c.dir, ".placer-tmp-*")
	if err != nil {
		return fmt.Errorf("cache: creating temp file: %w", err)
	}
	defer os.Remove(temp.Name())
	if _, err := temp.Write(encoded); err != nil {
		temp.Close()
		return fmt.Errorf("cache: writing record: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("cache: closing record: %w", err)
	}
	if err := os.Rename(temp.Name(), target); err != nil {
		return fmt.Errorf("cache: committing record: %w", err)
	}
	return nil
}

// Get loads the record for a (source, pack name) pair. Returns
// (nil, nil) when no record exists or the stored record is unusable;
// a broken cache entry is indistinguishable from a cold cache.
func (c *Cache) Get(sourceName, packName string) (*Record, error) {
	encoded, err := os.ReadFile(c.path(sourceName, packName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: reading record: %w", err)
	}

	var record cacheRecord
	if err := codec.Unmarshal(encoded, &record); err != nil {
		return nil, nil
	}
	if len(record.Token) != 32 {
		return nil, nil
	}
	raw, err := decompress(record.Raw, record.Compression, int(record.UncompressedSize))
	if err != nil {
		return nil, nil
	}
	if blake3.Sum256(raw) != [32]byte(record.Token) {
		return nil, nil
	}

	result := &Record{UUID: record.UUID, Date: record.Date, Raw: raw}
	copy(result.Token[:], record.Token)
	return result, nil
}

// Unchanged reports whether raw matches the cached record for the
// pair, comparing BLAKE3 tokens.
func (c *Cache) Unchanged(sourceName, packName string, raw []byte) bool {
	record, err := c.Get(sourceName, packName)
	if err != nil || record == nil {
		return false
	}
	token := blake3.Sum256(raw)
	return bytes.Equal(token[:], record.Token[:])
}
