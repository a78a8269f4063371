// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

// Package tai64 implements the TAI64N timestamp used in pack headers
// and payload file metadata.
//
// A TAI64N value is a fixed 12-byte big-endian encoding: an 8-byte
// second count on the TAI scale followed by a 4-byte nanosecond count.
// Fixed width and a linear second count (no leap-second ambiguity)
// make the encoding suitable for canonical signing input: the same
// instant always encodes to the same 12 bytes.
package tai64

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/placer-foundation/placer/lib/codec"
)

// EncodedSize is the wire size of a TAI64N timestamp in bytes.
const EncodedSize = 12

// base is the TAI64 label for the Unix epoch: 2^62 plus the
// TAI-UTC offset at the epoch (10 seconds).
const base = uint64(1<<62) + 10

// N is a TAI64N timestamp: seconds on the TAI scale plus nanoseconds.
//
// The zero value encodes the TAI epoch region start, which predates
// any valid pack; IsZero distinguishes it from real timestamps.
type N struct {
	seconds uint64
	nanos   uint32
}

// FromTime returns the TAI64N timestamp for the given wall-clock time.
func FromTime(t time.Time) N {
	return N{
		seconds: base + uint64(t.Unix()),
		nanos:   uint32(t.Nanosecond()),
	}
}

// Time converts the timestamp back to a time.Time in UTC.
func (n N) Time() time.Time {
	return time.Unix(int64(n.seconds-base), int64(n.nanos)).UTC()
}

// IsZero reports whether the timestamp is the zero value (unset).
func (n N) IsZero() bool {
	return n.seconds == 0 && n.nanos == 0
}

// Before reports whether n is strictly earlier than other.
func (n N) Before(other N) bool {
	if n.seconds != other.seconds {
		return n.seconds < other.seconds
	}
	return n.nanos < other.nanos
}

// Bytes returns the canonical 12-byte big-endian encoding.
func (n N) Bytes() []byte {
	var out [EncodedSize]byte
	binary.BigEndian.PutUint64(out[0:8], n.seconds)
	binary.BigEndian.PutUint32(out[8:12], n.nanos)
	return out[:]
}

// Parse decodes a canonical 12-byte TAI64N encoding.
func Parse(data []byte) (N, error) {
	if len(data) != EncodedSize {
		return N{}, fmt.Errorf("tai64: encoded timestamp is %d bytes, want %d", len(data), EncodedSize)
	}
	n := N{
		seconds: binary.BigEndian.Uint64(data[0:8]),
		nanos:   binary.BigEndian.Uint32(data[8:12]),
	}
	if n.IsZero() {
		// The all-zero encoding is the unset zero value; payload
		// files carry it when the producer knows no modification time.
		return n, nil
	}
	if n.nanos > 999_999_999 {
		return N{}, fmt.Errorf("tai64: nanosecond field %d out of range", n.nanos)
	}
	// Time() subtracts the Unix epoch label on unsigned arithmetic, so
	// a second count below it would underflow into a nonsense date.
	if n.seconds < base {
		return N{}, fmt.Errorf("tai64: second count %d predates the Unix epoch", n.seconds)
	}
	return n, nil
}

// String formats the timestamp as the equivalent UTC wall-clock time.
func (n N) String() string {
	if n.IsZero() {
		return "tai64n(unset)"
	}
	return n.Time().Format(time.RFC3339Nano)
}

// MarshalCBOR encodes the timestamp as a 12-byte CBOR byte string.
func (n N) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(n.Bytes())
}

// UnmarshalCBOR decodes the timestamp from a CBOR byte string.
func (n *N) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := codec.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tai64: decoding timestamp: %w", err)
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
