// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package tai64

import (
	"bytes"
	"testing"
	"time"

	"github.com/placer-foundation/placer/lib/codec"
)

func TestRoundTrip(t *testing.T) {
	instant := time.Date(2026, 8, 30, 12, 34, 56, 789000000, time.UTC)
	stamp := FromTime(instant)

	parsed, err := Parse(stamp.Bytes())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !parsed.Time().Equal(instant) {
		t.Errorf("round trip time = %v, want %v", parsed.Time(), instant)
	}
}

func TestEncodingLayout(t *testing.T) {
	// Unix epoch: seconds field is 2^62 + 10, nanoseconds zero.
	stamp := FromTime(time.Unix(0, 0))
	encoded := stamp.Bytes()

	want := []byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(encoded, want) {
		t.Errorf("Bytes() = %x, want %x", encoded, want)
	}
}

func TestParse_BadLength(t *testing.T) {
	if _, err := Parse(make([]byte, 11)); err == nil {
		t.Error("Parse() of 11 bytes succeeded, want error")
	}
	if _, err := Parse(make([]byte, 13)); err == nil {
		t.Error("Parse() of 13 bytes succeeded, want error")
	}
}

func TestParse_BadNanoseconds(t *testing.T) {
	encoded := FromTime(time.Unix(0, 0)).Bytes()
	// Force the nanosecond field past 999,999,999.
	encoded[8], encoded[9], encoded[10], encoded[11] = 0xFF, 0xFF, 0xFF, 0xFF
	if _, err := Parse(encoded); err == nil {
		t.Error("Parse() with out-of-range nanoseconds succeeded, want error")
	}
}

func TestParse_PreEpochSeconds(t *testing.T) {
	// A second count below the Unix epoch label would underflow the
	// wall-clock conversion; Parse must reject it.
	encoded := make([]byte, EncodedSize)
	encoded[0] = 0x3F // below 2^62
	if _, err := Parse(encoded); err == nil {
		t.Error("Parse() with pre-epoch seconds succeeded, want error")
	}

	// The all-zero encoding is the legal unset value.
	parsed, err := Parse(make([]byte, EncodedSize))
	if err != nil {
		t.Fatalf("Parse() of the zero encoding error: %v", err)
	}
	if !parsed.IsZero() {
		t.Error("zero encoding parsed as a set timestamp")
	}
}

func TestBefore(t *testing.T) {
	earlier := FromTime(time.Unix(100, 5))
	later := FromTime(time.Unix(100, 6))

	if !earlier.Before(later) {
		t.Error("earlier.Before(later) = false, want true")
	}
	if later.Before(earlier) {
		t.Error("later.Before(earlier) = true, want false")
	}
	if earlier.Before(earlier) {
		t.Error("timestamp is Before itself")
	}
}

func TestCBORRoundTrip(t *testing.T) {
	stamp := FromTime(time.Date(2026, 3, 1, 0, 0, 0, 42, time.UTC))

	encoded, err := codec.Marshal(stamp)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded N
	if err := codec.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded != stamp {
		t.Errorf("round trip = %v, want %v", decoded, stamp)
	}
}

func TestIsZero(t *testing.T) {
	var zero N
	if !zero.IsZero() {
		t.Error("zero value IsZero() = false")
	}
	if FromTime(time.Unix(0, 0)).IsZero() {
		t.Error("epoch timestamp IsZero() = true")
	}
}
