// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReaderProtocolVector(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 42)
	var stream bytes.Buffer
	stream.WriteString("OK http fetcher 1.0\n")
	stream.WriteString("42 https://x/y\n")
	stream.Write(payload)
	stream.WriteString("\n")

	r := NewReader(&stream)
	greeting, err := r.ReadGreeting()
	if err != nil {
		t.Fatalf("ReadGreeting() error: %v", err)
	}
	if greeting != "http fetcher 1.0" {
		t.Errorf("greeting = %q, want %q", greeting, "http fetcher 1.0")
	}

	frame, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if frame.URI != "https://x/y" {
		t.Errorf("URI = %q, want %q", frame.URI, "https://x/y")
	}
	if !bytes.Equal(frame.Data, payload) {
		t.Errorf("frame data mismatch: got %d bytes", len(frame.Data))
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next() after last frame = %v, want io.EOF", err)
	}
}

func TestReaderRejectsBadGreeting(t *testing.T) {
	for _, line := range []string{"READY\n", "ok lowercase\n", "\n"} {
		r := NewReader(strings.NewReader(line))
		if _, err := r.ReadGreeting(); err == nil {
			t.Errorf("ReadGreeting() accepted %q", line)
		}
	}
}

func TestReaderContinuesAfterMalformedHeader(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString("not-a-length https://a/b\n")
	stream.WriteString("3 https://x/y\n")
	stream.WriteString("abc\n")

	r := NewReader(&stream)
	_, err := r.Next()
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Fatalf("Next() error = %v, want *ProtocolError", err)
	}

	frame, err := r.Next()
	if err != nil {
		t.Fatalf("Next() after protocol error: %v", err)
	}
	if frame.URI != "https://x/y" || string(frame.Data) != "abc" {
		t.Errorf("recovered frame = %q %q", frame.URI, frame.Data)
	}
}

func TestReaderDiscardsOversizeFrame(t *testing.T) {
	big := bytes.Repeat([]byte{'x'}, MaxFrameSize+1)
	var stream bytes.Buffer
	stream.WriteString("1048577 https://a/b\n")
	stream.Write(big)
	stream.WriteString("\n")
	stream.WriteString("2 https://x/y\n")
	stream.WriteString("ok\n")

	r := NewReader(&stream)
	_, err := r.Next()
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Fatalf("Next() error = %v, want *ProtocolError", err)
	}

	frame, err := r.Next()
	if err != nil {
		t.Fatalf("Next() after oversize frame: %v", err)
	}
	if frame.URI != "https://x/y" {
		t.Errorf("recovered frame URI = %q", frame.URI)
	}
}

func TestReaderShortReadEndsStream(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString("10 https://x/y\n")
	stream.WriteString("only4")

	r := NewReader(&stream)
	if _, err := r.Next(); err != io.ErrUnexpectedEOF {
		t.Fatalf("Next() = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReaderMissingTrailer(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString("3 https://a/b\n")
	stream.WriteString("abcX junk until newline\n")
	stream.WriteString("3 https://x/y\n")
	stream.WriteString("def\n")

	r := NewReader(&stream)
	_, err := r.Next()
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Fatalf("Next() error = %v, want *ProtocolError", err)
	}

	frame, err := r.Next()
	if err != nil {
		t.Fatalf("Next() after trailer error: %v", err)
	}
	if frame.URI != "https://x/y" || string(frame.Data) != "def" {
		t.Errorf("recovered frame = %q %q", frame.URI, frame.Data)
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	var stream bytes.Buffer
	w := NewWriter(&stream)
	if err := w.WriteGreeting("test source"); err != nil {
		t.Fatalf("WriteGreeting() error: %v", err)
	}
	if err := w.WriteFrame("https://example.com/a", []byte("first")); err != nil {
		t.Fatalf("WriteFrame() error: %v", err)
	}
	if err := w.WriteFrame("https://example.com/b", []byte{}); err != nil {
		t.Fatalf("WriteFrame() error: %v", err)
	}

	r := NewReader(&stream)
	if _, err := r.ReadGreeting(); err != nil {
		t.Fatalf("ReadGreeting() error: %v", err)
	}
	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if first.URI != "https://example.com/a" || string(first.Data) != "first" {
		t.Errorf("first frame = %q %q", first.URI, first.Data)
	}
	second, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if second.URI != "https://example.com/b" || len(second.Data) != 0 {
		t.Errorf("second frame = %q %d bytes", second.URI, len(second.Data))
	}
}

func TestWriterRejectsInvalidURI(t *testing.T) {
	w := NewWriter(io.Discard)
	if err := w.WriteFrame("has space", nil); err == nil {
		t.Error("WriteFrame() accepted a uri with a space")
	}
	if err := w.WriteFrame("", nil); err == nil {
		t.Error("WriteFrame() accepted an empty uri")
	}
}

func TestFetchListRoundTrip(t *testing.T) {
	uris := []string{"https://a/one", "https://b/two"}
	var stream bytes.Buffer
	if err := WriteFetchList(&stream, uris); err != nil {
		t.Fatalf("WriteFetchList() error: %v", err)
	}
	// Trailing bytes after the blank line must not be consumed.
	stream.WriteString("leftover")

	got, err := ReadFetchList(&stream)
	if err != nil {
		t.Fatalf("ReadFetchList() error: %v", err)
	}
	if len(got) != 2 || got[0] != uris[0] || got[1] != uris[1] {
		t.Errorf("ReadFetchList() = %v, want %v", got, uris)
	}
}

func TestReadFetchListUnterminated(t *testing.T) {
	if _, err := ReadFetchList(strings.NewReader("https://a/one\n")); err == nil {
		t.Error("ReadFetchList() accepted an unterminated list")
	}
}

func TestConfigPackName(t *testing.T) {
	cfg := Config{
		Name: "corp-http",
		URIs: map[string]string{
			"wireguard": "https://packs.corp/wireguard",
			"ssh":       "https://packs.corp/ssh",
		},
	}

	name, err := cfg.PackName("https://packs.corp/ssh")
	if err != nil {
		t.Fatalf("PackName() error: %v", err)
	}
	if name != "ssh" {
		t.Errorf("PackName() = %q, want %q", name, "ssh")
	}

	_, err = cfg.PackName("https://evil.example/other")
	var unknown *UnknownURIError
	if !errors.As(err, &unknown) {
		t.Fatalf("PackName() error = %v, want *UnknownURIError", err)
	}
	if !strings.Contains(unknown.Error(), "I never asked for this") {
		t.Errorf("UnknownURIError message = %q", unknown.Error())
	}
}

func TestConfigFetchURIsSorted(t *testing.T) {
	cfg := Config{URIs: map[string]string{
		"c": "https://z",
		"a": "https://a",
		"b": "https://m",
	}}
	got := cfg.FetchURIs()
	want := []string{"https://a", "https://m", "https://z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FetchURIs() = %v, want %v", got, want)
		}
	}
}
