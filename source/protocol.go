// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/placer-foundation/placer/pack"
)

// greetingPrefix opens the first line a source writes. The text after
// the prefix is free-form (typically the source kind and version).
const greetingPrefix = "OK "

// MaxFrameSize bounds the pack bytes in a single frame. Matches the
// pack size limit: a frame the codec would reject anyway is discarded
// without buffering it.
const MaxFrameSize = pack.MaxPackSize

// Frame is one delivered pack, still encoded and unverified.
type Frame struct {
	// URI is the fetch URI the source retrieved this pack from.
	URI string

	// Data is the encoded pack, exactly as fetched.
	Data []byte
}

// ProtocolError reports a recoverable framing violation. The
// offending frame has been consumed; the reader can be used again.
type ProtocolError struct {
	Reason string
	Line   string
}

func (e *ProtocolError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("source protocol: %s in %q", e.Reason, e.Line)
	}
	return "source protocol: " + e.Reason
}

// Reader parses the source-to-daemon side of the protocol.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps the source's stdout.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadGreeting consumes the handshake line and returns the text after
// the "OK " prefix. Any other first line is fatal: a process that
// cannot greet correctly will not frame correctly either.
func (r *Reader) ReadGreeting() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("source protocol: reading greeting: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	if !strings.HasPrefix(line, greetingPrefix) {
		return "", fmt.Errorf("source protocol: bad greeting %q", line)
	}
	return strings.TrimPrefix(line, greetingPrefix), nil
}

// Next reads one frame. A *ProtocolError return means the frame was
// malformed but consumed; call Next again for the following frame.
// Any other error ends the stream: io.EOF after a clean frame
// boundary, io.ErrUnexpectedEOF if the pipe closed mid-frame.
func (r *Reader) Next() (*Frame, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	line = strings.TrimSuffix(line, "\n")

	lengthField, uri, ok := strings.Cut(line, " ")
	if !ok || uri == "" {
		return nil, &ProtocolError{Reason: "header is not \"<length> <uri>\"", Line: line}
	}
	length, err := strconv.ParseUint(lengthField, 10, 32)
	if err != nil {
		return nil, &ProtocolError{Reason: "unparseable frame length", Line: line}
	}
	if length > MaxFrameSize {
		// Drain the oversize frame so the stream stays in sync.
		if _, err := io.CopyN(io.Discard, r.r, int64(length)); err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		if err := r.readTrailer(); err != nil {
			return nil, err
		}
		return nil, &ProtocolError{Reason: fmt.Sprintf("frame of %d bytes exceeds the %d byte limit", length, MaxFrameSize), Line: line}
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	if err := r.readTrailer(); err != nil {
		return nil, err
	}
	return &Frame{URI: uri, Data: data}, nil
}

// readTrailer consumes the single newline that closes a frame.
func (r *Reader) readTrailer() error {
	trailer, err := r.r.ReadByte()
	if err != nil {
		return io.ErrUnexpectedEOF
	}
	if trailer != '\n' {
		// The stream is desynchronized; resync at the next newline.
		if _, err := r.r.ReadString('\n'); err != nil {
			return io.ErrUnexpectedEOF
		}
		return &ProtocolError{Reason: "frame not terminated by newline"}
	}
	return nil
}

// Writer produces the source-to-daemon side of the protocol. Source
// executables use it to emit the greeting and pack frames.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps the source's stdout.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteGreeting emits the handshake line.
func (w *Writer) WriteGreeting(text string) error {
	if strings.ContainsAny(text, "\n") {
		return fmt.Errorf("source protocol: greeting text contains a newline")
	}
	if _, err := fmt.Fprintf(w.w, "%s%s\n", greetingPrefix, text); err != nil {
		return err
	}
	return w.w.Flush()
}

// WriteFrame emits one pack frame and flushes it, so the daemon sees
// whole frames even if the source then blocks polling.
func (w *Writer) WriteFrame(uri string, data []byte) error {
	if uri == "" || strings.ContainsAny(uri, " \n") {
		return fmt.Errorf("source protocol: invalid frame uri %q", uri)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("source protocol: frame of %d bytes exceeds the %d byte limit", len(data), MaxFrameSize)
	}
	if _, err := fmt.Fprintf(w.w, "%d %s\n", len(data), uri); err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// WriteFetchList sends the daemon's resource list to a source's
// stdin: one URI per line, closed by a blank line.
func WriteFetchList(w io.Writer, uris []string) error {
	var b strings.Builder
	for _, uri := range uris {
		if uri == "" || strings.ContainsAny(uri, " \n") {
			return fmt.Errorf("source protocol: invalid fetch uri %q", uri)
		}
		b.WriteString(uri)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// ReadFetchList parses a resource list from a source's stdin. It
// stops at the blank terminator line.
func ReadFetchList(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	var uris []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			return uris, nil
		}
		uris = append(uris, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("source protocol: reading fetch list: %w", err)
	}
	return nil, fmt.Errorf("source protocol: fetch list not terminated by a blank line")
}
