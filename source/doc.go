// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

// Package source implements the subprocess protocol between the
// placer daemon and its pack sources.
//
// A source is a separate executable named placer-source-<kind>,
// spawned from the directory of the placer binary and dropped to the
// configured user and group. The conversation is line-framed over the
// standard pipes:
//
//   - The source speaks first: one greeting line "OK <text>\n" on
//     stdout. Anything else fails the handshake.
//   - The daemon writes the fetch list to the source's stdin: one URI
//     per line, terminated by a single blank line. After that the
//     source polls autonomously.
//   - Each delivered pack is one frame on stdout: a header line
//     "<LENGTH> <URI>\n", exactly LENGTH bytes of encoded pack, and a
//     closing "\n".
//   - stderr is a free-form diagnostic channel, relayed line by line
//     into the daemon's log. Errors reported there never terminate
//     the stream.
//
// A malformed header, an oversize frame, or a missing frame trailer
// is a ProtocolError: the frame is discarded and reading continues.
// Only a short read (the pipe closing mid-frame) ends the stream.
//
// The supervisor runs each configured source as an independently
// restarted unit with exponential backoff, so one crashing source
// cannot starve the others.
package source
