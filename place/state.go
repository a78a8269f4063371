// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package place

import (
	"fmt"
	"sync"

	"github.com/placer-foundation/placer/lib/tai64"
)

// State is the lifecycle position of the current pack for one
// (source, pack name) pair.
type State int

const (
	// StateFetched: the frame arrived, nothing checked yet.
	StateFetched State = iota

	// StateVerifying: signature verification and decryption running.
	StateVerifying

	// StateVerified: payload decrypted, placement not started.
	StateVerified

	// StatePlacing: files being written.
	StatePlacing

	// StatePlaced: terminal until a pack with a different uuid and a
	// date no older than the placed one arrives.
	StatePlaced

	// StateFailed: verification or decryption rejected the pack.
	StateFailed

	// StateQuarantined: terminal for the rejected uuid; the same
	// uuid is never retried.
	StateQuarantined
)

func (s State) String() string {
	switch s {
	case StateFetched:
		return "fetched"
	case StateVerifying:
		return "verifying"
	case StateVerified:
		return "verified"
	case StatePlacing:
		return "placing"
	case StatePlaced:
		return "placed"
	case StateFailed:
		return "failed"
	case StateQuarantined:
		return "quarantined"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// transitions lists the legal successor states.
var transitions = map[State][]State{
	StateFetched:   {StateVerifying},
	StateVerifying: {StateVerified, StateFailed},
	StateVerified:  {StatePlacing},
	StatePlacing:   {StatePlaced, StateFailed},
	StateFailed:    {StateQuarantined},
}

type trackerKey struct {
	source string
	pack   string
}

type trackerEntry struct {
	state State
	uuid  string
	date  tai64.N

	// partial marks a placed pack that left some files unplaced. Begin
	// readmits the same uuid so a re-delivery retries them.
	partial bool
}

// Tracker holds the state machine for every (source, pack name) pair.
// Safe for concurrent use; distinct sources progress independently.
type Tracker struct {
	mu      sync.Mutex
	entries map[trackerKey]*trackerEntry

	// quarantined remembers every uuid that ever reached
	// StateQuarantined, keyed per pair, so a re-delivered bad pack is
	// dropped even after a newer pack succeeded.
	quarantined map[trackerKey]map[string]bool
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		entries:     make(map[trackerKey]*trackerEntry),
		quarantined: make(map[trackerKey]map[string]bool),
	}
}

// SkipReason says why Begin refused a pack.
type SkipReason string

const (
	// SkipAlreadyPlaced: the exact uuid is already placed.
	SkipAlreadyPlaced SkipReason = "already placed"

	// SkipStale: an already placed pack carries a newer date.
	SkipStale SkipReason = "older than placed pack"

	// SkipQuarantined: the uuid was quarantined before.
	SkipQuarantined SkipReason = "previously quarantined"

	// SkipInFlight: the pair is mid-cycle for another pack.
	SkipInFlight SkipReason = "placement in flight"
)

// Begin starts a cycle for a fetched pack. Returns ("", true) when
// the pack should proceed (the pair is now in StateFetched), or a
// reason and false when it must be dropped.
func (t *Tracker) Begin(source, packName, uuid string, date tai64.N) (SkipReason, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := trackerKey{source: source, pack: packName}
	if t.quarantined[key][uuid] {
		return SkipQuarantined, false
	}

	if entry, ok := t.entries[key]; ok {
		switch entry.state {
		case StatePlaced:
			if entry.uuid == uuid {
				if !entry.partial {
					return SkipAlreadyPlaced, false
				}
				// The previous cycle left files unplaced; the same
				// uuid runs again so they get another attempt.
			} else if date.Before(entry.date) {
				return SkipStale, false
			}
		case StateQuarantined, StateFailed:
			// A different uuid may start a fresh cycle.
			if entry.uuid == uuid {
				return SkipQuarantined, false
			}
		default:
			// Frames are handled synchronously per source, so the
			// pair can only be mid-cycle if the daemon has a bug.
			return SkipInFlight, false
		}
	}

	t.entries[key] = &trackerEntry{state: StateFetched, uuid: uuid, date: date}
	return "", true
}

// Advance moves the pair to the next state. The transition must be
// legal for the current state; anything else is a programming error
// surfaced as a panic during tests.
func (t *Tracker) Advance(source, packName string, to State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := trackerKey{source: source, pack: packName}
	entry, ok := t.entries[key]
	if !ok {
		panic(fmt.Sprintf("place: advancing unknown pair %s/%s", source, packName))
	}
	for _, legal := range transitions[entry.state] {
		if legal == to {
			entry.state = to
			if to == StateQuarantined {
				if t.quarantined[key] == nil {
					t.quarantined[key] = make(map[string]bool)
				}
				t.quarantined[key][entry.uuid] = true
			}
			return
		}
	}
	panic(fmt.Sprintf("place: illegal transition %s -> %s for %s/%s", entry.state, to, source, packName))
}

// MarkPartial records that the placed pack left some files unplaced,
// keeping its uuid eligible for another Begin. Only legal in
// StatePlaced.
func (t *Tracker) MarkPartial(source, packName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := trackerKey{source: source, pack: packName}
	entry, ok := t.entries[key]
	if !ok || entry.state != StatePlaced {
		panic(fmt.Sprintf("place: marking partial outside StatePlaced for %s/%s", source, packName))
	}
	entry.partial = true
}

// Current returns the state and uuid of a pair, if any cycle ran.
func (t *Tracker) Current(source, packName string) (State, string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[trackerKey{source: source, pack: packName}]
	if !ok {
		return 0, "", false
	}
	return entry.state, entry.uuid, true
}
