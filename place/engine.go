// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package place

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/placer-foundation/placer/keyring"
	"github.com/placer-foundation/placer/lib/clock"
	"github.com/placer-foundation/placer/pack"
)

// Engine runs the full per-frame pipeline: cache suppression, decode,
// verify and decrypt, placement or quarantine. One Engine serves all
// sources; per-source ordering comes from each source's frames being
// handled synchronously on its own goroutine.
type Engine struct {
	ring       *keyring.Keyring
	specs      map[string][]*FileSpec
	cache      *Cache
	quarantine *Quarantine
	tracker    *Tracker
	clock      clock.Clock
	logger     *slog.Logger

	// lastWriter tracks which source last placed each pack name, to
	// warn when two sources feed the same targets. Last writer wins.
	mu         sync.Mutex
	lastWriter map[string]string
}

// NewEngine builds an engine. specs maps pack name to the placement
// rules listening to it; the cache may be nil to disable suppression.
func NewEngine(ring *keyring.Keyring, specs map[string][]*FileSpec, cache *Cache, quarantine *Quarantine, clk clock.Clock, logger *slog.Logger) *Engine {
	return &Engine{
		ring:       ring,
		specs:      specs,
		cache:      cache,
		quarantine: quarantine,
		tracker:    NewTracker(),
		clock:      clk,
		logger:     logger,
		lastWriter: make(map[string]string),
	}
}

// HandleFrame processes one delivered pack. It never returns an
// error: every failure mode is logged and contained so the source
// stream continues. Matches the source.Handler signature.
func (e *Engine) HandleFrame(sourceName, packName string, raw []byte) {
	logger := e.logger.With("source", sourceName, "pack", packName)

	if e.cache != nil && e.cache.Unchanged(sourceName, packName, raw) {
		logger.Debug("pack unchanged, suppressed by cache")
		return
	}

	decoded, err := pack.Decode(raw)
	if err != nil {
		logger.Error("rejecting pack", "error", err)
		// No trustworthy uuid; quarantine under the content hash.
		if _, qErr := e.quarantine.Store(raw, "", err.Error()); qErr != nil {
			logger.Error("quarantine failed", "error", qErr)
		}
		return
	}
	uuid := decoded.UUID.String()
	logger = logger.With("uuid", uuid)

	if reason, ok := e.tracker.Begin(sourceName, packName, uuid, decoded.Date); !ok {
		logger.Info("dropping pack", "reason", string(reason))
		return
	}

	e.tracker.Advance(sourceName, packName, StateVerifying)
	payload, err := decoded.VerifyAndDecrypt(e.ring, e.clock)
	if err != nil {
		logger.Error("rejecting pack", "error", err)
		e.tracker.Advance(sourceName, packName, StateFailed)
		if _, qErr := e.quarantine.Store(raw, uuid, err.Error()); qErr != nil {
			logger.Error("quarantine failed", "error", qErr)
		}
		e.tracker.Advance(sourceName, packName, StateQuarantined)
		return
	}
	defer payload.Close()
	e.tracker.Advance(sourceName, packName, StateVerified)

	e.warnOnWriterChange(sourceName, packName, logger)

	e.tracker.Advance(sourceName, packName, StatePlacing)
	failures := e.placePayload(payload, packName, logger)
	e.tracker.Advance(sourceName, packName, StatePlaced)
	if failures > 0 {
		logger.Warn("payload partially failed", "failed", failures, "total", len(payload.Files))
		// Neither the tracker nor the cache may absorb a partial
		// placement: a re-delivery of the same bytes must run again
		// and retry the failed files.
		e.tracker.MarkPartial(sourceName, packName)
		return
	}

	if e.cache != nil {
		if err := e.cache.Put(sourceName, packName, uuid, decoded.Date, raw); err != nil {
			logger.Warn("cache write failed", "error", err)
		}
	}
}

// placePayload applies every payload file with a matching spec and
// returns the number of files that failed. Files are independent: a
// failure on one never blocks its siblings.
func (e *Engine) placePayload(payload *pack.Payload, packName string, logger *slog.Logger) int {
	failures := 0
	for i := range payload.Files {
		file := &payload.Files[i]
		spec := e.findSpec(packName, file.Filename)
		if spec == nil {
			logger.Warn("no placement rule for payload file", "filename", file.Filename)
			continue
		}
		if err := Apply(file, spec, logger); err != nil {
			var hookErr *HookError
			if errors.As(err, &hookErr) && fileIsPlaced(spec, file) {
				// After hook failed; the file itself is in place.
				logger.Error("after hook failed", "path", spec.Path, "error", err)
				continue
			}
			logger.Error("placement failed", "path", spec.Path, "filename", file.Filename, "error", err)
			failures++
		}
	}
	return failures
}

// fileIsPlaced reports whether the target currently holds the file
// body. Distinguishes an after-hook failure (placed, reported) from a
// before-hook failure (aborted).
func fileIsPlaced(spec *FileSpec, file *pack.File) bool {
	unchanged, err := targetUnchanged(spec.Path, file.Body)
	return err == nil && unchanged
}

// findSpec resolves a payload filename against the placement rules of
// a pack name.
func (e *Engine) findSpec(packName, filename string) *FileSpec {
	for _, spec := range e.specs[packName] {
		if spec.Filename == filename {
			return spec
		}
	}
	return nil
}

// warnOnWriterChange logs when a pack name switches between sources.
// Both placements are honored in arrival order.
func (e *Engine) warnOnWriterChange(sourceName, packName string, logger *slog.Logger) {
	e.mu.Lock()
	previous, had := e.lastWriter[packName]
	e.lastWriter[packName] = sourceName
	e.mu.Unlock()
	if had && previous != sourceName {
		logger.Warn("pack name fed by multiple sources", "previous_source", previous)
	}
}
