// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/placer-foundation/placer/lib/clock"
)

// Backoff bounds for restarting a failed source subprocess.
const (
	restartBackoffInitial = time.Second
	restartBackoffMax     = 5 * time.Minute
)

// steadyStateAfter is how long a source must run before a failure
// resets the restart backoff. A source that greets, delivers, then
// dies hours later is healthy and restarts immediately; one that
// crashes on startup backs off exponentially.
const steadyStateAfter = time.Minute

// Handler receives each well-formed frame together with the pack name
// its URI was configured under. Handlers are called from the source's
// goroutine, one frame at a time per source, in delivery order.
type Handler func(sourceName, packName string, frame *Frame)

// Supervisor runs every configured source as an independently
// restarted subprocess. Failures are isolated: one source crashing,
// misframing, or backing off has no effect on the others.
type Supervisor struct {
	binaryDir string
	sources   []Config
	handler   Handler
	clock     clock.Clock
	logger    *slog.Logger

	// runOnce is swapped in tests to exercise the restart loop without
	// spawning real subprocesses.
	runOnce func(ctx context.Context, cfg Config) error
}

// NewSupervisor builds a supervisor. binaryDir is the directory
// source executables are spawned from, normally the directory of the
// placer binary itself.
func NewSupervisor(binaryDir string, sources []Config, handler Handler, clk clock.Clock, logger *slog.Logger) *Supervisor {
	s := &Supervisor{
		binaryDir: binaryDir,
		sources:   sources,
		handler:   handler,
		clock:     clk,
		logger:    logger,
	}
	s.runOnce = s.runSourceOnce
	return s
}

// Run supervises all sources until the context is cancelled. It
// always returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, cfg := range s.sources {
		wg.Add(1)
		go func(cfg Config) {
			defer wg.Done()
			s.superviseSource(ctx, cfg)
		}(cfg)
	}
	wg.Wait()
	return ctx.Err()
}

// superviseSource restarts one source with exponential backoff and
// jitter until the context ends.
func (s *Supervisor) superviseSource(ctx context.Context, cfg Config) {
	backoff := restartBackoffInitial
	for ctx.Err() == nil {
		started := s.clock.Now()
		err := s.runOnce(ctx, cfg)
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("source exited", "source", cfg.Name, "error", err)

		if s.clock.Now().Sub(started) >= steadyStateAfter {
			backoff = restartBackoffInitial
		}
		// Jitter spreads restarts of simultaneously failing sources.
		delay := backoff + time.Duration(rand.Int63n(int64(backoff/4)+1))
		s.logger.Info("restarting source", "source", cfg.Name, "after", delay)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(delay):
		}
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
	}
}

// runSourceOnce spawns the source and pumps frames until the stream
// ends. Protocol errors are logged and skipped; unknown URIs are
// logged and the frame is dropped unopened.
func (s *Supervisor) runSourceOnce(ctx context.Context, cfg Config) error {
	process, err := Start(ctx, s.binaryDir, cfg, s.logger)
	if err != nil {
		return err
	}
	defer process.Close()
	s.logger.Info("source started", "source", cfg.Name, "greeting", process.Greeting())

	for {
		frame, err := process.Next()
		if err != nil {
			var protocolErr *ProtocolError
			if errors.As(err, &protocolErr) {
				s.logger.Warn("discarding malformed frame", "source", cfg.Name, "error", protocolErr)
				continue
			}
			return err
		}

		packName, err := cfg.PackName(frame.URI)
		if err != nil {
			s.logger.Error("discarding unsolicited pack", "source", cfg.Name, "error", err)
			continue
		}
		s.handler(cfg.Name, packName, frame)
	}
}
