// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

// placer-source-http fetches packs over HTTPS for the placer daemon.
//
// It speaks the source subprocess protocol: greeting on stdout, fetch
// list on stdin, then frames. Each URI is polled on an interval with
// jitter. Redundant deliveries are suppressed twice over: ETag
// revalidation (If-None-Match) avoids transferring unchanged bodies,
// and a SHA-256 digest of the last emitted body catches servers that
// do not send validators. Re-emission is always safe; suppression is
// purely an optimization.
package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/placer-foundation/placer/lib/clock"
	"github.com/placer-foundation/placer/lib/version"
	"github.com/placer-foundation/placer/source"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	pollInterval := flag.Duration("poll-interval", time.Minute,
		"base interval between polls of each uri")
	fetchTimeout := flag.Duration("fetch-timeout", 30*time.Second,
		"timeout for a single fetch")
	showVersion := flag.Bool("version", false,
		"print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("placer-source-http %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer := source.NewWriter(os.Stdout)
	if err := writer.WriteGreeting("placer-source-http"); err != nil {
		return fmt.Errorf("writing greeting: %w", err)
	}
	uris, err := source.ReadFetchList(os.Stdin)
	if err != nil {
		return err
	}
	if len(uris) == 0 {
		logger.Warn("empty fetch list, idling")
	}

	f := &fetcher{
		client:  &http.Client{Timeout: *fetchTimeout},
		writer:  writer,
		logger:  logger,
		etags:   make(map[string]string),
		digests: make(map[string][sha256.Size]byte),
	}

	clk := clock.Real()
	for {
		for _, uri := range uris {
			if ctx.Err() != nil {
				return nil
			}
			f.fetch(ctx, uri)
		}
		// Jitter up to a quarter interval spreads load across
		// machines polling the same server.
		delay := *pollInterval + time.Duration(rand.Int63n(int64(*pollInterval/4)+1))
		select {
		case <-ctx.Done():
			return nil
		case <-clk.After(delay):
		}
	}
}

type fetcher struct {
	client  *http.Client
	writer  *source.Writer
	logger  *slog.Logger
	etags   map[string]string
	digests map[string][sha256.Size]byte
}

// fetch polls one URI and emits a frame when the content changed.
// Failures are logged to stderr and never end the stream.
func (f *fetcher) fetch(ctx context.Context, uri string) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		f.logger.Error("building request", "uri", uri, "error", err)
		return
	}
	if etag := f.etags[uri]; etag != "" {
		request.Header.Set("If-None-Match", etag)
	}

	response, err := f.client.Do(request)
	if err != nil {
		f.logger.Error("fetch failed", "uri", uri, "error", err)
		return
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotModified:
		return
	case response.StatusCode != http.StatusOK:
		f.logger.Error("fetch failed", "uri", uri, "status", response.Status)
		return
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, source.MaxFrameSize+1))
	if err != nil {
		f.logger.Error("reading body", "uri", uri, "error", err)
		return
	}
	if len(body) > source.MaxFrameSize {
		f.logger.Error("pack too large", "uri", uri, "limit", source.MaxFrameSize)
		return
	}

	digest := sha256.Sum256(body)
	if previous, ok := f.digests[uri]; ok && previous == digest {
		// Server re-sent identical bytes (or dropped its ETag).
		f.etags[uri] = response.Header.Get("ETag")
		return
	}

	if err := f.writer.WriteFrame(uri, body); err != nil {
		f.logger.Error("writing frame", "uri", uri, "error", err)
		return
	}
	f.etags[uri] = response.Header.Get("ETag")
	f.digests[uri] = digest
	f.logger.Info("delivered pack", "uri", uri, "bytes", len(body))
}
