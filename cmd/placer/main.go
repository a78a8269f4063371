// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

// The placer daemon distributes privileged configuration files.
//
// It loads a keyring and a TOML configuration, starts one supervised
// subprocess per configured source, and for every delivered pack runs
// the pipeline: cache suppression, decode, signature verification,
// decryption, placement. Rejected packs are quarantined. Only startup
// failures (unreadable configuration or keyring) are fatal; every
// pack- and file-level failure is logged and contained.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/placer-foundation/placer/config"
	"github.com/placer-foundation/placer/keyring"
	"github.com/placer-foundation/placer/lib/clock"
	"github.com/placer-foundation/placer/lib/process"
	"github.com/placer-foundation/placer/lib/version"
	"github.com/placer-foundation/placer/place"
	"github.com/placer-foundation/placer/source"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/placer/placer.toml",
		"path of the daemon configuration file")
	identityPath := flag.String("keyring-identity", "",
		"path of the age identity used to open a sealed (.age) keyring")
	logLevel := flag.String("log-level", "info",
		"log level: debug, info, warn, or error")
	showVersion := flag.Bool("version", false,
		"print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("placer %s\n", version.Info())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", *logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ring, err := keyring.LoadAuto(cfg.Keyring, *identityPath)
	if err != nil {
		return fmt.Errorf("loading keyring: %w", err)
	}
	defer ring.Close()
	logger.Info("keyring loaded", "path", cfg.Keyring, "keys", ring.Len())

	specs, err := cfg.FileSpecs()
	if err != nil {
		return err
	}

	var cache *place.Cache
	if cfg.Cache.Path != "" {
		cache, err = place.NewCache(cfg.Cache.Path)
		if err != nil {
			return err
		}
	}
	quarantine, err := place.NewQuarantine(cfg.Quarantine.Path, cfg.QuarantineMode(), logger)
	if err != nil {
		return err
	}

	clk := clock.Real()
	engine := place.NewEngine(ring, specs, cache, quarantine, clk, logger)

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating own executable: %w", err)
	}
	binaryDir := filepath.Dir(executable)

	supervisor := source.NewSupervisor(binaryDir, cfg.SourceConfigs(),
		func(sourceName, packName string, frame *source.Frame) {
			engine.HandleFrame(sourceName, packName, frame.Data)
		},
		clk, logger)

	logger.Info("placer started", "sources", len(cfg.Sources), "files", len(cfg.Files))
	if err := supervisor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("placer shutting down")
	return nil
}
