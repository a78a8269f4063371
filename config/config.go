// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the placer daemon configuration.
//
// The configuration is TOML, conventionally /etc/placer/placer.toml.
// Every cross-reference and name is resolved at load: user and group
// names become numeric ids, modes are parsed from octal strings, and
// each file rule is checked against the sources that can feed it.
// A configuration that loads is one the daemon can run with; all
// validation failures are fatal at startup.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/placer-foundation/placer/place"
	"github.com/placer-foundation/placer/source"
)

// ConfigError reports an invalid configuration. Always fatal: the
// daemon refuses to start rather than run with a partial config.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config is the parsed and validated daemon configuration.
type Config struct {
	// Keyring is the path of the keyring file.
	Keyring string `toml:"keyring"`

	// Cache configures pack caching. An empty path disables it.
	Cache StoreSection `toml:"cache"`

	// Quarantine configures where rejected packs are retained.
	Quarantine StoreSection `toml:"quarantine"`

	// Sources maps source name to its definition.
	Sources map[string]SourceSection `toml:"sources"`

	// Files maps target path to its placement rule.
	Files map[string]FileSection `toml:"files"`
}

// StoreSection configures an on-disk store directory.
type StoreSection struct {
	Path string `toml:"path"`
	Mode string `toml:"mode"`
}

// SourceSection defines one pack source.
type SourceSection struct {
	Kind  string            `toml:"kind"`
	User  string            `toml:"user"`
	Group string            `toml:"group"`
	Packs map[string]string `toml:"packs"`
}

// FileSection defines one placement rule, keyed by target path.
type FileSection struct {
	Pack     string     `toml:"pack"`
	Filename string     `toml:"filename"`
	User     string     `toml:"user"`
	Group    string     `toml:"group"`
	Mode     string     `toml:"mode"`
	Before   [][]string `toml:"before"`
	After    [][]string `toml:"after"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	metadata, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, &ConfigError{Path: path, Reason: "parsing", Err: err}
	}
	if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
		return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("unknown key %q", undecoded[0].String())}
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate(path string) error {
	fail := func(reason string, args ...any) error {
		return &ConfigError{Path: path, Reason: fmt.Sprintf(reason, args...)}
	}

	if c.Keyring == "" {
		return fail("keyring path is required")
	}
	if len(c.Sources) == 0 {
		return fail("at least one source is required")
	}

	packSources := make(map[string]int)
	for name, src := range c.Sources {
		if src.Kind == "" {
			return fail("source %s has no kind", name)
		}
		if len(src.Packs) == 0 {
			return fail("source %s fetches no packs", name)
		}
		seenURIs := make(map[string]string)
		for packName, uri := range src.Packs {
			if uri == "" {
				return fail("source %s: pack %s has an empty uri", name, packName)
			}
			if previous, dup := seenURIs[uri]; dup {
				return fail("source %s: packs %s and %s share uri %s", name, previous, packName, uri)
			}
			seenURIs[uri] = packName
			packSources[packName]++
		}
	}

	for targetPath, file := range c.Files {
		if targetPath != filepath.Clean(targetPath) || !filepath.IsAbs(targetPath) {
			return fail("file path %q is not canonical and absolute", targetPath)
		}
		if file.Pack == "" {
			return fail("file %s names no pack", targetPath)
		}
		if packSources[file.Pack] == 0 {
			return fail("file %s references pack %s, which no source fetches", targetPath, file.Pack)
		}
		if file.Mode == "" {
			return fail("file %s has no mode", targetPath)
		}
		if _, err := parseMode(file.Mode); err != nil {
			return fail("file %s: %v", targetPath, err)
		}
	}

	if c.Quarantine.Path == "" {
		return fail("quarantine path is required")
	}
	for _, store := range []StoreSection{c.Cache, c.Quarantine} {
		if store.Mode != "" {
			if _, err := parseMode(store.Mode); err != nil {
				return fail("%v", err)
			}
		}
	}
	return nil
}

// parseMode parses an octal mode string like "0600".
func parseMode(s string) (uint32, error) {
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("mode %q is not octal", s)
	}
	if mode&^uint64(0o7777) != 0 {
		return 0, fmt.Errorf("mode %q has bits outside %04o", s, 0o7777)
	}
	return uint32(mode), nil
}

// QuarantineMode returns the configured quarantine artifact mode,
// defaulting to owner-only.
func (c *Config) QuarantineMode() os.FileMode {
	if c.Quarantine.Mode == "" {
		return 0o600
	}
	mode, _ := parseMode(c.Quarantine.Mode)
	return os.FileMode(mode)
}

// SourceConfigs converts the source sections into runner
// configurations.
func (c *Config) SourceConfigs() []source.Config {
	configs := make([]source.Config, 0, len(c.Sources))
	for name, src := range c.Sources {
		configs = append(configs, source.Config{
			Name:  name,
			Kind:  src.Kind,
			URIs:  src.Packs,
			User:  src.User,
			Group: src.Group,
		})
	}
	return configs
}

// FileSpecs resolves the file sections into placement rules grouped
// by pack name. User and group names are looked up here, once, so the
// daemon fails at startup on an unknown name rather than at placement
// time.
func (c *Config) FileSpecs() (map[string][]*place.FileSpec, error) {
	specs := make(map[string][]*place.FileSpec)
	for targetPath, file := range c.Files {
		uid, gid, err := resolveOwner(file.User, file.Group)
		if err != nil {
			return nil, &ConfigError{Path: targetPath, Reason: "resolving owner", Err: err}
		}
		mode, err := parseMode(file.Mode)
		if err != nil {
			return nil, &ConfigError{Path: targetPath, Reason: "parsing mode", Err: err}
		}
		filename := file.Filename
		if filename == "" {
			filename = filepath.Base(targetPath)
		}

		spec := &place.FileSpec{
			Path:     targetPath,
			Pack:     file.Pack,
			Filename: filename,
			UID:      uid,
			GID:      gid,
			Mode:     mode,
			Before:   toHooks(file.Before),
			After:    toHooks(file.After),
		}
		if err := spec.Validate(); err != nil {
			return nil, &ConfigError{Path: targetPath, Reason: "file rule", Err: err}
		}
		specs[file.Pack] = append(specs[file.Pack], spec)
	}
	return specs, nil
}

func toHooks(commands [][]string) []place.Hook {
	hooks := make([]place.Hook, 0, len(commands))
	for _, argv := range commands {
		hooks = append(hooks, place.Hook(argv))
	}
	return hooks
}

// resolveOwner maps user and group names to numeric ids. Empty names
// mean the daemon's own credentials (-1 for chown).
func resolveOwner(userName, groupName string) (int, int, error) {
	uid, gid := -1, -1
	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return 0, 0, fmt.Errorf("unknown user %q: %w", userName, err)
		}
		parsed, err := strconv.Atoi(u.Uid)
		if err != nil {
			return 0, 0, fmt.Errorf("uid of %q: %w", userName, err)
		}
		uid = parsed
	}
	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return 0, 0, fmt.Errorf("unknown group %q: %w", groupName, err)
		}
		parsed, err := strconv.Atoi(g.Gid)
		if err != nil {
			return 0, 0, fmt.Errorf("gid of %q: %w", groupName, err)
		}
		gid = parsed
	}
	return uid, gid, nil
}
