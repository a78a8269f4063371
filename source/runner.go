// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

// binaryPrefix names source executables: a source of kind "http" is
// the binary "placer-source-http" next to the placer binary.
const binaryPrefix = "placer-source-"

// Config describes one configured source.
type Config struct {
	// Name identifies the source in configuration and logs.
	Name string

	// Kind selects the source executable.
	Kind string

	// URIs is the fetch list handed to the source at startup, mapped
	// by pack name. Map iteration order does not matter; each frame
	// carries its URI back.
	URIs map[string]string

	// User and Group are the credentials the source process runs
	// under. Empty means inherit the daemon's credentials.
	User  string
	Group string
}

// FetchURIs returns the configured fetch list in a stable order.
func (c *Config) FetchURIs() []string {
	uris := make([]string, 0, len(c.URIs))
	for _, uri := range c.URIs {
		uris = append(uris, uri)
	}
	// Sorted so restarts send an identical list.
	sort.Strings(uris)
	return uris
}

// PackName maps a frame URI back to the pack name that requested it.
// Fails with *UnknownURIError for a URI absent from the fetch list.
func (c *Config) PackName(uri string) (string, error) {
	for name, configured := range c.URIs {
		if configured == uri {
			return name, nil
		}
	}
	return "", &UnknownURIError{Source: c.Name, URI: uri}
}

// UnknownURIError reports a frame for a URI the daemon never asked
// this source to fetch. Fail-closed: the pack is discarded unopened.
type UnknownURIError struct {
	Source string
	URI    string
}

func (e *UnknownURIError) Error() string {
	return fmt.Sprintf("source %s delivered %q: I never asked for this", e.Source, e.URI)
}

// Process is one running source subprocess with the handshake
// completed and the fetch list delivered.
type Process struct {
	cmd      *exec.Cmd
	reader   *Reader
	greeting string
}

// Start spawns the source executable for cfg from binaryDir, drops
// credentials, performs the greeting handshake, and writes the fetch
// list. The context kills the subprocess when cancelled. stderr lines
// are relayed to the logger as they arrive.
func Start(ctx context.Context, binaryDir string, cfg Config, logger *slog.Logger) (*Process, error) {
	if strings.ContainsAny(cfg.Kind, "/ ") || cfg.Kind == "" {
		return nil, fmt.Errorf("source %s: invalid kind %q", cfg.Name, cfg.Kind)
	}
	binary := filepath.Join(binaryDir, binaryPrefix+cfg.Kind)

	cmd := exec.CommandContext(ctx, binary)
	// Own process group for clean shutdown.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if cfg.User != "" || cfg.Group != "" {
		credential, err := resolveCredential(cfg.User, cfg.Group)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
		}
		cmd.SysProcAttr.Credential = credential
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("source %s: stdin pipe: %w", cfg.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("source %s: stdout pipe: %w", cfg.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("source %s: stderr pipe: %w", cfg.Name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("source %s: starting %s: %w", cfg.Name, binary, err)
	}

	go relayStderr(stderr, cfg.Name, logger)

	reader := NewReader(stdout)
	greeting, err := reader.ReadGreeting()
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
	}
	if err := WriteFetchList(stdin, cfg.FetchURIs()); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
	}

	return &Process{cmd: cmd, reader: reader, greeting: greeting}, nil
}

// stderrLineLimit caps one relayed diagnostic line. The default
// scanner token size is 64 KiB; a longer line must not end the relay
// for the rest of the subprocess's lifetime, so the buffer is raised
// and a scan failure is logged instead of swallowed.
const stderrLineLimit = 1 << 20

// relayStderr logs each subprocess stderr line until the stream ends.
func relayStderr(r io.Reader, sourceName string, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), stderrLineLimit)
	for scanner.Scan() {
		logger.Warn("source stderr", "source", sourceName, "line", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("source stderr relay ended", "source", sourceName, "error", err)
	}
}

// Greeting returns the text the source announced itself with.
func (p *Process) Greeting() string { return p.greeting }

// Next reads the next frame from the source. Same error contract as
// Reader.Next.
func (p *Process) Next() (*Frame, error) {
	return p.reader.Next()
}

// Close kills the subprocess if still running and reaps it.
func (p *Process) Close() error {
	p.cmd.Process.Kill()
	return p.cmd.Wait()
}

// resolveCredential turns user and group names into a syscall
// credential. Numeric names are accepted as raw ids.
func resolveCredential(userName, groupName string) (*syscall.Credential, error) {
	credential := &syscall.Credential{}
	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return nil, fmt.Errorf("resolving user %q: %w", userName, err)
		}
		uid, err := strconv.ParseUint(u.Uid, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("uid of %q: %w", userName, err)
		}
		gid, err := strconv.ParseUint(u.Gid, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("primary gid of %q: %w", userName, err)
		}
		credential.Uid = uint32(uid)
		credential.Gid = uint32(gid)
	}
	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return nil, fmt.Errorf("resolving group %q: %w", groupName, err)
		}
		gid, err := strconv.ParseUint(g.Gid, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("gid of %q: %w", groupName, err)
		}
		credential.Gid = uint32(gid)
	}
	return credential, nil
}
