// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `
keyring = "/etc/placer/keyring.toml"

[cache]
path = "/var/lib/placer/cache"

[quarantine]
path = "/var/lib/placer/quarantine"
mode = "0600"

[sources.corp-http]
kind = "http"

[sources.corp-http.packs]
wireguard = "https://packs.corp/wireguard"
ssh = "https://packs.corp/ssh"

[files."/etc/wireguard/wg0.conf"]
pack = "wireguard"
filename = "wg0.conf"
mode = "0600"
after = [["systemctl", "reload", "wg-quick@wg0"]]

[files."/etc/ssh/authorized_keys"]
pack = "ssh"
mode = "0644"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "placer.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Keyring != "/etc/placer/keyring.toml" {
		t.Errorf("Keyring = %q", cfg.Keyring)
	}
	src, ok := cfg.Sources["corp-http"]
	if !ok {
		t.Fatal("source corp-http missing")
	}
	if src.Kind != "http" || len(src.Packs) != 2 {
		t.Errorf("source = %+v", src)
	}
	if cfg.QuarantineMode() != 0o600 {
		t.Errorf("QuarantineMode() = %o", cfg.QuarantineMode())
	}
}

func TestLoadFileSpecs(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	specs, err := cfg.FileSpecs()
	if err != nil {
		t.Fatalf("FileSpecs() error: %v", err)
	}

	wg := specs["wireguard"]
	if len(wg) != 1 {
		t.Fatalf("wireguard has %d specs, want 1", len(wg))
	}
	if wg[0].Path != "/etc/wireguard/wg0.conf" || wg[0].Mode != 0o600 {
		t.Errorf("spec = %+v", wg[0])
	}
	if len(wg[0].After) != 1 || wg[0].After[0][0] != "systemctl" {
		t.Errorf("after hooks = %v", wg[0].After)
	}

	// Filename defaults to the basename of the target path.
	ssh := specs["ssh"]
	if len(ssh) != 1 || ssh[0].Filename != "authorized_keys" {
		t.Errorf("ssh specs = %+v", ssh)
	}
}

func TestLoadSourceConfigs(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	sources := cfg.SourceConfigs()
	if len(sources) != 1 {
		t.Fatalf("SourceConfigs() returned %d, want 1", len(sources))
	}
	if sources[0].Name != "corp-http" || sources[0].Kind != "http" {
		t.Errorf("source config = %+v", sources[0])
	}
	if sources[0].URIs["wireguard"] != "https://packs.corp/wireguard" {
		t.Errorf("URIs = %v", sources[0].URIs)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "missing keyring",
			content: strings.Replace(validConfig, `keyring = "/etc/placer/keyring.toml"`, "", 1),
			wantMsg: "keyring path is required",
		},
		{
			name:    "no sources",
			content: "keyring = \"/k\"\n[quarantine]\npath = \"/q\"\n",
			wantMsg: "at least one source",
		},
		{
			name: "duplicate uri in source",
			content: strings.Replace(validConfig,
				`ssh = "https://packs.corp/ssh"`,
				`ssh = "https://packs.corp/wireguard"`, 1),
			wantMsg: "share uri",
		},
		{
			name: "non-canonical file path",
			content: strings.Replace(validConfig,
				`[files."/etc/wireguard/wg0.conf"]`,
				`[files."/etc/../etc/wireguard/wg0.conf"]`, 1),
			wantMsg: "not canonical",
		},
		{
			name: "unreferenced pack",
			content: strings.Replace(validConfig,
				`pack = "wireguard"`,
				`pack = "nobody-fetches-this"`, 1),
			wantMsg: "no source fetches",
		},
		{
			name:    "bad mode",
			content: strings.Replace(validConfig, `mode = "0644"`, `mode = "rw-r--r--"`, 1),
			wantMsg: "not octal",
		},
		{
			name:    "unknown key",
			content: validConfig + "\ntypo_key = true\n",
			wantMsg: "unknown key",
		},
		{
			name:    "missing quarantine",
			content: strings.Replace(validConfig, "[quarantine]\npath = \"/var/lib/placer/quarantine\"\nmode = \"0600\"", "", 1),
			wantMsg: "quarantine path",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Load() error = %v, want *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error = %q, want substring %q", err, tc.wantMsg)
			}
		})
	}
}

func TestFileSpecsUnknownUser(t *testing.T) {
	content := strings.Replace(validConfig,
		`filename = "wg0.conf"`,
		"filename = \"wg0.conf\"\nuser = \"no-such-user-placer-test\"", 1)
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	_, err = cfg.FileSpecs()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("FileSpecs() error = %v, want *ConfigError", err)
	}
}
