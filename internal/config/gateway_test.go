// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig grava um YAML temporário e retorna o caminho.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validConfig = `
gateway:
  name: edge-01
http:
  listen: ":8080"
  hash_secret: "super-secret"
  throttle_rate: "4mb"
admin:
  enabled: true
  listen: "127.0.0.1:9848"
  allow_origins:
    - "127.0.0.1"
    - "10.0.0.0/8"
store:
  channel_id: -1001234567890
  workers: 4
  home_dc: 2
  datacenters:
    1: "dc1.msgstore.internal:8443"
    2: "dc2.msgstore.internal:8443"
    4: "dc4.msgstore.internal:8443"
  tls:
    ca_cert: /etc/nstream/pki/ca.pem
    client_cert: /etc/nstream/pki/client.pem
    client_key: /etc/nstream/pki/client-key.pem
engine:
  chunk_size: "1mb"
  clean_interval: 15m
logging:
  level: debug
  format: text
`

func TestLoadGatewayConfig(t *testing.T) {
	cfg, err := LoadGatewayConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadGatewayConfig: %v", err)
	}

	if cfg.Gateway.Name != "edge-01" {
		t.Errorf("expected name edge-01, got %q", cfg.Gateway.Name)
	}
	if cfg.Store.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Store.Workers)
	}
	if cfg.Store.HomeDC != 2 {
		t.Errorf("expected home dc 2, got %d", cfg.Store.HomeDC)
	}
	if len(cfg.Store.Datacenters) != 3 {
		t.Errorf("expected 3 datacenters, got %d", len(cfg.Store.Datacenters))
	}
	if cfg.HTTP.ThrottleRaw != 4*1024*1024 {
		t.Errorf("expected throttle 4MB, got %d", cfg.HTTP.ThrottleRaw)
	}
	if cfg.Engine.ChunkSizeRaw != 1024*1024 {
		t.Errorf("expected chunk 1MB, got %d", cfg.Engine.ChunkSizeRaw)
	}
	if cfg.Engine.CleanInterval != 15*time.Minute {
		t.Errorf("expected clean interval 15m, got %s", cfg.Engine.CleanInterval)
	}
	if len(cfg.Admin.ParsedCIDRs) != 2 {
		t.Fatalf("expected 2 parsed CIDRs, got %d", len(cfg.Admin.ParsedCIDRs))
	}
	// IP puro vira /32
	if ones, _ := cfg.Admin.ParsedCIDRs[0].Mask.Size(); ones != 32 {
		t.Errorf("expected /32 for bare IP, got /%d", ones)
	}
}

func TestLoadGatewayConfigDefaults(t *testing.T) {
	minimal := `
http:
  hash_secret: "s"
store:
  channel_id: -100
  home_dc: 1
  datacenters:
    1: "dc1:8443"
  tls:
    ca_cert: ca.pem
    client_cert: client.pem
    client_key: key.pem
`
	cfg, err := LoadGatewayConfig(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("LoadGatewayConfig: %v", err)
	}

	if cfg.Gateway.Name != "nstream" {
		t.Errorf("expected default name, got %q", cfg.Gateway.Name)
	}
	if cfg.HTTP.Listen != ":8080" {
		t.Errorf("expected default listen, got %q", cfg.HTTP.Listen)
	}
	if cfg.HTTP.ReadTimeout != 10*time.Second {
		t.Errorf("expected default read timeout, got %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.Admin.Listen != "127.0.0.1:9848" {
		t.Errorf("expected default admin listen, got %q", cfg.Admin.Listen)
	}
	if cfg.Store.Workers != 1 {
		t.Errorf("expected default 1 worker, got %d", cfg.Store.Workers)
	}
	if cfg.Store.RPCTimeout != 30*time.Second {
		t.Errorf("expected default rpc timeout, got %s", cfg.Store.RPCTimeout)
	}
	if cfg.Engine.ChunkSizeRaw != 1024*1024 {
		t.Errorf("expected default 1MB chunk, got %d", cfg.Engine.ChunkSizeRaw)
	}
	if cfg.Engine.CleanInterval != 30*time.Minute {
		t.Errorf("expected default 30m clean interval, got %s", cfg.Engine.CleanInterval)
	}
	if cfg.Engine.AuthRetryLimit != 3 {
		t.Errorf("expected default 3 auth retries, got %d", cfg.Engine.AuthRetryLimit)
	}
	if cfg.Engine.AuthSettleDelay != time.Second {
		t.Errorf("expected default 1s settle delay, got %s", cfg.Engine.AuthSettleDelay)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected default logging, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadGatewayConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			"hash secret obrigatório",
			func(c string) string { return strings.Replace(c, `hash_secret: "super-secret"`, "", 1) },
			"hash_secret",
		},
		{
			"channel obrigatório",
			func(c string) string { return strings.Replace(c, "channel_id: -1001234567890", "channel_id: 0", 1) },
			"channel_id",
		},
		{
			"workers fora do limite",
			func(c string) string { return strings.Replace(c, "workers: 4", "workers: 64", 1) },
			"workers",
		},
		{
			"home dc sem endereço",
			func(c string) string { return strings.Replace(c, "home_dc: 2", "home_dc: 9", 1) },
			"home_dc",
		},
		{
			"chunk pequeno demais",
			func(c string) string { return strings.Replace(c, `chunk_size: "1mb"`, `chunk_size: "4kb"`, 1) },
			"chunk_size",
		},
		{
			"chunk grande demais",
			func(c string) string { return strings.Replace(c, `chunk_size: "1mb"`, `chunk_size: "64mb"`, 1) },
			"chunk_size",
		},
		{
			"throttle inválido",
			func(c string) string { return strings.Replace(c, `throttle_rate: "4mb"`, `throttle_rate: "fast"`, 1) },
			"throttle_rate",
		},
		{
			"origin inválida",
			func(c string) string { return strings.Replace(c, `- "127.0.0.1"`, `- "not-an-ip"`, 1) },
			"allow_origins",
		},
		{
			"ca cert obrigatório",
			func(c string) string { return strings.Replace(c, "ca_cert: /etc/nstream/pki/ca.pem", "", 1) },
			"ca_cert",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGatewayConfig(writeConfig(t, tt.mutate(validConfig)))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadGatewayConfigMissingFile(t *testing.T) {
	if _, err := LoadGatewayConfig("/nonexistent/gateway.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		err  bool
	}{
		{"1mb", 1024 * 1024, false},
		{"256kb", 256 * 1024, false},
		{"2gb", 2 * 1024 * 1024 * 1024, false},
		{"512b", 512, false},
		{"1024", 1024, false},
		{"1MB", 1024 * 1024, false},
		{" 4mb ", 4 * 1024 * 1024, false},
		{"", 0, true},
		{"abc", 0, true},
		{"12xb", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if tt.err {
			if err == nil {
				t.Errorf("ParseByteSize(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseByteSize(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
