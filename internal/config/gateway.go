// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config carrega e valida a configuração YAML do nstream-gateway.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GatewayConfig representa a configuração completa do nstream-gateway.
type GatewayConfig struct {
	Gateway GatewayInfo `yaml:"gateway"`
	HTTP    HTTPInfo    `yaml:"http"`
	Admin   AdminInfo   `yaml:"admin"`
	Store   StoreInfo   `yaml:"store"`
	Engine  EngineInfo  `yaml:"engine"`
	Logging LoggingInfo `yaml:"logging"`
}

// GatewayInfo identifica a instância do gateway.
type GatewayInfo struct {
	Name string `yaml:"name"`
}

// HTTPInfo configura o listener público de streaming.
type HTTPInfo struct {
	Listen       string        `yaml:"listen"`        // default: ":8080"
	PublicURL    string        `yaml:"public_url"`    // base dos links gerados (opcional)
	HashSecret   string        `yaml:"hash_secret"`   // segredo do hash de URL assinada
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 10s
	IdleTimeout  time.Duration `yaml:"idle_timeout"`  // default: 120s
	ThrottleRate string        `yaml:"throttle_rate"` // bytes/s por stream, ex "4mb"; vazio/0 = sem limite
	ThrottleRaw  int64         `yaml:"-"`
	GzipDownload bool          `yaml:"gzip_download"` // Content-Encoding: gzip em downloads completos
}

// AdminInfo configura o listener da API de observabilidade.
type AdminInfo struct {
	Enabled      bool     `yaml:"enabled"`
	Listen       string   `yaml:"listen"`        // default: "127.0.0.1:9848"
	AllowOrigins []string `yaml:"allow_origins"` // IP ou CIDR (deny-by-default)

	// Parsed é preenchido em validate(); não vem do YAML.
	ParsedCIDRs []*net.IPNet `yaml:"-"`
}

// StoreInfo configura o acesso ao MsgStore.
type StoreInfo struct {
	ChannelID   int64          `yaml:"channel_id"` // canal de armazenamento dos arquivos
	Workers     int            `yaml:"workers"`    // clients pré-autenticados (1-16, default 1)
	HomeDC      int            `yaml:"home_dc"`
	Datacenters map[int]string `yaml:"datacenters"` // dc id → host:port
	RPCTimeout  time.Duration  `yaml:"rpc_timeout"` // default: 30s
	TLS         TLSClient      `yaml:"tls"`
}

// TLSClient contém os caminhos dos certificados mTLS do client.
type TLSClient struct {
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// EngineInfo configura o motor de streaming.
type EngineInfo struct {
	ChunkSize       string        `yaml:"chunk_size"` // ex: "1mb" (default: 1mb)
	ChunkSizeRaw    int64         `yaml:"-"`
	CleanInterval   time.Duration `yaml:"clean_interval"`    // sweep do cache de locators (default: 30m)
	AuthRetryLimit  int           `yaml:"auth_retry_limit"`  // default: 3
	AuthSettleDelay time.Duration `yaml:"auth_settle_delay"` // default: 1s
}

// LoggingInfo contém configurações de logging.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// LoadGatewayConfig lê e valida o arquivo YAML de configuração do gateway.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gateway config: %w", err)
	}

	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing gateway config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating gateway config: %w", err)
	}

	return &cfg, nil
}

func (c *GatewayConfig) validate() error {
	if c.Gateway.Name == "" {
		c.Gateway.Name = "nstream"
	}

	// HTTP
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8080"
	}
	if c.HTTP.HashSecret == "" {
		return fmt.Errorf("http.hash_secret is required")
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.IdleTimeout <= 0 {
		c.HTTP.IdleTimeout = 120 * time.Second
	}
	if c.HTTP.ThrottleRate != "" {
		parsed, err := ParseByteSize(c.HTTP.ThrottleRate)
		if err != nil {
			return fmt.Errorf("http.throttle_rate: %w", err)
		}
		c.HTTP.ThrottleRaw = parsed
	}

	// Admin
	if c.Admin.Listen == "" {
		c.Admin.Listen = "127.0.0.1:9848"
	}
	c.Admin.ParsedCIDRs = nil
	for i, origin := range c.Admin.AllowOrigins {
		cidr, err := parseOrigin(origin)
		if err != nil {
			return fmt.Errorf("admin.allow_origins[%d]: %w", i, err)
		}
		c.Admin.ParsedCIDRs = append(c.Admin.ParsedCIDRs, cidr)
	}

	// Store
	if c.Store.ChannelID == 0 {
		return fmt.Errorf("store.channel_id is required")
	}
	if c.Store.Workers == 0 {
		c.Store.Workers = 1
	}
	if c.Store.Workers < 1 || c.Store.Workers > 16 {
		return fmt.Errorf("store.workers must be between 1 and 16, got %d", c.Store.Workers)
	}
	if len(c.Store.Datacenters) == 0 {
		return fmt.Errorf("store.datacenters must have at least one entry")
	}
	if c.Store.HomeDC == 0 {
		return fmt.Errorf("store.home_dc is required")
	}
	if _, ok := c.Store.Datacenters[c.Store.HomeDC]; !ok {
		return fmt.Errorf("store.home_dc %d has no address in store.datacenters", c.Store.HomeDC)
	}
	if c.Store.RPCTimeout <= 0 {
		c.Store.RPCTimeout = 30 * time.Second
	}
	if c.Store.TLS.CACert == "" {
		return fmt.Errorf("store.tls.ca_cert is required")
	}
	if c.Store.TLS.ClientCert == "" {
		return fmt.Errorf("store.tls.client_cert is required")
	}
	if c.Store.TLS.ClientKey == "" {
		return fmt.Errorf("store.tls.client_key is required")
	}

	// Engine
	if c.Engine.ChunkSize == "" {
		c.Engine.ChunkSize = "1mb"
	}
	chunkParsed, err := ParseByteSize(c.Engine.ChunkSize)
	if err != nil {
		return fmt.Errorf("engine.chunk_size: %w", err)
	}
	if chunkParsed < 64*1024 {
		return fmt.Errorf("engine.chunk_size must be at least 64kb, got %s", c.Engine.ChunkSize)
	}
	if chunkParsed > 8*1024*1024 {
		return fmt.Errorf("engine.chunk_size must be at most 8mb, got %s", c.Engine.ChunkSize)
	}
	c.Engine.ChunkSizeRaw = chunkParsed

	if c.Engine.CleanInterval <= 0 {
		c.Engine.CleanInterval = 30 * time.Minute
	}
	if c.Engine.AuthRetryLimit <= 0 {
		c.Engine.AuthRetryLimit = 3
	}
	if c.Engine.AuthSettleDelay <= 0 {
		c.Engine.AuthSettleDelay = time.Second
	}

	// Logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

// parseOrigin aceita um CIDR ("10.0.0.0/8") ou um IP puro ("10.1.2.3"),
// convertendo o IP em /32 (ou /128 para IPv6).
func parseOrigin(origin string) (*net.IPNet, error) {
	if strings.Contains(origin, "/") {
		_, cidr, err := net.ParseCIDR(origin)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", origin, err)
		}
		return cidr, nil
	}
	ip := net.ParseIP(origin)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP %q", origin)
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// ParseByteSize converte strings human-readable como "256kb", "1mb" para bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Ordenado do sufixo mais longo para o mais curto
	// para evitar que "mb" matche como "b"
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	// Tenta interpretar como número puro (bytes)
	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
