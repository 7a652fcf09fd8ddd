// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nishisan-dev/n-stream/internal/config"
	"github.com/nishisan-dev/n-stream/internal/engine"
	"github.com/nishisan-dev/n-stream/internal/gateway"
	"github.com/nishisan-dev/n-stream/internal/logging"
	"github.com/nishisan-dev/n-stream/internal/msgstore"
	"github.com/nishisan-dev/n-stream/internal/observability"
	"github.com/nishisan-dev/n-stream/internal/pki"
)

// engineMetrics adapta o Engine para a interface da API de observabilidade.
type engineMetrics struct {
	eng *engine.Engine
}

func (m engineMetrics) MetricsSnapshot() observability.MetricsData {
	s := m.eng.MetricsSnapshot()
	return observability.MetricsData{
		BytesServed:    s.BytesServed,
		StreamsStarted: s.StreamsStarted,
		ActiveStreams:  s.ActiveStreams,
		Loads:          s.Loads,
		CachedLocators: s.CachedLocators,
		Sessions:       s.Sessions,
	}
}

func main() {
	configPath := flag.String("config", "/etc/nstream/gateway.yaml", "path to gateway config file")
	flag.Parse()

	cfg, err := config.LoadGatewayConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	// Context com cancelamento via signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	tlsCfg, err := pki.NewClientTLSConfig(cfg.Store.TLS.CACert, cfg.Store.TLS.ClientCert, cfg.Store.TLS.ClientKey)
	if err != nil {
		logger.Error("configuring TLS", "error", err)
		os.Exit(1)
	}

	// Autentica os workers no DC home
	clients := make([]*msgstore.Client, cfg.Store.Workers)
	workers := make([]engine.Worker, cfg.Store.Workers)
	for i := range clients {
		c := msgstore.NewClient(msgstore.ClientConfig{
			HomeDC:     cfg.Store.HomeDC,
			DCAddrs:    cfg.Store.Datacenters,
			TLS:        tlsCfg,
			RPCTimeout: cfg.Store.RPCTimeout,
			Logger:     logger.With("worker", i),
		})
		if err := c.Start(ctx); err != nil {
			logger.Error("starting msgstore client", "worker", i, "error", err)
			os.Exit(1)
		}
		clients[i] = c
		workers[i] = engine.NewWorker(c)
	}
	defer func() {
		for _, c := range clients {
			c.Stop()
		}
	}()

	eng, err := engine.New(engine.Config{
		StoreChannelID:  cfg.Store.ChannelID,
		ChunkSize:       int(cfg.Engine.ChunkSizeRaw),
		CleanInterval:   cfg.Engine.CleanInterval,
		AuthRetryLimit:  cfg.Engine.AuthRetryLimit,
		AuthSettleDelay: cfg.Engine.AuthSettleDelay,
	}, workers, logger)
	if err != nil {
		logger.Error("creating engine", "error", err)
		os.Exit(1)
	}
	if err := eng.Start(); err != nil {
		logger.Error("starting engine", "error", err)
		os.Exit(1)
	}
	defer eng.Stop()

	// API de administração (opcional)
	if cfg.Admin.Enabled {
		monitor := observability.NewSystemMonitor(logger)
		monitor.Start()
		defer monitor.Stop()

		acl := observability.NewACL(cfg.Admin.ParsedCIDRs)
		router := observability.NewRouter(engineMetrics{eng}, monitor, acl)
		go func() {
			if err := observability.Serve(ctx, cfg.Admin.Listen, router, logger); err != nil {
				logger.Error("admin api error", "error", err)
			}
		}()
	}

	if err := gateway.Run(ctx, cfg, eng, logger); err != nil {
		logger.Error("gateway error", "error", err)
		os.Exit(1)
	}
}
