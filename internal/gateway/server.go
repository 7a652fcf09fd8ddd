// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nishisan-dev/n-stream/internal/config"
	"github.com/nishisan-dev/n-stream/internal/engine"
)

// startTime registra quando o processo iniciou (para o /status).
var startTime = time.Now()

// Version é preenchida via ldflags no build (-X ...Version=x.y.z).
var Version = "dev"

// Run inicia o listener público de streaming e bloqueia até o context ser
// cancelado.
func Run(ctx context.Context, cfg *config.GatewayConfig, eng *engine.Engine, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.HTTP.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.HTTP.Listen, err)
	}
	logger.Info("gateway listening", "address", cfg.HTTP.Listen)
	return RunWithListener(ctx, ln, cfg, eng, logger)
}

// RunWithListener inicia o gateway com um listener já existente (para testes).
func RunWithListener(ctx context.Context, ln net.Listener, cfg *config.GatewayConfig, eng *engine.Engine, logger *slog.Logger) error {
	handler := NewHandler(cfg, eng, logger)

	srv := &http.Server{
		Handler: handler.Routes(),
		// WriteTimeout fica de fora de propósito: streams longos vivem
		// enquanto o cliente consumir. IdleTimeout cobre conexões paradas.
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
		}
		<-errCh
		logger.Info("gateway shutdown complete")
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// handleStatus expõe um resumo operacional do gateway em JSON.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	m := h.engine.MetricsSnapshot()
	resp := map[string]interface{}{
		"gateway":         h.cfg.Gateway.Name,
		"version":         Version,
		"uptime":          time.Since(startTime).String(),
		"workers":         h.engine.Workers(),
		"loads":           m.Loads,
		"active_streams":  m.ActiveStreams,
		"streams_started": m.StreamsStarted,
		"bytes_served":    m.BytesServed,
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(resp)
}
