// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"
)

// startTime registra quando o processo iniciou (para cálculo de uptime).
var startTime = time.Now()

// Version é preenchida via ldflags no build (-X ...Version=x.y.z).
var Version = "dev"

// EngineMetrics define a interface read-only que o router precisa do engine.
// Isso desacopla o pacote observability do engine sem expor o Engine inteiro.
type EngineMetrics interface {
	MetricsSnapshot() MetricsData
}

// MetricsData contém os dados de métricas coletados do engine.
type MetricsData struct {
	BytesServed    int64
	StreamsStarted int64
	ActiveStreams  int64
	Loads          []int64
	CachedLocators int
	Sessions       int
}

// NewRouter cria o http.Handler para a API de observabilidade.
// Aplica middleware ACL em todas as rotas.
func NewRouter(metrics EngineMetrics, monitor *SystemMonitor, acl *ACL) http.Handler {
	mux := http.NewServeMux()

	// API v1
	mux.HandleFunc("GET /api/v1/health", handleHealth)
	mux.HandleFunc("GET /api/v1/metrics", makeMetricsHandler(metrics, monitor))
	mux.HandleFunc("GET /api/v1/workers", makeWorkersHandler(metrics))

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html><html><head><title>N-Stream Admin</title></head><body><h1>N-Stream Gateway</h1><p>API em /api/v1.</p></body></html>`))
	})

	return acl.Middleware(mux)
}

// Serve atende a API de administração no endereço dado até o context ser
// cancelado.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	logger.Info("admin api listening", "address", addr)

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// handleHealth retorna status do processo, uptime e versão.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(startTime)
	resp := map[string]interface{}{
		"status":  "ok",
		"uptime":  uptime.String(),
		"version": Version,
		"go":      runtime.Version(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// makeMetricsHandler retorna um handler que junta métricas do engine e do
// sistema.
func makeMetricsHandler(metrics EngineMetrics, monitor *SystemMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := metrics.MetricsSnapshot()
		resp := map[string]interface{}{
			"bytes_served":    data.BytesServed,
			"streams_started": data.StreamsStarted,
			"active_streams":  data.ActiveStreams,
			"cached_locators": data.CachedLocators,
			"media_sessions":  data.Sessions,
		}
		if monitor != nil {
			sys := monitor.Stats()
			resp["system"] = map[string]interface{}{
				"cpu_percent":    sys.CPUPercent,
				"memory_percent": sys.MemoryPercent,
				"load_average":   sys.LoadAverage,
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// makeWorkersHandler expõe a carga corrente de cada worker.
func makeWorkersHandler(metrics EngineMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := metrics.MetricsSnapshot()
		workers := make([]map[string]interface{}, len(data.Loads))
		for i, l := range data.Loads {
			workers[i] = map[string]interface{}{
				"index": i,
				"load":  l,
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"workers": workers})
	}
}

// writeJSON serializa v como JSON e envia com status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
