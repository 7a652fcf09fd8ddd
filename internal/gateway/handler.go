// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package gateway implementa o front HTTP do nstream-gateway: valida links
// assinados, negocia byte ranges e bombeia os buffers do engine para o
// cliente com throttle opcional.
package gateway

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/n-stream/internal/config"
	"github.com/nishisan-dev/n-stream/internal/engine"
	"github.com/nishisan-dev/n-stream/internal/msgstore"
)

// Handler atende as rotas públicas de streaming.
type Handler struct {
	cfg    *config.GatewayConfig
	engine *engine.Engine
	logger *slog.Logger
}

// NewHandler cria o Handler sobre um engine já iniciado.
func NewHandler(cfg *config.GatewayConfig, eng *engine.Engine, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		engine: eng,
		logger: logger.With("component", "gateway"),
	}
}

// Routes monta o mux público.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stream/{link}", h.handleStream)
	mux.HandleFunc("GET /dl/{link}", h.handleDownload)
	mux.HandleFunc("GET /watch/{link}", h.handleWatch)
	mux.HandleFunc("GET /status", h.handleStatus)
	return mux
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, false)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, true)
}

// authorize valida o link e resolve o locator. Responde o erro HTTP
// apropriado e retorna nil quando a requisição não deve prosseguir.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) *msgstore.FileLocator {
	messageID, hash, err := ParsePath(r.PathValue("link"), r.URL.Query())
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return nil
	}
	if !ValidHash(h.cfg.HTTP.HashSecret, messageID, hash) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil
	}

	loc, err := h.engine.Resolve(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return nil
		}
		h.logger.Error("resolve failed", "message_id", messageID, "error", err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return nil
	}
	return loc
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, download bool) {
	loc := h.authorize(w, r)
	if loc == nil {
		return
	}

	if loc.Size == 0 {
		writeFileHeaders(w, loc, download)
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
		return
	}

	rangeHeader := r.Header.Get("Range")
	rng, err := parseRange(rangeHeader, loc.Size)
	if err != nil {
		if errors.Is(err, errRangeSyntax) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", loc.Size))
		http.Error(w, "Requested Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	// Qualquer Range válido responde 206, mesmo cobrindo o arquivo inteiro
	partial := rangeHeader != ""
	gzipped := download && !partial && h.cfg.HTTP.GzipDownload &&
		strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")

	writeFileHeaders(w, loc, download)
	if partial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, loc.Size))
	}

	// HEAD: só os headers, nenhum stream é aberto
	if r.Method == http.MethodHead {
		if !gzipped {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", rng.End-rng.Start+1))
		}
		if partial {
			w.WriteHeader(http.StatusPartialContent)
		}
		return
	}

	ctx := r.Context()
	stream, err := h.engine.Stream(ctx, loc, h.engine.SelectWorker(), rng.Start, rng.End)
	if err != nil {
		h.logger.Error("stream open failed", "message_id", loc.MessageID, "error", err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer stream.Close()

	// Busca o primeiro buffer antes de enviar headers: se o file_reference
	// cacheado expirou, re-resolve e tenta de novo sem o cliente perceber.
	first, err := stream.Next(ctx)
	if err != nil && errors.Is(err, engine.ErrStaleReference) {
		stream.Close()
		if loc, err = h.engine.Resolve(ctx, loc.MessageID); err == nil {
			if stream, err = h.engine.Stream(ctx, loc, h.engine.SelectWorker(), rng.Start, rng.End); err == nil {
				defer stream.Close()
				first, err = stream.Next(ctx)
			}
		}
	}
	if err != nil && err != io.EOF {
		h.logger.Error("first chunk failed", "message_id", loc.MessageID, "error", err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	if gzipped {
		w.Header().Set("Content-Encoding", "gzip")
	} else {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", rng.End-rng.Start+1))
	}
	if partial {
		w.WriteHeader(http.StatusPartialContent)
	}

	// Burst de um quarto do chunk configurado: reservas pequenas mesmo com
	// buffers de 1MB vindos do engine
	var out io.Writer = NewThrottledWriter(ctx, w, h.cfg.HTTP.ThrottleRaw, h.cfg.Engine.ChunkSizeRaw/4)
	if gzipped {
		gz := pgzip.NewWriter(out)
		defer gz.Close()
		out = gz
	}
	flusher, _ := w.(http.Flusher)

	buf := first
	for err != io.EOF {
		if len(buf) > 0 {
			if _, werr := out.Write(buf); werr != nil {
				// Cliente desconectou ou throttle cancelado
				h.logger.Debug("client write aborted", "message_id", loc.MessageID, "error", werr)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		buf, err = stream.Next(ctx)
		if err != nil && err != io.EOF {
			h.logger.Error("stream interrupted", "message_id", loc.MessageID, "error", err)
			return
		}
	}
}

// writeFileHeaders define os headers comuns a stream e download.
func writeFileHeaders(w http.ResponseWriter, loc *msgstore.FileLocator, download bool) {
	mime := loc.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Accept-Ranges", "bytes")

	disposition := "inline"
	if download {
		disposition = "attachment"
	}
	name := strings.ReplaceAll(loc.FileName, `"`, "")
	if name != "" {
		disposition = fmt.Sprintf(`%s; filename="%s"`, disposition, name)
	}
	w.Header().Set("Content-Disposition", disposition)
}
