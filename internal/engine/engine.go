// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package engine implementa o motor de byte-streaming do gateway: resolve
// e cacheia locators, mantém sessões autenticadas por DC, busca chunks em
// ordem e balanceia streams entre os workers.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/n-stream/internal/msgstore"
)

// Config contém os parâmetros do engine.
type Config struct {
	StoreChannelID  int64
	ChunkSize       int
	CleanInterval   time.Duration
	AuthRetryLimit  int
	AuthSettleDelay time.Duration
}

// DefaultChunkSize é o tamanho padrão de chunk (1MB), exigido como
// alinhamento de offset pelo backend.
const DefaultChunkSize = 1 * 1024 * 1024

// Engine é o valor explícito que possui o cache de locators, os pools de
// sessão e a tabela de cargas. Collaborators o recebem por referência;
// nenhum estado é persistido entre restarts.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	workers []Worker
	pools   []*sessionPool
	loads   *LoadTable
	cache   *locatorCache
	cron    *cron.Cron

	bytesServed    atomic.Int64
	streamsStarted atomic.Int64
}

// Metrics é um snapshot das métricas do engine para a API de
// observabilidade.
type Metrics struct {
	BytesServed    int64
	StreamsStarted int64
	ActiveStreams  int64
	Loads          []int64
	CachedLocators int
	Sessions       int
}

// New cria um Engine sobre os workers fornecidos. Campos zerados da config
// recebem os defaults (chunk 1MB, sweep 30min, 3 tentativas de auth,
// settle de 1s).
func New(cfg Config, workers []Worker, logger *slog.Logger) (*Engine, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("engine: at least one worker is required")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.CleanInterval <= 0 {
		cfg.CleanInterval = 30 * time.Minute
	}
	if cfg.AuthRetryLimit <= 0 {
		cfg.AuthRetryLimit = 3
	}
	if cfg.AuthSettleDelay <= 0 {
		cfg.AuthSettleDelay = time.Second
	}

	logger = logger.With("component", "engine")
	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		workers: workers,
		loads:   NewLoadTable(len(workers)),
		cache:   newLocatorCache(),
	}
	e.pools = make([]*sessionPool, len(workers))
	for i, w := range workers {
		e.pools[i] = newSessionPool(w, cfg.AuthRetryLimit, cfg.AuthSettleDelay, logger.With("worker", i))
	}
	return e, nil
}

// Start agenda o sweep periódico do cache de locators.
func (e *Engine) Start() error {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(e.logger.Handler(), slog.LevelDebug))))
	spec := fmt.Sprintf("@every %s", e.cfg.CleanInterval)
	if _, err := c.AddFunc(spec, e.sweep); err != nil {
		return fmt.Errorf("scheduling cache sweep: %w", err)
	}
	e.cron = c
	c.Start()
	e.logger.Info("engine started", "workers", len(e.workers), "chunk_size", e.cfg.ChunkSize, "clean_interval", e.cfg.CleanInterval)
	return nil
}

// Stop cancela o sweep e encerra as sessões de mídia.
func (e *Engine) Stop() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
	for _, p := range e.pools {
		p.Close()
	}
	e.logger.Info("engine stopped")
}

func (e *Engine) sweep() {
	n := e.cache.Sweep()
	e.logger.Debug("locator cache swept", "evicted", n)
}

// Resolve mapeia um message id para o FileLocator do arquivo, consultando
// o cache primeiro. Falha com ErrNotFound quando a mensagem não existe no
// canal de armazenamento ou não carrega arquivo; nesse caso nada é
// cacheado.
func (e *Engine) Resolve(ctx context.Context, messageID int64) (*msgstore.FileLocator, error) {
	if loc, ok := e.cache.Get(messageID); ok {
		return loc, nil
	}

	worker := e.workers[e.loads.Select()]
	loc, err := worker.ResolveFile(ctx, e.cfg.StoreChannelID, messageID)
	if err != nil {
		if msgstore.IsNotFound(err) {
			return nil, fmt.Errorf("%w: message %d", ErrNotFound, messageID)
		}
		return nil, fmt.Errorf("%w: resolving message %d: %v", ErrBackendUnavailable, messageID, err)
	}

	loc.MessageID = messageID
	e.cache.Put(messageID, loc)
	e.logger.Debug("locator resolved", "message_id", messageID, "dc", loc.DCID, "size", loc.Size)
	return loc, nil
}

// SelectWorker retorna o worker com menor número de streams em voo,
// empates para o menor índice.
func (e *Engine) SelectWorker() int {
	return e.loads.Select()
}

// Workers retorna o número de workers do engine.
func (e *Engine) Workers() int {
	return len(e.workers)
}

// Loads retorna um snapshot dos contadores de carga por worker.
func (e *Engine) Loads() []int64 {
	return e.loads.Snapshot()
}

// MetricsSnapshot coleta as métricas atuais do engine.
func (e *Engine) MetricsSnapshot() Metrics {
	loads := e.loads.Snapshot()
	var active int64
	for _, l := range loads {
		active += l
	}
	sessions := 0
	for _, p := range e.pools {
		sessions += p.Len()
	}
	return Metrics{
		BytesServed:    e.bytesServed.Load(),
		StreamsStarted: e.streamsStarted.Load(),
		ActiveStreams:  active,
		Loads:          loads,
		CachedLocators: e.cache.Len(),
		Sessions:       sessions,
	}
}
