// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nishisan-dev/n-stream/internal/msgstore"
)

// floodWaitSlack é o acréscimo ao backoff indicado pelo backend.
const floodWaitSlack = time.Second

// rpcRetryDelay é a pausa após um erro genérico de RPC durante o import
// de autorização, antes de repetir sem consumir tentativa.
const rpcRetryDelay = time.Second

// sessionPool mantém no máximo uma sessão viva por DC para um worker.
// A criação é coalescida: pedidos concorrentes para o mesmo DC aguardam o
// primeiro criador, garantindo at-most-once mesmo sob corrida.
type sessionPool struct {
	worker      Worker
	retryLimit  int
	settleDelay time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[int]*poolEntry
}

// poolEntry é o latch de criação: quem chega primeiro cria; os demais
// esperam ready e observam o mesmo resultado.
type poolEntry struct {
	ready chan struct{}
	sess  Session
	err   error
}

func newSessionPool(worker Worker, retryLimit int, settleDelay time.Duration, logger *slog.Logger) *sessionPool {
	return &sessionPool{
		worker:      worker,
		retryLimit:  retryLimit,
		settleDelay: settleDelay,
		logger:      logger,
		sessions:    make(map[int]*poolEntry),
	}
}

// Session retorna a sessão de mídia para dcID, criando-a na primeira
// chamada. Sessões nunca são fechadas proativamente; sobrevivem a muitos
// streams.
func (p *sessionPool) Session(ctx context.Context, dcID int) (Session, error) {
	p.mu.Lock()
	if entry, ok := p.sessions[dcID]; ok {
		p.mu.Unlock()
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.sess, nil
	}

	entry := &poolEntry{ready: make(chan struct{})}
	p.sessions[dcID] = entry
	p.mu.Unlock()

	sess, err := p.create(ctx, dcID)
	entry.sess, entry.err = sess, err
	close(entry.ready)

	if err != nil {
		// Remove o latch para que a próxima chamada tente de novo.
		p.mu.Lock()
		delete(p.sessions, dcID)
		p.mu.Unlock()
		return nil, err
	}
	return sess, nil
}

// create constrói e autentica a sessão para dcID.
// Mesmo DC do worker: reusa a auth key existente, sem import.
// DC diferente: cria uma key nova via Auth e roda o import de autorização.
func (p *sessionPool) create(ctx context.Context, dcID int) (Session, error) {
	if dcID == p.worker.HomeDC() {
		sess := p.worker.MediaSession(dcID, p.worker.AuthKey())
		if err := sess.Start(ctx); err != nil {
			return nil, fmt.Errorf("%w: starting media session for dc %d: %v", ErrBackendUnavailable, dcID, err)
		}
		p.logger.Debug("media session created", "dc", dcID, "cross_dc", false)
		return sess, nil
	}

	key, err := p.worker.CreateAuthKey(ctx, dcID)
	if err != nil {
		return nil, fmt.Errorf("%w: creating auth key for dc %d: %v", ErrBackendUnavailable, dcID, err)
	}

	sess := p.worker.MediaSession(dcID, key)
	if err := sess.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: starting media session for dc %d: %v", ErrBackendUnavailable, dcID, err)
	}

	if err := p.importAuthorization(ctx, dcID, sess); err != nil {
		sess.Stop()
		return nil, err
	}

	p.logger.Debug("media session created", "dc", dcID, "cross_dc", true)
	return sess, nil
}

// importAuthorization roda a máquina de estados Exporting → Importing →
// Authorized. Apenas AuthBytesInvalid consome tentativa (limite
// retryLimit); flood-control dorme o indicado +1s e erros genéricos de RPC
// dormem 1s, ambos sem contar — limitados pelo deadline do ctx.
func (p *sessionPool) importAuthorization(ctx context.Context, dcID int, sess Session) error {
	attempts := 0
	for {
		exported, err := p.worker.ExportAuthorization(ctx, dcID)
		if err != nil {
			if err := p.backoff(ctx, dcID, err); err != nil {
				return err
			}
			continue
		}

		// Pausa curta para absorver lag de replicação no DC destino.
		if err := sleepCtx(ctx, p.settleDelay); err != nil {
			return err
		}

		err = sess.ImportAuthorization(ctx, exported)
		if err == nil {
			p.logger.Info("authorization imported", "dc", dcID, "attempts", attempts+1)
			return nil
		}

		if msgstore.IsAuthBytesInvalid(err) {
			attempts++
			p.logger.Warn("invalid auth bytes", "dc", dcID, "attempt", attempts)
			if attempts >= p.retryLimit {
				return fmt.Errorf("%w: dc %d after %d attempts", ErrAuthFailed, dcID, attempts)
			}
			continue
		}

		if err := p.backoff(ctx, dcID, err); err != nil {
			return err
		}
	}
}

// backoff trata flood-control e erros transitórios de RPC durante o
// import, dormindo o apropriado. Erros de contexto interrompem.
func (p *sessionPool) backoff(ctx context.Context, dcID int, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var fw *msgstore.FloodWait
	if errors.As(err, &fw) {
		p.logger.Warn("flood wait during auth", "dc", dcID, "retry_after", fw.RetryAfter)
		return sleepCtx(ctx, fw.RetryAfter+floodWaitSlack)
	}

	p.logger.Warn("rpc error during auth", "dc", dcID, "error", err)
	return sleepCtx(ctx, rpcRetryDelay)
}

// Close para todas as sessões criadas (shutdown do processo).
func (p *sessionPool) Close() {
	p.mu.Lock()
	entries := make([]*poolEntry, 0, len(p.sessions))
	for _, e := range p.sessions {
		entries = append(entries, e)
	}
	p.sessions = make(map[int]*poolEntry)
	p.mu.Unlock()

	for _, e := range entries {
		select {
		case <-e.ready:
			if e.err == nil && e.sess != nil {
				e.sess.Stop()
			}
		default:
			// Criação ainda em andamento; a sessão será órfã do pool e
			// morre com o processo.
		}
	}
}

// Len retorna o número de sessões no pool.
func (p *sessionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// sleepCtx dorme d respeitando cancelamento do contexto.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
