// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nishisan-dev/n-stream/internal/msgstore"
)

// RangePlan traduz um byte range HTTP arbitrário [start, end] em uma
// sequência de fetches alinhados ao chunk size, com os cortes de cabeça e
// cauda que recuperam exatamente end-start+1 bytes.
type RangePlan struct {
	Offset    int64 // início alinhado do primeiro chunk
	FirstCut  int   // bytes descartados da cabeça do primeiro chunk
	LastCut   int   // bytes mantidos do último chunk
	PartCount int
	ChunkSize int
}

// PlanRange computa o plano para o range inclusivo [start, end].
// Invariantes: 0 ≤ FirstCut < ChunkSize; 0 < LastCut ≤ ChunkSize;
// PartCount ≥ 1 para qualquer range válido.
func PlanRange(start, end int64, chunkSize int) RangePlan {
	c := int64(chunkSize)
	return RangePlan{
		Offset:    start - start%c,
		FirstCut:  int(start % c),
		LastCut:   int(end%c) + 1,
		PartCount: int((end+c)/c - start/c),
		ChunkSize: chunkSize,
	}
}

// Trim aplica a disciplina de emissão ao chunk da parte part (1-based).
// Chunks mais curtos que o esperado são aparados com clamp — o caller vê
// um short read, nunca um panic de slice.
func (p RangePlan) Trim(part int, chunk []byte) []byte {
	first, last := 0, len(chunk)
	switch {
	case p.PartCount == 1:
		first, last = p.FirstCut, min(p.LastCut, len(chunk))
	case part == 1:
		first = p.FirstCut
	case part == p.PartCount:
		last = min(p.LastCut, len(chunk))
	}
	if first > len(chunk) {
		first = len(chunk)
	}
	if last < first {
		last = first
	}
	return chunk[first:last]
}

// Stream é a sequência lazy e ordenada de buffers de um range. Não é
// reiniciável e deve ser consumida por uma única goroutine. O contador de
// carga do worker é liberado exatamente uma vez, em qualquer término:
// EOF, erro, ou Close (cancelamento do caller).
type Stream struct {
	engine  *Engine
	sess    Session
	loc     *msgstore.FileLocator
	plan    RangePlan
	worker  int
	current int
	offset  int64
	done    bool
	release sync.Once
}

// Stream inicia a emissão do range [start, end] do arquivo de loc usando o
// worker indicado. Incrementa a carga do worker na entrada; a liberação é
// garantida em qualquer saída via Stream.Close (ou término natural).
// Pré-condição: 0 ≤ start ≤ end < tamanho do arquivo.
func (e *Engine) Stream(ctx context.Context, loc *msgstore.FileLocator, worker int, start, end int64) (*Stream, error) {
	if worker < 0 || worker >= len(e.workers) {
		return nil, fmt.Errorf("engine: invalid worker index %d", worker)
	}
	if start < 0 || end < start || (loc.Size > 0 && end >= loc.Size) {
		return nil, fmt.Errorf("engine: invalid range [%d, %d] for file of %d bytes", start, end, loc.Size)
	}

	e.loads.Acquire(worker)

	sess, err := e.pools[worker].Session(ctx, loc.DCID)
	if err != nil {
		e.loads.Release(worker)
		return nil, err
	}

	plan := PlanRange(start, end, e.cfg.ChunkSize)
	e.streamsStarted.Add(1)
	e.logger.Debug("stream started",
		"message_id", loc.MessageID,
		"worker", worker,
		"dc", loc.DCID,
		"offset", plan.Offset,
		"parts", plan.PartCount,
	)

	return &Stream{
		engine:  e,
		sess:    sess,
		loc:     loc,
		plan:    plan,
		worker:  worker,
		current: 1,
		offset:  plan.Offset,
	}, nil
}

// Next retorna o próximo buffer do range, na ordem. Retorna io.EOF quando
// a sequência termina — inclusive cedo, se o backend devolver um chunk
// vazio antes de PartCount (arquivo mais curto que o anunciado).
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		s.finish()
		return nil, err
	}
	if s.current > s.plan.PartCount {
		s.finish()
		return nil, io.EOF
	}

	chunk, err := s.engine.fetchChunk(ctx, s.sess, s.loc, s.offset)
	if err != nil {
		s.finish()
		return nil, err
	}
	if len(chunk) == 0 {
		s.finish()
		return nil, io.EOF
	}

	out := s.plan.Trim(s.current, chunk)
	s.current++
	s.offset += int64(s.plan.ChunkSize)
	s.engine.bytesServed.Add(int64(len(out)))
	return out, nil
}

// Close interrompe a emissão e libera a carga do worker. Nenhum fetch
// adicional é feito; cache e sessão ficam intactos. Idempotente.
func (s *Stream) Close() error {
	s.finish()
	return nil
}

func (s *Stream) finish() {
	s.done = true
	s.release.Do(func() {
		s.engine.loads.Release(s.worker)
	})
}
