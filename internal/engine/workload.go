// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import "sync/atomic"

// LoadTable mantém um contador de streams em andamento por worker.
// O streamer incrementa na entrada e decrementa exatamente uma vez na
// saída; a soma dos contadores é o total de streams em voo.
type LoadTable struct {
	counts []atomic.Int64
}

// NewLoadTable cria uma LoadTable para n workers.
func NewLoadTable(n int) *LoadTable {
	return &LoadTable{counts: make([]atomic.Int64, n)}
}

// Acquire registra o início de um stream no worker i.
func (t *LoadTable) Acquire(i int) {
	t.counts[i].Add(1)
}

// Release registra o término de um stream no worker i.
func (t *LoadTable) Release(i int) {
	t.counts[i].Add(-1)
}

// Load retorna o contador atual do worker i.
func (t *LoadTable) Load(i int) int64 {
	return t.counts[i].Load()
}

// Select retorna o índice do worker com menor carga; empates resolvem
// pelo menor índice. As leituras não precisam ser snapshot-consistentes.
func (t *LoadTable) Select() int {
	best := 0
	bestLoad := t.counts[0].Load()
	for i := 1; i < len(t.counts); i++ {
		if l := t.counts[i].Load(); l < bestLoad {
			best = i
			bestLoad = l
		}
	}
	return best
}

// Snapshot retorna uma cópia dos contadores.
func (t *LoadTable) Snapshot() []int64 {
	out := make([]int64, len(t.counts))
	for i := range t.counts {
		out[i] = t.counts[i].Load()
	}
	return out
}

// Len retorna o número de workers.
func (t *LoadTable) Len() int {
	return len(t.counts)
}
