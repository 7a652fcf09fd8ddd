// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"sync"

	"github.com/nishisan-dev/n-stream/internal/msgstore"
)

// locatorCache mapeia message id → FileLocator. Entradas não têm TTL
// individual: o sweep periódico descarta tudo de uma vez, o que limita a
// idade máxima de um file_reference sem bookkeeping por entrada.
type locatorCache struct {
	mu      sync.Mutex
	entries map[int64]*msgstore.FileLocator
}

func newLocatorCache() *locatorCache {
	return &locatorCache{entries: make(map[int64]*msgstore.FileLocator)}
}

// Get retorna o locator cacheado para messageID, se houver.
func (c *locatorCache) Get(messageID int64) (*msgstore.FileLocator, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.entries[messageID]
	return loc, ok
}

// Put instala o locator para messageID.
func (c *locatorCache) Put(messageID int64, loc *msgstore.FileLocator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[messageID] = loc
}

// Evict remove a entrada de messageID (usado em stale reference).
func (c *locatorCache) Evict(messageID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, messageID)
}

// Sweep descarta todas as entradas e retorna quantas havia. Idempotente.
func (c *locatorCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[int64]*msgstore.FileLocator)
	return n
}

// Len retorna o número de entradas cacheadas.
func (c *locatorCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
