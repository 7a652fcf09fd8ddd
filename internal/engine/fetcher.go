// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/nishisan-dev/n-stream/internal/msgstore"
)

// fetchChunk busca um chunk em offset (múltiplo do chunk size) via sess.
// Flood-control é recuperado localmente: dorme o indicado +1s e repete o
// mesmo fetch (idempotente). Retorna payload vazio em EOF — inclusive
// quando o backend responde com um frame que não é chunk.
func (e *Engine) fetchChunk(ctx context.Context, sess Session, loc *msgstore.FileLocator, offset int64) ([]byte, error) {
	for {
		chunk, err := sess.GetFile(ctx, loc, offset, e.cfg.ChunkSize)
		if err == nil {
			return chunk, nil
		}

		var fw *msgstore.FloodWait
		if errors.As(err, &fw) {
			e.logger.Warn("flood wait on fetch", "dc", loc.DCID, "offset", offset, "retry_after", fw.RetryAfter)
			if err := sleepCtx(ctx, fw.RetryAfter+floodWaitSlack); err != nil {
				return nil, err
			}
			continue
		}

		if errors.Is(err, msgstore.ErrUnexpectedFrame) {
			e.logger.Error("unexpected response while fetching chunk", "dc", loc.DCID, "offset", offset)
			return nil, nil
		}

		if msgstore.IsFileRefExpired(err) {
			// Remove o locator do cache para que um retry do caller
			// re-resolva com um file_reference fresco.
			e.cache.Evict(loc.MessageID)
			return nil, fmt.Errorf("%w: message %d", ErrStaleReference, loc.MessageID)
		}

		return nil, fmt.Errorf("%w: fetching chunk at offset %d: %v", ErrBackendUnavailable, offset, err)
	}
}
