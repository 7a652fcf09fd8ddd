// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"context"

	"github.com/nishisan-dev/n-stream/internal/msgstore"
)

// Session é o que o engine exige de uma sessão de mídia.
// Implementada por *msgstore.Session; os testes usam fakes.
type Session interface {
	Start(ctx context.Context) error
	Stop() error
	GetFile(ctx context.Context, loc *msgstore.FileLocator, offset int64, limit int) ([]byte, error)
	ImportAuthorization(ctx context.Context, auth *msgstore.ExportedAuth) error
}

// Worker é o que o engine exige de um client autenticado do MsgStore.
type Worker interface {
	HomeDC() int
	AuthKey() msgstore.AuthKey
	ResolveFile(ctx context.Context, channelID, messageID int64) (*msgstore.FileLocator, error)
	ExportAuthorization(ctx context.Context, dcID int) (*msgstore.ExportedAuth, error)
	CreateAuthKey(ctx context.Context, dcID int) (msgstore.AuthKey, error)
	MediaSession(dcID int, key msgstore.AuthKey) Session
}

// clientWorker adapta *msgstore.Client à interface Worker (o método
// MediaSession do client retorna o tipo concreto).
type clientWorker struct {
	*msgstore.Client
}

func (w clientWorker) MediaSession(dcID int, key msgstore.AuthKey) Session {
	return w.Client.MediaSession(dcID, key)
}

// NewWorker embrulha um *msgstore.Client como Worker do engine.
func NewWorker(c *msgstore.Client) Worker {
	return clientWorker{Client: c}
}
