// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import "errors"

// Erros expostos pelo engine. A camada HTTP traduz cada um em status code
// (NotFound → 404, AuthFailed → 502, BackendUnavailable → corpo truncado).
var (
	// ErrNotFound indica que a mensagem não existe no canal de
	// armazenamento ou não carrega arquivo.
	ErrNotFound = errors.New("engine: file not found")

	// ErrAuthFailed indica falha definitiva de import de autorização
	// cross-DC após esgotar as tentativas.
	ErrAuthFailed = errors.New("engine: datacenter authorization failed")

	// ErrBackendUnavailable indica erro de RPC ou timeout no backend.
	// Não é retentado pelo core.
	ErrBackendUnavailable = errors.New("engine: backend unavailable")

	// ErrStaleReference indica que o file_reference do locator expirou.
	// O engine já removeu a entrada do cache; o caller pode re-resolver
	// e tentar uma vez.
	ErrStaleReference = errors.New("engine: stale file reference")
)
