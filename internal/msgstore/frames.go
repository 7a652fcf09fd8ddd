// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package msgstore implementa o protocolo binário N-Stream para comunicação
// com os datacenters do MsgStore sobre TCP+TLS, e o client autenticado que
// o gateway usa para resolver e buscar arquivos.
package msgstore

import (
	"errors"
	"fmt"
	"time"
)

// Magic bytes para identificação de frames.
var (
	MagicHandshake    = [4]byte{'N', 'M', 'S', 'H'}
	MagicAuthCreate   = [4]byte{'A', 'U', 'T', 'H'}
	MagicGetFile      = [4]byte{'G', 'E', 'T', 'F'}
	MagicExportAuth   = [4]byte{'E', 'X', 'P', 'A'}
	MagicImportAuth   = [4]byte{'I', 'M', 'P', 'A'}
	MagicResolve      = [4]byte{'R', 'S', 'L', 'V'}
	MagicChunk        = [4]byte{'C', 'H', 'N', 'K'}
	MagicExportedAuth = [4]byte{'X', 'A', 'U', 'T'}
	MagicLocator      = [4]byte{'L', 'O', 'C', 'R'}
	MagicAck          = [4]byte{'A', 'C', 'K', 'N'}
	MagicError        = [4]byte{'R', 'P', 'C', 'E'}
)

// ProtocolVersion é a versão atual do protocolo.
const ProtocolVersion byte = 0x01

// Status codes para o ACK de handshake (DC → Client).
const (
	HandshakeGo     byte = 0x00 // Sessão aceita
	HandshakeReject byte = 0x01 // Auth key desconhecida ou revogada
	HandshakeBusy   byte = 0x02 // DC sem capacidade no momento
)

// Compression modes para o payload de chunks (DC → Client).
const (
	CompressionNone byte = 0x00
	CompressionGzip byte = 0x01 // gzip (klauspost/compress)
	CompressionZstd byte = 0x02 // zstd (klauspost/compress)
)

// Error codes carregados em frames RPCE.
const (
	CodeFloodWait        uint16 = 0x01 // backoff exigido pelo backend
	CodeAuthBytesInvalid uint16 = 0x02 // bytes de ImportAuthorization rejeitados
	CodeFileRefExpired   uint16 = 0x03 // file_reference do locator expirou
	CodeNotFound         uint16 = 0x04 // mensagem ou arquivo inexistente
	CodeInternal         uint16 = 0x05 // erro interno do DC
)

// Erros do protocolo.
var (
	ErrInvalidMagic    = errors.New("msgstore: invalid magic bytes")
	ErrInvalidVersion  = errors.New("msgstore: unsupported protocol version")
	ErrUnexpectedFrame = errors.New("msgstore: unexpected frame type")
	ErrSessionStopped  = errors.New("msgstore: session is stopped")
)

// AuthKey identifica uma autorização junto a um DC.
// O ID é público (enviado no handshake); o Secret nunca sai do processo
// depois de criado.
type AuthKey struct {
	ID     uint64
	Secret [32]byte
}

// ExportedAuth é o par (id, bytes) devolvido por ExportAuthorization,
// consumido por ImportAuthorization em outro DC.
type ExportedAuth struct {
	ID    uint64
	Bytes []byte
}

// FloodWait é o erro de flood-control do backend: o caller deve dormir
// RetryAfter antes de repetir a mesma operação.
type FloodWait struct {
	RetryAfter time.Duration
}

func (e *FloodWait) Error() string {
	return fmt.Sprintf("msgstore: flood wait %s", e.RetryAfter)
}

// RPCError é um erro tipado devolvido pelo DC em um frame RPCE.
type RPCError struct {
	Code    uint16
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("msgstore: rpc error code=%#04x: %s", e.Code, e.Message)
}

// IsAuthBytesInvalid reporta se err é um RPCError de auth bytes inválidos.
func IsAuthBytesInvalid(err error) bool {
	var rpc *RPCError
	return errors.As(err, &rpc) && rpc.Code == CodeAuthBytesInvalid
}

// IsNotFound reporta se err é um RPCError de mensagem/arquivo inexistente.
func IsNotFound(err error) bool {
	var rpc *RPCError
	return errors.As(err, &rpc) && rpc.Code == CodeNotFound
}

// IsFileRefExpired reporta se err é um RPCError de file_reference expirado.
func IsFileRefExpired(err error) bool {
	var rpc *RPCError
	return errors.As(err, &rpc) && rpc.Code == CodeFileRefExpired
}

// toError converte um frame RPCE lido do wire no erro Go correspondente.
func toError(code uint16, retryAfter uint32, message string) error {
	if code == CodeFloodWait {
		return &FloodWait{RetryAfter: time.Duration(retryAfter) * time.Second}
	}
	return &RPCError{Code: code, Message: message}
}
