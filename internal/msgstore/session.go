// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package msgstore

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Session é um transporte autenticado e de vida longa para um DC.
// Sessões de mídia (isMedia=true) são usadas para GetFile; a sessão home
// do client (isMedia=false) serve os RPCs de resolução e export de auth.
//
// Send é serializado por mutex: um par request/response por vez. Isso torna
// a sessão segura para streams concorrentes no mesmo DC.
type Session struct {
	dcID    int
	addr    string
	key     AuthKey
	isMedia bool
	tlsCfg  *tls.Config
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	br      *bufio.Reader
	started bool
	stopped bool
}

// Start disca o DC, faz o handshake TLS e o handshake de sessão do
// protocolo. Uma sessão parada não pode ser reiniciada.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSessionStopped
	}
	if s.started {
		return nil
	}

	dialer := &net.Dialer{Timeout: s.timeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("connecting to dc %d (%s): %w", s.dcID, s.addr, err)
	}

	tlsConn := tls.Client(rawConn, s.tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return fmt.Errorf("TLS handshake with dc %d: %w", s.dcID, err)
	}

	tlsConn.SetDeadline(time.Now().Add(s.timeout))
	if err := WriteHandshake(tlsConn, s.key.ID, s.isMedia); err != nil {
		tlsConn.Close()
		return fmt.Errorf("writing session handshake to dc %d: %w", s.dcID, err)
	}

	br := bufio.NewReader(tlsConn)
	status, msg, err := ReadHandshakeACK(br)
	if err != nil {
		tlsConn.Close()
		return fmt.Errorf("reading session handshake ack from dc %d: %w", s.dcID, err)
	}
	if status != HandshakeGo {
		tlsConn.Close()
		return fmt.Errorf("dc %d rejected session: status=%d message=%q", s.dcID, status, msg)
	}

	tlsConn.SetDeadline(time.Time{})
	s.conn = tlsConn
	s.br = br
	s.started = true
	s.logger.Debug("session started", "dc", s.dcID, "media", s.isMedia)
	return nil
}

// Stop encerra a sessão e fecha a conexão. Idempotente.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.started = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.logger.Debug("session stopped", "dc", s.dcID)
	return nil
}

// DCID retorna o datacenter desta sessão.
func (s *Session) DCID() int {
	return s.dcID
}

// failLocked marca a sessão como morta após um erro no meio de um frame:
// a conexão pode ter resíduo não parseado e não é reaproveitável. Deve ser
// chamada com s.mu adquirido.
func (s *Session) failLocked(err error) {
	s.stopped = true
	s.started = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.logger.Warn("session transport failed", "dc", s.dcID, "error", err)
}

// roundTrip executa um par request/response sob o mutex da sessão,
// aplicando o deadline de transporte. Retorna o magic da resposta e o
// reader posicionado no payload.
func (s *Session) roundTrip(ctx context.Context, write func(w *bufio.Writer) error) ([4]byte, *bufio.Reader, func(), error) {
	var zero [4]byte

	s.mu.Lock()
	if s.stopped || !s.started {
		s.mu.Unlock()
		return zero, nil, nil, ErrSessionStopped
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetDeadline(deadline)

	bw := bufio.NewWriter(s.conn)
	if err := write(bw); err != nil {
		s.mu.Unlock()
		return zero, nil, nil, err
	}
	if err := bw.Flush(); err != nil {
		s.failLocked(err)
		s.mu.Unlock()
		return zero, nil, nil, fmt.Errorf("flushing rpc to dc %d: %w", s.dcID, err)
	}

	magic, err := ReadMagic(s.br)
	if err != nil {
		s.failLocked(err)
		s.mu.Unlock()
		return zero, nil, nil, err
	}
	return magic, s.br, s.mu.Unlock, nil
}

// GetFile busca um chunk do arquivo em offset (múltiplo do chunk size).
// Retorna payload vazio em EOF. Erros de flood-control e RPC chegam
// tipados (FloodWait, RPCError); frames inesperados como ErrUnexpectedFrame.
func (s *Session) GetFile(ctx context.Context, loc *FileLocator, offset int64, limit int) ([]byte, error) {
	magic, r, release, err := s.roundTrip(ctx, func(w *bufio.Writer) error {
		return WriteGetFile(w, loc, offset, limit)
	})
	if err != nil {
		return nil, err
	}
	defer release()

	switch magic {
	case MagicChunk:
		payload, err := ReadChunkPayload(r)
		if err != nil {
			s.failLocked(err)
			return nil, err
		}
		return payload, nil
	case MagicError:
		rpcErr, err := ReadErrorPayload(r)
		if err != nil {
			s.failLocked(err)
			return nil, err
		}
		return nil, rpcErr
	default:
		return nil, ErrUnexpectedFrame
	}
}

// Resolve busca o FileLocator da mensagem no canal de armazenamento.
func (s *Session) Resolve(ctx context.Context, channelID, messageID int64) (*FileLocator, error) {
	magic, r, release, err := s.roundTrip(ctx, func(w *bufio.Writer) error {
		return WriteResolve(w, channelID, messageID)
	})
	if err != nil {
		return nil, err
	}
	defer release()

	switch magic {
	case MagicLocator:
		loc, err := ReadResolvedPayload(r)
		if err != nil {
			s.failLocked(err)
			return nil, err
		}
		return loc, nil
	case MagicError:
		rpcErr, err := ReadErrorPayload(r)
		if err != nil {
			s.failLocked(err)
			return nil, err
		}
		return nil, rpcErr
	default:
		return nil, ErrUnexpectedFrame
	}
}

// ExportAuthorization exporta a autorização deste client para outro DC.
func (s *Session) ExportAuthorization(ctx context.Context, dcID int) (*ExportedAuth, error) {
	magic, r, release, err := s.roundTrip(ctx, func(w *bufio.Writer) error {
		return WriteExportAuth(w, dcID)
	})
	if err != nil {
		return nil, err
	}
	defer release()

	switch magic {
	case MagicExportedAuth:
		auth, err := ReadExportedAuthPayload(r)
		if err != nil {
			s.failLocked(err)
			return nil, err
		}
		return auth, nil
	case MagicError:
		rpcErr, err := ReadErrorPayload(r)
		if err != nil {
			s.failLocked(err)
			return nil, err
		}
		return nil, rpcErr
	default:
		return nil, ErrUnexpectedFrame
	}
}

// ImportAuthorization importa no DC desta sessão uma autorização exportada
// pelo DC home.
func (s *Session) ImportAuthorization(ctx context.Context, auth *ExportedAuth) error {
	magic, r, release, err := s.roundTrip(ctx, func(w *bufio.Writer) error {
		return WriteImportAuth(w, auth)
	})
	if err != nil {
		return err
	}
	defer release()

	switch magic {
	case MagicAck:
		status, err := ReadAckPayload(r)
		if err != nil {
			s.failLocked(err)
			return err
		}
		if status != 0 {
			return &RPCError{Code: CodeInternal, Message: fmt.Sprintf("import ack status=%d", status)}
		}
		return nil
	case MagicError:
		rpcErr, err := ReadErrorPayload(r)
		if err != nil {
			s.failLocked(err)
			return err
		}
		return rpcErr
	default:
		return ErrUnexpectedFrame
	}
}
