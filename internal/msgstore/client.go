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
	"time"
)

// ClientConfig contém os parâmetros para criar um Client.
type ClientConfig struct {
	HomeDC     int
	DCAddrs    map[int]string
	TLS        *tls.Config
	RPCTimeout time.Duration
	Logger     *slog.Logger
}

// Client é um worker autenticado do MsgStore: possui uma auth key própria
// criada no DC home e uma sessão home para RPCs de resolução e export.
// Sessões de mídia são construídas via MediaSession e gerenciadas pelo
// pool do engine.
type Client struct {
	cfg    ClientConfig
	key    AuthKey
	home   *Session
	logger *slog.Logger
}

// NewClient cria um Client ainda não autenticado.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "msgstore_client", "home_dc", cfg.HomeDC),
	}
}

// Start cria a auth key no DC home e inicia a sessão home.
func (c *Client) Start(ctx context.Context) error {
	key, err := c.CreateAuthKey(ctx, c.cfg.HomeDC)
	if err != nil {
		return fmt.Errorf("creating home auth key: %w", err)
	}
	c.key = key

	home := c.session(c.cfg.HomeDC, key, false)
	if err := home.Start(ctx); err != nil {
		return fmt.Errorf("starting home session: %w", err)
	}
	c.home = home
	c.logger.Info("client authenticated", "key_id", key.ID)
	return nil
}

// Stop encerra a sessão home. Sessões de mídia são paradas pelo pool.
func (c *Client) Stop() error {
	if c.home != nil {
		return c.home.Stop()
	}
	return nil
}

// HomeDC retorna o DC home deste worker.
func (c *Client) HomeDC() int {
	return c.cfg.HomeDC
}

// AuthKey retorna a auth key do worker (criada em Start).
func (c *Client) AuthKey() AuthKey {
	return c.key
}

// ResolveFile busca o FileLocator de uma mensagem via a sessão home.
func (c *Client) ResolveFile(ctx context.Context, channelID, messageID int64) (*FileLocator, error) {
	return c.home.Resolve(ctx, channelID, messageID)
}

// ExportAuthorization exporta a autorização do worker para dcID via a
// sessão home.
func (c *Client) ExportAuthorization(ctx context.Context, dcID int) (*ExportedAuth, error) {
	return c.home.ExportAuthorization(ctx, dcID)
}

// MediaSession constrói uma sessão de mídia (não iniciada) para dcID com a
// key fornecida. O caller é responsável por Start/Stop.
func (c *Client) MediaSession(dcID int, key AuthKey) *Session {
	return c.session(dcID, key, true)
}

func (c *Client) session(dcID int, key AuthKey, isMedia bool) *Session {
	return &Session{
		dcID:    dcID,
		addr:    c.cfg.DCAddrs[dcID],
		key:     key,
		isMedia: isMedia,
		tlsCfg:  c.cfg.TLS,
		timeout: c.cfg.RPCTimeout,
		logger:  c.logger,
	}
}

// CreateAuthKey deriva uma nova auth key junto a dcID usando uma conexão
// dedicada, fechada ao final.
func (c *Client) CreateAuthKey(ctx context.Context, dcID int) (AuthKey, error) {
	var key AuthKey

	addr, ok := c.cfg.DCAddrs[dcID]
	if !ok {
		return key, fmt.Errorf("msgstore: no address configured for dc %d", dcID)
	}

	dialer := &net.Dialer{Timeout: c.cfg.RPCTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return key, fmt.Errorf("connecting to dc %d (%s): %w", dcID, addr, err)
	}
	defer rawConn.Close()

	tlsConn := tls.Client(rawConn, c.cfg.TLS)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return key, fmt.Errorf("TLS handshake with dc %d: %w", dcID, err)
	}

	tlsConn.SetDeadline(time.Now().Add(c.cfg.RPCTimeout))
	if err := WriteAuthCreate(tlsConn, dcID); err != nil {
		return key, fmt.Errorf("writing auth create to dc %d: %w", dcID, err)
	}

	key, err = ReadAuthKey(bufio.NewReader(tlsConn))
	if err != nil {
		return key, fmt.Errorf("reading auth key from dc %d: %w", dcID, err)
	}

	c.logger.Debug("auth key created", "dc", dcID, "key_id", key.ID)
	return key, nil
}
