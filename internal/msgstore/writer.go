// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package msgstore

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// writeString escreve uma string UTF-8 terminada em '\n'.
func writeString(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	_, err := w.Write([]byte{'\n'})
	return err
}

// writeBytes escreve um blob com prefixo de tamanho uint16.
func writeBytes(w io.Writer, b []byte) error {
	if len(b) > 0xFFFF {
		return fmt.Errorf("msgstore: blob too large: %d bytes", len(b))
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// WriteHandshake escreve o frame de handshake de sessão (Client → DC).
// Formato: [Magic "NMSH" 4B] [Version 1B] [AuthKeyID uint64 8B] [Media 1B]
func WriteHandshake(w io.Writer, keyID uint64, isMedia bool) error {
	if _, err := w.Write(MagicHandshake[:]); err != nil {
		return fmt.Errorf("writing handshake magic: %w", err)
	}
	if _, err := w.Write([]byte{ProtocolVersion}); err != nil {
		return fmt.Errorf("writing handshake version: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, keyID); err != nil {
		return fmt.Errorf("writing handshake key id: %w", err)
	}
	media := byte(0)
	if isMedia {
		media = 1
	}
	if _, err := w.Write([]byte{media}); err != nil {
		return fmt.Errorf("writing handshake media flag: %w", err)
	}
	return nil
}

// WriteHandshakeACK escreve a resposta do DC ao handshake.
// Formato: [Status 1B] [Message UTF-8 (opt)] ['\n' 1B]
func WriteHandshakeACK(w io.Writer, status byte, message string) error {
	if _, err := w.Write([]byte{status}); err != nil {
		return fmt.Errorf("writing handshake ack status: %w", err)
	}
	if err := writeString(w, message); err != nil {
		return fmt.Errorf("writing handshake ack message: %w", err)
	}
	return nil
}

// WriteAuthCreate escreve o pedido de criação de auth key (Client → DC).
// Formato: [Magic "AUTH" 4B] [Version 1B] [DC 1B]
func WriteAuthCreate(w io.Writer, dcID int) error {
	if _, err := w.Write(MagicAuthCreate[:]); err != nil {
		return fmt.Errorf("writing auth create magic: %w", err)
	}
	if _, err := w.Write([]byte{ProtocolVersion, byte(dcID)}); err != nil {
		return fmt.Errorf("writing auth create header: %w", err)
	}
	return nil
}

// WriteAuthKey escreve a resposta de criação de auth key (DC → Client).
// Formato: [ID uint64 8B] [Secret 32B]
func WriteAuthKey(w io.Writer, key AuthKey) error {
	if err := binary.Write(w, binary.BigEndian, key.ID); err != nil {
		return fmt.Errorf("writing auth key id: %w", err)
	}
	if _, err := w.Write(key.Secret[:]); err != nil {
		return fmt.Errorf("writing auth key secret: %w", err)
	}
	return nil
}

// writeLocator escreve os campos de localização de um FileLocator
// (sem metadados HTTP). Usado dentro de GETF.
func writeLocator(w io.Writer, loc *FileLocator) error {
	if _, err := w.Write([]byte{byte(loc.Type), byte(loc.DCID)}); err != nil {
		return err
	}
	for _, v := range []int64{loc.MessageID, loc.MediaID, loc.AccessHash} {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}
	if err := writeBytes(w, loc.FileReference); err != nil {
		return err
	}
	if err := writeString(w, loc.ThumbSize); err != nil {
		return err
	}
	if loc.Type != FileChatPhoto {
		return nil
	}
	if err := binary.Write(w, binary.BigEndian, loc.VolumeID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, loc.LocalID); err != nil {
		return err
	}
	for _, v := range []int64{loc.ChatID, loc.ChatAccessHash} {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}
	big := byte(0)
	if loc.ThumbBig {
		big = 1
	}
	_, err := w.Write([]byte{big})
	return err
}

// WriteGetFile escreve o RPC GetFile (Client → DC).
// Formato: [Magic "GETF" 4B] [Locator] [Offset uint64 8B] [Limit uint32 4B]
// Offset DEVE ser múltiplo do chunk size (exigência do backend).
func WriteGetFile(w io.Writer, loc *FileLocator, offset int64, limit int) error {
	if _, err := w.Write(MagicGetFile[:]); err != nil {
		return fmt.Errorf("writing getfile magic: %w", err)
	}
	if err := writeLocator(w, loc); err != nil {
		return fmt.Errorf("writing getfile locator: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint64(offset)); err != nil {
		return fmt.Errorf("writing getfile offset: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(limit)); err != nil {
		return fmt.Errorf("writing getfile limit: %w", err)
	}
	return nil
}

// WriteResolve escreve o RPC de resolução de mensagem (Client → DC).
// Formato: [Magic "RSLV" 4B] [ChannelID int64 8B] [MessageID int64 8B]
func WriteResolve(w io.Writer, channelID, messageID int64) error {
	if _, err := w.Write(MagicResolve[:]); err != nil {
		return fmt.Errorf("writing resolve magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, channelID); err != nil {
		return fmt.Errorf("writing resolve channel id: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, messageID); err != nil {
		return fmt.Errorf("writing resolve message id: %w", err)
	}
	return nil
}

// WriteExportAuth escreve o RPC ExportAuthorization (Client → DC home).
// Formato: [Magic "EXPA" 4B] [DC 1B]
func WriteExportAuth(w io.Writer, dcID int) error {
	if _, err := w.Write(MagicExportAuth[:]); err != nil {
		return fmt.Errorf("writing export auth magic: %w", err)
	}
	if _, err := w.Write([]byte{byte(dcID)}); err != nil {
		return fmt.Errorf("writing export auth dc: %w", err)
	}
	return nil
}

// WriteImportAuth escreve o RPC ImportAuthorization (Client → DC destino).
// Formato: [Magic "IMPA" 4B] [ID uint64 8B] [Len uint16 2B] [Bytes]
func WriteImportAuth(w io.Writer, auth *ExportedAuth) error {
	if _, err := w.Write(MagicImportAuth[:]); err != nil {
		return fmt.Errorf("writing import auth magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, auth.ID); err != nil {
		return fmt.Errorf("writing import auth id: %w", err)
	}
	if err := writeBytes(w, auth.Bytes); err != nil {
		return fmt.Errorf("writing import auth bytes: %w", err)
	}
	return nil
}

// WriteExportedAuth escreve a resposta de ExportAuthorization (DC → Client).
// Formato: [Magic "XAUT" 4B] [ID uint64 8B] [Len uint16 2B] [Bytes]
func WriteExportedAuth(w io.Writer, auth *ExportedAuth) error {
	if _, err := w.Write(MagicExportedAuth[:]); err != nil {
		return fmt.Errorf("writing exported auth magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, auth.ID); err != nil {
		return fmt.Errorf("writing exported auth id: %w", err)
	}
	if err := writeBytes(w, auth.Bytes); err != nil {
		return fmt.Errorf("writing exported auth bytes: %w", err)
	}
	return nil
}

// WriteAck escreve um ACK genérico (DC → Client).
// Formato: [Magic "ACKN" 4B] [Status 1B]
func WriteAck(w io.Writer, status byte) error {
	if _, err := w.Write(MagicAck[:]); err != nil {
		return fmt.Errorf("writing ack magic: %w", err)
	}
	if _, err := w.Write([]byte{status}); err != nil {
		return fmt.Errorf("writing ack status: %w", err)
	}
	return nil
}

// WriteChunk escreve um chunk de arquivo (DC → Client), comprimindo o
// payload conforme o mode. Payload vazio sinaliza EOF.
// Formato: [Magic "CHNK" 4B] [Mode 1B] [Len uint32 4B] [Payload]
func WriteChunk(w io.Writer, mode byte, payload []byte) error {
	packed := payload
	if len(payload) > 0 {
		switch mode {
		case CompressionGzip:
			var buf bytes.Buffer
			gz, err := gzip.NewWriterLevel(&buf, flate.BestSpeed)
			if err != nil {
				return fmt.Errorf("creating gzip writer: %w", err)
			}
			if _, err := gz.Write(payload); err != nil {
				return fmt.Errorf("compressing chunk: %w", err)
			}
			if err := gz.Close(); err != nil {
				return fmt.Errorf("closing gzip writer: %w", err)
			}
			packed = buf.Bytes()
		case CompressionZstd:
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
			if err != nil {
				return fmt.Errorf("creating zstd writer: %w", err)
			}
			packed = enc.EncodeAll(payload, nil)
			enc.Close()
		}
	}

	if _, err := w.Write(MagicChunk[:]); err != nil {
		return fmt.Errorf("writing chunk magic: %w", err)
	}
	if _, err := w.Write([]byte{mode}); err != nil {
		return fmt.Errorf("writing chunk mode: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(packed))); err != nil {
		return fmt.Errorf("writing chunk length: %w", err)
	}
	if _, err := w.Write(packed); err != nil {
		return fmt.Errorf("writing chunk payload: %w", err)
	}
	return nil
}

// WriteResolved escreve a resposta do RPC de resolução (DC → Client):
// o locator completo mais os metadados HTTP.
// Formato: [Magic "LOCR" 4B] [Locator] [Size uint64 8B] [Mime '\n'] [Name '\n'] [UniqueID '\n']
func WriteResolved(w io.Writer, loc *FileLocator) error {
	if _, err := w.Write(MagicLocator[:]); err != nil {
		return fmt.Errorf("writing locator magic: %w", err)
	}
	if err := writeLocator(w, loc); err != nil {
		return fmt.Errorf("writing locator: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint64(loc.Size)); err != nil {
		return fmt.Errorf("writing locator size: %w", err)
	}
	for _, s := range []string{loc.MimeType, loc.FileName, loc.UniqueID} {
		if err := writeString(w, s); err != nil {
			return fmt.Errorf("writing locator metadata: %w", err)
		}
	}
	return nil
}

// WriteError escreve um frame de erro tipado (DC → Client).
// Formato: [Magic "RPCE" 4B] [Code uint16 2B] [RetryAfter uint32 4B] [Message '\n']
func WriteError(w io.Writer, code uint16, retryAfter uint32, message string) error {
	if _, err := w.Write(MagicError[:]); err != nil {
		return fmt.Errorf("writing error magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, code); err != nil {
		return fmt.Errorf("writing error code: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, retryAfter); err != nil {
		return fmt.Errorf("writing error retry-after: %w", err)
	}
	if err := writeString(w, message); err != nil {
		return fmt.Errorf("writing error message: %w", err)
	}
	return nil
}
