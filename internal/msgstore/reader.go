// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package msgstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// maxChunkFrame limita o payload de um chunk no wire (16MB).
// Protege contra frames corrompidos antes de alocar o buffer.
const maxChunkFrame = 16 * 1024 * 1024

// readString lê uma string terminada em '\n', byte a byte.
// Não usa bufio para não consumir bytes do frame seguinte.
func readString(r io.Reader) (string, error) {
	var b [1]byte
	var out []byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", err
		}
		if b[0] == '\n' {
			return string(out), nil
		}
		out = append(out, b[0])
	}
}

// readBytes lê um blob com prefixo de tamanho uint16.
func readBytes(r io.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadMagic lê os 4 bytes de magic que identificam o próximo frame.
func ReadMagic(r io.Reader) ([4]byte, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return magic, fmt.Errorf("reading frame magic: %w", err)
	}
	return magic, nil
}

// ReadHandshake lê e valida o frame de handshake (Client → DC).
func ReadHandshake(r io.Reader) (keyID uint64, isMedia bool, err error) {
	magic, err := ReadMagic(r)
	if err != nil {
		return 0, false, err
	}
	if magic != MagicHandshake {
		return 0, false, ErrInvalidMagic
	}
	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return 0, false, fmt.Errorf("reading handshake version: %w", err)
	}
	if version[0] != ProtocolVersion {
		return 0, false, ErrInvalidVersion
	}
	if err := binary.Read(r, binary.BigEndian, &keyID); err != nil {
		return 0, false, fmt.Errorf("reading handshake key id: %w", err)
	}
	var media [1]byte
	if _, err := io.ReadFull(r, media[:]); err != nil {
		return 0, false, fmt.Errorf("reading handshake media flag: %w", err)
	}
	return keyID, media[0] == 1, nil
}

// ReadHandshakeACK lê a resposta do DC ao handshake (Status + Message).
func ReadHandshakeACK(r io.Reader) (byte, string, error) {
	var status [1]byte
	if _, err := io.ReadFull(r, status[:]); err != nil {
		return 0, "", fmt.Errorf("reading handshake ack status: %w", err)
	}
	msg, err := readString(r)
	if err != nil {
		return 0, "", fmt.Errorf("reading handshake ack message: %w", err)
	}
	return status[0], msg, nil
}

// ReadAuthKey lê a resposta de criação de auth key (DC → Client).
func ReadAuthKey(r io.Reader) (AuthKey, error) {
	var key AuthKey
	if err := binary.Read(r, binary.BigEndian, &key.ID); err != nil {
		return key, fmt.Errorf("reading auth key id: %w", err)
	}
	if _, err := io.ReadFull(r, key.Secret[:]); err != nil {
		return key, fmt.Errorf("reading auth key secret: %w", err)
	}
	return key, nil
}

// readLocator lê os campos de localização escritos por writeLocator.
func readLocator(r io.Reader) (*FileLocator, error) {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	loc := &FileLocator{Type: FileType(head[0]), DCID: int(head[1])}
	for _, p := range []*int64{&loc.MessageID, &loc.MediaID, &loc.AccessHash} {
		if err := binary.Read(r, binary.BigEndian, p); err != nil {
			return nil, err
		}
	}
	ref, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	loc.FileReference = ref
	if loc.ThumbSize, err = readString(r); err != nil {
		return nil, err
	}
	if loc.Type != FileChatPhoto {
		return loc, nil
	}
	if err := binary.Read(r, binary.BigEndian, &loc.VolumeID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &loc.LocalID); err != nil {
		return nil, err
	}
	for _, p := range []*int64{&loc.ChatID, &loc.ChatAccessHash} {
		if err := binary.Read(r, binary.BigEndian, p); err != nil {
			return nil, err
		}
	}
	var big [1]byte
	if _, err := io.ReadFull(r, big[:]); err != nil {
		return nil, err
	}
	loc.ThumbBig = big[0] == 1
	return loc, nil
}

// ReadGetFile lê o payload de um RPC GetFile depois do magic (lado DC).
func ReadGetFile(r io.Reader) (*FileLocator, int64, int, error) {
	loc, err := readLocator(r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("reading getfile locator: %w", err)
	}
	var offset uint64
	if err := binary.Read(r, binary.BigEndian, &offset); err != nil {
		return nil, 0, 0, fmt.Errorf("reading getfile offset: %w", err)
	}
	var limit uint32
	if err := binary.Read(r, binary.BigEndian, &limit); err != nil {
		return nil, 0, 0, fmt.Errorf("reading getfile limit: %w", err)
	}
	return loc, int64(offset), int(limit), nil
}

// ReadResolve lê o payload de um RPC de resolução depois do magic (lado DC).
func ReadResolve(r io.Reader) (channelID, messageID int64, err error) {
	if err := binary.Read(r, binary.BigEndian, &channelID); err != nil {
		return 0, 0, fmt.Errorf("reading resolve channel id: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &messageID); err != nil {
		return 0, 0, fmt.Errorf("reading resolve message id: %w", err)
	}
	return channelID, messageID, nil
}

// ReadExportAuth lê o payload de um ExportAuthorization depois do magic.
func ReadExportAuth(r io.Reader) (int, error) {
	var dc [1]byte
	if _, err := io.ReadFull(r, dc[:]); err != nil {
		return 0, fmt.Errorf("reading export auth dc: %w", err)
	}
	return int(dc[0]), nil
}

// ReadImportAuth lê o payload de um ImportAuthorization depois do magic.
func ReadImportAuth(r io.Reader) (*ExportedAuth, error) {
	auth := &ExportedAuth{}
	if err := binary.Read(r, binary.BigEndian, &auth.ID); err != nil {
		return nil, fmt.Errorf("reading import auth id: %w", err)
	}
	b, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("reading import auth bytes: %w", err)
	}
	auth.Bytes = b
	return auth, nil
}

// ReadChunkPayload lê o corpo de um frame CHNK depois do magic,
// descomprimindo conforme o mode. Retorna nil para o chunk vazio (EOF).
func ReadChunkPayload(r io.Reader) ([]byte, error) {
	var mode [1]byte
	if _, err := io.ReadFull(r, mode[:]); err != nil {
		return nil, fmt.Errorf("reading chunk mode: %w", err)
	}
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("reading chunk length: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	if n > maxChunkFrame {
		return nil, fmt.Errorf("msgstore: chunk frame too large: %d bytes", n)
	}
	packed := make([]byte, n)
	if _, err := io.ReadFull(r, packed); err != nil {
		return nil, fmt.Errorf("reading chunk payload: %w", err)
	}

	switch mode[0] {
	case CompressionNone:
		return packed, nil
	case CompressionGzip:
		gz, err := gzip.NewReader(bytes.NewReader(packed))
		if err != nil {
			return nil, fmt.Errorf("opening gzip chunk: %w", err)
		}
		defer gz.Close()
		out, err := io.ReadAll(io.LimitReader(gz, maxChunkFrame+1))
		if err != nil {
			return nil, fmt.Errorf("decompressing gzip chunk: %w", err)
		}
		return out, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(packed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing zstd chunk: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("msgstore: unknown chunk compression mode %#02x", mode[0])
	}
}

// ReadExportedAuthPayload lê o corpo de um frame XAUT depois do magic.
func ReadExportedAuthPayload(r io.Reader) (*ExportedAuth, error) {
	auth := &ExportedAuth{}
	if err := binary.Read(r, binary.BigEndian, &auth.ID); err != nil {
		return nil, fmt.Errorf("reading exported auth id: %w", err)
	}
	b, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("reading exported auth bytes: %w", err)
	}
	auth.Bytes = b
	return auth, nil
}

// ReadResolvedPayload lê o corpo de um frame LOCR depois do magic.
func ReadResolvedPayload(r io.Reader) (*FileLocator, error) {
	loc, err := readLocator(r)
	if err != nil {
		return nil, fmt.Errorf("reading locator: %w", err)
	}
	var size uint64
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, fmt.Errorf("reading locator size: %w", err)
	}
	loc.Size = int64(size)
	for _, p := range []*string{&loc.MimeType, &loc.FileName, &loc.UniqueID} {
		if *p, err = readString(r); err != nil {
			return nil, fmt.Errorf("reading locator metadata: %w", err)
		}
	}
	return loc, nil
}

// ReadAckPayload lê o corpo de um frame ACKN depois do magic.
func ReadAckPayload(r io.Reader) (byte, error) {
	var status [1]byte
	if _, err := io.ReadFull(r, status[:]); err != nil {
		return 0, fmt.Errorf("reading ack status: %w", err)
	}
	return status[0], nil
}

// ReadErrorPayload lê o corpo de um frame RPCE depois do magic e o converte
// no erro Go correspondente (FloodWait ou RPCError).
func ReadErrorPayload(r io.Reader) (error, error) {
	var code uint16
	if err := binary.Read(r, binary.BigEndian, &code); err != nil {
		return nil, fmt.Errorf("reading error code: %w", err)
	}
	var retryAfter uint32
	if err := binary.Read(r, binary.BigEndian, &retryAfter); err != nil {
		return nil, fmt.Errorf("reading error retry-after: %w", err)
	}
	msg, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("reading error message: %w", err)
	}
	return toError(code, retryAfter, msg), nil
}
