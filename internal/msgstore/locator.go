// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package msgstore

// FileType discrimina os três tipos de location que o backend entende.
type FileType byte

const (
	FileDocument  FileType = 0x00
	FilePhoto     FileType = 0x01
	FileChatPhoto FileType = 0x02
)

// PeerKind discrimina o dono de um ChatPhoto, derivado do sinal do ChatID
// e da presença de ChatAccessHash.
type PeerKind byte

const (
	PeerUser    PeerKind = 0x00
	PeerChat    PeerKind = 0x01
	PeerChannel PeerKind = 0x02
)

// channelIDMask remove o bit de sinal usado na codificação de channel ids.
const channelIDMask = 0x7FFFFFFFFFFFFFFF

// FileLocator é o descritor opaco suficiente para buscar qualquer byte range
// de um arquivo no MsgStore. Imutável depois de construído; o FileReference
// pode expirar no backend (surge como RPCError file_ref_expired).
type FileLocator struct {
	MessageID     int64
	DCID          int
	Type          FileType
	MediaID       int64
	AccessHash    int64
	FileReference []byte
	ThumbSize     string

	// Somente para Type == FileChatPhoto.
	VolumeID       int64
	LocalID        int32
	ChatID         int64
	ChatAccessHash int64
	ThumbBig       bool

	// Metadados para a camada HTTP.
	Size     int64
	MimeType string
	FileName string
	UniqueID string
}

// Peer resolve o dono de um ChatPhoto: user (id positivo), chat pequeno
// (id negativo sem access hash) ou channel (id negativo com access hash).
// Retorna o kind, o id já normalizado e o access hash.
func (l *FileLocator) Peer() (PeerKind, int64, int64) {
	if l.ChatID > 0 {
		return PeerUser, l.ChatID, l.ChatAccessHash
	}
	if l.ChatAccessHash == 0 {
		return PeerChat, -l.ChatID, 0
	}
	return PeerChannel, l.ChatID & channelIDMask, l.ChatAccessHash
}
