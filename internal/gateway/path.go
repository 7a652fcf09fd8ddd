// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

// hashLen é o número de caracteres do hash embutido nos links.
const hashLen = 6

var (
	// Formato compacto: hash de 6 chars url-safe colado no message id.
	pathWithHash = regexp.MustCompile(`^([a-zA-Z0-9_-]{6})(\d+)$`)
	// Formato legado: só o message id no path, hash via query string.
	pathPlain = regexp.MustCompile(`^(\d+)$`)
)

// SecureHash deriva o hash curto de um message id com HMAC-SHA256.
// Os primeiros 6 caracteres em base64 url-safe são suficientes para
// links não-enumeráveis sem inflar a URL.
func SecureHash(secret string, messageID int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d", messageID)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))[:hashLen]
}

// ParsePath extrai (messageID, hash) do último segmento do path, aceitando
// tanto o formato compacto "XXXXXX123" quanto "123?hash=XXXXXX".
func ParsePath(segment string, query url.Values) (int64, string, error) {
	if m := pathWithHash.FindStringSubmatch(segment); m != nil {
		id, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return 0, "", fmt.Errorf("invalid message id %q: %w", m[2], err)
		}
		return id, m[1], nil
	}
	if m := pathPlain.FindStringSubmatch(segment); m != nil {
		hash := query.Get("hash")
		if len(hash) != hashLen {
			return 0, "", fmt.Errorf("missing or malformed hash for id %s", m[1])
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, "", fmt.Errorf("invalid message id %q: %w", m[1], err)
		}
		return id, hash, nil
	}
	return 0, "", fmt.Errorf("unrecognized link format %q", segment)
}

// ValidHash compara o hash do link com o esperado em tempo constante.
func ValidHash(secret string, messageID int64, got string) bool {
	want := SecureHash(secret, messageID)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// StreamLink monta o path compacto de streaming para um message id.
func StreamLink(secret string, messageID int64) string {
	return fmt.Sprintf("/stream/%s%d", SecureHash(secret, messageID), messageID)
}
