// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package gateway

import (
	"errors"
	"regexp"
	"strconv"
)

var (
	rangeClosed = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)
	rangeSuffix = regexp.MustCompile(`^bytes=-(\d+)$`)
)

// Erros de interpretação do header Range.
var (
	errRangeSyntax        = errors.New("malformed range header")
	errRangeUnsatisfiable = errors.New("unsatisfiable range")
)

// byteRange é um intervalo inclusivo [Start, End] já validado contra o
// tamanho do arquivo.
type byteRange struct {
	Start int64
	End   int64
}

// parseRange interpreta o header Range para um arquivo de size bytes.
// Header vazio vira o arquivo inteiro. Sufixos ("bytes=-500") viram os
// últimos N bytes. Sintaxe não reconhecida (múltiplos intervalos, unidade
// que não bytes) é errRangeSyntax; intervalos fora do arquivo são
// errRangeUnsatisfiable.
func parseRange(header string, size int64) (byteRange, error) {
	if header == "" {
		if size <= 0 {
			return byteRange{}, errRangeUnsatisfiable
		}
		return byteRange{Start: 0, End: size - 1}, nil
	}

	if m := rangeSuffix.FindStringSubmatch(header); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			// Overflow de um sufixo gigante: equivale ao arquivo inteiro
			n = size
		}
		if n <= 0 || size <= 0 {
			return byteRange{}, errRangeUnsatisfiable
		}
		start := size - n
		if start < 0 {
			start = 0
		}
		return byteRange{Start: start, End: size - 1}, nil
	}

	m := rangeClosed.FindStringSubmatch(header)
	if m == nil {
		return byteRange{}, errRangeSyntax
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return byteRange{}, errRangeUnsatisfiable
	}

	end := size - 1
	if m[2] != "" {
		end, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return byteRange{}, errRangeUnsatisfiable
		}
	}

	if start >= size || end < start {
		return byteRange{}, errRangeUnsatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return byteRange{Start: start, End: end}, nil
}
