// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package gateway

import (
	"html/template"
	"net/http"
	"strings"
)

var watchTmpl = template.Must(template.New("watch").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>
body { margin: 0; background: #111; color: #eee; font-family: sans-serif; }
.player { display: flex; flex-direction: column; align-items: center; padding: 2em; }
video, audio { max-width: 100%; }
a { color: #6af; }
</style>
</head>
<body>
<div class="player">
<h3>{{.Title}}</h3>
{{if .IsVideo}}<video controls autoplay src="{{.StreamURL}}"></video>
{{else if .IsAudio}}<audio controls autoplay src="{{.StreamURL}}"></audio>
{{else}}<p>Preview indisponível para este tipo de arquivo.</p>{{end}}
<p><a href="{{.DownloadURL}}">Download</a></p>
</div>
</body>
</html>
`))

type watchData struct {
	Title       string
	StreamURL   string
	DownloadURL string
	IsVideo     bool
	IsAudio     bool
}

// handleWatch renderiza um player HTML mínimo apontando para o link de
// streaming equivalente.
func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	loc := h.authorize(w, r)
	if loc == nil {
		return
	}

	title := loc.FileName
	if title == "" {
		title = "nstream"
	}

	link := StreamLink(h.cfg.HTTP.HashSecret, loc.MessageID)
	data := watchData{
		Title:       title,
		StreamURL:   h.cfg.HTTP.PublicURL + link,
		DownloadURL: h.cfg.HTTP.PublicURL + strings.Replace(link, "/stream/", "/dl/", 1),
		IsVideo:     strings.HasPrefix(loc.MimeType, "video/"),
		IsAudio:     strings.HasPrefix(loc.MimeType, "audio/"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := watchTmpl.Execute(w, data); err != nil {
		h.logger.Error("rendering watch page", "message_id", loc.MessageID, "error", err)
	}
}
