// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Stream License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/nishisan-dev/n-stream/internal/config"
	"github.com/nishisan-dev/n-stream/internal/engine"
	"github.com/nishisan-dev/n-stream/internal/msgstore"
)

const testSecret = "unit-test-secret"

// fakeSession serve um arquivo em memória como sessão de mídia.
type fakeSession struct {
	data []byte
}

func (s *fakeSession) Start(ctx context.Context) error { return nil }
func (s *fakeSession) Stop() error                     { return nil }

func (s *fakeSession) GetFile(ctx context.Context, loc *msgstore.FileLocator, offset int64, limit int) ([]byte, error) {
	if offset >= int64(len(s.data)) {
		return nil, nil
	}
	end := offset + int64(limit)
	if end > int64(len(s.data)) {
		end = int64(len(s.data))
	}
	return s.data[offset:end], nil
}

func (s *fakeSession) ImportAuthorization(ctx context.Context, auth *msgstore.ExportedAuth) error {
	return nil
}

// fakeWorker expõe um catálogo fixo de mensagens.
type fakeWorker struct {
	files map[int64]*msgstore.FileLocator
	sess  *fakeSession
}

func (w *fakeWorker) HomeDC() int { return 1 }

func (w *fakeWorker) AuthKey() msgstore.AuthKey { return msgstore.AuthKey{ID: 1} }

func (w *fakeWorker) ResolveFile(ctx context.Context, channelID, messageID int64) (*msgstore.FileLocator, error) {
	loc, ok := w.files[messageID]
	if !ok {
		return nil, &msgstore.RPCError{Code: msgstore.CodeNotFound, Message: "no such message"}
	}
	cp := *loc
	return &cp, nil
}

func (w *fakeWorker) ExportAuthorization(ctx context.Context, dcID int) (*msgstore.ExportedAuth, error) {
	return &msgstore.ExportedAuth{ID: 1, Bytes: []byte("auth")}, nil
}

func (w *fakeWorker) CreateAuthKey(ctx context.Context, dcID int) (msgstore.AuthKey, error) {
	return msgstore.AuthKey{ID: 2}, nil
}

func (w *fakeWorker) MediaSession(dcID int, key msgstore.AuthKey) engine.Session {
	return w.sess
}

// newTestServer monta engine + handler sobre um arquivo de teste e retorna o
// servidor HTTP junto com os bytes do arquivo.
func newTestServer(t *testing.T, gzipDownload bool) (*httptest.Server, []byte) {
	t.Helper()

	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(i * 7)
	}

	worker := &fakeWorker{
		files: map[int64]*msgstore.FileLocator{
			100: {
				MessageID: 100,
				DCID:      1,
				Type:      msgstore.FileDocument,
				Size:      int64(len(data)),
				MimeType:  "video/mp4",
				FileName:  "sample.mp4",
				UniqueID:  "AQADtest",
			},
		},
		sess: &fakeSession{data: data},
	}

	eng, err := engine.New(engine.Config{
		StoreChannelID: -100,
		ChunkSize:      1024,
	}, []engine.Worker{worker}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	cfg := &config.GatewayConfig{}
	cfg.Gateway.Name = "test-gw"
	cfg.HTTP.HashSecret = testSecret
	cfg.HTTP.GzipDownload = gzipDownload

	h := NewHandler(cfg, eng, slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, data
}

func streamURL(srv *httptest.Server, id int64) string {
	return srv.URL + StreamLink(testSecret, id)
}

func TestHandlerFullFile(t *testing.T) {
	srv, data := newTestServer(t, false)

	resp, err := http.Get(streamURL(srv, 100))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("expected video/mp4, got %q", ct)
	}
	if ar := resp.Header.Get("Accept-Ranges"); ar != "bytes" {
		t.Errorf("expected Accept-Ranges bytes, got %q", ar)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "inline") {
		t.Errorf("expected inline disposition, got %q", cd)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !bytes.Equal(body, data) {
		t.Errorf("expected %d bytes, got %d", len(data), len(body))
	}
}

func TestHandlerByteRange(t *testing.T) {
	srv, data := newTestServer(t, false)

	req, _ := http.NewRequest("GET", streamURL(srv, 100), nil)
	req.Header.Set("Range", "bytes=1500-2599")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", resp.StatusCode)
	}
	wantCR := fmt.Sprintf("bytes 1500-2599/%d", len(data))
	if cr := resp.Header.Get("Content-Range"); cr != wantCR {
		t.Errorf("expected Content-Range %q, got %q", wantCR, cr)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "1100" {
		t.Errorf("expected Content-Length 1100, got %q", cl)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, data[1500:2600]) {
		t.Errorf("range body mismatch: got %d bytes", len(body))
	}
}

func TestHandlerOpenEndedRange(t *testing.T) {
	srv, data := newTestServer(t, false)

	req, _ := http.NewRequest("GET", streamURL(srv, 100), nil)
	req.Header.Set("Range", "bytes=4000-")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, data[4000:]) {
		t.Errorf("open range mismatch: got %d bytes", len(body))
	}
}

func TestHandlerSuffixRange(t *testing.T) {
	srv, data := newTestServer(t, false)

	req, _ := http.NewRequest("GET", streamURL(srv, 100), nil)
	req.Header.Set("Range", "bytes=-500")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", resp.StatusCode)
	}
	wantCR := fmt.Sprintf("bytes %d-%d/%d", len(data)-500, len(data)-1, len(data))
	if cr := resp.Header.Get("Content-Range"); cr != wantCR {
		t.Errorf("expected Content-Range %q, got %q", wantCR, cr)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, data[len(data)-500:]) {
		t.Errorf("suffix body mismatch: got %d bytes", len(body))
	}
}

func TestHandlerMalformedRange(t *testing.T) {
	srv, _ := newTestServer(t, false)

	// Header Range presente porém não interpretável responde 400, nunca o
	// arquivo inteiro disfarçado de 206
	for _, header := range []string{"bytes=abc", "bytes=0-1,5-6", "items=0-10", "garbage"} {
		req, _ := http.NewRequest("GET", streamURL(srv, 100), nil)
		req.Header.Set("Range", header)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET (%q): %v", header, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("header %q: expected 400, got %d", header, resp.StatusCode)
		}
	}
}

func TestHandlerUnsatisfiableRange(t *testing.T) {
	srv, data := newTestServer(t, false)

	req, _ := http.NewRequest("GET", streamURL(srv, 100), nil)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", len(data)))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416, got %d", resp.StatusCode)
	}
	wantCR := fmt.Sprintf("bytes */%d", len(data))
	if cr := resp.Header.Get("Content-Range"); cr != wantCR {
		t.Errorf("expected Content-Range %q, got %q", wantCR, cr)
	}
}

func TestHandlerRejections(t *testing.T) {
	srv, _ := newTestServer(t, false)

	tests := []struct {
		name string
		url  string
		code int
	}{
		{"hash errado", srv.URL + "/stream/AAAAAA100", http.StatusForbidden},
		{"path malformado", srv.URL + "/stream/not-a-link!", http.StatusBadRequest},
		{"id sem hash", srv.URL + "/stream/100", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(tt.url)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.code {
				t.Errorf("expected %d, got %d", tt.code, resp.StatusCode)
			}
		})
	}
}

func TestHandlerNotFound(t *testing.T) {
	srv, _ := newTestServer(t, false)

	// Hash correto para um id que não existe no canal
	resp, err := http.Get(srv.URL + StreamLink(testSecret, 999))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandlerHead(t *testing.T) {
	srv, data := newTestServer(t, false)

	resp, err := http.Head(streamURL(srv, 100))
	if err != nil {
		t.Fatalf("HEAD: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cl := resp.Header.Get("Content-Length"); cl != fmt.Sprintf("%d", len(data)) {
		t.Errorf("expected Content-Length %d, got %q", len(data), cl)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("expected empty body on HEAD, got %d bytes", len(body))
	}
}

func TestHandlerDownloadDisposition(t *testing.T) {
	srv, _ := newTestServer(t, false)

	url := srv.URL + strings.Replace(StreamLink(testSecret, 100), "/stream/", "/dl/", 1)
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	cd := resp.Header.Get("Content-Disposition")
	if !strings.Contains(cd, "attachment") || !strings.Contains(cd, "sample.mp4") {
		t.Errorf("expected attachment with filename, got %q", cd)
	}
}

func TestHandlerGzipDownload(t *testing.T) {
	srv, data := newTestServer(t, true)

	url := srv.URL + strings.Replace(StreamLink(testSecret, 100), "/stream/", "/dl/", 1)
	req, _ := http.NewRequest("GET", url, nil)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ce := resp.Header.Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", ce)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer gz.Close()
	body, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("decompressing: %v", err)
	}
	if !bytes.Equal(body, data) {
		t.Errorf("gzip body mismatch: got %d bytes", len(body))
	}
}

func TestHandlerWatchPage(t *testing.T) {
	srv, _ := newTestServer(t, false)

	url := srv.URL + strings.Replace(StreamLink(testSecret, 100), "/stream/", "/watch/", 1)
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	html := string(body)
	if !strings.Contains(html, "<video") {
		t.Error("expected a video element for video/mp4")
	}
	if !strings.Contains(html, "sample.mp4") {
		t.Error("expected the file name in the page")
	}
}

func TestHandlerStatus(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"test-gw"`) {
		t.Errorf("expected gateway name in status, got %s", body)
	}
}

func TestRunWithListenerShutdown(t *testing.T) {
	srv, _ := newTestServer(t, false)
	srv.Close()

	// Sobe o gateway de verdade em uma porta efêmera e cancela o context
	worker := &fakeWorker{files: map[int64]*msgstore.FileLocator{}, sess: &fakeSession{}}
	eng, err := engine.New(engine.Config{StoreChannelID: -1}, []engine.Worker{worker}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	cfg := &config.GatewayConfig{}
	cfg.HTTP.HashSecret = testSecret
	cfg.HTTP.ReadTimeout = time.Second
	cfg.HTTP.IdleTimeout = time.Second

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunWithListener(ctx, ln, cfg, eng, slog.New(slog.DiscardHandler))
	}()

	// O servidor responde enquanto o context vive
	resp, err := http.Get("http://" + ln.Addr().String() + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunWithListener: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not shut down in time")
	}
}
