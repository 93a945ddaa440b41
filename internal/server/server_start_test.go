package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/example/go-speechkit/internal/config"
	"github.com/example/go-speechkit/internal/telemetry"
	"github.com/example/go-speechkit/internal/testutil"
)

func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := ln.Addr().String()
	ln.Close() // free it for the server

	return addr
}

func TestStart_LifecycleHealthTTSAndShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = freeAddr(t)
	cfg.Paths.ASRManifest = ""

	prov, err := telemetry.Setup("speechkit-test", "dev")
	if err != nil {
		t.Fatalf("telemetry.Setup: %v", err)
	}

	s := New(cfg, piperService(t, cfg, nil), nil).
		WithShutdownTimeout(2 * time.Second).
		WithTelemetry(prov)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Start(ctx)
	}()

	// Wait for the server to be ready.
	client := &http.Client{Timeout: 2 * time.Second}
	base := "http://" + cfg.Server.ListenAddr

	var resp *http.Response

	for range 50 {
		resp, err = client.Get(base + "/health")
		if err == nil {
			break
		}

		time.Sleep(20 * time.Millisecond)
	}

	if err != nil {
		t.Fatalf("server never became ready: %v", err)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /health: %v", err)
	}
	resp.Body.Close()

	if body["status"] != "ok" {
		t.Errorf("status = %q; want ok", body["status"])
	}

	resp, err = client.Post(base+"/tts", "application/json", bytes.NewBufferString(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("POST /tts: %v", err)
	}

	wav, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Fatalf("/tts status = %d, body %d bytes", resp.StatusCode, len(wav))
	}

	testutil.AssertValidWAV(t, wav, 22050)

	if n := testutil.WAVSampleCount(t, wav); n != 2205 {
		t.Errorf("/tts samples = %d, want 2205", n)
	}

	resp, err = client.Post(base+"/transcribe", "audio/wav", bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("POST /transcribe: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("/transcribe without models = %d; want 501", resp.StatusCode)
	}

	resp, err = client.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}

	scrape, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(scrape), "speechkit_http_requests") {
		t.Errorf("/metrics missing request counter:\n%s", scrape)
	}

	// Graceful shutdown.
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() returned error on shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return within 5s of context cancel")
	}
}

func TestStart_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = ln.Addr().String()
	cfg.Paths.ASRManifest = ""

	s := New(cfg, piperService(t, cfg, nil), nil)

	err = s.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "http listen") {
		t.Fatalf("Start() = %v; want listen error", err)
	}
}
