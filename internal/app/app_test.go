package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/log"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.RelayAddr = "127.0.0.1:0"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "relay.db")
	cfg.JWTSecret = "app-test-secret"
	cfg.HandshakeTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWTSecret = ""

	if _, err := New(&cfg, log.Nop()); err == nil {
		t.Fatalf("expected config validation error")
	}
}

func TestRunServesAndShutsDown(t *testing.T) {
	cfg := testConfig(t)
	application, err := New(&cfg, log.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(ctx) }()

	resp, err := http.Get("http://" + application.HTTPAddr().String() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("unexpected health body %q", body)
	}

	nc, err := net.Dial("tcp", application.RelayAddr().String())
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer nc.Close()

	token, err := auth.GenerateToken(JWTConfig(&cfg), 7, "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if err := proto.WriteText(nc, token, 0); err != nil {
		t.Fatalf("send token: %v", err)
	}
	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if got, err := proto.ReadText(nc, 0); err != nil || got != "alice entered the chat!" {
		t.Fatalf("expected arrival notice, got %q (%v)", got, err)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}

	// Live sessions are closed on shutdown.
	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := proto.ReadText(nc, 0); err == nil {
		t.Fatalf("expected relay connection to be closed")
	}
}
