package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/log"
	"github.com/vovakirdan/wirerelay/internal/metrics"
	"github.com/vovakirdan/wirerelay/internal/store"
	"github.com/vovakirdan/wirerelay/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	ts        *httptest.Server
	hub       *core.Hub
	jwtConfig *auth.JWTConfig
}

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Minute,
	}
	verifier := auth.NewVerifier(jwtConfig)
	m := metrics.New()

	hub := core.NewHub(core.Options{
		Verifier:         verifier,
		HandshakeTimeout: time.Second,
		SendTimeout:      time.Second,
		Metrics:          m,
	})
	authService := auth.NewService(createTestStore(t), jwtConfig)

	cfg := config.Default()
	server := NewServer(Deps{
		Hub:         hub,
		AuthService: authService,
		Verifier:    verifier,
		Metrics:     m,
		Logger:      log.Nop(),
	}, &cfg)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		hub.CloseAll()
		hub.Wait()
		ts.Close()
	})

	return &testEnv{ts: ts, hub: hub, jwtConfig: jwtConfig}
}

func (e *testEnv) token(t *testing.T, userID int64, username string) string {
	t.Helper()

	token, err := auth.GenerateToken(e.jwtConfig, userID, username)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}
