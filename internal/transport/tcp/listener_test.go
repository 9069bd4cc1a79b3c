package tcp

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

var testJWT = &auth.JWTConfig{
	Secret: []byte("relay-test-secret"),
	TTL:    time.Minute,
}

func startRelay(t *testing.T) (*Listener, *core.Hub) {
	t.Helper()
	return startRelayHub(t, core.NewHub(core.Options{
		Verifier:         auth.NewVerifier(testJWT),
		HandshakeTimeout: time.Second,
		SendTimeout:      time.Second,
		MaxUnitBytes:     proto.DefaultMaxFrameSize,
	}))
}

func startRelayHub(t *testing.T, hub *core.Hub) (*Listener, *core.Hub) {
	t.Helper()

	l, err := Listen("127.0.0.1:0", hub, Options{})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = l.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-served
		hub.CloseAll()
		hub.Wait()
	})
	return l, hub
}

func dialAs(t *testing.T, l *Listener, userID int64, username string) net.Conn {
	t.Helper()

	nc, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = nc.Close() })

	token, err := auth.GenerateToken(testJWT, userID, username)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	writeText(t, nc, token)
	expectText(t, nc, username+" entered the chat!")
	return nc
}

func writeText(t *testing.T, nc net.Conn, text string) {
	t.Helper()
	if err := proto.WriteText(nc, text, 0); err != nil {
		t.Fatalf("write %q: %v", text, err)
	}
}

func readText(t *testing.T, nc net.Conn) string {
	t.Helper()
	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	text, err := proto.ReadText(nc, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return text
}

func expectText(t *testing.T, nc net.Conn, want string) {
	t.Helper()
	if got := readText(t, nc); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func expectClosed(t *testing.T, nc net.Conn) {
	t.Helper()
	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if text, err := proto.ReadText(nc, 0); err == nil {
		t.Fatalf("expected connection to be closed, got %q", text)
	} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.Fatalf("connection still open")
	}
}

func waitOnline(t *testing.T, hub *core.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Registry().Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d online, got %d", n, hub.Registry().Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelayChatRoundTrip(t *testing.T) {
	l, _ := startRelay(t)

	alice := dialAs(t, l, 1, "alice")
	bob := dialAs(t, l, 2, "bob")
	expectText(t, alice, "bob entered the chat!")

	writeText(t, alice, "Hello!")
	for _, nc := range []net.Conn{alice, bob} {
		got := readText(t, nc)
		if !strings.HasPrefix(got, "alice [") || !strings.HasSuffix(got, "]: Hello!") {
			t.Fatalf("unexpected envelope %q", got)
		}
	}
}

func TestRelayNearLimitChatKeepsSessions(t *testing.T) {
	l, hub := startRelay(t)

	alice := dialAs(t, l, 1, "alice")
	bob := dialAs(t, l, 2, "bob")
	expectText(t, alice, "bob entered the chat!")

	writeText(t, alice, strings.Repeat("x", proto.DefaultMaxFrameSize-10))
	for _, nc := range []net.Conn{alice, bob} {
		got := readText(t, nc)
		if !strings.HasPrefix(got, "alice [") || !strings.HasSuffix(got, "xxx") {
			t.Fatalf("unexpected envelope %.40q", got)
		}
		if len(got) != proto.DefaultMaxFrameSize {
			t.Fatalf("expected envelope of %d bytes, got %d", proto.DefaultMaxFrameSize, len(got))
		}
	}
	waitOnline(t, hub, 2)

	writeText(t, bob, "still here")
	for _, nc := range []net.Conn{alice, bob} {
		if got := readText(t, nc); !strings.HasSuffix(got, "]: still here") {
			t.Fatalf("unexpected envelope %q", got)
		}
	}
}

func TestRelayOversizeEnvelopeIsDroppedNotPruned(t *testing.T) {
	l, hub := startRelayHub(t, core.NewHub(core.Options{
		Verifier:    auth.NewVerifier(testJWT),
		SendTimeout: time.Second,
	}))

	alice := dialAs(t, l, 1, "alice")
	bob := dialAs(t, l, 2, "bob")
	expectText(t, alice, "bob entered the chat!")

	// Fits inbound, but the envelope prefix pushes it past the outbound frame limit.
	writeText(t, alice, strings.Repeat("x", proto.DefaultMaxFrameSize-10))
	writeText(t, alice, "after")

	for _, nc := range []net.Conn{alice, bob} {
		if got := readText(t, nc); !strings.HasSuffix(got, "]: after") {
			t.Fatalf("unexpected envelope %q", got)
		}
	}
	waitOnline(t, hub, 2)
}

func TestRelayWhoRepliesToRequesterOnly(t *testing.T) {
	l, _ := startRelay(t)

	alice := dialAs(t, l, 1, "alice")
	bob := dialAs(t, l, 2, "bob")
	expectText(t, alice, "bob entered the chat!")

	writeText(t, bob, "!who")
	expectText(t, bob, "2 USERS ONLINE:\nalice\nbob")

	// alice sees the next chat line, not the listing.
	writeText(t, bob, "after")
	got := readText(t, alice)
	if !strings.HasSuffix(got, "]: after") {
		t.Fatalf("expected chat after listing, got %q", got)
	}
}

func TestRelayExitAnnouncesDeparture(t *testing.T) {
	l, hub := startRelay(t)

	alice := dialAs(t, l, 1, "alice")
	bob := dialAs(t, l, 2, "bob")
	expectText(t, alice, "bob entered the chat!")

	writeText(t, bob, "!exit")
	expectText(t, alice, "bob disconnected")
	expectClosed(t, bob)
	waitOnline(t, hub, 1)
}

func TestRelayForcedDisconnect(t *testing.T) {
	l, hub := startRelay(t)

	alice := dialAs(t, l, 1, "alice")
	bob := dialAs(t, l, 2, "bob")
	expectText(t, alice, "bob entered the chat!")

	_ = bob.Close()
	expectText(t, alice, "bob disconnected")
	waitOnline(t, hub, 1)
}

func TestRelayRejectsBadTokenSilently(t *testing.T) {
	l, hub := startRelay(t)

	alice := dialAs(t, l, 1, "alice")

	nc, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer nc.Close()

	writeText(t, nc, "not-a-token")
	expectClosed(t, nc)

	if hub.Registry().Len() != 1 {
		t.Fatalf("expected only alice online, got %d", hub.Registry().Len())
	}

	// Nothing was broadcast for the rejected connection.
	writeText(t, alice, "ping")
	got := readText(t, alice)
	if !strings.HasSuffix(got, "]: ping") {
		t.Fatalf("expected own chat echo, got %q", got)
	}
}

func TestListenerCloseStopsServe(t *testing.T) {
	hub := core.NewHub(core.Options{Verifier: auth.NewVerifier(testJWT)})
	l, err := Listen("127.0.0.1:0", hub, Options{})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Serve(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil from Serve, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after Close")
	}
}
