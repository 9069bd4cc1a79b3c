package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errBrokenPipe = errors.New("broken pipe")

var connSeq atomic.Int64

// fakeConn is an in-memory Conn. Inbound units are pushed with send; outbound
// units are collected on out.
type fakeConn struct {
	id   string
	in   chan string
	out  chan string
	done chan struct{}

	closeOnce sync.Once
	failWrite atomic.Bool
	closes    atomic.Int32

	// stallWrite makes WriteUnit block until its context ends; stalled is
	// signalled when a write starts blocking.
	stallWrite atomic.Bool
	stalled    chan struct{}
	// maxUnit, when positive, rejects longer units the way a framed transport does.
	maxUnit int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		id:      fmt.Sprintf("fake-%d", connSeq.Add(1)),
		in:      make(chan string, 16),
		out:     make(chan string, 256),
		done:    make(chan struct{}),
		stalled: make(chan struct{}, 1),
	}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) RemoteAddr() string { return "pipe" }

func (c *fakeConn) ReadUnit(ctx context.Context) (string, error) {
	select {
	case text := <-c.in:
		return text, nil
	case <-c.done:
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *fakeConn) WriteUnit(ctx context.Context, text string) error {
	if c.failWrite.Load() {
		return errBrokenPipe
	}
	if c.maxUnit > 0 && len(text) > c.maxUnit {
		return fmt.Errorf("%w: %d bytes", ErrUnitTooLarge, len(text))
	}
	if c.stallWrite.Load() {
		select {
		case c.stalled <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case <-c.done:
		return io.ErrClosedPipe
	default:
	}
	select {
	case c.out <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) send(t *testing.T, text string) {
	t.Helper()
	select {
	case c.in <- text:
	case <-time.After(2 * time.Second):
		t.Fatalf("inbound buffer full for %s", c.id)
	}
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// mustReceive waits for the next outbound unit satisfying match, skipping others.
func mustReceive(t *testing.T, c *fakeConn, match func(string) bool) string {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case text := <-c.out:
			if match(text) {
				return text
			}
		case <-deadline:
			t.Fatalf("expected unit not received on %s", c.id)
			return ""
		}
	}
}

func equals(want string) func(string) bool {
	return func(got string) bool { return got == want }
}

func hasPrefix(prefix string) func(string) bool {
	return func(got string) bool { return strings.HasPrefix(got, prefix) }
}

// drain returns every unit currently buffered on c.
func drain(c *fakeConn) []string {
	var units []string
	for {
		select {
		case text := <-c.out:
			units = append(units, text)
		default:
			return units
		}
	}
}

// tokenVerifier accepts tokens of the form "token:<username>:<id>".
var tokenVerifier = VerifierFunc(func(token string) (Identity, error) {
	var id Identity
	rest, ok := strings.CutPrefix(token, "token:")
	if !ok {
		return id, fmt.Errorf("%w: bad token", ErrAuthRejected)
	}
	name, num, ok := strings.Cut(rest, ":")
	if !ok || name == "" {
		return id, fmt.Errorf("%w: bad token", ErrAuthRejected)
	}
	if _, err := fmt.Sscanf(num, "%d", &id.UserID); err != nil {
		return id, fmt.Errorf("%w: bad id", ErrAuthRejected)
	}
	id.Username = name
	return id, nil
})

var fixedNow = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.Local)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(Options{
		Verifier:         tokenVerifier,
		HandshakeTimeout: time.Second,
		SendTimeout:      time.Second,
		Now:              func() time.Time { return fixedNow },
	})
}

// startSession serves conn on hub in the background and authenticates it.
// The returned channel yields Serve's result.
func startSession(t *testing.T, hub *Hub, conn *fakeConn, name string, id int) <-chan error {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- hub.Serve(context.Background(), conn) }()
	conn.send(t, fmt.Sprintf("token:%s:%d", name, id))
	mustReceive(t, conn, equals(name+" entered the chat!"))
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not terminate")
		return nil
	}
}
