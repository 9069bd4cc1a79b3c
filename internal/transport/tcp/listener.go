// Package tcp serves the relay over raw TCP with length-prefixed frames.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/metrics"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Options configures a Listener.
type Options struct {
	MaxFrameBytes int
	Metrics       *metrics.Metrics
	Logger        *zerolog.Logger
}

// Listener accepts relay connections and hands each one to the hub.
type Listener struct {
	ln       net.Listener
	hub      *core.Hub
	maxFrame int
	metrics  *metrics.Metrics
	log      *zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Listen binds addr. The listener does nothing until Serve is called.
func Listen(addr string, hub *core.Hub, opts Options) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Listener{
		ln:       ln,
		hub:      hub,
		maxFrame: opts.MaxFrameBytes,
		metrics:  opts.Metrics,
		log:      logger,
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve runs the accept loop until ctx is done or Close is called, then
// returns nil. Accept errors are logged and never end the loop.
// Sessions already running are left to the hub.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	l.log.Info().Str("addr", l.Addr().String()).Msg("relay listener started")

	backoff := time.Duration(0)
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if l.isClosed() || errors.Is(err, net.ErrClosed) {
				l.log.Info().Msg("relay listener stopped")
				return nil
			}

			l.metrics.RecordAcceptError()
			l.log.Error().Err(core.NewAcceptError(err)).Str("code", core.ErrCodeAcceptFailure).Msg("accept error")

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		go l.handle(ctx, nc)
	}
}

// Close stops accepting. It is safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.ln.Close()
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Listener) handle(ctx context.Context, nc net.Conn) {
	if tcpConn, ok := nc.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	conn := NewConn(nc, l.maxFrame)
	l.log.Debug().Str("conn_id", conn.ID()).Str("remote", conn.RemoteAddr()).Msg("connection accepted")

	// Outcome is logged by the hub.
	_ = l.hub.Serve(ctx, conn)
}
