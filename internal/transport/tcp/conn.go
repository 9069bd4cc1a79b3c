package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

// Conn adapts a framed net.Conn to core.Conn.
type Conn struct {
	id       string
	nc       net.Conn
	r        *bufio.Reader
	maxFrame int

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps nc. maxFrame bounds payloads in both directions; zero means proto.DefaultMaxFrameSize.
func NewConn(nc net.Conn, maxFrame int) *Conn {
	return &Conn{
		id:       uuid.NewString(),
		nc:       nc,
		r:        bufio.NewReader(nc),
		maxFrame: maxFrame,
	}
}

// ID returns the connection identifier used in logs.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }

// ReadUnit reads one frame. It returns io.EOF when the peer hung up or the
// connection was closed locally, and ctx.Err() when ctx ended first.
func (c *Conn) ReadUnit(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	deadline, hasDeadline := ctx.Deadline()
	if err := c.nc.SetReadDeadline(deadline); err != nil {
		return "", c.mapErr(err)
	}
	// A deadline in the past unblocks the pending read on cancellation.
	stop := context.AfterFunc(ctx, func() {
		_ = c.nc.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	text, err := proto.ReadText(c.r, c.maxFrame)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		// The socket deadline can fire just ahead of the context timer.
		if hasDeadline && errors.Is(err, os.ErrDeadlineExceeded) && !time.Now().Before(deadline) {
			return "", context.DeadlineExceeded
		}
		return "", c.mapErr(err)
	}
	return text, nil
}

// WriteUnit writes text as one frame. Concurrent writers are serialised so
// frames never interleave. A unit over the frame limit is refused before any
// byte is written and reported as core.ErrUnitTooLarge.
func (c *Conn) WriteUnit(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return net.ErrClosed
	}

	deadline, _ := ctx.Deadline()
	if err := c.nc.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := proto.WriteText(c.nc, text, c.maxFrame); err != nil {
		if errors.Is(err, proto.ErrFrameTooLarge) {
			return fmt.Errorf("%w: %w", core.ErrUnitTooLarge, err)
		}
		return err
	}
	return nil
}

// Close closes the underlying connection. Later calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

func (c *Conn) mapErr(err error) error {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed):
		return io.EOF
	case c.closed.Load():
		return io.EOF
	}
	return err
}
