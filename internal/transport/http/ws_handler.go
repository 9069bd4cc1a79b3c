package http

import (
	"context"
	"errors"
	"io"
	"net"
	stdhttp "net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

// closeGrace bounds the close handshake before the socket is dropped.
const closeGrace = time.Second

// WSHandler upgrades HTTP connections and hands them to the hub.
// Each WebSocket message is one unit; the first one must be the bearer token.
type WSHandler struct {
	hub      *core.Hub
	maxFrame int
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, maxFrame int, logger *zerolog.Logger) stdhttp.Handler {
	if maxFrame <= 0 {
		maxFrame = proto.DefaultMaxFrameSize
	}
	return &WSHandler{hub: hub, maxFrame: maxFrame, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	conn.SetReadLimit(int64(h.maxFrame))

	wc := newWSConn(conn, r.RemoteAddr)
	h.log.Debug().Str("conn_id", wc.ID()).Str("remote", wc.RemoteAddr()).Msg("ws connection accepted")

	// Outcome is logged by the hub.
	_ = h.hub.Serve(r.Context(), wc)
}

// wsConn adapts a WebSocket to core.Conn.
type wsConn struct {
	id     string
	remote string
	c      *websocket.Conn

	closed    atomic.Bool
	closeOnce sync.Once
}

func newWSConn(c *websocket.Conn, remote string) *wsConn {
	return &wsConn{id: uuid.NewString(), remote: remote, c: c}
}

func (w *wsConn) ID() string         { return w.id }
func (w *wsConn) RemoteAddr() string { return w.remote }

func (w *wsConn) ReadUnit(ctx context.Context) (string, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if w.closed.Load() ||
			websocket.CloseStatus(err) != -1 ||
			errors.Is(err, io.EOF) ||
			errors.Is(err, net.ErrClosed) {
			return "", io.EOF
		}
		return "", err
	}
	if !utf8.Valid(data) {
		return "", proto.ErrInvalidUTF8
	}
	return string(data), nil
}

func (w *wsConn) WriteUnit(ctx context.Context, text string) error {
	if w.closed.Load() {
		return net.ErrClosed
	}
	return w.c.Write(ctx, websocket.MessageText, []byte(text))
}

// Close starts a normal close handshake and drops the socket if the peer
// does not answer within closeGrace.
func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)

		done := make(chan struct{})
		go func() {
			_ = w.c.Close(websocket.StatusNormalClosure, "")
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(closeGrace):
			_ = w.c.CloseNow()
		}
	})
	return nil
}
