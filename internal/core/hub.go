package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/metrics"
)

// Options configures a Hub.
type Options struct {
	Verifier         Verifier
	HandshakeTimeout time.Duration
	SendTimeout      time.Duration
	// MaxUnitBytes caps rendered chat envelopes; zero means no cap.
	MaxUnitBytes int
	Metrics      *metrics.Metrics
	Logger       *zerolog.Logger
	// Now stamps chat envelopes; time.Now when nil.
	Now func() time.Time
}

// Hub ties the registry, the broadcaster and the verifier together and runs
// one Session per connection handed to Serve.
type Hub struct {
	registry         *Registry
	broadcaster      *Broadcaster
	verifier         Verifier
	handshakeTimeout time.Duration
	maxUnit          int
	metrics          *metrics.Metrics
	log              *zerolog.Logger
	now              func() time.Time

	mu     sync.Mutex
	live   map[Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewHub creates a hub. opts.Verifier is required.
func NewHub(opts Options) *Hub {
	logger := orNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	registry := NewRegistry(logger)
	h := &Hub{
		registry:         registry,
		broadcaster:      NewBroadcaster(registry, opts.SendTimeout, opts.Metrics, logger),
		verifier:         opts.Verifier,
		handshakeTimeout: opts.HandshakeTimeout,
		maxUnit:          opts.MaxUnitBytes,
		metrics:          opts.Metrics,
		log:              logger,
		now:              now,
		live:             make(map[Conn]struct{}),
	}
	h.broadcaster.OnDepart = h.departed
	return h
}

// Registry exposes the hub's registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Serve runs a session for conn until it terminates. The connection is always
// closed when Serve returns.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	if !h.track(conn) {
		_ = conn.Close()
		return coreError(ErrCodeHubClosed, "serve connection", ErrHubClosed)
	}
	defer h.untrack(conn)

	sess := newSession(h, conn)
	err := sess.Run(ctx)

	switch Code(err) {
	case "":
		sess.log.Info().Msg("session exited")
	case ErrCodePeerClosed:
		sess.log.Info().Msg("session closed by peer")
	case ErrCodeAuthRejected:
		sess.log.Warn().Err(err).Msg("authentication rejected")
	default:
		sess.log.Warn().Err(err).Str("code", Code(err)).Msg("session terminated")
	}
	return err
}

// Join registers conn and then announces the arrival to every member,
// the newcomer included.
func (h *Hub) Join(ctx context.Context, conn Conn, id Identity) {
	h.registry.Add(conn, id)
	h.metrics.RecordSessionStarted()
	h.metrics.SetActiveSessions(h.registry.Len())
	h.log.Info().Str("conn_id", conn.ID()).Str("username", id.Username).Int64("user_id", id.UserID).Msg("session joined")

	h.broadcaster.Broadcast(ctx, EventArrival, ArrivalNotice(id), nil)
}

// Leave unregisters conn and announces the departure. It reports false when
// conn was already gone, in which case nothing is broadcast.
func (h *Hub) Leave(ctx context.Context, conn Conn) (Identity, bool) {
	return h.broadcaster.Depart(ctx, conn)
}

// Chat relays body from sender to every member, the sender included.
// With MaxUnitBytes set, the body is cut so the whole envelope fits.
func (h *Hub) Chat(ctx context.Context, from Identity, body string) Delivery {
	msg := Message{From: from, Body: body, CreatedAt: h.now()}
	if h.maxUnit > 0 {
		if capped := msg.Fit(h.maxUnit); len(capped.Body) < len(body) {
			h.log.Debug().
				Str("username", from.Username).
				Int("body_bytes", len(body)).
				Int("kept_bytes", len(capped.Body)).
				Msg("chat body truncated to unit limit")
			msg = capped
		}
	}
	return h.broadcaster.Broadcast(ctx, EventChat, msg.Render(), nil)
}

// Directory sends the current member listing to conn only.
func (h *Hub) Directory(ctx context.Context, conn Conn) Delivery {
	return h.broadcaster.Broadcast(ctx, EventDirectory, DirectoryListing(h.registry.Identities()), conn)
}

// Online lists registered identities in join order.
func (h *Hub) Online() []Identity {
	return h.registry.Identities()
}

// CloseAll stops accepting new connections and closes every live one, which
// makes each session run its own cleanup.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	conns := make([]Conn, 0, len(h.live))
	for c := range h.live {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Wait blocks until every Serve call has returned.
func (h *Hub) Wait() {
	h.wg.Wait()
}

func (h *Hub) track(conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.live[conn] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) untrack(conn Conn) {
	h.mu.Lock()
	delete(h.live, conn)
	h.mu.Unlock()
	h.wg.Done()
}

func (h *Hub) departed(conn Conn, id Identity) {
	h.metrics.SetActiveSessions(h.registry.Len())
	h.log.Info().Str("conn_id", conn.ID()).Str("username", id.Username).Msg("session left")
}
