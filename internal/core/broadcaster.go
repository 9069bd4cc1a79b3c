package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/metrics"
)

// Delivery summarises one fan-out.
type Delivery struct {
	Recipients int
	Delivered  int
	// Dropped counts recipients whose transport refused the unit as too large.
	// They stay registered.
	Dropped int
	Failed  []Conn
}

// Broadcaster fans text out to registry members.
// A recipient whose write fails is pruned: removed from the registry, closed,
// and announced to the remaining members with a departure notice.
type Broadcaster struct {
	registry    *Registry
	sendTimeout time.Duration
	metrics     *metrics.Metrics
	log         *zerolog.Logger

	// OnDepart, when set, is called once for every member removed through Depart.
	OnDepart func(conn Conn, id Identity)
}

// NewBroadcaster creates a broadcaster over registry.
// A zero sendTimeout leaves each write bounded only by the caller's context.
func NewBroadcaster(registry *Registry, sendTimeout time.Duration, m *metrics.Metrics, logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry:    registry,
		sendTimeout: sendTimeout,
		metrics:     m,
		log:         orNop(logger),
	}
}

// Broadcast writes text to every member of a registry snapshot, or only to
// restrictTo when it is non-nil. The registry lock is never held while writing.
// kind labels the fan-out in metrics.
func (b *Broadcaster) Broadcast(ctx context.Context, kind EventKind, text string, restrictTo Conn) Delivery {
	members := b.registry.Snapshot()
	if restrictTo != nil {
		members = filterConn(members, restrictTo)
	}

	d := Delivery{Recipients: len(members)}
	for _, m := range members {
		err := b.send(ctx, m.Conn, text)
		switch {
		case err == nil:
			d.Delivered++
		case errors.Is(err, ErrUnitTooLarge):
			b.log.Warn().
				Err(err).
				Str("code", ErrCodeUnitTooLarge).
				Str("kind", kind.String()).
				Str("conn_id", m.Conn.ID()).
				Int("unit_bytes", len(text)).
				Msg("broadcast unit dropped")
			d.Dropped++
		default:
			b.log.Warn().
				Err(err).
				Str("code", ErrCodeSendFailure).
				Str("conn_id", m.Conn.ID()).
				Str("username", m.Identity.Username).
				Msg("broadcast send failed")
			d.Failed = append(d.Failed, m.Conn)
		}
	}
	b.metrics.RecordBroadcast(kind.String(), d.Recipients, d.Delivered, len(d.Failed))

	for _, conn := range d.Failed {
		b.prune(ctx, conn)
	}
	return d
}

// Depart removes conn from the registry and, if this call removed it, broadcasts
// the departure notice to the remaining members. Later calls for the same
// handle find nothing to remove and stay silent.
func (b *Broadcaster) Depart(ctx context.Context, conn Conn) (Identity, bool) {
	id, ok := b.registry.Remove(conn)
	if !ok {
		return Identity{}, false
	}
	if b.OnDepart != nil {
		b.OnDepart(conn, id)
	}
	b.Broadcast(ctx, EventDeparture, DepartureNotice(id), nil)
	return id, true
}

func (b *Broadcaster) prune(ctx context.Context, conn Conn) {
	if err := conn.Close(); err != nil {
		b.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("close pruned connection")
	}
	if id, ok := b.Depart(ctx, conn); ok {
		b.log.Info().
			Str("conn_id", conn.ID()).
			Str("username", id.Username).
			Msg("pruned unreachable session")
	}
}

func (b *Broadcaster) send(ctx context.Context, conn Conn, text string) error {
	if b.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.sendTimeout)
		defer cancel()
	}
	if err := conn.WriteUnit(ctx, text); err != nil {
		if errors.Is(err, ErrUnitTooLarge) {
			return coreError(ErrCodeUnitTooLarge, "write unit", err)
		}
		return coreError(ErrCodeSendFailure, "write unit", err)
	}
	return nil
}

func filterConn(members []Member, conn Conn) []Member {
	for _, m := range members {
		if m.Conn == conn {
			return []Member{m}
		}
	}
	return nil
}
