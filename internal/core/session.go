package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// SessionState is the lifecycle position of a Session.
type SessionState int32

const (
	// StateAuthenticating waits for the bearer token.
	StateAuthenticating SessionState = iota
	// StateActive relays chat and answers commands.
	StateActive
	// StateTerminated is final.
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session is the server side of one connection. It is owned by the goroutine
// running Run; the registry only ever holds its Conn and Identity.
type Session struct {
	hub      *Hub
	conn     Conn
	identity Identity
	state    atomic.Int32
	log      zerolog.Logger
}

func newSession(hub *Hub, conn Conn) *Session {
	return &Session{
		hub:  hub,
		conn: conn,
		log: hub.log.With().
			Str("conn_id", conn.ID()).
			Str("remote", conn.RemoteAddr()).
			Logger(),
	}
}

// State reports the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Run drives the session through Authenticating, Active and Terminated.
// It returns nil after !exit and a *CoreError for every other way out.
func (s *Session) Run(ctx context.Context) error {
	id, err := s.authenticate(ctx)
	if err != nil {
		s.state.Store(int32(StateTerminated))
		_ = s.conn.Close()
		return err
	}

	s.identity = id
	s.log = s.log.With().Str("username", id.Username).Int64("user_id", id.UserID).Logger()
	s.state.Store(int32(StateActive))
	s.hub.Join(ctx, s.conn, id)

	err = s.loop(ctx)
	s.terminate(ctx)
	return err
}

func (s *Session) authenticate(ctx context.Context) (Identity, error) {
	hsCtx := ctx
	if s.hub.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, s.hub.handshakeTimeout)
		defer cancel()
	}

	token, err := s.conn.ReadUnit(hsCtx)
	if err != nil {
		s.hub.metrics.RecordAuthFailure("no_token")
		return Identity{}, coreError(ErrCodeAuthRejected, "read token", err)
	}

	id, err := s.hub.verifier.Verify(strings.TrimSpace(token))
	if err != nil {
		s.hub.metrics.RecordAuthFailure(authFailureReason(err))
		return Identity{}, coreError(ErrCodeAuthRejected, "verify token", err)
	}
	return id, nil
}

func (s *Session) loop(ctx context.Context) error {
	for {
		text, err := s.conn.ReadUnit(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return coreError(ErrCodePeerClosed, "connection closed", err)
			}
			return coreError(ErrCodeReadFailure, "read unit", err)
		}

		cmd := ParseCommand(text)
		s.log.Debug().Str("command", cmd.Kind.String()).Msg("inbound unit")

		switch cmd.Kind {
		case CommandExit:
			return nil
		case CommandClose:
			return coreError(ErrCodePeerClosed, "zero-length unit", io.EOF)
		case CommandWho:
			s.hub.Directory(ctx, s.conn)
		default:
			s.hub.Chat(ctx, s.identity, cmd.Text)
		}
	}
}

// terminate is safe to reach more than once; only the first call does work,
// and the registry decides whether a departure notice is still owed.
func (s *Session) terminate(ctx context.Context) {
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateTerminated)) {
		return
	}
	// Cleanup must still announce the departure while the server is shutting down.
	s.hub.Leave(context.WithoutCancel(ctx), s.conn)
	if err := s.conn.Close(); err != nil {
		s.log.Debug().Err(err).Msg("close connection")
	}
}

func authFailureReason(err error) string {
	type reasoner interface{ Reason() string }
	var r reasoner
	if errors.As(err, &r) {
		return r.Reason()
	}
	return "invalid"
}
