package core

import "context"

// Conn is one live transport as seen by the core layer.
//
// A Conn is also the registry key for its session, so implementations must be
// pointer types: comparable, and never reused after Close.
// ReadUnit returns io.EOF once the peer or the server has closed the transport.
// WriteUnit must be safe for concurrent use since several broadcasts may target
// the same recipient at once.
type Conn interface {
	ID() string
	RemoteAddr() string
	ReadUnit(ctx context.Context) (string, error)
	WriteUnit(ctx context.Context, text string) error
	Close() error
}
