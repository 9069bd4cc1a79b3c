package core

import "strconv"

// Identity is the authenticated holder of a connection.
// It is produced by a Verifier and never changes once attached to a session.
type Identity struct {
	Username string
	UserID   int64
}

func (id Identity) String() string {
	return id.Username + "#" + strconv.FormatInt(id.UserID, 10)
}

// Verifier turns a bearer token into an Identity.
// Implementations must be safe for concurrent use.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(token string) (Identity, error)

// Verify calls f(token).
func (f VerifierFunc) Verify(token string) (Identity, error) {
	return f(token)
}
