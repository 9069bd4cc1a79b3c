package core

import "errors"

// Error codes attached to CoreError. They double as log fields and metric labels.
const (
	ErrCodeAuthRejected  = "auth_rejected"
	ErrCodePeerClosed    = "peer_closed"
	ErrCodeSendFailure   = "send_failure"
	ErrCodeAcceptFailure = "accept_failure"
	ErrCodeReadFailure   = "read_failure"
	ErrCodeHubClosed     = "hub_closed"
	ErrCodeUnitTooLarge  = "unit_too_large"
)

var (
	// ErrAuthRejected covers expired, invalid or missing bearer tokens.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrPeerClosed is a zero-length unit, EOF or reset from the remote side.
	ErrPeerClosed = errors.New("peer closed connection")
	// ErrSendFailure is a failed write to one broadcast recipient.
	ErrSendFailure = errors.New("send failed")
	// ErrAcceptFailure is a listener-level accept error.
	ErrAcceptFailure = errors.New("accept failed")
	// ErrUnitTooLarge is an outbound unit the transport refuses to frame.
	// Nothing was written, so the connection is still usable.
	ErrUnitTooLarge = errors.New("unit exceeds transport limit")
	// ErrHubClosed is returned when a connection arrives after shutdown began.
	ErrHubClosed = errors.New("hub closed")
)

// CoreError wraps a code, a human-readable message and the underlying cause.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a CoreError against the sentinel for its code.
func (e *CoreError) Is(target error) bool {
	switch e.Code {
	case ErrCodeAuthRejected:
		return target == ErrAuthRejected
	case ErrCodePeerClosed:
		return target == ErrPeerClosed
	case ErrCodeSendFailure:
		return target == ErrSendFailure
	case ErrCodeAcceptFailure:
		return target == ErrAcceptFailure
	case ErrCodeHubClosed:
		return target == ErrHubClosed
	case ErrCodeUnitTooLarge:
		return target == ErrUnitTooLarge
	}
	return false
}

func coreError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}

// NewAcceptError classifies a listener accept error.
func NewAcceptError(err error) *CoreError {
	return coreError(ErrCodeAcceptFailure, "accept connection", err)
}

// Code extracts the CoreError code from err, or "" when err carries none.
func Code(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
