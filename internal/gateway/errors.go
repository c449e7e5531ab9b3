package gateway

import "errors"

// Gateway errors
var (
	ErrConnClosed       = errors.New("connection closed")
	ErrWriteChannelFull = errors.New("write channel full")
	ErrInvalidProtocol  = errors.New("invalid protocol")
	ErrUserIdMismatch   = errors.New("user Id mismatch")
	ErrPanic            = errors.New("panic error")

	// ErrUnknownConnection marks operations referencing a connection that
	// is no longer registered. This is a benign race with disconnect and
	// is absorbed by callers, never surfaced to the end user.
	ErrUnknownConnection = errors.New("unknown connection")
)
