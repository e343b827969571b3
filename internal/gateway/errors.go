package gateway

import "errors"

var (
	// ErrConnClosed is returned by sends on a closed connection. Callers
	// treat it as a skipped delivery.
	ErrConnClosed    = errors.New("gateway: connection closed")
	ErrSendQueueFull = errors.New("gateway: send queue full")
)
