package gateway

import "errors"

var (
	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("gateway closed")

	// ErrQueueFull indicates an outbound frame was dropped for load shedding.
	ErrQueueFull = errors.New("gateway send queue full")

	// ErrMalformedMessage indicates an inbound message that cannot be decoded.
	ErrMalformedMessage = errors.New("malformed gateway message")
)
