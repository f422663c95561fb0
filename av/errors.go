package av

import (
	"errors"
	"fmt"
)

// Sentinel errors for av package operations.
// These errors enable reliable error classification using errors.Is().

// Session start errors.
var (
	// ErrNoConfiguration indicates no media settings are available.
	ErrNoConfiguration = errors.New("no media configuration available")

	// ErrInvalidDescriptor indicates a malformed call descriptor.
	ErrInvalidDescriptor = errors.New("invalid call descriptor")

	// ErrInvalidIdentity indicates an empty local identity.
	ErrInvalidIdentity = errors.New("invalid local identity")

	// ErrSessionCancelled indicates the session was stopped while starting.
	ErrSessionCancelled = errors.New("session cancelled during start")
)

// Peer errors.
var (
	// ErrNoSession indicates no session is active.
	ErrNoSession = errors.New("no active session")

	// ErrUnknownPeer indicates the peer is not part of the session.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrSelfPeer indicates the local identity was used as a peer.
	ErrSelfPeer = errors.New("peer is the local identity")
)

// Inbound frame errors. Frames failing with these are dropped.
var (
	// ErrWrongRoom indicates the frame belongs to another room.
	ErrWrongRoom = errors.New("frame for another room")

	// ErrFrameTooLarge indicates the payload exceeds the configured maximum.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrFrameDiscarded indicates the buffer refused the frame.
	ErrFrameDiscarded = errors.New("frame discarded by jitter buffer")

	// ErrInvalidEvent indicates an event that cannot be interpreted.
	ErrInvalidEvent = errors.New("invalid event")
)

// DeviceError reports a capture device that could not be acquired.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
