package bridge

import "errors"

// ErrAckTimeout is returned when no acknowledgment is received before the timeout.
var ErrAckTimeout = errors.New("timeout waiting for ack")

// ErrDisconnected is returned when the bridge has no broker connection.
var ErrDisconnected = errors.New("bridge disconnected")
